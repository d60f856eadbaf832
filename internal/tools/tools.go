// Package tools exposes the ledger to model-driven callers as a resource,
// a tool and two prompts.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/papermes/internal/accounts"
	"github.com/dvloznov/papermes/internal/apperrors"
	"github.com/dvloznov/papermes/internal/firefly"
	"github.com/dvloznov/papermes/internal/mapper"
	"github.com/dvloznov/papermes/internal/prompts"
)

const (
	// CreateTransactionsName is the only tool the model may call.
	CreateTransactionsName = "create_transactions"
	// AccountsResourceURI identifies the account listing resource.
	AccountsResourceURI = "firefly://accounts"
)

// Result is the structured outcome of create_transactions. It is returned for
// failures too; the tool never fails with a Go error.
type Result struct {
	Success       bool   `json:"success"`
	TransactionID string `json:"transaction_id,omitempty"`
	Message       string `json:"message,omitempty"`
	GroupTitle    string `json:"group_title,omitempty"`
	Error         string `json:"error,omitempty"`
	StatusCode    *int   `json:"status_code,omitempty"`
}

// Storer stores a transaction group. *firefly.Client satisfies it.
type Storer interface {
	StoreTransactionGroup(ctx context.Context, splits []firefly.TransactionSplit, groupTitle string, policy firefly.StorePolicy) (*firefly.TransactionGroup, error)
}

// StorerFactory opens a ledger session for one tool call.
type StorerFactory func() (Storer, func() error, error)

// LedgerFactory returns a StorerFactory that opens a new firefly.Client per call.
func LedgerFactory(cfg firefly.ClientConfig) StorerFactory {
	return func() (Storer, func() error, error) {
		c, err := firefly.NewClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
}

// AccountSource lists simplified accounts. *accounts.Service satisfies it.
type AccountSource interface {
	List(ctx context.Context) []accounts.Account
}

// Service implements the tool, resource and prompt surface.
type Service struct {
	accounts AccountSource
	open     StorerFactory
	mapper   *mapper.Mapper
	catalog  *prompts.Catalog
	policy   firefly.StorePolicy
	log      zerolog.Logger
}

// NewService wires the surface to its collaborators.
func NewService(accts AccountSource, open StorerFactory, m *mapper.Mapper, catalog *prompts.Catalog, log zerolog.Logger) *Service {
	return &Service{
		accounts: accts,
		open:     open,
		mapper:   m,
		catalog:  catalog,
		policy:   firefly.DefaultStorePolicy(),
		log:      log,
	}
}

// AccountsResource returns the account list, empty when the ledger is unreachable.
func (s *Service) AccountsResource(ctx context.Context) []accounts.Account {
	return s.accounts.List(ctx)
}

// CreateTransactionsFromArgs decodes an untrusted argument bag and stores it.
func (s *Service) CreateTransactionsFromArgs(ctx context.Context, args map[string]any) Result {
	batch, err := mapper.DecodeBatch(args)
	if err != nil {
		return errorResult(err)
	}
	return s.CreateTransactions(ctx, batch.Transactions, batch.GroupTitle)
}

// CreateTransactions maps the requests to splits and stores them as one group.
// Nothing is sent to the ledger unless every request maps cleanly.
func (s *Service) CreateTransactions(ctx context.Context, reqs []mapper.TransactionRequest, groupTitle string) Result {
	for i, req := range reqs {
		s.log.Info().
			Int("index", i).
			Str("type", req.Type).
			Str("description", req.Description).
			Msg("Processing transaction request")
	}

	splits, err := s.mapper.MapAll(reqs)
	if err != nil {
		return errorResult(err)
	}

	storer, closeFn, err := s.open()
	if err != nil {
		return errorResult(fmt.Errorf("open ledger client: %w", err))
	}
	defer closeFn()

	group, err := storer.StoreTransactionGroup(ctx, splits, groupTitle, s.policy)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to store transaction group")
		return errorResult(err)
	}

	s.log.Info().
		Str("transaction_id", group.ID.String()).
		Int("splits", len(splits)).
		Msg("Transaction group created")

	return Result{
		Success:       true,
		TransactionID: group.ID.String(),
		Message:       fmt.Sprintf("Transaction created successfully with %d split(s)", len(splits)),
		GroupTitle:    groupTitle,
	}
}

func errorResult(err error) Result {
	var apiErr *firefly.APIError
	if errors.As(err, &apiErr) {
		r := Result{Error: "Firefly API Error: " + apiErr.Message}
		if apiErr.HasStatus() {
			status := apiErr.StatusCode
			r.StatusCode = &status
		}
		return r
	}
	var valErr *apperrors.ValidationError
	if errors.As(err, &valErr) {
		return Result{Error: valErr.Error()}
	}
	return Result{Error: fmt.Sprintf("Error creating transaction: %v", err)}
}

// DeveloperBookkeepingContext renders the system prompt listing accts.
func (s *Service) DeveloperBookkeepingContext(accts []accounts.Account) (string, error) {
	return s.catalog.Render(prompts.DeveloperBookkeepingContext, map[string]any{"accounts": accts})
}

// UserAnalyzeReceipt renders the instruction sent alongside the receipt image.
func (s *Service) UserAnalyzeReceipt() (string, error) {
	return s.catalog.Render(prompts.UserAnalyzeReceipt, nil)
}

// RenderPrompt renders a catalog prompt from caller-supplied arguments. When
// the developer context is requested without accounts, the live list is used.
func (s *Service) RenderPrompt(ctx context.Context, name string, args map[string]any) (string, error) {
	switch name {
	case prompts.DeveloperBookkeepingContext:
		raw, ok := args["accounts"]
		if !ok || raw == nil {
			return s.DeveloperBookkeepingContext(s.AccountsResource(ctx))
		}
		accts, err := decodeAccounts(raw)
		if err != nil {
			return "", err
		}
		return s.DeveloperBookkeepingContext(accts)
	case prompts.UserAnalyzeReceipt:
		return s.UserAnalyzeReceipt()
	default:
		if _, ok := s.catalog.Get(name); !ok {
			return "", &apperrors.NotFoundError{Resource: "prompt", Path: name}
		}
		return s.catalog.Render(name, args)
	}
}

func decodeAccounts(raw any) ([]accounts.Account, error) {
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, apperrors.NewValidationError("accounts", err.Error())
	}
	var accts []accounts.Account
	if err := json.Unmarshal(data, &accts); err != nil {
		return nil, apperrors.NewValidationError("accounts", fmt.Sprintf("accounts must be a list of account objects: %v", err))
	}
	return accts, nil
}

// Prompts lists the prompt catalog.
func (s *Service) Prompts() []prompts.Definition {
	return s.catalog.List()
}
