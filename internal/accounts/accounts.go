package accounts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/dvloznov/papermes/internal/firefly"
)

// Account is the simplified account view exposed to prompts and tool callers.
type Account struct {
	ID           firefly.ID `json:"id"`
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	Notes        string     `json:"notes"`
	CurrencyCode string     `json:"currency_code"`
}

// FromLedger maps a ledger account. Missing currency falls back to defaultCurrency
// and missing notes become the empty string.
func FromLedger(acc firefly.Account, defaultCurrency string) Account {
	a := Account{
		ID:           acc.ID,
		Name:         acc.Attributes.Name,
		Type:         string(acc.Attributes.Type),
		CurrencyCode: acc.Attributes.CurrencyCode,
	}
	if acc.Attributes.Notes != nil {
		a.Notes = *acc.Attributes.Notes
	}
	if strings.TrimSpace(a.CurrencyCode) == "" {
		a.CurrencyCode = defaultCurrency
	}
	return a
}

// FromLedgerAll maps a slice of ledger accounts, preserving order.
func FromLedgerAll(accs []firefly.Account, defaultCurrency string) []Account {
	out := make([]Account, 0, len(accs))
	for _, acc := range accs {
		out = append(out, FromLedger(acc, defaultCurrency))
	}
	return out
}

// Lister fetches every ledger account. *firefly.Client satisfies it.
type Lister interface {
	ListAllAccounts(ctx context.Context, opts firefly.ListAccountsOptions) ([]firefly.Account, error)
}

// ClientFactory opens a ledger session for one call. The returned close func
// releases it.
type ClientFactory func() (Lister, func() error, error)

// LedgerFactory returns a ClientFactory that opens a new firefly.Client per call.
func LedgerFactory(cfg firefly.ClientConfig) ClientFactory {
	return func() (Lister, func() error, error) {
		c, err := firefly.NewClient(cfg)
		if err != nil {
			return nil, nil, err
		}
		return c, c.Close, nil
	}
}

const cacheKey = "accounts"

// Service lists simplified accounts. Ledger failures never propagate: the
// caller gets an empty list and the error is logged.
type Service struct {
	open            ClientFactory
	defaultCurrency string
	cache           *cache.Cache
	log             zerolog.Logger
}

// NewService creates an account service. A positive ttl caches successful listings.
func NewService(open ClientFactory, defaultCurrency string, ttl time.Duration, log zerolog.Logger) *Service {
	s := &Service{
		open:            open,
		defaultCurrency: defaultCurrency,
		log:             log,
	}
	if ttl > 0 {
		s.cache = cache.New(ttl, 2*ttl)
	}
	return s
}

// List returns all accounts, or an empty list when the ledger cannot be reached.
func (s *Service) List(ctx context.Context) []Account {
	accs, err := s.Fetch(ctx)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list ledger accounts")
		return []Account{}
	}
	return accs
}

// Fetch is List without the degradation to an empty list.
func (s *Service) Fetch(ctx context.Context) ([]Account, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			return cached.([]Account), nil
		}
	}

	client, closeFn, err := s.open()
	if err != nil {
		return nil, fmt.Errorf("Fetch: open ledger client: %w", err)
	}
	defer closeFn()

	ledgerAccounts, err := client.ListAllAccounts(ctx, firefly.ListAccountsOptions{})
	if err != nil {
		return nil, fmt.Errorf("Fetch: list accounts: %w", err)
	}

	accs := FromLedgerAll(ledgerAccounts, s.defaultCurrency)
	if s.cache != nil {
		s.cache.Set(cacheKey, accs, cache.DefaultExpiration)
	}
	return accs, nil
}

// Invalidate drops the cached listing, if any.
func (s *Service) Invalidate() {
	if s.cache != nil {
		s.cache.Delete(cacheKey)
	}
}
