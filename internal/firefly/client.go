package firefly

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/dvloznov/papermes/internal/apperrors"
)

const (
	// DefaultTimeout applies when ClientConfig.Timeout is zero.
	DefaultTimeout = 30 * time.Second

	apiPath   = "/api/v1"
	mediaType = "application/vnd.api+json"
)

// ClientConfig represents the configuration for the ledger API client.
type ClientConfig struct {
	Host        string
	AccessToken string
	Timeout     time.Duration // Default: 30 seconds

	// Transport overrides the underlying round tripper. Tests point it at httptest
	// servers; the bearer token is always added on top of it.
	Transport http.RoundTripper

	Logger zerolog.Logger
}

// Client is a Firefly III API client. Each Client owns its connection pool; create
// one per logical caller and Close it when done, or use WithClient.
type Client struct {
	httpClient *http.Client
	transport  http.RoundTripper
	baseURL    string
	log        zerolog.Logger
}

// NewClient creates a new ledger API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	host := strings.TrimRight(strings.TrimSpace(cfg.Host), "/")
	if host == "" {
		return nil, errors.New("NewClient: ledger host must be provided")
	}
	if cfg.AccessToken == "" {
		return nil, errors.New("NewClient: access token must be provided")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	base := cfg.Transport
	if base == nil {
		base = http.DefaultTransport.(*http.Transport).Clone()
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"}),
				Base:   base,
			},
		},
		transport: base,
		baseURL:   host + apiPath,
		log:       cfg.Logger,
	}, nil
}

// WithClient opens a client, runs fn and closes the client on every return path.
func WithClient(ctx context.Context, cfg ClientConfig, fn func(ctx context.Context, c *Client) error) error {
	c, err := NewClient(cfg)
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(ctx, c)
}

// Close releases idle connections held by the client.
func (c *Client) Close() error {
	if ci, ok := c.transport.(interface{ CloseIdleConnections() }); ok {
		ci.CloseIdleConnections()
	}
	return nil
}

// BaseURL returns the API root, e.g. https://ledger.example.com/api/v1.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListAccountsOptions filters the account listing. Zero values are not sent.
type ListAccountsOptions struct {
	Type  string
	Page  int
	Limit int
}

func (o ListAccountsOptions) values() url.Values {
	q := url.Values{}
	if o.Type != "" {
		q.Set("type", o.Type)
	}
	if o.Page > 0 {
		q.Set("page", strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	return q
}

// ListAccounts fetches one page of accounts. A successful response with an empty
// body yields an empty page.
func (c *Client) ListAccounts(ctx context.Context, opts ListAccountsOptions) (*AccountPage, error) {
	page := &AccountPage{Data: []Account{}}
	if err := c.do(ctx, http.MethodGet, "/accounts", opts.values(), nil, page); err != nil {
		return nil, fmt.Errorf("ListAccounts: %w", err)
	}
	if page.Data == nil {
		page.Data = []Account{}
	}
	return page, nil
}

// GetAccount fetches a single account.
func (c *Client) GetAccount(ctx context.Context, id ID) (*Account, error) {
	if id == "" {
		return nil, apperrors.NewValidationError("id", "account id is required")
	}
	var env Envelope[*Account]
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(id.String()), nil, nil, &env); err != nil {
		return nil, fmt.Errorf("GetAccount: %w", err)
	}
	if env.Data == nil {
		return nil, &apperrors.SchemaError{Field: "data", Message: "empty account response"}
	}
	return env.Data, nil
}

// StoreTransactionGroup creates a transaction group from splits. Splits are
// validated before anything is sent. The call is never retried: with duplicate
// detection enabled a blind retry would either fail or double-book.
func (c *Client) StoreTransactionGroup(ctx context.Context, splits []TransactionSplit, groupTitle string, policy StorePolicy) (*TransactionGroup, error) {
	body, err := NewTransactionStore(splits, groupTitle, policy)
	if err != nil {
		return nil, fmt.Errorf("StoreTransactionGroup: %w", err)
	}

	var env Envelope[*TransactionGroup]
	if err := c.do(ctx, http.MethodPost, "/transactions", nil, body, &env); err != nil {
		return nil, fmt.Errorf("StoreTransactionGroup: %w", err)
	}
	if env.Data == nil {
		return nil, &apperrors.SchemaError{Field: "data", Message: "empty transaction group response"}
	}
	return env.Data, nil
}

// DeleteTransactionGroup deletes a transaction group and all of its splits.
func (c *Client) DeleteTransactionGroup(ctx context.Context, id ID) error {
	if id == "" {
		return apperrors.NewValidationError("id", "transaction group id is required")
	}
	if err := c.do(ctx, http.MethodDelete, "/transactions/"+url.PathEscape(id.String()), nil, nil, nil); err != nil {
		return fmt.Errorf("DeleteTransactionGroup: %w", err)
	}
	return nil
}

// DeleteTransactionJournal deletes a single split.
func (c *Client) DeleteTransactionJournal(ctx context.Context, id ID) error {
	if id == "" {
		return apperrors.NewValidationError("id", "transaction journal id is required")
	}
	if err := c.do(ctx, http.MethodDelete, "/transaction-journals/"+url.PathEscape(id.String()), nil, nil, nil); err != nil {
		return fmt.Errorf("DeleteTransactionJournal: %w", err)
	}
	return nil
}

// do performs a request and decodes a successful body into out. A nil out or an
// empty body leaves out untouched.
func (c *Client) do(ctx context.Context, method, endpoint string, query url.Values, body, out any) error {
	target := c.baseURL + endpoint
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return schemaErr("", "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", mediaType)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Debug().Err(err).Str("method", method).Str("url", target).Msg("ledger request failed")
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(err)
	}

	c.log.Debug().
		Str("method", method).
		Str("url", target).
		Int("status", resp.StatusCode).
		Dur("duration", time.Since(start)).
		Msg("ledger request")

	if resp.StatusCode >= 400 {
		return parseError(resp.StatusCode, data)
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return schemaErr("", "decode response", err)
	}
	return nil
}
