package accounts

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/papermes/internal/firefly"
)

type mockLister struct {
	ListAllAccountsFunc func(ctx context.Context, opts firefly.ListAccountsOptions) ([]firefly.Account, error)
	calls               int
}

func (m *mockLister) ListAllAccounts(ctx context.Context, opts firefly.ListAccountsOptions) ([]firefly.Account, error) {
	m.calls++
	return m.ListAllAccountsFunc(ctx, opts)
}

func factoryFor(l Lister) ClientFactory {
	return func() (Lister, func() error, error) {
		return l, func() error { return nil }, nil
	}
}

func strPtr(s string) *string { return &s }

func TestFromLedger(t *testing.T) {
	acc := firefly.Account{
		ID: "3",
		Attributes: firefly.AccountAttributes{
			Name: "Groceries",
			Type: firefly.AccountKindExpense,
		},
	}

	got := FromLedger(acc, "USD")
	assert.Equal(t, Account{ID: "3", Name: "Groceries", Type: "expense", Notes: "", CurrencyCode: "USD"}, got)

	acc.Attributes.CurrencyCode = "EUR"
	acc.Attributes.Notes = strPtr("weekly")
	got = FromLedger(acc, "USD")
	assert.Equal(t, "EUR", got.CurrencyCode)
	assert.Equal(t, "weekly", got.Notes)
}

func TestService_List(t *testing.T) {
	lister := &mockLister{
		ListAllAccountsFunc: func(ctx context.Context, opts firefly.ListAccountsOptions) ([]firefly.Account, error) {
			return []firefly.Account{
				{ID: "1", Attributes: firefly.AccountAttributes{Name: "Checking Account", Type: firefly.AccountKindAsset}},
			}, nil
		},
	}

	svc := NewService(factoryFor(lister), "USD", 0, zerolog.Nop())
	accs := svc.List(context.Background())
	require.Len(t, accs, 1)
	assert.Equal(t, "Checking Account", accs[0].Name)

	svc.List(context.Background())
	assert.Equal(t, 2, lister.calls, "no cache configured")
}

func TestService_ListCaches(t *testing.T) {
	lister := &mockLister{
		ListAllAccountsFunc: func(ctx context.Context, opts firefly.ListAccountsOptions) ([]firefly.Account, error) {
			return []firefly.Account{{ID: "1", Attributes: firefly.AccountAttributes{Name: "A", Type: "asset"}}}, nil
		},
	}

	svc := NewService(factoryFor(lister), "USD", time.Minute, zerolog.Nop())
	svc.List(context.Background())
	svc.List(context.Background())
	assert.Equal(t, 1, lister.calls)

	svc.Invalidate()
	svc.List(context.Background())
	assert.Equal(t, 2, lister.calls)
}

func TestService_ListDegradesToEmpty(t *testing.T) {
	lister := &mockLister{
		ListAllAccountsFunc: func(ctx context.Context, opts firefly.ListAccountsOptions) ([]firefly.Account, error) {
			return nil, &firefly.APIError{Message: "request failed: connection refused"}
		},
	}

	svc := NewService(factoryFor(lister), "USD", time.Minute, zerolog.Nop())
	accs := svc.List(context.Background())
	assert.NotNil(t, accs)
	assert.Empty(t, accs)

	_, err := svc.Fetch(context.Background())
	var apiErr *firefly.APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestService_UnreachableLedger(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	host := srv.URL
	srv.Close()

	svc := NewService(LedgerFactory(firefly.ClientConfig{Host: host, AccessToken: "t", Timeout: time.Second}), "USD", 0, zerolog.Nop())
	accs := svc.List(context.Background())
	assert.Equal(t, []Account{}, accs)
}

func TestService_BadConfigDegradesToEmpty(t *testing.T) {
	svc := NewService(LedgerFactory(firefly.ClientConfig{}), "USD", 0, zerolog.Nop())
	assert.Empty(t, svc.List(context.Background()))
}
