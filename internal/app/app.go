// Package app wires settings into the services shared by cmd/papermes and
// cmd/server.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/dvloznov/papermes/internal/accounts"
	"github.com/dvloznov/papermes/internal/config"
	"github.com/dvloznov/papermes/internal/firefly"
	"github.com/dvloznov/papermes/internal/imagestore"
	"github.com/dvloznov/papermes/internal/mapper"
	"github.com/dvloznov/papermes/internal/oracle"
	"github.com/dvloznov/papermes/internal/prompts"
	"github.com/dvloznov/papermes/internal/receipt"
	"github.com/dvloznov/papermes/internal/tools"
)

// App holds the wired services. Ledger clients are not shared: the account
// service and the tool service open one per call.
type App struct {
	Settings *config.Settings
	Log      zerolog.Logger
	Ledger   firefly.ClientConfig
	Images   *imagestore.Store
	Accounts *accounts.Service
	Tools    *tools.Service
	Catalog  *prompts.Catalog
}

// New builds the services that need no network access to construct.
func New(s *config.Settings, log zerolog.Logger) (*App, error) {
	catalog, err := loadCatalog(s.Prompts.Dir)
	if err != nil {
		return nil, fmt.Errorf("New: %w", err)
	}

	ledger := s.LedgerConfig(log)
	accts := accounts.NewService(accounts.LedgerFactory(ledger), s.App.DefaultCurrency, s.Accounts.CacheTTL, log)
	svc := tools.NewService(accts, tools.LedgerFactory(ledger), mapper.New(s.App.DefaultCurrency), catalog, log)

	return &App{
		Settings: s,
		Log:      log,
		Ledger:   ledger,
		Images:   imagestore.New(s.StorageConfig()),
		Accounts: accts,
		Tools:    svc,
		Catalog:  catalog,
	}, nil
}

func loadCatalog(dir string) (*prompts.Catalog, error) {
	if dir == "" {
		return prompts.Default()
	}
	return prompts.Load(os.DirFS(dir))
}

// Analyzer creates the oracle client and the receipt analyzer on top of it.
func (a *App) Analyzer(ctx context.Context) (*receipt.Analyzer, error) {
	pricing, err := a.Settings.Pricing()
	if err != nil {
		return nil, fmt.Errorf("Analyzer: %w", err)
	}
	orc, err := oracle.NewGemini(ctx, a.Settings.GeminiConfig())
	if err != nil {
		return nil, fmt.Errorf("Analyzer: %w", err)
	}
	return receipt.NewAnalyzer(receipt.Deps{
		Images:   a.Images,
		Accounts: a.Accounts,
		Prompts:  a.Tools,
		Oracle:   orc,
		Pricing:  pricing,
		Logger:   a.Log,
	}), nil
}

// Close releases the image store client.
func (a *App) Close() error {
	return a.Images.Close()
}
