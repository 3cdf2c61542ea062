// Package app builds the services from configuration for the API server
// and the operator console.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MrJamesThe3rd/unpaper/internal/audit"
	auditStore "github.com/MrJamesThe3rd/unpaper/internal/audit/store"
	"github.com/MrJamesThe3rd/unpaper/internal/billing"
	billingStore "github.com/MrJamesThe3rd/unpaper/internal/billing/store"
	"github.com/MrJamesThe3rd/unpaper/internal/config"
	"github.com/MrJamesThe3rd/unpaper/internal/database"
	"github.com/MrJamesThe3rd/unpaper/internal/document"
	documentStore "github.com/MrJamesThe3rd/unpaper/internal/document/store"
	"github.com/MrJamesThe3rd/unpaper/internal/memstore"
	"github.com/MrJamesThe3rd/unpaper/internal/procedure"
	procedureStore "github.com/MrJamesThe3rd/unpaper/internal/procedure/store"
	"github.com/MrJamesThe3rd/unpaper/internal/provider"
	providerStore "github.com/MrJamesThe3rd/unpaper/internal/provider/store"
)

type App struct {
	Procedures *procedure.Service
	Documents  *document.Service
	Audit      *audit.Service
	Billing    *billing.Service
	Providers  *provider.Service

	close func() error
}

func (a *App) Close() error {
	if a.close == nil {
		return nil
	}

	return a.close()
}

type repositories struct {
	procedures procedure.Repository
	documents  document.Repository
	audit      audit.Repository
	billing    billing.Repository
	providers  provider.Repository
}

// Open connects the configured storage and builds every service on it.
func Open(ctx context.Context, cfg *config.Config) (*App, error) {
	var (
		repos   repositories
		closeDB func() error
	)

	switch cfg.Storage.Driver {
	case config.DriverMemory:
		mem := memstore.New()
		repos = repositories{
			procedures: mem,
			documents:  mem.Documents(),
			audit:      mem.Audit(),
			billing:    mem.Billing(),
			providers:  mem.Providers(),
		}

		slog.Warn("using in-memory storage, data is lost on exit")
	default:
		db, err := database.New(cfg.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}

		if err := database.Migrate(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}

		repos = repositories{
			procedures: procedureStore.New(db),
			documents:  documentStore.New(db),
			audit:      auditStore.New(db),
			billing:    billingStore.New(db),
			providers:  providerStore.New(db),
		}
		closeDB = db.Close
	}

	documents := document.NewService(repos.documents)

	return &App{
		Procedures: procedure.NewService(repos.procedures, documents, procedure.WithSettings(Settings(cfg))),
		Documents:  documents,
		Audit:      audit.NewService(repos.audit),
		Billing:    billing.NewService(repos.billing),
		Providers:  provider.NewService(repos.providers),
		close:      closeDB,
	}, nil
}

// Settings maps configuration onto the orchestrator's tunables.
func Settings(cfg *config.Config) procedure.Settings {
	return procedure.Settings{
		TokenTTL:        cfg.Signing.TokenTTL,
		MaxAttempts:     cfg.Signing.MaxAttempts,
		GrantTTL:        cfg.Notary.GrantTTL,
		ProcedureFee:    cfg.Billing.ProcedureFee,
		BillingCurrency: cfg.Billing.Currency,
	}
}
