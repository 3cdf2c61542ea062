package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/joho/godotenv"

	"github.com/MrJamesThe3rd/unpaper/internal/app"
	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/config"
	unpaperHttp "github.com/MrJamesThe3rd/unpaper/internal/http"
	documentHandler "github.com/MrJamesThe3rd/unpaper/internal/http/document"
	ledgerHandler "github.com/MrJamesThe3rd/unpaper/internal/http/ledger"
	notaryHandler "github.com/MrJamesThe3rd/unpaper/internal/http/notary"
	procedureHandler "github.com/MrJamesThe3rd/unpaper/internal/http/procedure"
	sessionHandler "github.com/MrJamesThe3rd/unpaper/internal/http/session"
	signHandler "github.com/MrJamesThe3rd/unpaper/internal/http/sign"
	webhookHandler "github.com/MrJamesThe3rd/unpaper/internal/http/webhook"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if cfg.Auth.JWTSecret == "" {
		slog.Error("failed to load config", "error", "AUTH_JWT_SECRET is required")
		os.Exit(1)
	}

	if cfg.Webhook.Secret == "" {
		slog.Warn("WEBHOOK_SECRET is empty, payment callbacks will be rejected")
	}

	a, err := app.Open(context.Background(), cfg)
	if err != nil {
		slog.Error("failed to open storage", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	issuer := auth.NewIssuer(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	var (
		procedureH = procedureHandler.NewHandler(a.Procedures, a.Audit)
		notaryH    = notaryHandler.NewHandler(a.Procedures)
		documentH  = documentHandler.NewHandler(a.Documents)
		ledgerH    = ledgerHandler.NewHandler(a.Billing, a.Audit, a.Providers)
		signH      = signHandler.NewHandler(a.Procedures, cfg.Signing.MaxAttempts)
		webhookH   = webhookHandler.NewHandler(a.Procedures, cfg.Webhook.Secret)
	)

	opts := unpaperHttp.Options{
		Issuer:      issuer,
		CORSOrigins: cfg.Server.CORSOrigins,
		Timeout:     cfg.Server.Timeout,
	}

	if cfg.Auth.DevLogin {
		slog.Warn("dev login enabled")

		opts.Session = sessionHandler.NewHandler(issuer)
	}

	router := unpaperHttp.New(opts, procedureH, notaryH, documentH, ledgerH, signH, webhookH)

	port := fmt.Sprintf(":%d", cfg.App.Port)
	slog.Info("starting server", "app", cfg.App.Name, "port", port, "storage", cfg.Storage.Driver)

	if err := http.ListenAndServe(port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
