package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/MrJamesThe3rd/unpaper/internal/auth"
	"github.com/MrJamesThe3rd/unpaper/internal/http/document"
	"github.com/MrJamesThe3rd/unpaper/internal/http/ledger"
	"github.com/MrJamesThe3rd/unpaper/internal/http/notary"
	"github.com/MrJamesThe3rd/unpaper/internal/http/procedure"
	"github.com/MrJamesThe3rd/unpaper/internal/http/session"
	"github.com/MrJamesThe3rd/unpaper/internal/http/sign"
	"github.com/MrJamesThe3rd/unpaper/internal/http/webhook"
)

type Options struct {
	Issuer      *auth.Issuer
	CORSOrigins []string
	Timeout     time.Duration
	// Session is mounted only when set.
	Session *session.Handler
}

func New(
	opts Options,
	proceduresV1 *procedure.Handler,
	notaryV1 *notary.Handler,
	documentsV1 *document.Handler,
	ledgerV1 *ledger.Handler,
	signV1 *sign.Handler,
	webhooksV1 *webhook.Handler,
) http.Handler {
	router := chi.NewRouter()

	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	if opts.Timeout > 0 {
		router.Use(middleware.Timeout(opts.Timeout))
	}

	router.Route("/api/v1", func(r chi.Router) {
		if opts.Session != nil {
			r.Route("/session", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				opts.Session.Routes(r)
			})
		}

		r.Route("/sign", func(r chi.Router) {
			r.Use(middleware.AllowContentType("application/json"))
			signV1.Routes(r)
		})

		r.Route("/webhooks", webhooksV1.Routes)

		r.Group(func(r chi.Router) {
			r.Use(Authenticate(opts.Issuer))

			r.Route("/procedures", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				proceduresV1.Routes(r)
			})

			r.Route("/notary", func(r chi.Router) {
				r.Use(middleware.AllowContentType("application/json"))
				notaryV1.Routes(r)
			})

			r.Route("/documents", documentsV1.Routes)

			r.Route("/billing", ledgerV1.BillingRoutes)
			r.Route("/audit", ledgerV1.AuditRoutes)
			r.Route("/providers", ledgerV1.ProviderRoutes)
		})
	})

	return router
}
