package server

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gitscribe/gitscribe/internal/entitlement"
	"github.com/gitscribe/gitscribe/internal/generate"
	"github.com/gitscribe/gitscribe/internal/handler"
	"github.com/gitscribe/gitscribe/internal/middleware"
	"github.com/gitscribe/gitscribe/internal/model"
	"github.com/gitscribe/gitscribe/internal/payment"
	"github.com/gitscribe/gitscribe/internal/plan"
	"github.com/gitscribe/gitscribe/internal/report"
	"github.com/gitscribe/gitscribe/internal/store"
	"github.com/gitscribe/gitscribe/internal/usage"
)

type Config struct {
	BaseURL  string
	Payment  payment.Config
	Catalog  plan.Catalog
	Prices   plan.PriceMap
	Provider handler.IdentityProvider

	Fetcher   generate.ContentFetcher
	Generator generate.TextGenerator
	PRs       generate.PRCreator
}

type Server struct {
	db           *sql.DB
	sessionStore *store.SessionStore
	rateLimiter  *middleware.RateLimiter
	logger       *slog.Logger

	authH     *handler.AuthHandler
	generateH *handler.GenerateHandler
	apiKeyH   *handler.APIKeyHandler
	accountH  *handler.AccountHandler
	checkoutH *handler.CheckoutHandler
	webhookH  *handler.WebhookHandler
	surveyH   *handler.SurveyHandler
	adminH    *handler.AdminHandler

	apiKeyStore *store.APIKeyStore
}

func New(db *sql.DB, cfg Config, logger *slog.Logger) *Server {
	accountStore := store.NewAccountStore(db)
	eventStore := store.NewEventStore(db)
	apiKeyStore := store.NewAPIKeyStore(db)
	sessionStore := store.NewSessionStore(db)
	surveyStore := store.NewSurveyStore(db)

	evaluator := entitlement.NewEvaluator(accountStore, eventStore, cfg.Catalog)
	recorder := usage.NewRecorder(db, eventStore)
	orchestrator := generate.NewOrchestrator(
		evaluator, recorder, cfg.Fetcher, cfg.Generator, cfg.PRs,
		logger.With("component", "orchestrator"),
	)
	reporter := report.NewReporter(db)

	var paymentClient *payment.Client
	var checkoutH *handler.CheckoutHandler
	var webhookH *handler.WebhookHandler
	if cfg.Payment.SecretKey != "" {
		paymentClient = payment.NewClient(cfg.Payment)
		checkoutH = handler.NewCheckoutHandler(paymentClient, accountStore, cfg.Prices, logger.With("component", "checkout"))
		webhookH = handler.NewWebhookHandler(paymentClient, accountStore, cfg.Catalog, cfg.Prices, logger.With("component", "webhook"))
	}

	return &Server{
		db:           db,
		sessionStore: sessionStore,
		rateLimiter:  middleware.NewRateLimiter(),
		logger:       logger,
		authH:        handler.NewAuthHandler(cfg.Provider, accountStore, sessionStore, cfg.BaseURL, logger.With("component", "auth")),
		generateH:    handler.NewGenerateHandler(orchestrator, recorder, logger.With("component", "generate")),
		apiKeyH:      handler.NewAPIKeyHandler(apiKeyStore, accountStore, logger.With("component", "apikeys")),
		accountH:     handler.NewAccountHandler(accountStore, evaluator, logger.With("component", "account")),
		checkoutH:    checkoutH,
		webhookH:     webhookH,
		surveyH:      handler.NewSurveyHandler(surveyStore, accountStore, logger.With("component", "survey")),
		adminH:       handler.NewAdminHandler(accountStore, reporter, logger.With("component", "admin")),
		apiKeyStore:  apiKeyStore,
	}
}

// SessionStore returns the session store for cleanup tasks.
func (s *Server) SessionStore() *store.SessionStore {
	return s.sessionStore
}

// RateLimiter returns the rate limiter for cleanup tasks.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthCheck)

	// OAuth login (public, rate-limited)
	loginLimit := middleware.RateLimit(s.rateLimiter, 10, time.Minute)
	mux.Handle("GET /auth/login", loginLimit(http.HandlerFunc(s.authH.Login)))
	mux.Handle("GET /auth/callback", loginLimit(http.HandlerFunc(s.authH.Callback)))

	// Stripe webhook (public, signature-verified)
	if s.webhookH != nil {
		mux.HandleFunc("POST /webhooks/stripe", s.webhookH.HandleStripeWebhook)
	}

	// Web channel (session cookie)
	sessionMw := middleware.RequireSession(s.sessionStore)
	mux.Handle("POST /logout", sessionMw(http.HandlerFunc(s.authH.Logout)))
	mux.Handle("GET /api/account", sessionMw(http.HandlerFunc(s.accountH.Dashboard)))
	mux.Handle("POST /api/generate", sessionMw(http.HandlerFunc(s.generateH.Generate(model.ChannelWeb))))
	mux.Handle("POST /api/track", sessionMw(http.HandlerFunc(s.generateH.Track)))
	mux.Handle("POST /api/pull-request", sessionMw(http.HandlerFunc(s.generateH.OpenPullRequest)))
	mux.Handle("GET /api/keys", sessionMw(http.HandlerFunc(s.apiKeyH.List)))
	mux.Handle("POST /api/keys", sessionMw(http.HandlerFunc(s.apiKeyH.Create)))
	mux.Handle("DELETE /api/keys/{id}", sessionMw(http.HandlerFunc(s.apiKeyH.Delete)))
	mux.Handle("POST /api/survey", sessionMw(http.HandlerFunc(s.surveyH.Submit)))
	mux.Handle("GET /api/admin/metrics", sessionMw(http.HandlerFunc(s.adminH.Metrics)))
	if s.checkoutH != nil {
		mux.Handle("POST /api/checkout", sessionMw(http.HandlerFunc(s.checkoutH.CreateCheckoutSession)))
		mux.Handle("POST /api/billing-portal", sessionMw(http.HandlerFunc(s.checkoutH.BillingPortal)))
	}

	// API channel (bearer key)
	keyMw := middleware.APIKeyAuth(s.apiKeyStore, s.logger.With("component", "apikey-gate"))
	mux.Handle("POST /v1/generate", keyMw(http.HandlerFunc(s.generateH.Generate(model.ChannelAPI))))
	mux.Handle("POST /v1/track", keyMw(http.HandlerFunc(s.generateH.Track)))
	mux.Handle("POST /v1/pull-request", keyMw(http.HandlerFunc(s.generateH.OpenPullRequest)))

	return middleware.RequestLogger(s.logger.With("component", "http"))(mux)
}

func (s *Server) healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}
