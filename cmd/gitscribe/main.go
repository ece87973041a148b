package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/gitscribe/gitscribe/internal/auth"
	"github.com/gitscribe/gitscribe/internal/database"
	"github.com/gitscribe/gitscribe/internal/generate"
	"github.com/gitscribe/gitscribe/internal/logging"
	"github.com/gitscribe/gitscribe/internal/payment"
	"github.com/gitscribe/gitscribe/internal/plan"
	"github.com/gitscribe/gitscribe/internal/server"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	logger := logging.Setup(os.Getenv("GITSCRIBE_LOG_LEVEL"), os.Getenv("GITSCRIBE_LOG_FORMAT"))

	port := os.Getenv("GITSCRIBE_PORT")
	if port == "" {
		port = "8080"
	}

	dbPath := os.Getenv("GITSCRIBE_DB_PATH")
	if dbPath == "" {
		dbPath = "gitscribe.db"
	}

	baseURL := os.Getenv("GITSCRIBE_BASE_URL")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://localhost:%s", port)
	}

	catalog, err := plan.ParseCatalog(os.Getenv("GITSCRIBE_PLANS"))
	if err != nil {
		slog.Error("invalid plan catalog", "error", err)
		os.Exit(1)
	}
	prices, err := plan.ParsePriceMap(os.Getenv("GITSCRIBE_STRIPE_PRICES"))
	if err != nil {
		slog.Error("invalid price map", "error", err)
		os.Exit(1)
	}

	db, err := database.Open(dbPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	llmModel := os.Getenv("GITSCRIBE_LLM_MODEL")
	if llmModel == "" {
		llmModel = "gpt-4o"
	}
	github := generate.NewGitHubClient(os.Getenv("GITSCRIBE_GITHUB_TOKEN"))
	llm := generate.NewLLMClient(os.Getenv("GITSCRIBE_LLM_API_KEY"), llmModel)

	provider := auth.NewGitHubProvider(
		os.Getenv("GITSCRIBE_GITHUB_CLIENT_ID"),
		os.Getenv("GITSCRIBE_GITHUB_CLIENT_SECRET"),
		baseURL+"/auth/callback",
	)

	cfg := server.Config{
		BaseURL: baseURL,
		Payment: payment.Config{
			SecretKey:     os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret: os.Getenv("STRIPE_WEBHOOK_SECRET"),
			SuccessURL:    baseURL + "/dashboard?checkout=success",
			CancelURL:     baseURL + "/pricing",
		},
		Catalog:   catalog,
		Prices:    prices,
		Provider:  provider,
		Fetcher:   github,
		Generator: llm,
		PRs:       github,
	}

	srv := server.New(db, cfg, logger)

	httpServer := &http.Server{
		Addr:              ":" + port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      150 * time.Second, // generation calls can be slow
		IdleTimeout:       120 * time.Second,
	}

	// Background cleanup goroutine
	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(1 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n, err := srv.SessionStore().DeleteExpired(); err != nil {
					slog.Error("cleanup expired sessions", "error", err)
				} else if n > 0 {
					slog.Info("cleaned up expired sessions", "count", n)
				}
				srv.RateLimiter().Cleanup()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("gitscribe starting", "addr", ":"+port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
