package app

import (
	"context"
	"fmt"

	"github.com/upb/functions-gateway/auth"
	"github.com/upb/functions-gateway/config"
	"github.com/upb/functions-gateway/functions"
	"github.com/upb/functions-gateway/internal/observability"
	"github.com/upb/functions-gateway/middleware"
	"go.uber.org/zap"
)

// Dependencies holds all application dependencies.
// This is the central wiring point for dependency injection.
type Dependencies struct {
	// Infrastructure
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics

	// Auth
	KeySet         *auth.KeySet
	Verifier       *auth.Verifier
	AuthMiddleware *middleware.AuthMiddleware

	// Functions is the discovered route table
	Functions *functions.Table
}

// NewDependencies creates and wires up all application dependencies
func NewDependencies(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: observability.NewMetrics(),
	}

	// Initialize token verification
	if err := deps.initAuth(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to initialize auth: %w", err)
	}

	// Discover handler modules
	if err := deps.initFunctions(cfg); err != nil {
		return nil, fmt.Errorf("failed to discover functions: %w", err)
	}

	logger.Info("all dependencies initialized successfully")
	return deps, nil
}

// initAuth builds the key set cache, the verifier and the auth middleware
func (d *Dependencies) initAuth(ctx context.Context, cfg *config.Config) error {
	keys, err := auth.NewKeySet(auth.KeySetConfig{
		URL:                cfg.Auth.JWKSURL,
		TTL:                cfg.Auth.CacheTTL,
		MinRefreshInterval: cfg.Auth.MinRefreshInterval,
		FetchTimeout:       cfg.Auth.FetchTimeout,
		MaxFetchAttempts:   uint(cfg.Auth.MaxFetchAttempts),
		OnRefresh:          d.Metrics.RecordJWKSRefresh,
	}, d.Logger)
	if err != nil {
		return err
	}

	// A failed warm-up is not fatal; the first request retries the fetch
	if err := keys.Prime(ctx); err != nil {
		d.Logger.Warn("initial JWKS fetch failed",
			zap.String("url", cfg.Auth.JWKSURL),
			zap.Error(err))
	}

	if cfg.Auth.Issuer == "" {
		d.Logger.Warn("JWT_ISSUER not set, tokens from any issuer are accepted")
	}

	d.KeySet = keys
	d.Verifier = auth.NewVerifier(keys, auth.VerifierConfig{
		Issuer: cfg.Auth.Issuer,
		Leeway: cfg.Auth.Leeway,
	})
	d.AuthMiddleware = middleware.NewAuthMiddleware(d.Verifier, d.Logger,
		middleware.WithFailureRecorder(d.Metrics))

	d.Logger.Info("token verifier initialized",
		zap.String("jwks_url", cfg.Auth.JWKSURL),
		zap.String("issuer", d.Verifier.Issuer()))
	return nil
}

// initFunctions discovers the handler modules under the configured root
func (d *Dependencies) initFunctions(cfg *config.Config) error {
	table, err := functions.Discover(cfg.Functions.Dir, functions.DiscoverOptions{
		Prefix: cfg.Functions.MountPrefix,
		Logger: d.Logger,
	})
	if err != nil {
		return err
	}

	d.Functions = table
	d.Metrics.SetRoutes(table.Len())
	return nil
}

// Close gracefully shuts down all dependencies
func (d *Dependencies) Close(ctx context.Context) error {
	if d.Logger != nil {
		d.Logger.Info("shutting down dependencies")
		_ = d.Logger.Sync()
	}
	return nil
}
