// Package app assembles the contact pipeline and its HTTP routes from a
// loaded configuration. Both the long-running server and the Lambda entry
// point build their handler here.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"contactd/internal/api"
	"contactd/internal/captcha"
	"contactd/internal/clientip"
	"contactd/internal/contact"
	"contactd/internal/heuristics"
	"contactd/internal/mailer"
	"contactd/internal/models"
	"contactd/internal/observability"
	"contactd/internal/ratelimit"
	"contactd/internal/storage"
)

// App is a wired contact service.
type App struct {
	Router  http.Handler
	Service *contact.Service
	Limiter ratelimit.Limiter
}

// Option adjusts how the pipeline is assembled.
type Option func(*buildOptions)

type buildOptions struct {
	mailOpts []mailer.Option
	verifier captcha.Verifier
}

// WithMailerOptions passes options through to mailer.New.
func WithMailerOptions(opts ...mailer.Option) Option {
	return func(o *buildOptions) { o.mailOpts = append(o.mailOpts, opts...) }
}

// WithVerifier replaces the siteverify client.
func WithVerifier(v captcha.Verifier) Option {
	return func(o *buildOptions) { o.verifier = v }
}

// Build wires the pipeline. ctx must outlive the App: the mailer refreshes
// OAuth2 tokens with it. Instrumented wrappers are installed when metrics or
// tracing are enabled. Call Close when done.
func Build(ctx context.Context, cfg *models.Config, opts ...Option) (*App, error) {
	var options buildOptions
	for _, opt := range opts {
		opt(&options)
	}
	instrument := cfg.Metrics.Enabled || cfg.Observability.Tracing.Enabled

	trusted, err := cfg.Server.ParsedTrustedProxies()
	if err != nil {
		return nil, fmt.Errorf("invalid trusted proxies: %w", err)
	}

	var wrappers []ratelimit.StoreWrapper
	if instrument {
		wrappers = append(wrappers, func(s storage.CounterStore) (storage.CounterStore, error) {
			return observability.NewInstrumentedCounterStore(s)
		})
	}
	limiter, err := ratelimit.New(ctx, cfg.RateLimit, slog.Default(), wrappers...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize rate limiter: %w", err)
	}

	var verifier captcha.Verifier = captcha.NewClient(cfg.Captcha)
	if options.verifier != nil {
		verifier = options.verifier
	}
	var notifier mailer.Notifier = mailer.New(ctx, cfg.Mail, options.mailOpts...)
	var recorder contact.Recorder

	if instrument {
		iv, err := observability.NewInstrumentedVerifier(verifier)
		if err != nil {
			limiter.Close()
			return nil, fmt.Errorf("failed to instrument captcha verifier: %w", err)
		}
		verifier = iv

		in, err := observability.NewInstrumentedNotifier(notifier)
		if err != nil {
			limiter.Close()
			return nil, fmt.Errorf("failed to instrument mailer: %w", err)
		}
		notifier = in

		counter, err := observability.NewSubmissionCounter()
		if err != nil {
			limiter.Close()
			return nil, fmt.Errorf("failed to create submission counter: %w", err)
		}
		recorder = counter
	}

	service := contact.NewService(cfg, contact.Dependencies{
		Heuristics: heuristics.New(cfg.Heuristics),
		Limiter:    limiter,
		Budget:     ratelimit.NewGlobalBudget(cfg.RateLimit.GlobalPerMinute, cfg.RateLimit.GlobalBurst),
		Verifier:   verifier,
		Policy:     captcha.NewPolicy(cfg.Captcha),
		Notifier:   notifier,
		Recorder:   recorder,
	})

	handlers := api.NewHandlers(service, clientip.NewResolver(trusted),
		api.WithMaxBodyBytes(cfg.Server.MaxBodyBytes),
		api.WithHealthCheck("rate_limiter", limiter.Ping),
	)

	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	return &App{
		Router:  api.SetupRoutes(handlers, cfg, routeOpts...),
		Service: service,
		Limiter: limiter,
	}, nil
}

// Close releases the rate limiter and its store.
func (a *App) Close() {
	a.Limiter.Close()
}
