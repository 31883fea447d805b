// Command contact-lambda serves the contact endpoint from AWS Lambda behind an
// API Gateway proxy integration. Configuration comes from the environment
// only. Missing secrets do not prevent start-up; every submission then gets
// the configuration error response.
//
// Traces are exported as configured and flushed when the runtime sends
// SIGTERM. Metrics are recorded but nothing scrapes them in Lambda.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"contactd/internal/app"
	"contactd/internal/config"
	"contactd/internal/lambdaproxy"
	"contactd/internal/logger"
	"contactd/internal/models"
	"contactd/internal/observability"
	"contactd/internal/version"

	"github.com/aws/aws-lambda-go/lambda"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONTACT_CONFIG_FILE"), config.AllowMissingSecrets())
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	log, closer, err := logger.Setup(cfg.Logging, version.GetInfo())
	if err != nil {
		slog.Error("Failed to initialize logger", "error", err)
		os.Exit(1)
	}
	if closer != nil {
		defer closer.Close()
	}
	slog.SetDefault(log)

	ctx := context.Background()

	shutdown, err := startTelemetry(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize observability", "error", err)
		os.Exit(1)
	}
	defer shutdown()

	contactApp, err := app.Build(ctx, cfg)
	if err != nil {
		slog.Error("Failed to initialize contact service", "error", err)
		os.Exit(1)
	}
	defer contactApp.Close()

	if missing := contactApp.Service.MissingSettings(); len(missing) > 0 {
		slog.Warn("Required configuration missing; submissions will be refused", "settings", missing)
	}

	adapter := lambdaproxy.New(contactApp.Router)
	onSIGTERM := lambda.WithEnableSIGTERM(shutdown)
	if os.Getenv("CONTACT_LAMBDA_PAYLOAD") == "v2" {
		lambda.StartWithOptions(adapter.ProxyV2, onSIGTERM)
		return
	}
	lambda.StartWithOptions(adapter.Proxy, onSIGTERM)
}

// startTelemetry installs the configured tracer and meter providers and
// returns a function that flushes and stops them.
func startTelemetry(ctx context.Context, cfg *models.Config) (func(), error) {
	otelProvider, err := observability.Setup(ctx, cfg.Metrics, cfg.Observability, version.GetInfo())
	if err != nil {
		return nil, err
	}
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := otelProvider.Shutdown(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown observability", "error", err)
		}
	}, nil
}
