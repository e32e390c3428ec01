package main

import (
	"log"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/joho/godotenv"

	"github.com/sgroy10/excel-to-image-api/internal/app"
	"github.com/sgroy10/excel-to-image-api/internal/config"
	"github.com/sgroy10/excel-to-image-api/internal/logger"
)

const file = "config.json"

func initSentry(cfg *config.SentryConfig, version string) error {
	return sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.SentryDSN,
		Environment: cfg.Environment,
		Release:     version,
	})
}

func main() {
	_ = godotenv.Load()

	cfg := config.NewConfig()
	err := cfg.Read(file)
	if err != nil {
		log.Fatal(err)
	}

	err = initSentry(&cfg.Sentry, "v1")
	if err != nil {
		log.Fatalf("sentry.Init: %s", err)
	}

	// Flush buffered events before the program terminates.
	defer sentry.Flush(2 * time.Second)

	zl := logger.New(cfg.Logger)

	app, err := app.New(cfg, zl)
	if err != nil {
		zl.Fatal().Err(err).Msg("bootstrap failed")
	}

	if err := app.Run(); err != nil {
		zl.Fatal().Err(err).Msg("server failed")
	}
}
