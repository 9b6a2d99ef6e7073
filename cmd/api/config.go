package main

import (
	"log/slog"
	"time"

	"github.com/fastprodman/txengine/internal/config"
)

type apiConfig struct {
	Port            uint16        `env:"APP_PORT" default:"8080" validate:"gte=1"`
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"INFO"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s" validate:"gt=0"`
	Engine          config.EngineConfig
	Postgres        config.PostgresConfig
}
