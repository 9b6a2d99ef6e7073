package config

import "time"

type PostgresConfig struct {
	DSN             string        `env:"PG_DSN,optional"`
	MaxOpenConns    int           `env:"PG_MAX_OPEN_CONNS" default:"8" validate:"gte=1"`
	MaxIdleConns    int           `env:"PG_MAX_IDLE_CONNS" default:"4" validate:"gte=0,ltefield=MaxOpenConns"`
	ConnMaxIdleTime time.Duration `env:"PG_CONN_MAX_IDLE_TIME" default:"5m" validate:"gte=0"`
	ConnMaxLifetime time.Duration `env:"PG_CONN_MAX_LIFETIME" default:"30m" validate:"gte=0"`
}

// Enabled reports whether a DSN was configured.
func (c PostgresConfig) Enabled() bool {
	return c.DSN != ""
}

// EngineConfig sizes the pipeline. Zero values select the pipeline defaults.
type EngineConfig struct {
	DecodeWorkers int `env:"ENGINE_DECODE_WORKERS" default:"0" validate:"gte=0,lte=1024"`
	Shards        int `env:"ENGINE_SHARDS" default:"0" validate:"gte=0,lte=65536"`
	QueueSize     int `env:"ENGINE_QUEUE_SIZE" default:"0" validate:"gte=0"`
}
