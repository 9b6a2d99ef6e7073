package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/fastprodman/txengine/internal/api"
	"github.com/fastprodman/txengine/internal/config"
	"github.com/fastprodman/txengine/internal/infra/logging"
	"github.com/fastprodman/txengine/internal/infra/pgutils"
	"github.com/fastprodman/txengine/internal/pipeline"
	"github.com/fastprodman/txengine/internal/services/batch"
	"github.com/fastprodman/txengine/pkg/envconf"
	"github.com/fastprodman/txengine/pkg/shutdownqueue"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running api: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func run(ctx context.Context) (retErr error) {
	cfg := new(apiConfig)

	err := envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	err = config.Validate(cfg)
	if err != nil {
		return err
	}

	log := logging.SetupJSON(os.Stdout, cfg.LogLevel, "component", "api")

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := shutdownqueue.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	// --- Infra ---
	var db *sql.DB

	if cfg.Postgres.Enabled() {
		db, err = pgutils.OpenDB(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}

		shutdownqueue.Add(func(context.Context) error {
			slog.Info("Close database")

			return db.Close()
		})
	} else {
		log.Warn("PG_DSN not set; batches will not be stored")
	}

	batchSrv := batch.New(db, pipeline.Options{
		DecodeWorkers: cfg.Engine.DecodeWorkers,
		Shards:        cfg.Engine.Shards,
		QueueSize:     cfg.Engine.QueueSize,
		Logger:        log,
	})

	// --- HTTP server ---
	srv := api.NewServer(cfg.Port, batchSrv)

	shutdownqueue.Add(func(c context.Context) error {
		slog.Info("Shut down server")

		err := srv.Shutdown(c)
		if err != nil {
			return fmt.Errorf("shutdown srv: %w", err)
		}

		return nil
	})

	errCh := make(chan error, 1)

	go func() {
		serr := srv.ListenAndServe()
		if serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			errCh <- serr

			return
		}

		errCh <- nil
	}()

	log.Info("API started", "port", cfg.Port, "persistent", batchSrv.Persistent())

	select {
	case <-ctx.Done():
		return nil
	case serr := <-errCh:
		if serr != nil {
			return fmt.Errorf("server error: %w", serr)
		}

		return nil
	}
}
