// Command engine applies a CSV file of transactions to client accounts and
// prints the final state of every account.
//
//	engine [-w N] [-shards N] [-queue N] [-format csv|table|json] [-persist] transactions.csv
//
// The report goes to stdout and logs go to stderr as JSON.
package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/fastprodman/txengine/internal/config"
	"github.com/fastprodman/txengine/internal/infra/logging"
	"github.com/fastprodman/txengine/internal/infra/pgutils"
	"github.com/fastprodman/txengine/internal/pipeline"
	"github.com/fastprodman/txengine/internal/report"
	"github.com/fastprodman/txengine/internal/services/batch"
	"github.com/fastprodman/txengine/pkg/envconf"
	"github.com/fastprodman/txengine/pkg/shutdownqueue"
)

var errUsage = errors.New("usage: engine [flags] transactions.csv")

type engineConfig struct {
	LogLevel        slog.Level    `env:"APP_LOG_LEVEL" default:"WARN"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"5s" validate:"gt=0"`
	Postgres        config.PostgresConfig
}

type options struct {
	input   string
	workers int
	shards  int
	queue   int
	format  report.Format
	persist bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error running engine: %v\n", err)
		//nolint:gocritic
		os.Exit(1)
	}
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	fs := flag.NewFlagSet("engine", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts   options
		format string
	)

	fs.IntVar(&opts.workers, "w", 0, "decode workers (default: CPUs-1)")
	fs.IntVar(&opts.shards, "shards", 0, "account shards (default: same as -w)")
	fs.IntVar(&opts.queue, "queue", 0, "per-stage queue size (default: 1024)")
	fs.StringVar(&format, "format", string(report.FormatCSV), "report format: csv, table or json")
	fs.BoolVar(&opts.persist, "persist", false, "store the batch in Postgres (needs PG_DSN)")

	err := fs.Parse(args)
	if err != nil {
		return options{}, fmt.Errorf("parse flags: %w", err)
	}

	if fs.NArg() != 1 {
		return options{}, errUsage
	}

	opts.input = fs.Arg(0)

	opts.format, err = report.ParseFormat(format)
	if err != nil {
		return options{}, err
	}

	return opts, nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) (retErr error) {
	opts, err := parseFlags(args, stderr)
	if err != nil {
		return err
	}

	cfg := new(engineConfig)

	err = envconf.Load(cfg)
	if err != nil {
		return fmt.Errorf("init config: %w", err)
	}

	err = config.Validate(cfg)
	if err != nil {
		return err
	}

	log := logging.SetupJSON(stderr, cfg.LogLevel, "run_id", uuid.NewString())

	cleanup := shutdownqueue.New()

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()

		serr := cleanup.Shutdown(shutdownCtx)
		if serr != nil {
			retErr = errors.Join(retErr, serr)
		}
	}()

	var db *sql.DB

	if opts.persist {
		if !cfg.Postgres.Enabled() {
			return errors.New("-persist requires PG_DSN")
		}

		db, err = pgutils.OpenDB(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("open db: %w", err)
		}

		cleanup.Add(func(context.Context) error { return db.Close() })
	}

	f, err := os.Open(opts.input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}

	cleanup.Add(func(context.Context) error { return f.Close() })

	out := bufio.NewWriter(stdout)
	cleanup.Add(func(context.Context) error { return out.Flush() })

	svc := batch.New(db, pipeline.Options{
		DecodeWorkers: opts.workers,
		Shards:        opts.shards,
		QueueSize:     opts.queue,
		Logger:        log,
	})

	res, err := svc.Run(ctx, bufio.NewReader(f))
	if err != nil {
		return fmt.Errorf("process %s: %w", opts.input, err)
	}

	log.Info("batch processed",
		"batch_id", res.ID.String(),
		"records", res.Stats.Records,
		"applied", res.Stats.Applied,
		"decode_failures", res.Stats.DecodeFailures,
		"rejected", res.Stats.Rejected,
		"persisted", svc.Persistent(),
	)

	err = report.Write(out, opts.format, res.Accounts)
	if err != nil {
		return fmt.Errorf("write report: %w", err)
	}

	return nil
}
