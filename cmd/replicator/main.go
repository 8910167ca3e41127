package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-data-pipeline/internal/observability"
	"market-data-pipeline/internal/replication"
	"market-data-pipeline/internal/storage"
	chstore "market-data-pipeline/internal/storage/clickhouse"
	filestore "market-data-pipeline/internal/storage/file"
	"market-data-pipeline/internal/storage/migrations"
	pgstore "market-data-pipeline/internal/storage/postgres"
)

func main() {
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string for the cold-side instance")
	hotDatabase := flag.String("hot-database", "marketdata", "Hot database name")
	coldDatabase := flag.String("cold-database", "marketdata_cold", "Cold database name")
	remoteHotAddr := flag.String("remote-hot-addr", "", "host:port of a separate hot instance (empty for single-instance mode)")
	remoteHotDSN := flag.String("remote-hot-dsn", "", "ClickHouse connection string for the hot instance (required with --remote-hot-addr)")
	remoteHotUser := flag.String("remote-hot-user", "default", "Remote hot instance user")
	remoteHotPassword := flag.String("remote-hot-password", "", "Remote hot instance password")
	stateFile := flag.String("state-file", "replication_state.json", "Path of the JSON watermark file")
	postgresDSN := flag.String("postgres-dsn", "", "Use PostgreSQL for replication state instead of the JSON file")
	interval := flag.Duration("interval", 60*time.Second, "Replication round interval")
	cleanup := flag.Bool("cleanup", false, "Enable confirm-then-delete cleanup of replicated hot rows")
	cleanupDelay := flag.Duration("cleanup-delay", 24*time.Hour, "How far behind the watermark cleanup trails")
	migrate := flag.Bool("migrate", true, "Apply embedded DDL to the cold database at startup")
	metricsAddr := flag.String("metrics-addr", ":9092", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[replicator] ", log.LstdFlags|log.Lshortfile)

	metrics := observability.NewMetrics("")

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan error, 1)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
			// Normal shutdown completed
		}
	}()

	err := run(ctx, logger, metrics, options{
		dsn:               *clickhouseDSN,
		hotDatabase:       *hotDatabase,
		coldDatabase:      *coldDatabase,
		remoteHotAddr:     *remoteHotAddr,
		remoteHotDSN:      *remoteHotDSN,
		remoteHotUser:     *remoteHotUser,
		remoteHotPassword: *remoteHotPassword,
		stateFile:         *stateFile,
		postgresDSN:       *postgresDSN,
		interval:          *interval,
		cleanup:           *cleanup,
		cleanupDelay:      *cleanupDelay,
		migrate:           *migrate,
	})

	done <- err
	cancel()

	if err != nil && err != context.Canceled {
		logger.Fatalf("Error: %v", err)
	}

	logger.Println("Shutdown complete")
}

type options struct {
	dsn               string
	hotDatabase       string
	coldDatabase      string
	remoteHotAddr     string
	remoteHotDSN      string
	remoteHotUser     string
	remoteHotPassword string
	stateFile         string
	postgresDSN       string
	interval          time.Duration
	cleanup           bool
	cleanupDelay      time.Duration
	migrate           bool
}

func run(ctx context.Context, logger *log.Logger, metrics *observability.Metrics, opts options) error {
	if opts.dsn == "" {
		return fmt.Errorf("--clickhouse-dsn is required")
	}
	if opts.remoteHotAddr != "" && opts.remoteHotDSN == "" {
		return fmt.Errorf("--remote-hot-dsn is required with --remote-hot-addr")
	}

	// Cold-side connection (also the hot side in single-instance mode).
	var coldConn *chstore.Conn
	var err error
	if opts.migrate {
		coldConn, err = migrations.RunClickhouse(ctx, opts.dsn, opts.coldDatabase, nil)
	} else {
		coldConn, err = chstore.NewConnWithDatabase(ctx, opts.dsn, opts.coldDatabase, nil)
	}
	if err != nil {
		return fmt.Errorf("connect cold clickhouse: %w", err)
	}
	defer coldConn.Close()

	hotConn := coldConn
	var remote *chstore.RemoteRef
	if opts.remoteHotAddr != "" {
		hotConn, err = chstore.NewConnWithDatabase(ctx, opts.remoteHotDSN, opts.hotDatabase, nil)
		if err != nil {
			return fmt.Errorf("connect hot clickhouse: %w", err)
		}
		defer hotConn.Close()

		remote = &chstore.RemoteRef{
			Addr:     opts.remoteHotAddr,
			User:     opts.remoteHotUser,
			Password: opts.remoteHotPassword,
		}
	}

	archive, err := chstore.NewArchive(chstore.ArchiveOptions{
		Hot:          hotConn,
		Cold:         coldConn,
		HotDatabase:  opts.hotDatabase,
		ColdDatabase: opts.coldDatabase,
		Remote:       remote,
	})
	if err != nil {
		return err
	}

	// State store: JSON file by default, Postgres for shared deployments.
	var state storage.ReplicationStateStore
	if opts.postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, opts.postgresDSN)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		pgState := pgstore.NewStateStore(pool)
		if err := pgState.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure state schema: %w", err)
		}
		state = pgState
	} else {
		fileState, err := filestore.NewStateStore(opts.stateFile)
		if err != nil {
			return fmt.Errorf("open state file: %w", err)
		}
		state = fileState
	}

	tables := replication.DefaultTables()
	if opts.cleanup {
		tables = replication.WithCleanup(tables, opts.cleanupDelay)
	}

	replicator, err := replication.NewReplicator(replication.ReplicatorOptions{
		Archiver: archive,
		State:    state,
		Tables:   tables,
		Interval: opts.interval,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	return replicator.Run(ctx)
}
