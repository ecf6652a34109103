// Command fhe-worker evaluates queued radix integer jobs.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/luxfi/fhe-integer/integer"
	"github.com/luxfi/fhe-integer/internal/queue"
	"github.com/luxfi/fhe-integer/internal/storage"
	"github.com/luxfi/fhe-integer/internal/worker"
	"github.com/luxfi/fhe-integer/shortint"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		numWorkers  = flag.Int("workers", 4, "number of worker goroutines")
		parallelism = flag.Int("parallelism", 0, "block operations in flight per job (0 = GOMAXPROCS)")
		redisAddr   = flag.String("redis", "localhost:6379", "Redis address")
		redisDB     = flag.Int("redis-db", 0, "Redis database number")
		queueName   = flag.String("queue", "default", "queue name")
		storagePath = flag.String("storage", "/tmp/fhe-storage", "ciphertext storage path")
		keyPath     = flag.String("key", "", "client key file, generated if missing")
		metricsAddr = flag.String("metrics", ":9090", "metrics server address")
		logLevel    = flag.String("log-level", "info", "log level")
		logJSON     = flag.Bool("log-json", false, "log as JSON")
	)
	flag.Parse()

	logger, err := newLogger(*logLevel, *logJSON)
	if err != nil {
		return err
	}
	logger.Info().
		Int("workers", *numWorkers).
		Str("redis", *redisAddr).
		Str("storage", *storagePath).
		Str("metrics", *metricsAddr).
		Msg("fhe worker starting")

	q, err := queue.NewRedisQueue(queue.RedisConfig{
		Addr: *redisAddr,
		DB:   *redisDB,
	}, *queueName)
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

	store, err := storage.NewFileStorage(*storagePath)
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}

	params, err := shortint.NewParametersFromLiteral(shortint.ParamsMessage2Carry2)
	if err != nil {
		return fmt.Errorf("create parameters: %w", err)
	}
	ck, err := loadClientKey(params, *keyPath, logger)
	if err != nil {
		return err
	}
	opts := []integer.Option{integer.WithLogger(logger)}
	if *parallelism > 0 {
		opts = append(opts, integer.WithParallelism(*parallelism))
	}
	sk := integer.NewServerKey(shortint.NewServerKey(ck), opts...)

	pool := worker.New(worker.Config{
		Workers: *numWorkers,
		Queue:   q,
		Storage: store,
		Key:     sk,
		Logger:  logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pool.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "# HELP fhe_jobs_total Total radix jobs\n")
		fmt.Fprintf(w, "# TYPE fhe_jobs_total counter\n")
		fmt.Fprintf(w, "fhe_jobs_total{status=\"success\"} %d\n", pool.Succeeded())
		fmt.Fprintf(w, "fhe_jobs_total{status=\"failure\"} %d\n", pool.Failed())
		if n, err := q.Len(r.Context()); err == nil {
			fmt.Fprintf(w, "# TYPE fhe_queue_length gauge\n")
			fmt.Fprintf(w, "fhe_queue_length %d\n", n)
		}
	})

	server := &http.Server{
		Addr:    *metricsAddr,
		Handler: mux,
	}

	go func() {
		logger.Info().Str("addr", *metricsAddr).Msg("metrics server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info().Stringer("signal", sig).Msg("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(ctx, 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("metrics server shutdown")
	}
	if err := pool.Stop(); err != nil {
		logger.Warn().Err(err).Msg("worker pool shutdown")
	}

	logger.Info().Msg("shutdown complete")
	return nil
}

func newLogger(level string, asJSON bool) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("log level: %w", err)
	}
	var logger zerolog.Logger
	if asJSON {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return logger.Level(lvl).With().Timestamp().Logger(), nil
}

// loadClientKey reads the secret key at path, or generates one and writes
// it there. An empty path always generates an ephemeral key.
func loadClientKey(params shortint.Parameters, path string, logger zerolog.Logger) (*shortint.ClientKey, error) {
	if path == "" {
		logger.Warn().Msg("no key file given, using an ephemeral key")
		return shortint.NewClientKey(params), nil
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		ck, err := shortint.UnmarshalClientKey(params, data)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", path, err)
		}
		return ck, nil
	case !errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("read key: %w", err)
	}

	ck := shortint.NewClientKey(params)
	data, err = ck.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal key: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, fmt.Errorf("write key: %w", err)
	}
	logger.Info().Str("path", path).Msg("generated client key")
	return ck, nil
}
