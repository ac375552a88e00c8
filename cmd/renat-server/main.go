// Command renat-server runs the record store behind an HTTP listener.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/smurn/renat/internal/engine"
	"github.com/smurn/renat/internal/httpapi"
	"github.com/smurn/renat/internal/wait"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := flag.NewFlagSet("renat-server", flag.ContinueOnError)

	listenAddr := flags.String("listen", ":8888", "HTTP listen address")
	maxRecords := flags.Int("max-records", engine.DefaultMaxRecords, "maximum number of records held at once")
	maxSize := flags.Int("max-size", engine.DefaultMaxSize, "maximum value size in bytes")
	maxIDSize := flags.Int("max-id-size", engine.DefaultMaxIDSize, "maximum record_id/idepo_token length (strict less-than)")
	evictionTime := flags.Duration("eviction-time", engine.DefaultEvictionTime, "idle duration after which an untouched record is evicted")
	logLevel := flags.String("log-level", "info", "log level: debug, info, warn, error")
	logJSON := flags.Bool("log-json", false, "emit logs as JSON instead of console-formatted")

	if err := flags.Parse(args); err != nil {
		return err
	}

	log, err := buildLogger(*logLevel, *logJSON)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync()

	eng := engine.New(
		engine.WithMaxRecords(*maxRecords),
		engine.WithMaxSize(*maxSize),
		engine.WithMaxIDSize(*maxIDSize),
		engine.WithEvictionTime(*evictionTime),
	)
	store := wait.New(eng, wait.WithLogger(log))
	server := httpapi.New(store, log, prometheus.NewRegistry())

	httpServer := &http.Server{
		Addr:         *listenAddr,
		Handler:      server,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second, // must exceed the 60s max wait timeout
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", *listenAddr))
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		return nil
	}
}

func buildLogger(level string, asJSON bool) (*zap.Logger, error) {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	cfg := zap.NewProductionConfig()
	if !asJSON {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
