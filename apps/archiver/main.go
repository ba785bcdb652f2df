package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"

	"github.com/mindcare/realtime/pkg/store"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	KafkaBrokers  string        `env:"KAFKA_BROKERS,default=localhost:19092"`
	EventsTopic   string        `env:"KAFKA_EVENTS_TOPIC,default=room-events"`
	GroupID       string        `env:"KAFKA_GROUP_ID,default=archiver-group"`
	ScyllaHosts   string        `env:"SCYLLA_HOSTS,default=localhost:9042"`
	WriteAttempts int           `env:"WRITE_ATTEMPTS,default=3"`
	WriteBackoff  time.Duration `env:"WRITE_BACKOFF,default=200ms"`
	LogLevel      string        `env:"LOG_LEVEL,default=INFO"`
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "archiver terminated: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := newLogger(cfg.LogLevel)
	hosts := strings.Split(cfg.ScyllaHosts, ",")

	if err := store.EnsureKeyspace(hosts, store.Keyspace); err != nil {
		return exitRuntime, fmt.Errorf("keyspace setup: %w", err)
	}
	scylla, err := store.NewScylla(hosts, store.Keyspace, log.With("component", "store"))
	if err != nil {
		return exitRuntime, fmt.Errorf("scylla: %w", err)
	}
	defer scylla.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := scylla.EnsureSchema(ctx); err != nil {
		return exitRuntime, fmt.Errorf("schema setup: %w", err)
	}

	consumer := newConsumer(strings.Split(cfg.KafkaBrokers, ","), cfg.EventsTopic, cfg.GroupID, scylla, cfg, log.With("component", "consumer"))
	defer consumer.Close()

	log.Info("archiver consuming", "topic", cfg.EventsTopic, "group", cfg.GroupID)
	consumer.Run(ctx)
	return exitOK, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToUpper(level) {
	case "DEBUG":
		lvl = slog.LevelDebug
	case "WARN":
		lvl = slog.LevelWarn
	case "ERROR":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}
