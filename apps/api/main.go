package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"

	"github.com/mindcare/realtime/pkg/auth"
	"github.com/mindcare/realtime/pkg/hub"
	"github.com/mindcare/realtime/pkg/store"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

type Config struct {
	Addr        string `env:"API_ADDR,default=:8081"`
	ScyllaHosts string `env:"SCYLLA_HOSTS,default=localhost:9042"`
	RedisAddr   string `env:"REDIS_ADDR,default=localhost:6379"`
	LogLevel    string `env:"LOG_LEVEL,default=INFO"`
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		if r.Method == http.MethodOptions {
			return
		}
		next.ServeHTTP(w, r)
	})
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "api terminated: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := newLogger(cfg.LogLevel)

	scylla, err := store.NewScylla(strings.Split(cfg.ScyllaHosts, ","), store.Keyspace, log.With("component", "store"))
	if err != nil {
		return exitRuntime, fmt.Errorf("scylla: %w", err)
	}
	defer scylla.Close()

	presence := hub.NewRedisPresence(cfg.RedisAddr)
	defer presence.Close()

	mux := http.NewServeMux()
	mux.Handle("POST /login", corsMiddleware(http.HandlerFunc(loginHandler(log))))
	mux.Handle("GET /history", corsMiddleware(auth.Middleware(historyHandler(scylla, presence, log))))
	mux.Handle("GET /rooms/{id}/presence", corsMiddleware(auth.Middleware(presenceHandler(presence, log))))

	server := &http.Server{Addr: cfg.Addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("api listening", "addr", cfg.Addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return exitRuntime, err
		}
	case <-ctx.Done():
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return exitRuntime, err
		}
	}
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
