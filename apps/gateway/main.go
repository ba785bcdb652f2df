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
	"github.com/mindcare/realtime/pkg/crisis"
	"github.com/mindcare/realtime/pkg/eventid"
	"github.com/mindcare/realtime/pkg/hub"
	"github.com/mindcare/realtime/pkg/model"
	"github.com/mindcare/realtime/pkg/room"
	"github.com/mindcare/realtime/pkg/store"
)

const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "gateway terminated: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := newLogger(cfg.LogLevel)

	ids, err := eventid.NewGenerator(cfg.NodeID)
	if err != nil {
		return exitConfig, fmt.Errorf("event id generator: %w", err)
	}

	var classifier crisis.Classifier
	if cfg.ClassifierURL != "" {
		classifier = crisis.NewHTTPClassifier(cfg.ClassifierURL, cfg.ClassifierBudget)
	} else {
		log.Warn("no crisis classifier configured, messages are not screened")
	}
	dispatcher := crisis.NewKafkaDispatcher(cfg.Brokers(), cfg.EscalationTopic)
	defer dispatcher.Close()
	hook := crisis.NewHook(classifier, dispatcher, cfg.ClassifierBudget, log.With("component", "crisis"))

	appender := store.NewKafkaAppender(cfg.Brokers(), cfg.EventsTopic)
	defer appender.Close()

	var replayer store.Replayer
	scylla, err := store.NewScylla(cfg.Scylla(), store.Keyspace, log.With("component", "store"))
	if err != nil {
		// History replay degrades; live messaging still works.
		log.Error("scylla unavailable, history replay disabled", "err", err)
	} else {
		defer scylla.Close()
		replayer = scylla
	}

	presence := hub.NewRedisPresence(cfg.RedisAddr)
	defer presence.Close()

	rooms := room.NewIndex()
	h := hub.New(log.With("component", "hub"), rooms, ids, hook, appender, presence, hub.Config{})
	defer h.Shutdown()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws/one-to-one/{room}", func(w http.ResponseWriter, r *http.Request) {
		serveWs(h, replayer, cfg, model.KindOneToOne, log, w, r)
	})
	mux.HandleFunc("GET /ws/group/{room}", func(w http.ResponseWriter, r *http.Request) {
		serveWs(h, replayer, cfg, model.KindGroup, log, w, r)
	})

	rh := newRoomHandler(h, presence, log.With("component", "rooms"))
	mux.Handle("POST /rooms", auth.Middleware(http.HandlerFunc(rh.create)))
	mux.Handle("POST /rooms/{id}/participants", auth.Middleware(http.HandlerFunc(rh.addParticipant)))
	mux.Handle("DELETE /rooms/{id}/participants/{user}", auth.Middleware(http.HandlerFunc(rh.removeParticipant)))
	mux.Handle("DELETE /rooms/{id}", auth.Middleware(http.HandlerFunc(rh.closeRoom)))

	server := &http.Server{Addr: cfg.Addr, Handler: mux}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("gateway listening", "addr", cfg.Addr, "brokers", cfg.KafkaBrokers)
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
