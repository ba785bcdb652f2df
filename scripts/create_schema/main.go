package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/mindcare/realtime/pkg/store"
)

func main() {
	log := slog.Default()

	hostsStr := os.Getenv("SCYLLA_HOSTS")
	if hostsStr == "" {
		hostsStr = "localhost:9042"
	}
	hosts := strings.Split(hostsStr, ",")

	if err := store.EnsureKeyspace(hosts, store.Keyspace); err != nil {
		log.Error("keyspace creation failed", "err", err)
		os.Exit(1)
	}

	scylla, err := store.NewScylla(hosts, store.Keyspace, log)
	if err != nil {
		log.Error("connection failed", "err", err)
		os.Exit(1)
	}
	defer scylla.Close()

	if err := scylla.EnsureSchema(context.Background()); err != nil {
		log.Error("schema creation failed", "err", err)
		os.Exit(1)
	}
	log.Info("room_events schema ready", "keyspace", store.Keyspace)
}
