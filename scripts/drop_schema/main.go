package main

import (
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"github.com/mindcare/realtime/pkg/store"
)

func main() {
	log := slog.Default()

	hostsStr := os.Getenv("SCYLLA_HOSTS")
	if hostsStr == "" {
		hostsStr = "localhost:9042"
	}

	cluster := gocql.NewCluster(strings.Split(hostsStr, ",")...)
	cluster.Keyspace = store.Keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		log.Error("connection failed", "err", err)
		os.Exit(1)
	}
	defer session.Close()

	log.Info("dropping table room_events")
	if err := session.Query("DROP TABLE IF EXISTS room_events").Exec(); err != nil {
		log.Error("drop failed", "err", err)
		os.Exit(1)
	}
	log.Info("table dropped")
}
