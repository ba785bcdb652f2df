package main

import (
	"strings"
	"time"
)

type Config struct {
	Addr              string        `env:"GATEWAY_ADDR,default=:8080"`
	KafkaBrokers      string        `env:"KAFKA_BROKERS,default=localhost:19092"`
	EventsTopic       string        `env:"KAFKA_EVENTS_TOPIC,default=room-events"`
	EscalationTopic   string        `env:"KAFKA_ESCALATION_TOPIC,default=crisis-escalations"`
	RedisAddr         string        `env:"REDIS_ADDR,default=localhost:6379"`
	ScyllaHosts       string        `env:"SCYLLA_HOSTS,default=localhost:9042"`
	NodeID            int64         `env:"NODE_ID,default=1"`
	SendBuffer        int           `env:"SEND_BUFFER,default=256"`
	HeartbeatInterval time.Duration `env:"HEARTBEAT_INTERVAL,default=25s"`
	ClassifierURL     string        `env:"CRISIS_CLASSIFIER_URL"`
	ClassifierBudget  time.Duration `env:"CRISIS_CLASSIFIER_BUDGET,default=2s"`
	LogLevel          string        `env:"LOG_LEVEL,default=INFO"`
}

func (c Config) Brokers() []string {
	return strings.Split(c.KafkaBrokers, ",")
}

func (c Config) Scylla() []string {
	return strings.Split(c.ScyllaHosts, ",")
}
