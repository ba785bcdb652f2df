package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"
)

const Keyspace = "mindcare"

// Scylla persists room events in a single table clustered by server id,
// which is exactly the replay order.
type Scylla struct {
	session *gocql.Session
	log     *slog.Logger
}

func NewScylla(hosts []string, keyspace string, log *slog.Logger) (*Scylla, error) {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = keyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	cluster.RetryPolicy = &gocql.ExponentialBackoffRetryPolicy{
		NumRetries: 3,
		Min:        100 * time.Millisecond,
		Max:        1 * time.Second,
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return nil, err
	}

	log.Info("connected to Scylla cluster", "hosts", hosts, "keyspace", keyspace)
	return &Scylla{session: session, log: log}, nil
}

// EnsureKeyspace creates the keyspace through a short-lived session against
// the system keyspace. Dev convenience; production runs migrations.
func EnsureKeyspace(hosts []string, keyspace string) error {
	cluster := gocql.NewCluster(hosts...)
	cluster.Keyspace = "system"
	cluster.Timeout = 5 * time.Second
	cluster.ConnectTimeout = 5 * time.Second
	session, err := cluster.CreateSession()
	if err != nil {
		return err
	}
	defer session.Close()
	return session.Query(fmt.Sprintf(
		`CREATE KEYSPACE IF NOT EXISTS %s WITH REPLICATION = { 'class' : 'SimpleStrategy', 'replication_factor' : 1 }`,
		keyspace)).Exec()
}

// EnsureSchema creates the room_events table. Production deployments run
// migrations instead; the archiver calls this on startup for dev setups.
func (s *Scylla) EnsureSchema(ctx context.Context) error {
	return s.session.Query(`CREATE TABLE IF NOT EXISTS room_events (
		room_id text,
		id bigint,
		kind text,
		sender_id text,
		sender_role text,
		message_id bigint,
		content text,
		content_type text,
		reaction text,
		action text,
		conversation_type text,
		sent_at timestamp,
		PRIMARY KEY (room_id, id)
	) WITH CLUSTERING ORDER BY (id ASC)`).WithContext(ctx).Exec()
}

func (s *Scylla) Append(ctx context.Context, rec Record) error {
	return s.session.Query(`INSERT INTO room_events
		(room_id, id, kind, sender_id, sender_role, message_id, content, content_type, reaction, action, conversation_type, sent_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RoomID, rec.ID, string(rec.Kind), rec.SenderID, rec.SenderRole, rec.MessageID,
		rec.Content, rec.ContentType, rec.Reaction, rec.Action, string(rec.Conversation), rec.SentAt,
	).WithContext(ctx).Exec()
}

func (s *Scylla) Replay(ctx context.Context, roomID string, sinceID int64) ([]Record, error) {
	iter := s.session.Query(`SELECT room_id, id, kind, sender_id, sender_role, message_id, content, content_type, reaction, action, conversation_type, sent_at
		FROM room_events WHERE room_id = ? AND id > ?`, roomID, sinceID).WithContext(ctx).Iter()

	var records []Record
	var rec Record
	var kind, conversation string
	for iter.Scan(&rec.RoomID, &rec.ID, &kind, &rec.SenderID, &rec.SenderRole, &rec.MessageID,
		&rec.Content, &rec.ContentType, &rec.Reaction, &rec.Action, &conversation, &rec.SentAt) {
		rec.Kind = kindOf(kind)
		rec.Conversation = conversationOf(conversation)
		records = append(records, rec)
		rec = Record{}
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	return records, nil
}

func (s *Scylla) Close() {
	s.session.Close()
}
