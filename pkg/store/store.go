package store

import "context"

// Appender accepts a durable record for persistence.
type Appender interface {
	Append(ctx context.Context, rec Record) error
}

// Replayer returns a room's durable events after sinceID, ordered by
// server-assigned id ascending.
type Replayer interface {
	Replay(ctx context.Context, roomID string, sinceID int64) ([]Record, error)
}
