package hub

import (
	"github.com/google/uuid"

	"github.com/mindcare/realtime/pkg/model"
)

// ConnID is the opaque identifier of a live connection.
type ConnID string

func NewConnID() ConnID {
	return ConnID(uuid.NewString())
}

// Conn is the transport seen by the hub. Enqueue must not block: it reports
// false when the connection's bounded send buffer is full, which the router
// treats as a slow consumer. Kick asks the transport to close with the
// given reason; accepted deliveries drain, new ones stop.
type Conn interface {
	ID() ConnID
	Identity() model.Identity
	Enqueue(frame []byte) bool
	Kick(reason model.CloseReason)
}
