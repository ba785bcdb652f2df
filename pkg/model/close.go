package model

import "github.com/gorilla/websocket"

// CloseReason classifies why a connection was terminated. Reasons map onto
// websocket close codes so clients can tell them apart (4xxx codes follow
// the platform's custom-code range).
type CloseReason string

const (
	CloseNormal           CloseReason = "normal"
	CloseAuthFailed       CloseReason = "authentication_failed"
	CloseNotParticipant   CloseReason = "not_a_participant"
	CloseRoomRemoved      CloseReason = "room_removed"
	CloseHeartbeatTimeout CloseReason = "heartbeat_timeout"
	CloseSlowConsumer     CloseReason = "slow_consumer"
)

func (r CloseReason) Code() int {
	switch r {
	case CloseAuthFailed:
		return 4003
	case CloseNotParticipant:
		return 4004
	case CloseRoomRemoved:
		return 4005
	case CloseHeartbeatTimeout:
		return 4008
	case CloseSlowConsumer:
		return 4009
	default:
		return websocket.CloseNormalClosure
	}
}
