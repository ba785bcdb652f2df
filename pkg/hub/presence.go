package hub

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

// PresenceTracker mirrors room-level online membership into an external
// store for the read API. Failures are logged and never block delivery.
type PresenceTracker interface {
	SetOnline(ctx context.Context, roomID, userID string) error
	SetOffline(ctx context.Context, roomID, userID string) error
}

// RedisPresence keeps a set of online user ids per room.
type RedisPresence struct {
	client *redis.Client
}

func NewRedisPresence(addr string) *RedisPresence {
	return &RedisPresence{client: redis.NewClient(&redis.Options{Addr: addr})}
}

func presenceKey(roomID string) string {
	return "room:" + roomID + ":online"
}

func (p *RedisPresence) SetOnline(ctx context.Context, roomID, userID string) error {
	return p.client.SAdd(ctx, presenceKey(roomID), userID).Err()
}

func (p *RedisPresence) SetOffline(ctx context.Context, roomID, userID string) error {
	return p.client.SRem(ctx, presenceKey(roomID), userID).Err()
}

// Online lists the user ids currently online in a room, for the read API.
func (p *RedisPresence) Online(ctx context.Context, roomID string) ([]string, error) {
	return p.client.SMembers(ctx, presenceKey(roomID)).Result()
}

// The gateway's index stays authoritative for membership; these sets mirror
// it so read-side services can check participation without reaching into the
// gateway process.
func membersKey(roomID string) string {
	return "room:" + roomID + ":members"
}

func (p *RedisPresence) AddMembers(ctx context.Context, roomID string, userIDs ...string) error {
	members := make([]interface{}, len(userIDs))
	for i, u := range userIDs {
		members[i] = u
	}
	return p.client.SAdd(ctx, membersKey(roomID), members...).Err()
}

func (p *RedisPresence) RemoveMember(ctx context.Context, roomID, userID string) error {
	return p.client.SRem(ctx, membersKey(roomID), userID).Err()
}

func (p *RedisPresence) IsMember(ctx context.Context, roomID, userID string) (bool, error) {
	return p.client.SIsMember(ctx, membersKey(roomID), userID).Result()
}

// DropRoom clears a closed room's mirrored sets.
func (p *RedisPresence) DropRoom(ctx context.Context, roomID string) error {
	return p.client.Del(ctx, membersKey(roomID), presenceKey(roomID)).Err()
}

func (p *RedisPresence) Close() error {
	return p.client.Close()
}

func logPresenceErr(log *slog.Logger, op, roomID, userID string, err error) {
	if err != nil {
		log.Warn("presence update failed", "op", op, "room_id", roomID, "user_id", userID, "err", err)
	}
}
