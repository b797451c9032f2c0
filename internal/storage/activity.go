package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// InviteRecord is one stored invite-code snapshot used to attribute joins
// to inviters.
type InviteRecord struct {
	Uses      int    `json:"uses"`
	InviterID string `json:"inviterId"`
}

// IncrMessages bumps a member's message counter.
func (s *Store) IncrMessages(ctx context.Context, guildID, userID string) error {
	return s.client.HIncrBy(ctx, activityKey(guildID, userID), "messages", 1).Err()
}

// AddInvites credits (or debits) a member's invite counter.
func (s *Store) AddInvites(ctx context.Context, guildID, userID string, delta int) error {
	return s.client.HIncrBy(ctx, activityKey(guildID, userID), "invites", int64(delta)).Err()
}

// Activity returns a member's accumulated message and invite counts.
func (s *Store) Activity(ctx context.Context, guildID, userID string) (messages, invites int, err error) {
	fields, err := s.client.HGetAll(ctx, activityKey(guildID, userID)).Result()
	if err != nil {
		return 0, 0, err
	}
	return atoiField(fields, "messages"), atoiField(fields, "invites"), nil
}

// InviteUses loads the stored invite-use snapshot for a guild; an absent
// snapshot is an empty map, not an error.
func (s *Store) InviteUses(ctx context.Context, guildID string) (map[string]InviteRecord, error) {
	data, err := s.client.Get(ctx, invitesKey(guildID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return map[string]InviteRecord{}, nil
	}
	if err != nil {
		return nil, err
	}

	snapshot := map[string]InviteRecord{}
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal invite snapshot: %w", err)
	}
	return snapshot, nil
}

// SaveInviteUses replaces a guild's invite-use snapshot.
func (s *Store) SaveInviteUses(ctx context.Context, guildID string, snapshot map[string]InviteRecord) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("marshal invite snapshot: %w", err)
	}
	return s.client.Set(ctx, invitesKey(guildID), data, 0).Err()
}

func atoiField(fields map[string]string, name string) int {
	raw, ok := fields[name]
	if !ok {
		return 0
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return value
}
