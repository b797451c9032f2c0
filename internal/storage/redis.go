package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"glimmer-bot/internal/giveaway"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefixGiveaway = "giveaway:"
	keyPrefixMessage  = "giveaway:message:"
	keyActive         = "giveaways:active"
	keyPrefixActivity = "activity:"
	keyPrefixInvites  = "invites:"

	// Optimistic transactions retry on contention; entrant toggles on a
	// busy giveaway are the only real source of it.
	maxTxRetries = 5
)

var errTxRetriesExhausted = errors.New("storage: transaction retries exhausted")

// Store persists giveaway documents and member activity counters in
// Redis. Records are JSON documents keyed by the public giveaway ID, with
// an ID set for the active sweep and a message-ID index for interaction
// lookups.
type Store struct {
	client *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewWithClient wraps an existing client; tests hand in one backed by an
// embedded server.
func NewWithClient(client *redis.Client) *Store {
	return &Store{client: client}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Store) Close() {
	if s.client != nil {
		_ = s.client.Close()
	}
}

var _ giveaway.Store = (*Store)(nil)

func giveawayKey(id string) string { return keyPrefixGiveaway + id }
func messageKey(id string) string  { return keyPrefixMessage + id }
func activityKey(guildID, userID string) string {
	return keyPrefixActivity + guildID + ":" + userID
}
func invitesKey(guildID string) string { return keyPrefixInvites + guildID }

func (s *Store) Create(ctx context.Context, g *giveaway.Giveaway) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal giveaway: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, giveawayKey(g.GiveawayID), data, 0)
	pipe.SAdd(ctx, keyActive, g.GiveawayID)
	if g.MessageID != "" {
		pipe.Set(ctx, messageKey(g.MessageID), g.GiveawayID, 0)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *Store) GetByID(ctx context.Context, giveawayID string) (*giveaway.Giveaway, error) {
	data, err := s.client.Get(ctx, giveawayKey(giveawayID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, giveaway.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalGiveaway(data)
}

func (s *Store) GetByMessage(ctx context.Context, messageID string) (*giveaway.Giveaway, error) {
	id, err := s.client.Get(ctx, messageKey(messageID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, giveaway.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return s.GetByID(ctx, id)
}

func (s *Store) ListActive(ctx context.Context) ([]*giveaway.Giveaway, error) {
	ids, err := s.client.SMembers(ctx, keyActive).Result()
	if err != nil {
		return nil, err
	}

	records := make([]*giveaway.Giveaway, 0, len(ids))
	for _, id := range ids {
		g, err := s.GetByID(ctx, id)
		if errors.Is(err, giveaway.ErrNotFound) {
			// Dangling index entry; drop it and move on.
			s.client.SRem(ctx, keyActive, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		records = append(records, g)
	}
	return records, nil
}

func (s *Store) UpdateEntrants(ctx context.Context, giveawayID string, mutate func(*giveaway.Giveaway) error) (*giveaway.Giveaway, error) {
	var updated *giveaway.Giveaway
	err := s.watch(ctx, giveawayKey(giveawayID), func(tx *redis.Tx) error {
		g, err := getWatched(ctx, tx, giveawayID)
		if err != nil {
			return err
		}
		if g.Ended {
			return giveaway.ErrAlreadyEnded
		}
		if err := mutate(g); err != nil {
			return err
		}
		updated = g
		return s.writeWatched(ctx, tx, g)
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *Store) MarkEnded(ctx context.Context, giveawayID string, winners []giveaway.Winner) (bool, error) {
	applied := false
	err := s.watch(ctx, giveawayKey(giveawayID), func(tx *redis.Tx) error {
		g, err := getWatched(ctx, tx, giveawayID)
		if err != nil {
			return err
		}
		if g.Ended {
			// Someone else won the end race; nothing to apply.
			return nil
		}
		g.Ended = true
		g.Winners = winners
		if g.Winners == nil {
			g.Winners = []giveaway.Winner{}
		}

		data, err := json.Marshal(g)
		if err != nil {
			return fmt.Errorf("marshal giveaway: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, giveawayKey(g.GiveawayID), data, 0)
			pipe.SRem(ctx, keyActive, g.GiveawayID)
			return nil
		})
		if err != nil {
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (s *Store) SetWinners(ctx context.Context, giveawayID string, winners []giveaway.Winner) error {
	return s.watch(ctx, giveawayKey(giveawayID), func(tx *redis.Tx) error {
		g, err := getWatched(ctx, tx, giveawayID)
		if err != nil {
			return err
		}
		if !g.Ended {
			return giveaway.ErrNotEnded
		}
		g.Winners = winners
		if g.Winners == nil {
			g.Winners = []giveaway.Winner{}
		}
		return s.writeWatched(ctx, tx, g)
	})
}

func (s *Store) Delete(ctx context.Context, giveawayID string) error {
	g, err := s.GetByID(ctx, giveawayID)
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, giveawayKey(giveawayID))
	pipe.SRem(ctx, keyActive, giveawayID)
	if g.MessageID != "" {
		pipe.Del(ctx, messageKey(g.MessageID))
	}
	_, err = pipe.Exec(ctx)
	return err
}

// watch runs fn under WATCH on key, retrying the optimistic transaction a
// few times when a concurrent write invalidates it.
func (s *Store) watch(ctx context.Context, key string, fn func(tx *redis.Tx) error) error {
	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, fn, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errTxRetriesExhausted
}

func getWatched(ctx context.Context, tx *redis.Tx, giveawayID string) (*giveaway.Giveaway, error) {
	data, err := tx.Get(ctx, giveawayKey(giveawayID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, giveaway.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return unmarshalGiveaway(data)
}

func (s *Store) writeWatched(ctx context.Context, tx *redis.Tx, g *giveaway.Giveaway) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal giveaway: %w", err)
	}
	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, giveawayKey(g.GiveawayID), data, 0)
		return nil
	})
	return err
}

func unmarshalGiveaway(data []byte) (*giveaway.Giveaway, error) {
	var g giveaway.Giveaway
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("unmarshal giveaway: %w", err)
	}
	return &g, nil
}
