package stats

import (
	"context"

	"glimmer-bot/internal/storage"

	"go.uber.org/zap"
)

// Store is the slice of persistence the tracker needs. Counters and
// snapshots live in the store, not in module-level maps, so they survive
// restarts and stay inspectable.
type Store interface {
	IncrMessages(ctx context.Context, guildID, userID string) error
	AddInvites(ctx context.Context, guildID, userID string, delta int) error
	Activity(ctx context.Context, guildID, userID string) (messages, invites int, err error)
	InviteUses(ctx context.Context, guildID string) (map[string]storage.InviteRecord, error)
	SaveInviteUses(ctx context.Context, guildID string, snapshot map[string]storage.InviteRecord) error
}

// InviteUse is the live state of one invite code as reported by the
// platform at the moment of a join.
type InviteUse struct {
	Code      string
	Uses      int
	InviterID string
}

// Tracker accumulates per-member activity used by giveaway entry
// requirements: messages sent and successful invites.
type Tracker struct {
	store  Store
	logger *zap.Logger
}

func New(store Store, logger *zap.Logger) *Tracker {
	return &Tracker{store: store, logger: logger}
}

// RecordMessage counts one message for the author.
func (t *Tracker) RecordMessage(ctx context.Context, guildID, userID string) {
	if err := t.store.IncrMessages(ctx, guildID, userID); err != nil {
		t.logger.Warn("message counter update failed",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// CreditJoin attributes a member join to an inviter by diffing the live
// invite uses against the stored snapshot, credits every inviter whose
// code gained uses, and saves the new snapshot. Returns the credited
// inviter ID when exactly one code moved, which is the common case.
func (t *Tracker) CreditJoin(ctx context.Context, guildID string, live []InviteUse) (string, error) {
	previous, err := t.store.InviteUses(ctx, guildID)
	if err != nil {
		return "", err
	}

	credited := ""
	moved := 0
	next := make(map[string]storage.InviteRecord, len(live))
	for _, use := range live {
		next[use.Code] = storage.InviteRecord{Uses: use.Uses, InviterID: use.InviterID}

		before := previous[use.Code].Uses
		if use.Uses <= before || use.InviterID == "" {
			continue
		}
		if err := t.store.AddInvites(ctx, guildID, use.InviterID, use.Uses-before); err != nil {
			t.logger.Warn("invite credit failed",
				zap.String("guild_id", guildID),
				zap.String("inviter_id", use.InviterID),
				zap.Error(err))
			continue
		}
		credited = use.InviterID
		moved++
	}

	if err := t.store.SaveInviteUses(ctx, guildID, next); err != nil {
		return "", err
	}
	if moved != 1 {
		// Zero codes moved (vanity URL, expired invite) or several did
		// (burst of joins between snapshots); attribution is ambiguous.
		return "", nil
	}
	return credited, nil
}

// SyncInvites refreshes the stored snapshot without crediting anyone,
// used at startup and when invites are created or deleted.
func (t *Tracker) SyncInvites(ctx context.Context, guildID string, live []InviteUse) {
	snapshot := make(map[string]storage.InviteRecord, len(live))
	for _, use := range live {
		snapshot[use.Code] = storage.InviteRecord{Uses: use.Uses, InviterID: use.InviterID}
	}
	if err := t.store.SaveInviteUses(ctx, guildID, snapshot); err != nil {
		t.logger.Warn("invite snapshot sync failed",
			zap.String("guild_id", guildID),
			zap.Error(err))
	}
}

// Activity reads a member's counters; failures degrade to zero so an
// eligibility check never hard-fails on a counter read.
func (t *Tracker) Activity(ctx context.Context, guildID, userID string) (messages, invites int) {
	messages, invites, err := t.store.Activity(ctx, guildID, userID)
	if err != nil {
		t.logger.Warn("activity read failed",
			zap.String("guild_id", guildID),
			zap.String("user_id", userID),
			zap.Error(err))
		return 0, 0
	}
	return messages, invites
}
