package giveaway

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"glimmer-bot/internal/durations"

	"go.uber.org/zap"
)

// ErrNotAWinner is returned by Reroll when none of the targeted users are
// current winners.
var ErrNotAWinner = errors.New("none of the targeted users are current winners")

// Store is the authoritative persistence for giveaway records. All
// components funnel writes through it; nothing shares in-memory records
// across operations.
type Store interface {
	Create(ctx context.Context, g *Giveaway) error
	GetByID(ctx context.Context, giveawayID string) (*Giveaway, error)
	GetByMessage(ctx context.Context, messageID string) (*Giveaway, error)
	ListActive(ctx context.Context) ([]*Giveaway, error)

	// UpdateEntrants applies mutate to the stored record under an
	// optimistic transaction and returns the updated record. It fails with
	// ErrAlreadyEnded if the record ended in the meantime.
	UpdateEntrants(ctx context.Context, giveawayID string, mutate func(*Giveaway) error) (*Giveaway, error)

	// MarkEnded atomically sets ended=true and the winner list, but only
	// while ended is still false. The loser of a concurrent end race gets
	// (false, nil) and must skip side effects.
	MarkEnded(ctx context.Context, giveawayID string, winners []Winner) (bool, error)

	// SetWinners replaces the winner list of an ended record.
	SetWinners(ctx context.Context, giveawayID string, winners []Winner) error

	Delete(ctx context.Context, giveawayID string) error
}

// Announcer is the outward presentation collaborator: it renders the
// announcement message and delivers winner notifications. The controller
// does not know the presentation format.
type Announcer interface {
	Announce(ctx context.Context, g *Giveaway) (messageID string, err error)
	UpdateEntries(ctx context.Context, g *Giveaway) error
	// EnsureMessage reports ErrMessageGone when the announcement message
	// has been deleted out from under the record.
	EnsureMessage(ctx context.Context, g *Giveaway) error
	RenderEnded(ctx context.Context, g *Giveaway) error
	NotifyWinner(ctx context.Context, g *Giveaway, winnerID string) error
}

type clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Controller drives the giveaway state machine: Active -> Ended, with
// reroll mutating winners inside Ended. There is no way back to Active.
type Controller struct {
	store     Store
	announcer Announcer
	logger    *zap.Logger
	clock     clock

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewController(store Store, announcer Announcer, logger *zap.Logger) *Controller {
	return &Controller{
		store:     store,
		announcer: announcer,
		logger:    logger,
		clock:     systemClock{},
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *Controller) WithClock(clk clock) *Controller {
	c.clock = clk
	return c
}

func (c *Controller) WithRand(rng *rand.Rand) *Controller {
	c.rng = rng
	return c
}

// CreateParams carries everything a create command supplies. Duration is
// the human string; role requirement instants are unix milliseconds.
type CreateParams struct {
	GuildID        string
	ChannelID      string
	Duration       string
	WinnerCount    int
	Prize          string
	HostedBy       string
	WhitelistRoles []string
	BlacklistRoles []string
	MinJoinDate    int64
	MinAccountDate int64
	MinInvites     int
	MinMessages    int
	ExtraEntries   []ExtraEntry
}

// Create validates the parameters, persists a new active record and
// renders the initial announcement. Validation failures leave no state
// behind.
func (c *Controller) Create(ctx context.Context, p CreateParams) (*Giveaway, error) {
	length, ok := durations.Parse(p.Duration)
	if !ok || length <= 0 {
		return nil, ErrBadDuration
	}
	if p.WinnerCount < 1 {
		return nil, ErrBadWinnerCount
	}
	for _, white := range p.WhitelistRoles {
		for _, black := range p.BlacklistRoles {
			if white == black {
				return nil, ErrRoleOverlap
			}
		}
	}

	now := c.clock.Now()
	g := &Giveaway{
		GiveawayID:  NewID(),
		ChannelID:   p.ChannelID,
		GuildID:     p.GuildID,
		StartAt:     now.UnixMilli(),
		EndAt:       now.Add(length).UnixMilli(),
		WinnerCount: p.WinnerCount,
		Prize:       p.Prize,
		HostedBy:    p.HostedBy,
		Requirements: Requirements{
			WhitelistRoles:    p.WhitelistRoles,
			BlacklistRoles:    p.BlacklistRoles,
			MinServerJoinDate: p.MinJoinDate,
			MinAccountDate:    p.MinAccountDate,
			MinInvites:        p.MinInvites,
			MinMessages:       p.MinMessages,
		},
		ExtraEntries: p.ExtraEntries,
		Entrants:     []Entrant{},
		Winners:      []Winner{},
	}

	messageID, err := c.announcer.Announce(ctx, g)
	if err != nil {
		return nil, fmt.Errorf("announce giveaway: %w", err)
	}
	g.MessageID = messageID

	if err := c.store.Create(ctx, g); err != nil {
		c.logger.Error("giveaway create failed after announce",
			zap.String("giveaway_id", g.GiveawayID),
			zap.String("message_id", messageID),
			zap.Error(err))
		return nil, fmt.Errorf("persist giveaway: %w", err)
	}

	c.logger.Info("giveaway created",
		zap.String("giveaway_id", g.GiveawayID),
		zap.String("guild_id", g.GuildID),
		zap.Int("winner_count", g.WinnerCount))
	return g, nil
}

// ToggleOutcome reports the result of a join/leave interaction. When
// Denied is set the ledger was not touched.
type ToggleOutcome struct {
	Result  ToggleResult
	Denied  DenyReason
	Entries int
}

// ToggleEntry handles one user pressing the join control. Not-found and
// already-ended records surface as errors without mutation; a denial
// comes back in the outcome so the caller can show the reason.
func (c *Controller) ToggleEntry(ctx context.Context, messageID string, m MemberSnapshot) (ToggleOutcome, error) {
	g, err := c.store.GetByMessage(ctx, messageID)
	if err != nil {
		return ToggleOutcome{}, err
	}
	if g.Ended {
		return ToggleOutcome{}, ErrAlreadyEnded
	}

	if deny := Evaluate(g, m); deny != DenyNone {
		return ToggleOutcome{Denied: deny, Entries: g.Entries}, nil
	}

	var result ToggleResult
	updated, err := c.store.UpdateEntrants(ctx, g.GiveawayID, func(rec *Giveaway) error {
		result = rec.Toggle(m.UserID, m.Username, m.Roles)
		return nil
	})
	if err != nil {
		return ToggleOutcome{}, err
	}

	if err := c.announcer.UpdateEntries(ctx, updated); err != nil {
		c.logger.Warn("entry count render failed",
			zap.String("giveaway_id", g.GiveawayID), zap.Error(err))
	}
	return ToggleOutcome{Result: result, Entries: updated.Entries}, nil
}

// End transitions a giveaway to ended exactly once. Calling it on an
// already-ended giveaway is a silent no-op, so the scheduler sweep and an
// explicit end command can race safely. When the announcement message is
// gone the record still ends, with no winners.
func (c *Controller) End(ctx context.Context, giveawayID string) error {
	g, err := c.store.GetByID(ctx, giveawayID)
	if err != nil {
		return err
	}
	if g.Ended {
		return nil
	}

	if err := c.announcer.EnsureMessage(ctx, g); err != nil {
		if !errors.Is(err, ErrMessageGone) {
			return fmt.Errorf("check giveaway message: %w", err)
		}
		applied, markErr := c.store.MarkEnded(ctx, giveawayID, nil)
		if markErr != nil {
			return fmt.Errorf("end giveaway %s: %w", giveawayID, markErr)
		}
		if applied {
			c.logger.Warn("giveaway ended without winners, message deleted",
				zap.String("giveaway_id", giveawayID))
		}
		return nil
	}

	winners := make([]Winner, 0, g.WinnerCount)
	for _, id := range c.draw(g.Entrants, g.WinnerCount) {
		winners = append(winners, Winner{WinnerID: id})
	}

	applied, err := c.store.MarkEnded(ctx, giveawayID, winners)
	if err != nil {
		return fmt.Errorf("end giveaway %s: %w", giveawayID, err)
	}
	if !applied {
		// Lost the race against a concurrent end; the winner of the race
		// already handled notifications.
		return nil
	}

	g.Ended = true
	g.Winners = winners
	if err := c.announcer.RenderEnded(ctx, g); err != nil {
		c.logger.Warn("ended render failed",
			zap.String("giveaway_id", giveawayID), zap.Error(err))
	}
	c.notify(ctx, g, g.WinnerIDs())

	c.logger.Info("giveaway ended",
		zap.String("giveaway_id", giveawayID),
		zap.Int("entrants", len(g.Entrants)),
		zap.Int("winners", len(winners)))
	return nil
}

// Reroll redraws winners for an ended giveaway. With no targets every slot
// is redrawn; with targets only those winners are replaced and the rest
// keep their spot. Current winners never win a rerolled slot unless they
// are the only entrants left.
func (c *Controller) Reroll(ctx context.Context, giveawayID string, targets []string) (*Giveaway, error) {
	g, err := c.store.GetByID(ctx, giveawayID)
	if err != nil {
		return nil, err
	}
	if !g.Ended {
		return nil, ErrNotEnded
	}

	current := g.WinnerIDs()
	kept := make([]Winner, 0, len(g.Winners))
	slots := 0
	if len(targets) == 0 {
		slots = g.WinnerCount
	} else {
		targeted := make(map[string]struct{}, len(targets))
		for _, id := range targets {
			targeted[id] = struct{}{}
		}
		for _, w := range g.Winners {
			if _, hit := targeted[w.WinnerID]; hit {
				slots++
			} else {
				kept = append(kept, w)
			}
		}
		if slots == 0 {
			return nil, ErrNotAWinner
		}
	}

	drawn := c.drawReroll(g.Entrants, current, slots)
	winners := kept
	for _, id := range drawn {
		winners = append(winners, Winner{WinnerID: id})
	}

	if err := c.store.SetWinners(ctx, giveawayID, winners); err != nil {
		return nil, fmt.Errorf("reroll giveaway %s: %w", giveawayID, err)
	}

	g.Winners = winners
	if err := c.announcer.RenderEnded(ctx, g); err != nil {
		c.logger.Warn("reroll render failed",
			zap.String("giveaway_id", giveawayID), zap.Error(err))
	}
	c.notify(ctx, g, drawn)

	c.logger.Info("giveaway rerolled",
		zap.String("giveaway_id", giveawayID),
		zap.Int("slots", slots),
		zap.Int("new_winners", len(drawn)))
	return g, nil
}

// Delete removes a record out-of-band; administrative cleanup, not part of
// the normal lifecycle.
func (c *Controller) Delete(ctx context.Context, giveawayID string) error {
	if _, err := c.store.GetByID(ctx, giveawayID); err != nil {
		return err
	}
	return c.store.Delete(ctx, giveawayID)
}

func (c *Controller) notify(ctx context.Context, g *Giveaway, winnerIDs []string) {
	for _, id := range winnerIDs {
		if err := c.announcer.NotifyWinner(ctx, g, id); err != nil {
			// DMs closed, user gone: per-recipient, never aborts the rest.
			c.logger.Warn("winner notification failed",
				zap.String("giveaway_id", g.GiveawayID),
				zap.String("winner_id", id),
				zap.Error(err))
		}
	}
}

func (c *Controller) draw(entrants []Entrant, count int) []string {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return SelectWinners(entrants, count, c.rng)
}

func (c *Controller) drawReroll(entrants []Entrant, exclude []string, count int) []string {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return SelectReroll(entrants, exclude, count, c.rng)
}
