package giveaway

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// GuildResolver answers whether the bot still recognizes a guild. Records
// belonging to unknown guilds are stale data and get cleaned up by the
// sweep.
type GuildResolver interface {
	KnownGuild(guildID string) bool
}

// Scheduler periodically sweeps active giveaways and ends the expired
// ones through the controller. Correctness does not depend on in-memory
// timers: every tick re-derives the work from ended=false and endAt, so a
// restart simply resumes.
type Scheduler struct {
	ctrl     *Controller
	store    Store
	resolver GuildResolver
	interval time.Duration
	logger   *zap.Logger
	clock    clock

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScheduler(ctrl *Controller, store Store, resolver GuildResolver, interval time.Duration, logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		ctrl:     ctrl,
		store:    store,
		resolver: resolver,
		interval: interval,
		logger:   logger,
		clock:    systemClock{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (s *Scheduler) WithClock(clk clock) *Scheduler {
	s.clock = clk
	return s
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.Sweep(s.ctx); err != nil {
					s.logger.Error("giveaway sweep failed", zap.Error(err))
				}
			case <-s.ctx.Done():
				return
			}
		}
	}()
	s.logger.Info("giveaway scheduler started", zap.Duration("interval", s.interval))
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
	s.logger.Info("giveaway scheduler stopped")
}

// Sweep runs one pass over all active giveaways. Problems with a single
// giveaway are logged and skipped; only a failure to list aborts the pass.
func (s *Scheduler) Sweep(ctx context.Context) error {
	active, err := s.store.ListActive(ctx)
	if err != nil {
		return err
	}

	now := s.clock.Now()
	for _, g := range active {
		if !s.resolver.KnownGuild(g.GuildID) {
			if err := s.store.Delete(ctx, g.GiveawayID); err != nil {
				s.logger.Warn("stale giveaway cleanup failed",
					zap.String("giveaway_id", g.GiveawayID),
					zap.String("guild_id", g.GuildID),
					zap.Error(err))
			} else {
				s.logger.Info("stale giveaway deleted",
					zap.String("giveaway_id", g.GiveawayID),
					zap.String("guild_id", g.GuildID))
			}
			continue
		}

		if !g.ExpiredAt(now) {
			continue
		}
		if err := s.ctrl.End(ctx, g.GiveawayID); err != nil {
			s.logger.Error("giveaway end failed during sweep",
				zap.String("giveaway_id", g.GiveawayID),
				zap.Error(err))
		}
	}
	return nil
}
