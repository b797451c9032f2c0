package bot

import (
	"context"
	"sync/atomic"
	"time"

	"glimmer-bot/internal/config"
	"glimmer-bot/internal/giveaway"
	"glimmer-bot/internal/stats"
	"glimmer-bot/internal/storage"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

type Bot struct {
	cfg     config.Config
	logger  *zap.Logger
	store   *storage.Store
	session *discordgo.Session

	ctrl    *giveaway.Controller
	sched   *giveaway.Scheduler
	stats   *stats.Tracker
	presses *pressLimiter
	ready   atomic.Bool
}

func New(cfg config.Config, logger *zap.Logger, store *storage.Store) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}

	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildInvites

	b := &Bot{
		cfg:     cfg,
		logger:  logger,
		store:   store,
		session: session,
	}

	announce := &announcer{
		session:   session,
		colors:    cfg.Giveaways.EmbedColors,
		dmWinners: cfg.Giveaways.DMWinners,
	}
	b.ctrl = giveaway.NewController(store, announce, logger)
	b.sched = giveaway.NewScheduler(
		b.ctrl,
		store,
		b,
		time.Duration(cfg.Giveaways.SweepIntervalSeconds)*time.Second,
		logger,
	)
	b.stats = stats.New(store, logger)
	b.presses = newPressLimiter(10*time.Second, 5)

	return b, nil
}

func (b *Bot) Start() error {
	b.session.AddHandler(b.onReady)
	b.session.AddHandler(b.onInteractionCreate)
	b.session.AddHandler(b.onMessageCreate)
	b.session.AddHandler(b.onGuildMemberAdd)
	b.session.AddHandler(b.onInviteCreate)
	b.session.AddHandler(b.onInviteDelete)

	if err := b.session.Open(); err != nil {
		return err
	}

	if err := b.registerCommands(); err != nil {
		return err
	}

	b.sched.Start()
	return nil
}

func (b *Bot) Close(ctx context.Context) {
	_ = ctx
	b.sched.Stop()
	if b.session != nil {
		_ = b.session.Close()
	}
}

// KnownGuild implements giveaway.GuildResolver against session state. The
// guild list is only trustworthy after the ready event, so until then
// every guild counts as known and the sweep deletes nothing.
func (b *Bot) KnownGuild(guildID string) bool {
	if !b.ready.Load() {
		return true
	}
	_, err := b.session.State.Guild(guildID)
	return err == nil
}

func (b *Bot) onReady(session *discordgo.Session, event *discordgo.Ready) {
	b.ready.Store(true)
	b.logger.Info("discord ready",
		zap.String("user", session.State.User.Username),
		zap.Int("guilds", len(event.Guilds)))

	// Seed invite snapshots so the first join after startup can still be
	// attributed.
	ctx := context.Background()
	for _, guild := range event.Guilds {
		if guild == nil {
			continue
		}
		invites, err := session.GuildInvites(guild.ID)
		if err != nil {
			continue
		}
		b.stats.SyncInvites(ctx, guild.ID, inviteUses(invites))
	}
}

func inviteUses(invites []*discordgo.Invite) []stats.InviteUse {
	uses := make([]stats.InviteUse, 0, len(invites))
	for _, invite := range invites {
		if invite == nil {
			continue
		}
		use := stats.InviteUse{Code: invite.Code, Uses: invite.Uses}
		if invite.Inviter != nil {
			use.InviterID = invite.Inviter.ID
		}
		uses = append(uses, use)
	}
	return uses
}
