package bot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"glimmer-bot/internal/durations"
	"glimmer-bot/internal/giveaway"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

func (b *Bot) onInteractionCreate(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx := context.Background()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		data := i.ApplicationCommandData()
		if data.Name != "giveaway" || len(data.Options) == 0 {
			return
		}
		sub := data.Options[0]
		switch sub.Name {
		case "create":
			b.handleCreate(ctx, i, sub)
		case "end":
			b.handleEnd(ctx, i, sub)
		case "reroll":
			b.handleReroll(ctx, i, sub)
		case "delete":
			b.handleDelete(ctx, i, sub)
		}
	case discordgo.InteractionMessageComponent:
		if i.MessageComponentData().CustomID == joinButtonID {
			b.handleJoinToggle(ctx, i)
		}
	}
}

func (b *Bot) handleCreate(ctx context.Context, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	opts := optionsByName(sub.Options)
	now := time.Now()

	params := giveaway.CreateParams{
		GuildID:   i.GuildID,
		ChannelID: i.ChannelID,
		HostedBy:  invokerMention(i),
	}
	if opt, ok := opts["duration"]; ok {
		params.Duration = opt.StringValue()
	}
	if opt, ok := opts["winners"]; ok {
		params.WinnerCount = int(opt.IntValue())
	}
	if opt, ok := opts["prize"]; ok {
		params.Prize = opt.StringValue()
	}
	if opt, ok := opts["channel"]; ok {
		params.ChannelID = opt.ChannelValue(nil).ID
	}
	if opt, ok := opts["required_role"]; ok {
		params.WhitelistRoles = []string{opt.RoleValue(nil, "").ID}
	}
	if opt, ok := opts["blocked_role"]; ok {
		params.BlacklistRoles = []string{opt.RoleValue(nil, "").ID}
	}
	if opt, ok := opts["min_server_age"]; ok {
		age, parsed := durations.Parse(opt.StringValue())
		if !parsed {
			b.respondError(i, "min_server_age must look like 7d or 2w.")
			return
		}
		params.MinJoinDate = now.Add(-age).UnixMilli()
	}
	if opt, ok := opts["min_account_age"]; ok {
		age, parsed := durations.Parse(opt.StringValue())
		if !parsed {
			b.respondError(i, "min_account_age must look like 30d or 1y.")
			return
		}
		params.MinAccountDate = now.Add(-age).UnixMilli()
	}
	if opt, ok := opts["min_invites"]; ok {
		params.MinInvites = int(opt.IntValue())
	}
	if opt, ok := opts["min_messages"]; ok {
		params.MinMessages = int(opt.IntValue())
	}
	if opt, ok := opts["bonus_role"]; ok {
		entries := 1
		if amount, set := opts["bonus_entries"]; set && int(amount.IntValue()) > 0 {
			entries = int(amount.IntValue())
		}
		params.ExtraEntries = []giveaway.ExtraEntry{
			{RoleID: opt.RoleValue(nil, "").ID, Entries: entries},
		}
	}

	g, err := b.ctrl.Create(ctx, params)
	switch {
	case errors.Is(err, giveaway.ErrBadDuration),
		errors.Is(err, giveaway.ErrBadWinnerCount),
		errors.Is(err, giveaway.ErrRoleOverlap):
		b.respondError(i, err.Error())
		return
	case err != nil:
		b.logger.Error("giveaway create failed", zap.Error(err))
		b.respondError(i, "Could not start the giveaway, try again.")
		return
	}

	b.respondOK(i, fmt.Sprintf("Giveaway **%s** started in <#%s> with ID `%s`.", g.Prize, g.ChannelID, g.GiveawayID))
}

func (b *Bot) handleEnd(ctx context.Context, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	id := optionsByName(sub.Options)["id"].StringValue()

	err := b.ctrl.End(ctx, id)
	switch {
	case errors.Is(err, giveaway.ErrNotFound):
		b.respondError(i, "No giveaway with ID `"+id+"`.")
	case err != nil:
		b.logger.Error("giveaway end failed", zap.String("giveaway_id", id), zap.Error(err))
		b.respondError(i, "Could not end the giveaway, try again.")
	default:
		b.respondOK(i, "Giveaway `"+id+"` has ended.")
	}
}

func (b *Bot) handleReroll(ctx context.Context, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	opts := optionsByName(sub.Options)
	id := opts["id"].StringValue()

	var targets []string
	if opt, ok := opts["winner"]; ok {
		targets = []string{opt.UserValue(nil).ID}
	}

	g, err := b.ctrl.Reroll(ctx, id, targets)
	switch {
	case errors.Is(err, giveaway.ErrNotFound):
		b.respondError(i, "No giveaway with ID `"+id+"`.")
	case errors.Is(err, giveaway.ErrNotEnded):
		b.respondError(i, "That giveaway is still running; end it first.")
	case errors.Is(err, giveaway.ErrNotAWinner):
		b.respondError(i, "That user is not a current winner.")
	case err != nil:
		b.logger.Error("giveaway reroll failed", zap.String("giveaway_id", id), zap.Error(err))
		b.respondError(i, "Could not reroll the giveaway, try again.")
	case len(g.Winners) == 0:
		b.respondOK(i, "Rerolled, but there were no valid entrants to draw from.")
	default:
		b.respondOK(i, "New winners: "+mentionList(g.WinnerIDs()))
	}
}

func (b *Bot) handleDelete(ctx context.Context, i *discordgo.InteractionCreate, sub *discordgo.ApplicationCommandInteractionDataOption) {
	id := optionsByName(sub.Options)["id"].StringValue()

	err := b.ctrl.Delete(ctx, id)
	switch {
	case errors.Is(err, giveaway.ErrNotFound):
		b.respondError(i, "No giveaway with ID `"+id+"`.")
	case err != nil:
		b.logger.Error("giveaway delete failed", zap.String("giveaway_id", id), zap.Error(err))
		b.respondError(i, "Could not delete the giveaway, try again.")
	default:
		b.respondOK(i, "Giveaway `"+id+"` deleted.")
	}
}

func (b *Bot) handleJoinToggle(ctx context.Context, i *discordgo.InteractionCreate) {
	member := i.Member
	if member == nil || member.User == nil || i.Message == nil {
		return
	}
	if !b.presses.Allow(member.User.ID, time.Now()) {
		b.respondError(i, "You're pressing that too fast, give it a moment.")
		return
	}

	createdAt, err := discordgo.SnowflakeTimestamp(member.User.ID)
	if err != nil {
		createdAt = time.Time{}
	}
	messages, invites := b.stats.Activity(ctx, i.GuildID, member.User.ID)

	outcome, err := b.ctrl.ToggleEntry(ctx, i.Message.ID, giveaway.MemberSnapshot{
		UserID:    member.User.ID,
		Username:  member.User.Username,
		Roles:     member.Roles,
		JoinedAt:  member.JoinedAt,
		CreatedAt: createdAt,
		Invites:   invites,
		Messages:  messages,
	})
	switch {
	case errors.Is(err, giveaway.ErrNotFound):
		b.respondError(i, "This giveaway no longer exists.")
		return
	case errors.Is(err, giveaway.ErrAlreadyEnded):
		b.respondError(i, "This giveaway has already ended.")
		return
	case err != nil:
		b.logger.Error("entry toggle failed",
			zap.String("message_id", i.Message.ID),
			zap.String("user_id", member.User.ID),
			zap.Error(err))
		b.respondError(i, "Something went wrong, try again.")
		return
	}

	if outcome.Denied != giveaway.DenyNone {
		b.respondError(i, outcome.Denied.String())
		return
	}
	if outcome.Result == giveaway.ToggleEntered {
		b.respondOK(i, "You're in! Press the button again to leave.")
		return
	}
	b.respondOK(i, "You left the giveaway.")
}

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	b.stats.RecordMessage(context.Background(), m.GuildID, m.Author.ID)
}

func (b *Bot) onGuildMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.User == nil || m.User.Bot {
		return
	}

	invites, err := s.GuildInvites(m.GuildID)
	if err != nil {
		b.logger.Warn("invite fetch failed on join",
			zap.String("guild_id", m.GuildID), zap.Error(err))
		return
	}

	ctx := context.Background()
	inviter, err := b.stats.CreditJoin(ctx, m.GuildID, inviteUses(invites))
	if err != nil {
		b.logger.Warn("invite attribution failed",
			zap.String("guild_id", m.GuildID), zap.Error(err))
		return
	}
	if inviter != "" {
		b.logger.Debug("member join attributed",
			zap.String("guild_id", m.GuildID),
			zap.String("user_id", m.User.ID),
			zap.String("inviter_id", inviter))
	}
}

func (b *Bot) onInviteCreate(s *discordgo.Session, e *discordgo.InviteCreate) {
	b.refreshInvites(s, e.GuildID)
}

func (b *Bot) onInviteDelete(s *discordgo.Session, e *discordgo.InviteDelete) {
	b.refreshInvites(s, e.GuildID)
}

func (b *Bot) refreshInvites(s *discordgo.Session, guildID string) {
	invites, err := s.GuildInvites(guildID)
	if err != nil {
		return
	}
	b.stats.SyncInvites(context.Background(), guildID, inviteUses(invites))
}

func (b *Bot) respondOK(i *discordgo.InteractionCreate, description string) {
	b.respondEmbed(i, description, b.cfg.Giveaways.EmbedColors.Active)
}

func (b *Bot) respondError(i *discordgo.InteractionCreate, description string) {
	b.respondEmbed(i, description, b.cfg.Giveaways.EmbedColors.Error)
}

func (b *Bot) respondEmbed(i *discordgo.InteractionCreate, description string, color int) {
	err := b.session.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Embeds: []*discordgo.MessageEmbed{
				{Description: description, Color: color},
			},
			Flags: discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		b.logger.Warn("interaction response failed", zap.Error(err))
	}
}

func optionsByName(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	byName := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		byName[opt.Name] = opt
	}
	return byName
}

func invokerMention(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.User != nil {
		return "<@" + i.Member.User.ID + ">"
	}
	if i.User != nil {
		return "<@" + i.User.ID + ">"
	}
	return "unknown"
}
