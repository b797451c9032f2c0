package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"glimmer-bot/internal/config"
	"glimmer-bot/internal/giveaway"

	"github.com/bwmarrin/discordgo"
)

const joinButtonID = "giveaway_join"

// announcer renders giveaway announcements as embeds with a join button
// and delivers winner DMs. It is the controller's presentation layer.
type announcer struct {
	session   *discordgo.Session
	colors    config.EmbedColors
	dmWinners bool
}

func (a *announcer) Announce(ctx context.Context, g *giveaway.Giveaway) (string, error) {
	msg, err := a.session.ChannelMessageSendComplex(g.ChannelID, &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{a.activeEmbed(g)},
		Components: joinComponents(false),
	})
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (a *announcer) UpdateEntries(ctx context.Context, g *giveaway.Giveaway) error {
	edit := discordgo.NewMessageEdit(g.ChannelID, g.MessageID)
	edit.Embeds = []*discordgo.MessageEmbed{a.activeEmbed(g)}
	edit.Components = joinComponents(false)
	_, err := a.session.ChannelMessageEditComplex(edit)
	return err
}

func (a *announcer) EnsureMessage(ctx context.Context, g *giveaway.Giveaway) error {
	_, err := a.session.ChannelMessage(g.ChannelID, g.MessageID)
	if isUnknownMessage(err) {
		return giveaway.ErrMessageGone
	}
	return err
}

func (a *announcer) RenderEnded(ctx context.Context, g *giveaway.Giveaway) error {
	edit := discordgo.NewMessageEdit(g.ChannelID, g.MessageID)
	edit.Embeds = []*discordgo.MessageEmbed{a.endedEmbed(g)}
	edit.Components = joinComponents(true)
	_, err := a.session.ChannelMessageEditComplex(edit)
	return err
}

func (a *announcer) NotifyWinner(ctx context.Context, g *giveaway.Giveaway, winnerID string) error {
	if !a.dmWinners {
		return nil
	}
	channel, err := a.session.UserChannelCreate(winnerID)
	if err != nil {
		return err
	}
	_, err = a.session.ChannelMessageSendEmbed(channel.ID, &discordgo.MessageEmbed{
		Title:       "You won a giveaway!",
		Description: fmt.Sprintf("You won **%s** in <#%s>.\n[Jump to giveaway](%s)", g.Prize, g.ChannelID, messageLink(g)),
		Color:       a.colors.Ended,
	})
	return err
}

func (a *announcer) activeEmbed(g *giveaway.Giveaway) *discordgo.MessageEmbed {
	var b strings.Builder
	fmt.Fprintf(&b, "Press the button below to enter.\n\n")
	fmt.Fprintf(&b, "Hosted by: %s\n", g.HostedBy)
	fmt.Fprintf(&b, "Winners: **%d**\n", g.WinnerCount)
	fmt.Fprintf(&b, "Ends: <t:%d:R>\n", g.EndAt/1000)
	fmt.Fprintf(&b, "Entries: **%d**", g.Entries)

	if reqs := requirementLines(g); len(reqs) > 0 {
		b.WriteString("\n\n**Requirements**\n")
		b.WriteString(strings.Join(reqs, "\n"))
	}
	if bonus := bonusLines(g); len(bonus) > 0 {
		b.WriteString("\n\n**Bonus entries**\n")
		b.WriteString(strings.Join(bonus, "\n"))
	}

	return &discordgo.MessageEmbed{
		Title:       g.Prize,
		Description: b.String(),
		Color:       a.colors.Active,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Giveaway ID: " + g.GiveawayID},
	}
}

func (a *announcer) endedEmbed(g *giveaway.Giveaway) *discordgo.MessageEmbed {
	var b strings.Builder
	fmt.Fprintf(&b, "Hosted by: %s\n", g.HostedBy)
	fmt.Fprintf(&b, "Ended: <t:%d:R>\n", g.EndAt/1000)
	fmt.Fprintf(&b, "Entries: **%d**\n\n", g.Entries)

	if len(g.Winners) == 0 {
		b.WriteString("No valid entrants, so a winner could not be determined.")
	} else {
		b.WriteString("Winners: " + mentionList(g.WinnerIDs()))
	}

	return &discordgo.MessageEmbed{
		Title:       g.Prize,
		Description: b.String(),
		Color:       a.colors.Ended,
		Footer:      &discordgo.MessageEmbedFooter{Text: "Giveaway ID: " + g.GiveawayID},
	}
}

func requirementLines(g *giveaway.Giveaway) []string {
	req := g.Requirements
	var lines []string
	if len(req.WhitelistRoles) > 0 {
		lines = append(lines, "Must have one of: "+roleList(req.WhitelistRoles))
	}
	if len(req.BlacklistRoles) > 0 {
		lines = append(lines, "Must not have: "+roleList(req.BlacklistRoles))
	}
	if req.MinServerJoinDate > 0 {
		lines = append(lines, fmt.Sprintf("Joined the server before <t:%d:f>", req.MinServerJoinDate/1000))
	}
	if req.MinAccountDate > 0 {
		lines = append(lines, fmt.Sprintf("Account created before <t:%d:f>", req.MinAccountDate/1000))
	}
	if req.MinInvites > 0 {
		lines = append(lines, fmt.Sprintf("At least **%d** invites", req.MinInvites))
	}
	if req.MinMessages > 0 {
		lines = append(lines, fmt.Sprintf("At least **%d** messages", req.MinMessages))
	}
	return lines
}

func bonusLines(g *giveaway.Giveaway) []string {
	var lines []string
	for _, extra := range g.ExtraEntries {
		lines = append(lines, fmt.Sprintf("<@&%s>: +%d entries", extra.RoleID, extra.Entries))
	}
	return lines
}

func joinComponents(disabled bool) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Enter",
					Style:    discordgo.PrimaryButton,
					CustomID: joinButtonID,
					Emoji:    discordgo.ComponentEmoji{Name: "🎉"},
					Disabled: disabled,
				},
			},
		},
	}
}

func roleList(roleIDs []string) string {
	mentions := make([]string, 0, len(roleIDs))
	for _, id := range roleIDs {
		mentions = append(mentions, "<@&"+id+">")
	}
	return strings.Join(mentions, ", ")
}

func mentionList(userIDs []string) string {
	mentions := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		mentions = append(mentions, "<@"+id+">")
	}
	return strings.Join(mentions, ", ")
}

func messageLink(g *giveaway.Giveaway) string {
	return fmt.Sprintf("https://discord.com/channels/%s/%s/%s", g.GuildID, g.ChannelID, g.MessageID)
}

func isUnknownMessage(err error) bool {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		code := restErr.Message.Code
		return code == discordgo.ErrCodeUnknownMessage || code == discordgo.ErrCodeUnknownChannel
	}
	return false
}
