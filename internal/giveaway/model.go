package giveaway

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("giveaway not found")
	ErrAlreadyEnded = errors.New("giveaway has already ended")
	ErrNotEnded     = errors.New("giveaway hasn't ended yet")
	ErrMessageGone  = errors.New("giveaway message no longer exists")

	ErrBadDuration    = errors.New("duration must be a positive value like 10m, 2h or 1d")
	ErrBadWinnerCount = errors.New("winner count must be at least 1")
	ErrRoleOverlap    = errors.New("a role cannot be both whitelisted and blacklisted")
)

// Giveaway is the persisted record for one giveaway. The JSON field names
// are a stable on-disk contract; external tooling reads the documents
// directly.
type Giveaway struct {
	GiveawayID   string       `json:"giveawayId"`
	MessageID    string       `json:"messageId"`
	ChannelID    string       `json:"channelId"`
	GuildID      string       `json:"guildId"`
	StartAt      int64        `json:"startAt"`
	EndAt        int64        `json:"endAt"`
	Ended        bool         `json:"ended"`
	WinnerCount  int          `json:"winnerCount"`
	Prize        string       `json:"prize"`
	HostedBy     string       `json:"hostedBy"`
	Requirements Requirements `json:"requirements"`
	ExtraEntries []ExtraEntry `json:"extraEntries"`
	Entries      int          `json:"entries"`
	Entrants     []Entrant    `json:"entrants"`
	Winners      []Winner     `json:"winners"`
}

// Requirements is an immutable snapshot taken at creation time. Instants
// are unix milliseconds; zero means the requirement is unset.
type Requirements struct {
	WhitelistRoles    []string `json:"whitelistRoles"`
	BlacklistRoles    []string `json:"blacklistRoles"`
	MinServerJoinDate int64    `json:"minServerJoinDate"`
	MinAccountDate    int64    `json:"minAccountDate"`
	MinInvites        int      `json:"minInvites"`
	MinMessages       int      `json:"minMessages"`
}

// ExtraEntry grants bonus draw weight to holders of a role.
type ExtraEntry struct {
	RoleID  string `json:"roleId"`
	Entries int    `json:"entries"`
}

// Entrant is one joined user. ExtraEntries is the bonus weight computed
// from the role snapshot at join time; total weight is 1 + ExtraEntries.
type Entrant struct {
	EntrantID       string `json:"entrantId"`
	EntrantUsername string `json:"entrantUsername"`
	ExtraEntries    int    `json:"extraEntries"`
}

type Winner struct {
	WinnerID string `json:"winnerId"`
}

// MemberSnapshot is what the eligibility evaluator sees of a candidate at
// the moment they try to join.
type MemberSnapshot struct {
	UserID    string
	Username  string
	Roles     []string
	JoinedAt  time.Time
	CreatedAt time.Time
	Invites   int
	Messages  int
}

// ExpiredAt reports whether the giveaway's end instant has passed. It says
// nothing about the Ended flag, which only the lifecycle controller flips.
func (g *Giveaway) ExpiredAt(now time.Time) bool {
	return now.UnixMilli() > g.EndAt
}

// WinnerIDs returns the current winner identifiers in draw order.
func (g *Giveaway) WinnerIDs() []string {
	ids := make([]string, 0, len(g.Winners))
	for _, w := range g.Winners {
		ids = append(ids, w.WinnerID)
	}
	return ids
}

// NewID generates a short shareable giveaway identifier, distinct from any
// storage key so it is safe to print in public-facing text.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
