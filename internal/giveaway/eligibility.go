package giveaway

// DenyReason explains why a candidate may not enter a giveaway. The zero
// value means the candidate is admitted.
type DenyReason int

const (
	DenyNone DenyReason = iota
	DenyEnded
	DenyWrongRole
	DenyJoinedTooRecently
	DenyAccountTooYoung
	DenyNotEnoughInvites
	DenyNotEnoughMessages
)

func (r DenyReason) String() string {
	switch r {
	case DenyNone:
		return "admitted"
	case DenyEnded:
		return "this giveaway has ended"
	case DenyWrongRole:
		return "you don't have the right roles for this giveaway"
	case DenyJoinedTooRecently:
		return "you joined this server too recently"
	case DenyAccountTooYoung:
		return "your account was created too recently"
	case DenyNotEnoughInvites:
		return "you don't have enough invites"
	case DenyNotEnoughMessages:
		return "you haven't sent enough messages"
	default:
		return "not eligible"
	}
}

// Evaluate decides entry admissibility for a candidate against the
// giveaway's requirement snapshot. Pure: no mutation, no knowledge of the
// entrant list. Checks run in precedence order and the first failure wins.
//
// The date checks admit candidates whose instant is at or before the
// cutoff, i.e. older memberships and accounts pass. That comparison
// direction is a deliberate policy and must not be inverted.
func Evaluate(g *Giveaway, m MemberSnapshot) DenyReason {
	if g.Ended {
		return DenyEnded
	}

	req := g.Requirements
	if len(req.WhitelistRoles) > 0 && !holdsAny(m.Roles, req.WhitelistRoles) {
		return DenyWrongRole
	}
	if len(req.BlacklistRoles) > 0 && holdsAny(m.Roles, req.BlacklistRoles) {
		return DenyWrongRole
	}
	if req.MinServerJoinDate > 0 && m.JoinedAt.UnixMilli() > req.MinServerJoinDate {
		return DenyJoinedTooRecently
	}
	if req.MinAccountDate > 0 && m.CreatedAt.UnixMilli() > req.MinAccountDate {
		return DenyAccountTooYoung
	}
	if req.MinInvites > 0 && m.Invites < req.MinInvites {
		return DenyNotEnoughInvites
	}
	if req.MinMessages > 0 && m.Messages < req.MinMessages {
		return DenyNotEnoughMessages
	}
	return DenyNone
}

func holdsAny(held, wanted []string) bool {
	for _, want := range wanted {
		for _, have := range held {
			if have == want {
				return true
			}
		}
	}
	return false
}
