package plan

import (
	"strings"

	"github.com/outlaylabs/outlay/id"
)

// Profile is the directory record backing a team member. Membership
// rows can outlive their profile (deleted users, pending invites); such
// members never count against seats.
type Profile struct {
	AccountID id.AccountID
	Email     string
	Name      string
}

// Member is one row of a workspace's member list.
type Member struct {
	AccountID id.AccountID
	Role      string
	Profile   *Profile // nil when the directory lookup failed
}

// Team is a workspace's member list as fetched from the directory.
type Team struct {
	WorkspaceID id.AccountID
	Members     []Member
}

// TeamMetadata is the seat accounting derived from a team and its plan.
// It is recomputed on every read and never persisted; the member list
// is the single source of truth.
type TeamMetadata struct {
	SeatCount      int  `json:"seat_count"`
	RemainingSeats int  `json:"remaining_seats"`
	AtSeatLimit    bool `json:"at_seat_limit"`
	Unlimited      bool `json:"unlimited"`
}

// EnrichWithTeam computes seat accounting for a team under a plan.
// Members without a resolvable profile are skipped, as are operator
// accounts identified by an internal email domain.
func EnrichWithTeam(team Team, p Plan, internalDomains []string) TeamMetadata {
	count := 0
	for _, m := range team.Members {
		if m.Profile == nil {
			continue
		}
		if hasInternalDomain(m.Profile.Email, internalDomains) {
			continue
		}
		count++
	}

	meta := TeamMetadata{SeatCount: count}
	if p.SeatLimit < 0 {
		meta.Unlimited = true
		meta.RemainingSeats = -1
		return meta
	}

	remaining := p.SeatLimit - count
	if remaining < 0 {
		remaining = 0
	}
	meta.RemainingSeats = remaining
	meta.AtSeatLimit = count >= p.SeatLimit
	return meta
}

func hasInternalDomain(email string, internalDomains []string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := strings.ToLower(email[at+1:])
	for _, d := range internalDomains {
		if domain == strings.ToLower(d) {
			return true
		}
	}
	return false
}
