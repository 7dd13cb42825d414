package plan

import (
	"errors"
	"testing"

	"github.com/outlaylabs/outlay/id"
	"github.com/outlaylabs/outlay/types"
)

func testPlan(seatLimit int) Plan {
	return Plan{
		ID:        id.NewPlanID(),
		Name:      "Team",
		Slug:      "team",
		Status:    StatusActive,
		Markup:    types.MustPercent("25"),
		SeatLimit: seatLimit,
		Features: []Feature{
			{Key: "api_access", Type: FeatureBoolean, Limit: 1},
			{Key: "generations", Type: FeatureMetered, Limit: 1000},
			{Key: "drafts", Type: FeatureMetered, Limit: 10, SoftLimit: true},
		},
	}
}

func member(email string) Member {
	accountID := id.NewAccountID()
	return Member{
		AccountID: accountID,
		Role:      "member",
		Profile:   &Profile{AccountID: accountID, Email: email},
	}
}

func TestAllows(t *testing.T) {
	p := testPlan(5)
	tests := []struct {
		name    string
		feature string
		usage   int64
		want    bool
	}{
		{"boolean on", "api_access", 0, true},
		{"metered under limit", "generations", 999, true},
		{"metered at limit", "generations", 1000, false},
		{"soft limit over", "drafts", 50, true},
		{"unknown feature", "teleport", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Allows(tt.feature, tt.usage); got != tt.want {
				t.Errorf("Allows(%q, %d) = %v, want %v", tt.feature, tt.usage, got, tt.want)
			}
		})
	}

	unlimited := Plan{Features: []Feature{{Key: "generations", Type: FeatureMetered, Limit: -1}}}
	if !unlimited.Allows("generations", 1<<40) {
		t.Error("limit -1 should be unlimited")
	}
}

func TestEnrichWithTeam(t *testing.T) {
	internal := []string{"outlay.dev"}

	tests := []struct {
		name    string
		members []Member
		limit   int
		want    TeamMetadata
	}{
		{
			"under limit",
			[]Member{member("a@example.com"), member("b@example.com")},
			5,
			TeamMetadata{SeatCount: 2, RemainingSeats: 3},
		},
		{
			"at limit",
			[]Member{member("a@example.com"), member("b@example.com")},
			2,
			TeamMetadata{SeatCount: 2, RemainingSeats: 0, AtSeatLimit: true},
		},
		{
			"over limit clamps remaining",
			[]Member{member("a@example.com"), member("b@example.com"), member("c@example.com")},
			2,
			TeamMetadata{SeatCount: 3, RemainingSeats: 0, AtSeatLimit: true},
		},
		{
			"unresolvable profile skipped",
			[]Member{member("a@example.com"), {AccountID: id.NewAccountID()}},
			5,
			TeamMetadata{SeatCount: 1, RemainingSeats: 4},
		},
		{
			"internal domain skipped",
			[]Member{member("a@example.com"), member("ops@outlay.dev"), member("OPS@OUTLAY.DEV")},
			5,
			TeamMetadata{SeatCount: 1, RemainingSeats: 4},
		},
		{
			"unlimited",
			[]Member{member("a@example.com")},
			-1,
			TeamMetadata{SeatCount: 1, RemainingSeats: -1, Unlimited: true},
		},
		{
			"zero limit",
			[]Member{member("a@example.com")},
			0,
			TeamMetadata{SeatCount: 1, RemainingSeats: 0, AtSeatLimit: true},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			team := Team{WorkspaceID: id.NewAccountID(), Members: tt.members}
			got := EnrichWithTeam(team, testPlan(tt.limit), internal)
			if got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestEnrichWithTeamIsRecomputed(t *testing.T) {
	team := Team{Members: []Member{member("a@example.com")}}
	p := testPlan(2)

	first := EnrichWithTeam(team, p, nil)
	team.Members = append(team.Members, member("b@example.com"))
	second := EnrichWithTeam(team, p, nil)

	if first.SeatCount != 1 || second.SeatCount != 2 {
		t.Errorf("seat counts = %d then %d, want 1 then 2", first.SeatCount, second.SeatCount)
	}
	if !second.AtSeatLimit {
		t.Error("second read should be at the limit")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	if err := r.Put(Plan{Name: "nameless"}); err == nil {
		t.Error("plan without slug accepted")
	}

	p := testPlan(5)
	if err := r.Put(p); err != nil {
		t.Fatal(err)
	}
	got, err := r.Get("team")
	if err != nil {
		t.Fatal(err)
	}
	if got.Name != "Team" {
		t.Errorf("name = %q", got.Name)
	}

	if _, err := r.Get("enterprise"); !errors.Is(err, ErrPlanNotFound) {
		t.Errorf("missing slug: got %v, want ErrPlanNotFound", err)
	}

	archived := testPlan(5)
	archived.Slug = "old"
	archived.Status = StatusArchived
	if err := r.Put(archived); err != nil {
		t.Fatal(err)
	}
	if active := r.Active(); len(active) != 1 || active[0].Slug != "team" {
		t.Errorf("active = %+v", active)
	}
}
