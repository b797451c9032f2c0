package giveaway

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type memStore struct {
	mu        sync.Mutex
	records   map[string]*Giveaway
	byMessage map[string]string

	createErr error
	listErr   error
}

func newMemStore() *memStore {
	return &memStore{
		records:   map[string]*Giveaway{},
		byMessage: map[string]string{},
	}
}

func cloneRecord(g *Giveaway) *Giveaway {
	clone := *g
	clone.Entrants = append([]Entrant(nil), g.Entrants...)
	clone.Winners = append([]Winner(nil), g.Winners...)
	clone.ExtraEntries = append([]ExtraEntry(nil), g.ExtraEntries...)
	return &clone
}

func (s *memStore) Create(ctx context.Context, g *Giveaway) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[g.GiveawayID] = cloneRecord(g)
	if g.MessageID != "" {
		s.byMessage[g.MessageID] = g.GiveawayID
	}
	return nil
}

func (s *memStore) GetByID(ctx context.Context, giveawayID string) (*Giveaway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.records[giveawayID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(g), nil
}

func (s *memStore) GetByMessage(ctx context.Context, messageID string) (*Giveaway, error) {
	s.mu.Lock()
	id, ok := s.byMessage[messageID]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	return s.GetByID(ctx, id)
}

func (s *memStore) ListActive(ctx context.Context) ([]*Giveaway, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var active []*Giveaway
	for _, g := range s.records {
		if !g.Ended {
			active = append(active, cloneRecord(g))
		}
	}
	return active, nil
}

func (s *memStore) UpdateEntrants(ctx context.Context, giveawayID string, mutate func(*Giveaway) error) (*Giveaway, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.records[giveawayID]
	if !ok {
		return nil, ErrNotFound
	}
	if g.Ended {
		return nil, ErrAlreadyEnded
	}
	if err := mutate(g); err != nil {
		return nil, err
	}
	return cloneRecord(g), nil
}

func (s *memStore) MarkEnded(ctx context.Context, giveawayID string, winners []Winner) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.records[giveawayID]
	if !ok {
		return false, ErrNotFound
	}
	if g.Ended {
		return false, nil
	}
	g.Ended = true
	g.Winners = winners
	if g.Winners == nil {
		g.Winners = []Winner{}
	}
	return true, nil
}

func (s *memStore) SetWinners(ctx context.Context, giveawayID string, winners []Winner) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.records[giveawayID]
	if !ok {
		return ErrNotFound
	}
	if !g.Ended {
		return ErrNotEnded
	}
	g.Winners = winners
	return nil
}

func (s *memStore) Delete(ctx context.Context, giveawayID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.records[giveawayID]
	if !ok {
		return ErrNotFound
	}
	delete(s.records, giveawayID)
	delete(s.byMessage, g.MessageID)
	return nil
}

type fakeAnnouncer struct {
	mu sync.Mutex

	announceErr error
	ensureErr   error
	onEnsure    func(g *Giveaway)

	announced     int
	updates       int
	endedRenders  int
	notified      []string
	nextMessageID string
}

func (a *fakeAnnouncer) Announce(ctx context.Context, g *Giveaway) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.announceErr != nil {
		return "", a.announceErr
	}
	a.announced++
	if a.nextMessageID == "" {
		a.nextMessageID = "msg-1"
	}
	return a.nextMessageID, nil
}

func (a *fakeAnnouncer) UpdateEntries(ctx context.Context, g *Giveaway) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.updates++
	return nil
}

func (a *fakeAnnouncer) EnsureMessage(ctx context.Context, g *Giveaway) error {
	a.mu.Lock()
	onEnsure, err := a.onEnsure, a.ensureErr
	a.mu.Unlock()
	if onEnsure != nil {
		onEnsure(g)
	}
	return err
}

func (a *fakeAnnouncer) RenderEnded(ctx context.Context, g *Giveaway) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.endedRenders++
	return nil
}

func (a *fakeAnnouncer) NotifyWinner(ctx context.Context, g *Giveaway, winnerID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.notified = append(a.notified, winnerID)
	return nil
}

func newTestController(store Store, announcer Announcer, now time.Time) *Controller {
	return NewController(store, announcer, zap.NewNop()).
		WithClock(&fakeClock{now: now}).
		WithRand(rand.New(rand.NewSource(1)))
}

func seedActive(t *testing.T, store *memStore, id, messageID string, entrants []Entrant, winnerCount int) {
	t.Helper()
	err := store.Create(context.Background(), &Giveaway{
		GiveawayID:  id,
		MessageID:   messageID,
		ChannelID:   "chan-1",
		GuildID:     "guild-1",
		EndAt:       time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC).UnixMilli(),
		WinnerCount: winnerCount,
		Prize:       "prize",
		Entrants:    entrants,
		Winners:     []Winner{},
	})
	if err != nil {
		t.Fatalf("seed giveaway: %v", err)
	}
	store.records[id].Entries = len(entrants)
}

func TestCreateValidation(t *testing.T) {
	store := newMemStore()
	announcer := &fakeAnnouncer{}
	ctrl := newTestController(store, announcer, time.Now())

	cases := []struct {
		name   string
		params CreateParams
		want   error
	}{
		{"bad duration", CreateParams{Duration: "banana", WinnerCount: 1, Prize: "p"}, ErrBadDuration},
		{"zero duration", CreateParams{Duration: "0m", WinnerCount: 1, Prize: "p"}, ErrBadDuration},
		{"zero winners", CreateParams{Duration: "10m", WinnerCount: 0, Prize: "p"}, ErrBadWinnerCount},
		{"role overlap", CreateParams{
			Duration: "10m", WinnerCount: 1, Prize: "p",
			WhitelistRoles: []string{"r1"}, BlacklistRoles: []string{"r1"},
		}, ErrRoleOverlap},
	}
	for _, tc := range cases {
		if _, err := ctrl.Create(context.Background(), tc.params); !errors.Is(err, tc.want) {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, err)
		}
	}
	if announcer.announced != 0 {
		t.Fatalf("validation failures must not announce, got %d announcements", announcer.announced)
	}
	if len(store.records) != 0 {
		t.Fatalf("validation failures must not persist, got %d records", len(store.records))
	}
}

func TestCreatePersistsAnnouncedRecord(t *testing.T) {
	store := newMemStore()
	announcer := &fakeAnnouncer{nextMessageID: "msg-42"}
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	ctrl := newTestController(store, announcer, now)

	g, err := ctrl.Create(context.Background(), CreateParams{
		GuildID:     "guild-1",
		ChannelID:   "chan-1",
		Duration:    "2h",
		WinnerCount: 2,
		Prize:       "Nitro",
		HostedBy:    "<@host>",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.MessageID != "msg-42" {
		t.Fatalf("expected message id from announcer, got %q", g.MessageID)
	}
	if g.StartAt != now.UnixMilli() {
		t.Fatalf("startAt = %d, want %d", g.StartAt, now.UnixMilli())
	}
	if g.EndAt != now.Add(2*time.Hour).UnixMilli() {
		t.Fatalf("endAt = %d, want %d", g.EndAt, now.Add(2*time.Hour).UnixMilli())
	}
	if g.Ended {
		t.Fatalf("new giveaway must be active")
	}

	stored, err := store.GetByMessage(context.Background(), "msg-42")
	if err != nil {
		t.Fatalf("lookup by message: %v", err)
	}
	if stored.GiveawayID != g.GiveawayID {
		t.Fatalf("message index points at %q, want %q", stored.GiveawayID, g.GiveawayID)
	}
}

func TestCreateFailsWhenPersistFails(t *testing.T) {
	store := newMemStore()
	store.createErr = errors.New("redis down")
	ctrl := newTestController(store, &fakeAnnouncer{}, time.Now())

	_, err := ctrl.Create(context.Background(), CreateParams{
		Duration: "10m", WinnerCount: 1, Prize: "p",
	})
	if err == nil {
		t.Fatalf("expected persist error")
	}
}

func TestToggleEntryEnterAndLeave(t *testing.T) {
	store := newMemStore()
	announcer := &fakeAnnouncer{}
	ctrl := newTestController(store, announcer, time.Now())
	seedActive(t, store, "g1", "msg-1", nil, 1)

	member := MemberSnapshot{UserID: "u1", Username: "alice"}

	outcome, err := ctrl.ToggleEntry(context.Background(), "msg-1", member)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if outcome.Result != ToggleEntered || outcome.Entries != 1 {
		t.Fatalf("expected entered with 1 entry, got %+v", outcome)
	}

	outcome, err = ctrl.ToggleEntry(context.Background(), "msg-1", member)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if outcome.Result != ToggleLeft || outcome.Entries != 0 {
		t.Fatalf("expected left with 0 entries, got %+v", outcome)
	}
	if announcer.updates != 2 {
		t.Fatalf("expected 2 entry renders, got %d", announcer.updates)
	}
}

func TestToggleEntryDeniedLeavesLedgerAlone(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(store, &fakeAnnouncer{}, time.Now())
	seedActive(t, store, "g1", "msg-1", nil, 1)
	store.records["g1"].Requirements = Requirements{MinMessages: 10}

	outcome, err := ctrl.ToggleEntry(context.Background(), "msg-1", MemberSnapshot{UserID: "u1", Messages: 3})
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if outcome.Denied != DenyNotEnoughMessages {
		t.Fatalf("expected denial, got %+v", outcome)
	}
	if len(store.records["g1"].Entrants) != 0 {
		t.Fatalf("denied toggle must not mutate the ledger")
	}
}

func TestToggleEntryOnEndedGiveaway(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(store, &fakeAnnouncer{}, time.Now())
	seedActive(t, store, "g1", "msg-1", nil, 1)
	store.records["g1"].Ended = true

	_, err := ctrl.ToggleEntry(context.Background(), "msg-1", MemberSnapshot{UserID: "u1"})
	if !errors.Is(err, ErrAlreadyEnded) {
		t.Fatalf("expected ErrAlreadyEnded, got %v", err)
	}
}

func TestToggleEntryUnknownMessage(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(store, &fakeAnnouncer{}, time.Now())

	_, err := ctrl.ToggleEntry(context.Background(), "nope", MemberSnapshot{UserID: "u1"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestEndDrawsWinnersExactlyOnce(t *testing.T) {
	store := newMemStore()
	announcer := &fakeAnnouncer{}
	ctrl := newTestController(store, announcer, time.Now())
	seedActive(t, store, "g1", "msg-1", []Entrant{
		{EntrantID: "u1"}, {EntrantID: "u2"}, {EntrantID: "u3"},
	}, 2)

	if err := ctrl.End(context.Background(), "g1"); err != nil {
		t.Fatalf("end: %v", err)
	}

	stored := store.records["g1"]
	if !stored.Ended {
		t.Fatalf("record should be ended")
	}
	if len(stored.Winners) != 2 {
		t.Fatalf("expected 2 winners, got %v", stored.Winners)
	}
	if len(announcer.notified) != 2 || announcer.endedRenders != 1 {
		t.Fatalf("expected 2 notifications and 1 render, got %d/%d",
			len(announcer.notified), announcer.endedRenders)
	}

	// Ending again is a silent no-op: no redraw, no duplicate side effects.
	before := append([]Winner(nil), stored.Winners...)
	if err := ctrl.End(context.Background(), "g1"); err != nil {
		t.Fatalf("second end: %v", err)
	}
	if len(announcer.notified) != 2 || announcer.endedRenders != 1 {
		t.Fatalf("second end must not repeat side effects")
	}
	for i, w := range store.records["g1"].Winners {
		if w != before[i] {
			t.Fatalf("second end must not redraw winners")
		}
	}
}

func TestEndWithSingleEntrant(t *testing.T) {
	store := newMemStore()
	announcer := &fakeAnnouncer{}
	ctrl := newTestController(store, announcer, time.Now())
	seedActive(t, store, "g1", "msg-1", []Entrant{{EntrantID: "u1"}}, 1)

	if err := ctrl.End(context.Background(), "g1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	stored := store.records["g1"]
	if len(stored.Winners) != 1 || stored.Winners[0].WinnerID != "u1" {
		t.Fatalf("the only entrant must win, got %+v", stored.Winners)
	}
	if len(announcer.notified) != 1 || announcer.notified[0] != "u1" {
		t.Fatalf("expected one notification to u1, got %v", announcer.notified)
	}
}

func TestEndWithNoEntrants(t *testing.T) {
	store := newMemStore()
	announcer := &fakeAnnouncer{}
	ctrl := newTestController(store, announcer, time.Now())
	seedActive(t, store, "g1", "msg-1", nil, 3)

	if err := ctrl.End(context.Background(), "g1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	stored := store.records["g1"]
	if !stored.Ended || len(stored.Winners) != 0 {
		t.Fatalf("expected ended with no winners, got %+v", stored)
	}
	if len(announcer.notified) != 0 {
		t.Fatalf("nobody should be notified")
	}
	if announcer.endedRenders != 1 {
		t.Fatalf("ended state should still render")
	}
}

func TestEndRaceLoserSkipsSideEffects(t *testing.T) {
	store := newMemStore()
	announcer := &fakeAnnouncer{}
	ctrl := newTestController(store, announcer, time.Now())
	seedActive(t, store, "g1", "msg-1", []Entrant{{EntrantID: "u1"}}, 1)

	// A concurrent end lands between the read and the state flip.
	announcer.onEnsure = func(g *Giveaway) {
		store.mu.Lock()
		store.records["g1"].Ended = true
		store.records["g1"].Winners = []Winner{{WinnerID: "u1"}}
		store.mu.Unlock()
	}

	if err := ctrl.End(context.Background(), "g1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	if announcer.endedRenders != 0 || len(announcer.notified) != 0 {
		t.Fatalf("race loser must not render or notify, got %d/%d",
			announcer.endedRenders, len(announcer.notified))
	}
}

func TestEndWithDeletedMessage(t *testing.T) {
	store := newMemStore()
	announcer := &fakeAnnouncer{ensureErr: ErrMessageGone}
	ctrl := newTestController(store, announcer, time.Now())
	seedActive(t, store, "g1", "msg-1", []Entrant{{EntrantID: "u1"}}, 1)

	if err := ctrl.End(context.Background(), "g1"); err != nil {
		t.Fatalf("end: %v", err)
	}
	stored := store.records["g1"]
	if !stored.Ended {
		t.Fatalf("record should end even with the message gone")
	}
	if len(stored.Winners) != 0 {
		t.Fatalf("no winners should be drawn for a gone message, got %v", stored.Winners)
	}
	if len(announcer.notified) != 0 || announcer.endedRenders != 0 {
		t.Fatalf("no announcements for a gone message")
	}
}

func TestEndUnknownGiveaway(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(store, &fakeAnnouncer{}, time.Now())

	if err := ctrl.End(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRerollRequiresEnded(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(store, &fakeAnnouncer{}, time.Now())
	seedActive(t, store, "g1", "msg-1", []Entrant{{EntrantID: "u1"}}, 1)

	if _, err := ctrl.Reroll(context.Background(), "g1", nil); !errors.Is(err, ErrNotEnded) {
		t.Fatalf("expected ErrNotEnded, got %v", err)
	}
}

func TestRerollAllSlotsExcludesCurrentWinners(t *testing.T) {
	store := newMemStore()
	announcer := &fakeAnnouncer{}
	ctrl := newTestController(store, announcer, time.Now())
	seedActive(t, store, "g1", "msg-1", []Entrant{
		{EntrantID: "u1"}, {EntrantID: "u2"}, {EntrantID: "u3"}, {EntrantID: "u4"},
	}, 2)
	store.records["g1"].Ended = true
	store.records["g1"].Winners = []Winner{{WinnerID: "u1"}, {WinnerID: "u2"}}

	g, err := ctrl.Reroll(context.Background(), "g1", nil)
	if err != nil {
		t.Fatalf("reroll: %v", err)
	}
	if len(g.Winners) != 2 {
		t.Fatalf("expected 2 winners, got %v", g.Winners)
	}
	for _, w := range g.Winners {
		if w.WinnerID == "u1" || w.WinnerID == "u2" {
			t.Fatalf("previous winner %q drawn again with others available", w.WinnerID)
		}
	}
	if announcer.endedRenders != 1 {
		t.Fatalf("reroll should re-render the ended message")
	}
	if len(announcer.notified) != 2 {
		t.Fatalf("only newly drawn winners get notified, got %v", announcer.notified)
	}
}

func TestRerollTargetedReplacesOnlyThatWinner(t *testing.T) {
	store := newMemStore()
	announcer := &fakeAnnouncer{}
	ctrl := newTestController(store, announcer, time.Now())
	seedActive(t, store, "g1", "msg-1", []Entrant{
		{EntrantID: "u1"}, {EntrantID: "u2"}, {EntrantID: "u3"},
	}, 2)
	store.records["g1"].Ended = true
	store.records["g1"].Winners = []Winner{{WinnerID: "u1"}, {WinnerID: "u2"}}

	g, err := ctrl.Reroll(context.Background(), "g1", []string{"u1"})
	if err != nil {
		t.Fatalf("reroll: %v", err)
	}
	if len(g.Winners) != 2 {
		t.Fatalf("expected 2 winners, got %v", g.Winners)
	}

	keptU2 := false
	for _, w := range g.Winners {
		if w.WinnerID == "u1" {
			t.Fatalf("targeted winner must be replaced")
		}
		if w.WinnerID == "u2" {
			keptU2 = true
		}
	}
	if !keptU2 {
		t.Fatalf("untargeted winner must keep the spot, got %v", g.Winners)
	}
	if len(announcer.notified) != 1 {
		t.Fatalf("only the replacement gets notified, got %v", announcer.notified)
	}
}

func TestRerollTargetNotAWinner(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(store, &fakeAnnouncer{}, time.Now())
	seedActive(t, store, "g1", "msg-1", []Entrant{{EntrantID: "u1"}}, 1)
	store.records["g1"].Ended = true
	store.records["g1"].Winners = []Winner{{WinnerID: "u1"}}

	if _, err := ctrl.Reroll(context.Background(), "g1", []string{"u9"}); !errors.Is(err, ErrNotAWinner) {
		t.Fatalf("expected ErrNotAWinner, got %v", err)
	}
}

func TestDeleteRemovesRecord(t *testing.T) {
	store := newMemStore()
	ctrl := newTestController(store, &fakeAnnouncer{}, time.Now())
	seedActive(t, store, "g1", "msg-1", nil, 1)

	if err := ctrl.Delete(context.Background(), "g1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.GetByID(context.Background(), "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("record should be gone, got %v", err)
	}
	if err := ctrl.Delete(context.Background(), "g1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("deleting again should report not found, got %v", err)
	}
}
