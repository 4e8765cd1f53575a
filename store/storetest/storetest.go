// Package storetest holds the behavioural suite every store.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-match/models"
	"memory-match/store"
)

// Factory returns an empty store for one test.
type Factory func(t *testing.T) store.Store

// Run executes the suite against stores produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("ClaimCommitRelease", func(t *testing.T) { testClaimCommitRelease(t, newStore(t)) })
	t.Run("LeaseExpiry", func(t *testing.T) { testLeaseExpiry(t, newStore(t)) })
	t.Run("CommitFinish", func(t *testing.T) { testCommitFinish(t, newStore(t)) })
	t.Run("CommitFinishIsAtomic", func(t *testing.T) { testCommitFinishAtomic(t, newStore(t)) })
	t.Run("TakeOver", func(t *testing.T) { testTakeOver(t, newStore(t)) })
	t.Run("Watch", func(t *testing.T) { testWatch(t, newStore(t)) })
	t.Run("ActiveAndArchive", func(t *testing.T) { testActiveAndArchive(t, newStore(t)) })
	t.Run("Players", func(t *testing.T) { testPlayers(t, newStore(t)) })
	t.Run("Queue", func(t *testing.T) { testQueue(t, newStore(t)) })
	t.Run("Config", func(t *testing.T) { testConfig(t, newStore(t)) })
}

type fixture struct {
	a, b  models.Player
	match *models.Match
	now   time.Time
}

func setup(t *testing.T, s store.Store) fixture {
	t.Helper()
	ctx := context.Background()
	suffix := uuid.NewString()[:8]
	f := fixture{
		a:   models.Player{ID: "a-" + suffix, DisplayName: "Alice", Title: "Novice", Rating: 1000},
		b:   models.Player{ID: "b-" + suffix, DisplayName: "Bob", Title: "Novice", Rating: 1000},
		now: time.Now().UTC().Truncate(time.Millisecond),
	}
	for _, p := range []models.Player{f.a, f.b} {
		_, err := s.EnsurePlayer(ctx, p)
		require.NoError(t, err)
	}
	f.match = &models.Match{
		ID:             uuid.NewString(),
		PlayerA:        models.MatchPlayer{ID: f.a.ID, DisplayName: f.a.DisplayName, Title: f.a.Title, Rating: f.a.Rating},
		PlayerB:        models.MatchPlayer{ID: f.b.ID, DisplayName: f.b.DisplayName, Title: f.b.Title, Rating: f.b.Rating},
		Turn:           models.Turn{PlayerID: f.a.ID},
		Stage:          models.StageAwaitingFirstReveal,
		TurnDeadline:   f.now.Add(40 * time.Second),
		TurnDurationMs: 20000,
		Deck: []models.Card{
			{ID: "c0", PairTag: 0}, {ID: "c1", PairTag: 1},
			{ID: "c2", PairTag: 0}, {ID: "c3", PairTag: 1},
		},
	}
	require.NoError(t, s.CreateMatch(ctx, f.match))
	return f
}

func (f fixture) claim(playerID string) store.Claim {
	return store.Claim{
		MatchID:  f.match.ID,
		PlayerID: playerID,
		Token:    uuid.NewString(),
		Now:      f.now,
		Until:    f.now.Add(10 * time.Second),
	}
}

func testClaimCommitRelease(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := setup(t, s)

	_, err := s.ClaimTurn(ctx, f.claim(f.b.ID))
	assert.ErrorIs(t, err, store.ErrNotClaimed, "opponent cannot claim")
	_, err = s.ClaimTurn(ctx, f.claim("spectator"))
	assert.ErrorIs(t, err, store.ErrNotClaimed, "spectator cannot claim")
	_, err = s.ClaimTurn(ctx, store.Claim{MatchID: uuid.NewString(), PlayerID: f.a.ID, Token: "t"})
	assert.ErrorIs(t, err, store.ErrNotFound)

	c := f.claim(f.a.ID)
	claimed, err := s.ClaimTurn(ctx, c)
	require.NoError(t, err)
	assert.Equal(t, c.Token, claimed.Turn.LockToken)
	assert.Equal(t, f.a.ID, claimed.Turn.PlayerID)

	_, err = s.ClaimTurn(ctx, f.claim(f.a.ID))
	assert.ErrorIs(t, err, store.ErrNotClaimed, "duplicate claim loses")

	assert.ErrorIs(t, s.ReleaseTurn(ctx, f.match.ID, "wrong"), store.ErrLockLost)
	require.NoError(t, s.ReleaseTurn(ctx, f.match.ID, c.Token))

	got, err := s.GetMatch(ctx, f.match.ID)
	require.NoError(t, err)
	assert.False(t, got.Turn.Locked())
	assert.Equal(t, f.a.ID, got.Turn.PlayerID)
	assert.Equal(t, int64(0), got.Revision, "release is not a new revision")

	// Claim again and commit a move.
	c = f.claim(f.a.ID)
	claimed, err = s.ClaimTurn(ctx, c)
	require.NoError(t, err)
	claimed.Deck[0].Revealed = true
	claimed.Stage = models.StageAwaitingSecondReveal
	claimed.MoveCount = 1

	assert.ErrorIs(t, s.CommitMove(ctx, claimed.Clone(), "stale"), store.ErrLockLost)
	require.NoError(t, s.CommitMove(ctx, claimed, c.Token))
	assert.Equal(t, int64(1), claimed.Revision)
	assert.False(t, claimed.Turn.Locked())

	got, err = s.GetMatch(ctx, f.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageAwaitingSecondReveal, got.Stage)
	assert.Equal(t, 1, got.MoveCount)
	assert.True(t, got.Deck[0].Revealed)
	assert.False(t, got.Turn.Locked())
	assert.Equal(t, int64(1), got.Revision)

	assert.ErrorIs(t, s.CommitMove(ctx, claimed, c.Token), store.ErrLockLost, "token is single use")
}

func testLeaseExpiry(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := setup(t, s)

	first := f.claim(f.a.ID)
	_, err := s.ClaimTurn(ctx, first)
	require.NoError(t, err)

	second := f.claim(f.a.ID)
	second.Now = first.Until.Add(time.Second)
	second.Until = second.Now.Add(10 * time.Second)
	claimed, err := s.ClaimTurn(ctx, second)
	require.NoError(t, err, "an expired lease can be reclaimed")

	claimed.MoveCount = 1
	assert.ErrorIs(t, s.CommitMove(ctx, claimed.Clone(), first.Token), store.ErrLockLost)
	assert.NoError(t, s.CommitMove(ctx, claimed, second.Token))
}

func testCommitFinish(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := setup(t, s)

	c := f.claim(f.a.ID)
	m, err := s.ClaimTurn(ctx, c)
	require.NoError(t, err)

	finished := f.now.Add(time.Minute)
	winner := f.a.DisplayName
	da, db := 25, -25
	m.Stage = models.StageFinished
	m.Turn.PlayerID = ""
	m.FinishedAt = &finished
	m.WinnerName = &winner
	m.PlayerA.RatingDelta = &da
	m.PlayerB.RatingDelta = &db
	for i := range m.Deck {
		m.Deck[i].Matched = true
		m.Deck[i].OwnerID = f.a.ID
	}

	title := func(rating int) string {
		if rating > 1000 {
			return "Bronze"
		}
		return "Novice"
	}
	changes := []models.RatingChange{{PlayerID: f.a.ID, Delta: da}, {PlayerID: f.b.ID, Delta: db}}
	require.NoError(t, s.CommitFinish(ctx, m, c.Token, changes, title))
	assert.Equal(t, int64(1), m.Revision)

	got, err := s.GetMatch(ctx, f.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageFinished, got.Stage)
	assert.Empty(t, got.Turn.PlayerID)
	assert.False(t, got.Turn.Locked())
	require.NotNil(t, got.WinnerName)
	assert.Equal(t, "Alice", *got.WinnerName)
	require.NotNil(t, got.PlayerA.RatingDelta)
	assert.Equal(t, 25, *got.PlayerA.RatingDelta)

	pa, err := s.GetPlayer(ctx, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1025, pa.Rating)
	assert.Equal(t, "Bronze", pa.Title)
	pb, err := s.GetPlayer(ctx, f.b.ID)
	require.NoError(t, err)
	assert.Equal(t, 975, pb.Rating)
	assert.Equal(t, "Novice", pb.Title)

	_, err = s.ClaimTurn(ctx, f.claim(f.a.ID))
	assert.ErrorIs(t, err, store.ErrNotClaimed, "finished matches cannot be claimed")
}

func testCommitFinishAtomic(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := setup(t, s)

	c := f.claim(f.a.ID)
	m, err := s.ClaimTurn(ctx, c)
	require.NoError(t, err)
	m.Stage = models.StageFinished
	m.Turn.PlayerID = ""

	changes := []models.RatingChange{{PlayerID: f.a.ID, Delta: 25}, {PlayerID: "ghost", Delta: -25}}
	err = s.CommitFinish(ctx, m, c.Token, changes, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrNotFound), "got %v", err)

	pa, err := s.GetPlayer(ctx, f.a.ID)
	require.NoError(t, err)
	assert.Equal(t, 1000, pa.Rating, "no rating applied on failure")

	got, err := s.GetMatch(ctx, f.match.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StageAwaitingFirstReveal, got.Stage, "match left untouched")
	assert.Equal(t, c.Token, got.Turn.LockToken, "lock still held by the mover")
	assert.NoError(t, s.ReleaseTurn(ctx, f.match.ID, c.Token))
}

func testTakeOver(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := setup(t, s)
	deadline := f.match.TurnDeadline

	_, err := s.TakeOver(ctx, f.match.ID, f.b.ID, deadline.Add(-time.Second), deadline.Add(time.Minute))
	assert.ErrorIs(t, err, store.ErrNotClaimed, "deadline not passed")
	_, err = s.TakeOver(ctx, f.match.ID, f.a.ID, deadline.Add(time.Second), deadline.Add(time.Minute))
	assert.ErrorIs(t, err, store.ErrNotClaimed, "active player cannot take over")
	_, err = s.TakeOver(ctx, f.match.ID, "spectator", deadline.Add(time.Second), deadline.Add(time.Minute))
	assert.ErrorIs(t, err, store.ErrNotClaimed, "spectator cannot take over")
	_, err = s.TakeOver(ctx, uuid.NewString(), f.b.ID, deadline.Add(time.Second), deadline.Add(time.Minute))
	assert.ErrorIs(t, err, store.ErrNotFound)

	// A crashed mover's lock does not block the takeover.
	c := f.claim(f.a.ID)
	_, err = s.ClaimTurn(ctx, c)
	require.NoError(t, err)

	newDeadline := deadline.Add(time.Minute)
	m, err := s.TakeOver(ctx, f.match.ID, f.b.ID, deadline.Add(time.Second), newDeadline)
	require.NoError(t, err)
	assert.Equal(t, f.b.ID, m.Turn.PlayerID)
	assert.False(t, m.Turn.Locked())
	assert.Equal(t, models.StageAwaitingFirstReveal, m.Stage)
	assert.WithinDuration(t, newDeadline, m.TurnDeadline, time.Millisecond)
	assert.Equal(t, int64(1), m.Revision)

	assert.ErrorIs(t, s.ReleaseTurn(ctx, f.match.ID, c.Token), store.ErrLockLost)
}

func testWatch(t *testing.T, s store.Store) {
	f := setup(t, s)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := s.Watch(ctx, f.match.ID)
	require.NoError(t, err)
	_, err = s.Watch(ctx, uuid.NewString())
	assert.ErrorIs(t, err, store.ErrNotFound)

	c := f.claim(f.a.ID)
	m, err := s.ClaimTurn(context.Background(), c)
	require.NoError(t, err)
	m.MoveCount = 1
	require.NoError(t, s.CommitMove(context.Background(), m, c.Token))

	select {
	case got, ok := <-updates:
		require.True(t, ok)
		assert.Equal(t, int64(1), got.Revision)
		assert.Equal(t, 1, got.MoveCount)
	case <-time.After(5 * time.Second):
		t.Fatal("no update received")
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)
}

func testActiveAndArchive(t *testing.T, s store.Store) {
	ctx := context.Background()
	f := setup(t, s)

	active, err := s.ActiveMatches(ctx, f.b.ID)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, f.match.ID, active[0].ID)

	none, err := s.ActiveMatches(ctx, "spectator")
	require.NoError(t, err)
	assert.Empty(t, none)

	c := f.claim(f.a.ID)
	m, err := s.ClaimTurn(ctx, c)
	require.NoError(t, err)
	m.Stage = models.StageFinished
	m.Turn.PlayerID = ""
	require.NoError(t, s.CommitFinish(ctx, m, c.Token, nil, nil))

	active, err = s.ActiveMatches(ctx, f.b.ID)
	require.NoError(t, err)
	assert.Empty(t, active)

	pending, err := s.FinishedUnarchived(ctx, 10)
	require.NoError(t, err)
	assert.True(t, containsMatch(pending, f.match.ID))

	require.NoError(t, s.MarkArchived(ctx, f.match.ID, f.now))
	pending, err = s.FinishedUnarchived(ctx, 10)
	require.NoError(t, err)
	assert.False(t, containsMatch(pending, f.match.ID))
	assert.ErrorIs(t, s.MarkArchived(ctx, uuid.NewString(), f.now), store.ErrNotFound)
}

func containsMatch(ms []models.Match, id string) bool {
	for _, m := range ms {
		if m.ID == id {
			return true
		}
	}
	return false
}

func testPlayers(t *testing.T, s store.Store) {
	ctx := context.Background()
	suffix := uuid.NewString()[:8]

	p, err := s.EnsurePlayer(ctx, models.Player{ID: "p-" + suffix, DisplayName: "Carol", Rating: 1000, Title: "Novice"})
	require.NoError(t, err)
	assert.Equal(t, 1000, p.Rating)

	again, err := s.EnsurePlayer(ctx, models.Player{ID: "p-" + suffix, DisplayName: "Someone else", Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, "Carol", again.DisplayName, "existing profile is kept")
	assert.Equal(t, 1000, again.Rating)

	_, err = s.GetPlayer(ctx, "missing-"+suffix)
	assert.ErrorIs(t, err, store.ErrNotFound)

	for i, rating := range []int{1200, 900} {
		_, err := s.EnsurePlayer(ctx, models.Player{ID: fmt.Sprintf("q%d-%s", i, suffix), DisplayName: "Q", Rating: rating})
		require.NoError(t, err)
	}
	top, err := s.Leaderboard(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.GreaterOrEqual(t, top[0].Rating, top[1].Rating)
	assert.GreaterOrEqual(t, top[0].Rating, 1200)
}

func testQueue(t *testing.T, s store.Store) {
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)
	notBefore := now.Add(-5 * time.Minute)
	suffix := uuid.NewString()[:8]

	entry := func(player string, age time.Duration) models.QueueEntry {
		return models.QueueEntry{
			ID:          uuid.NewString(),
			PlayerID:    player + "-" + suffix,
			DisplayName: player,
			Rating:      1000,
			CreatedAt:   now.Add(-age),
		}
	}

	inserted, err := s.ToggleEntry(ctx, entry("alice", 3*time.Second))
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.ToggleEntry(ctx, entry("alice", time.Second))
	require.NoError(t, err)
	assert.False(t, inserted, "second toggle removes the entry")

	m, err := s.PairOldest(ctx, notBefore, func(a, b models.QueueEntry) (*models.Match, error) {
		t.Fatal("pair must not be called with fewer than two entries")
		return nil, nil
	})
	require.NoError(t, err)
	assert.Nil(t, m)

	for _, e := range []models.QueueEntry{
		entry("stale", 10*time.Minute),
		entry("bob", 3*time.Second),
		entry("carol", 2*time.Second),
		entry("dave", time.Second),
	} {
		_, err := s.ToggleEntry(ctx, e)
		require.NoError(t, err)
	}

	live, err := s.ListQueue(ctx, notBefore)
	require.NoError(t, err)
	require.Len(t, live, 3)
	assert.Equal(t, "bob", live[0].DisplayName)
	assert.Equal(t, "dave", live[2].DisplayName)

	m, err = s.PairOldest(ctx, notBefore, func(a, b models.QueueEntry) (*models.Match, error) {
		assert.Equal(t, "bob", a.DisplayName)
		assert.Equal(t, "carol", b.DisplayName)
		return &models.Match{
			ID:             uuid.NewString(),
			PlayerA:        models.MatchPlayer{ID: a.PlayerID, DisplayName: a.DisplayName, Rating: a.Rating},
			PlayerB:        models.MatchPlayer{ID: b.PlayerID, DisplayName: b.DisplayName, Rating: b.Rating},
			Turn:           models.Turn{PlayerID: a.PlayerID},
			Stage:          models.StageAwaitingFirstReveal,
			Deck:           []models.Card{{ID: "x", PairTag: 0}, {ID: "y", PairTag: 0}},
			TurnDeadline:   now.Add(time.Minute),
			TurnDurationMs: 30000,
		}, nil
	})
	require.NoError(t, err)
	require.NotNil(t, m)

	stored, err := s.GetMatch(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, "bob-"+suffix, stored.PlayerA.ID)

	live, err = s.ListQueue(ctx, notBefore)
	require.NoError(t, err)
	require.Len(t, live, 1)
	assert.Equal(t, "dave", live[0].DisplayName)

	failing := errors.New("boom")
	_, err = s.ToggleEntry(ctx, entry("erin", 0))
	require.NoError(t, err)
	_, err = s.PairOldest(ctx, notBefore, func(a, b models.QueueEntry) (*models.Match, error) {
		return nil, failing
	})
	assert.ErrorIs(t, err, failing)
	live, err = s.ListQueue(ctx, notBefore)
	require.NoError(t, err)
	assert.Len(t, live, 2, "failed pairing keeps both entries")

	n, err := s.DeleteExpired(ctx, notBefore)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, int64(1))
	live, err = s.ListQueue(ctx, time.Time{})
	require.NoError(t, err)
	for _, e := range live {
		assert.NotEqual(t, "stale", e.DisplayName)
	}
}

func testConfig(t *testing.T, s store.Store) {
	ctx := context.Background()
	def := models.DefaultGameConfig()
	def.TitleMap = models.TitleMap{1100: "Bronze"}

	got, err := s.EnsureConfig(ctx, def)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRankedCardPairs, got.RankedCardPairs)
	assert.Equal(t, "Bronze", got.TitleMap[1100])

	got.RankedCardPairs = 8
	require.NoError(t, s.SaveConfig(ctx, *got))

	again, err := s.EnsureConfig(ctx, models.DefaultGameConfig())
	require.NoError(t, err)
	assert.Equal(t, 8, again.RankedCardPairs, "ensure never overwrites")

	_, err = s.GetConfig(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
