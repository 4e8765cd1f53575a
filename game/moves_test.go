package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-match/models"
)

func TestNewMatch(t *testing.T) {
	now := testNow
	m := newTestMatch(t, 3, &now)

	assert.NotEmpty(t, m.ID)
	assert.Equal(t, "alice", m.Turn.PlayerID)
	assert.False(t, m.Turn.Locked())
	assert.Equal(t, models.StageAwaitingFirstReveal, m.Stage)
	assert.Len(t, m.Deck, 6)
	assert.Equal(t, now.Add(40*time.Second), m.TurnDeadline)
	assert.Equal(t, int64(20000), m.TurnDurationMs)

}

func TestNewMatchRejectsBadInput(t *testing.T) {
	a, b := testPlayers()
	anonymous := b
	anonymous.ID = ""

	tests := []struct {
		name     string
		a, b     models.MatchPlayer
		pairs    int
		duration time.Duration
		want     *Error
	}{
		{"same player", a, a, 3, time.Second, ErrInvalidPlayers},
		{"missing id", a, anonymous, 3, time.Second, ErrInvalidPlayers},
		{"zero duration", a, b, 3, 0, ErrInvalidTurnDuration},
		{"no pairs", a, b, 0, time.Second, ErrInvalidPairCount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewMatch(tt.a, tt.b, tt.pairs, tt.duration, nil, nil)
			require.ErrorIs(t, err, tt.want)
			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, KindValidation, kind)
		})
	}
}

func TestApplyMoveFullGame(t *testing.T) {
	now := testNow
	m := newTestMatch(t, 2, &now)
	e := NewEngine(fixedClock(&now), 0)
	tags := cardsByTag(m)

	// Alice opens a card.
	res, err := e.ApplyMove(m, "alice", "bob", tags[0][0])
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, models.StageAwaitingSecondReveal, m.Stage)
	assert.Equal(t, "alice", m.Turn.PlayerID)
	assert.Equal(t, 1, m.MoveCount)

	// Alice misses; the turn passes to Bob and both cards stay face up.
	now = now.Add(5 * time.Second)
	res, err = e.ApplyMove(m, "alice", "bob", tags[1][0])
	require.NoError(t, err)
	assert.False(t, res.Matched)
	assert.Equal(t, models.StageAwaitingFirstReveal, m.Stage)
	assert.Equal(t, "bob", m.Turn.PlayerID)
	assert.Equal(t, now.Add(20*time.Second), m.TurnDeadline)
	assert.True(t, m.Deck[m.CardIndex(tags[0][0])].Revealed)
	assert.True(t, m.Deck[m.CardIndex(tags[1][0])].Revealed)

	_, err = e.ApplyMove(m, "bob", "alice", tags[0][0])
	assert.ErrorIs(t, err, ErrCardAlreadyRevealed)

	// Bob's first reveal covers Alice's cards.
	_, err = e.ApplyMove(m, "bob", "alice", tags[0][1])
	require.NoError(t, err)
	assert.False(t, m.Deck[m.CardIndex(tags[0][0])].Revealed)
	assert.False(t, m.Deck[m.CardIndex(tags[1][0])].Revealed)

	// Bob matches and keeps the turn.
	res, err = e.ApplyMove(m, "bob", "alice", tags[0][0])
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.False(t, res.Finished)
	assert.Equal(t, "bob", m.Turn.PlayerID)
	for _, id := range tags[0] {
		c := m.Deck[m.CardIndex(id)]
		assert.True(t, c.Matched)
		assert.Equal(t, "bob", c.OwnerID)
	}

	_, err = e.ApplyMove(m, "bob", "alice", tags[0][0])
	assert.ErrorIs(t, err, ErrCardAlreadyMatched)

	// Bob takes the last pair and finishes the match.
	_, err = e.ApplyMove(m, "bob", "alice", tags[1][1])
	require.NoError(t, err)
	assert.True(t, m.Deck[m.CardIndex(tags[0][0])].Matched, "matched cards are never reset")

	res, err = e.ApplyMove(m, "bob", "alice", tags[1][0])
	require.NoError(t, err)
	assert.True(t, res.Matched)
	assert.True(t, res.Finished)
	require.NotNil(t, res.Settlement)
	assert.Equal(t, "bob", res.Settlement.WinnerID)
	assert.Equal(t, 25, res.Settlement.WinnerDelta)
	assert.Equal(t, -25, res.Settlement.LoserDelta)

	assert.Equal(t, models.StageFinished, m.Stage)
	assert.Empty(t, m.Turn.PlayerID)
	assert.Equal(t, 6, m.MoveCount)
	require.NotNil(t, m.WinnerName)
	assert.Equal(t, "Bob", *m.WinnerName)
	assert.False(t, m.IsDraw)
	require.NotNil(t, m.FinishedAt)
	assert.Equal(t, now, *m.FinishedAt)
}

func TestApplyMoveRejections(t *testing.T) {
	now := testNow
	e := NewEngine(fixedClock(&now), DefaultK)

	t.Run("unknown card", func(t *testing.T) {
		m := newTestMatch(t, 2, &now)
		_, err := e.ApplyMove(m, "alice", "bob", "nope")
		assert.ErrorIs(t, err, ErrCardNotFound)
		assert.Equal(t, 0, m.MoveCount)
	})

	t.Run("finished", func(t *testing.T) {
		m := newTestMatch(t, 2, &now)
		m.Stage = models.StageFinished
		_, err := e.ApplyMove(m, "alice", "bob", m.Deck[0].ID)
		assert.ErrorIs(t, err, ErrMatchFinished)
		kind, _ := KindOf(err)
		assert.Equal(t, KindTurn, kind)
	})

	t.Run("impossible stage", func(t *testing.T) {
		m := newTestMatch(t, 2, &now)
		m.Stage = models.Stage(7)
		before := m.Clone()
		_, err := e.ApplyMove(m, "alice", "bob", m.Deck[0].ID)
		assert.ErrorIs(t, err, ErrInvalidStage)
		kind, _ := KindOf(err)
		assert.Equal(t, KindConsistency, kind)
		assert.Equal(t, before, m)
	})
}

func TestApplyMoveCapturesEveryMatchingCard(t *testing.T) {
	now := testNow
	e := NewEngine(fixedClock(&now), DefaultK)
	m := newTestMatch(t, 2, &now)
	// A malformed deck with three cards of tag 0 face up must not crash.
	m.Deck = []models.Card{
		{ID: "x1", PairTag: 0, Revealed: true},
		{ID: "x2", PairTag: 0, Revealed: true},
		{ID: "x3", PairTag: 0},
		{ID: "y1", PairTag: 1},
	}
	m.Stage = models.StageAwaitingSecondReveal

	res, err := e.ApplyMove(m, "alice", "bob", "x3")
	require.NoError(t, err)
	assert.True(t, res.Matched)
	for _, id := range []string{"x1", "x2", "x3"} {
		assert.True(t, m.Deck[m.CardIndex(id)].Matched, id)
	}
	assert.False(t, m.Deck[m.CardIndex("y1")].Matched)
	assert.Equal(t, "alice", m.Turn.PlayerID)
}
