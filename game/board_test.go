package game

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProjectBoardMasksHiddenCards(t *testing.T) {
	now := testNow
	m := newTestMatch(t, 3, &now)
	m.Deck[0].Revealed = true
	m.Deck[1].Matched = true
	m.Deck[1].OwnerID = "alice"
	m.Turn.LockToken = "secret"

	b := ProjectBoard(m)
	require.Len(t, b.Cards, 6)
	require.NotNil(t, b.Cards[0].PairTag)
	assert.Equal(t, m.Deck[0].PairTag, *b.Cards[0].PairTag)
	require.NotNil(t, b.Cards[1].PairTag)
	for _, c := range b.Cards[2:] {
		assert.Nil(t, c.PairTag)
	}

	raw, err := json.Marshal(b)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret")
}

func TestDiffBoardsRoundTrip(t *testing.T) {
	now := testNow
	m := newTestMatch(t, 2, &now)
	e := NewEngine(fixedClock(&now), DefaultK)
	tags := cardsByTag(m)

	prev := ProjectBoard(m)
	assert.True(t, DiffBoards(prev, prev).Empty())

	now = now.Add(time.Second)
	_, err := e.ApplyMove(m, "alice", "bob", tags[0][0])
	require.NoError(t, err)
	m.Revision++
	next := ProjectBoard(m)

	patch := DiffBoards(prev, next)
	assert.False(t, patch.Empty())
	assert.Equal(t, prev.Revision, patch.FromRevision)
	assert.Equal(t, next.Revision, patch.Revision)
	require.Len(t, patch.Cards, 1)
	assert.Equal(t, m.CardIndex(tags[0][0]), patch.Cards[0].Index)
	assert.Nil(t, patch.ActivePlayer, "turn did not change")
	assert.Equal(t, next, patch.Apply(prev))
}
