package game

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memory-match/models"
)

var testNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedClock(t *time.Time) Clock {
	return func() time.Time { return *t }
}

func testPlayers() (models.MatchPlayer, models.MatchPlayer) {
	return models.MatchPlayer{ID: "alice", DisplayName: "Alice", Title: "Novice", Rating: 1000},
		models.MatchPlayer{ID: "bob", DisplayName: "Bob", Title: "Novice", Rating: 1000}
}

// newTestMatch builds a match whose cards can be looked up by pair tag.
func newTestMatch(t *testing.T, pairs int, now *time.Time) *models.Match {
	t.Helper()
	a, b := testPlayers()
	m, err := NewMatch(a, b, pairs, 20*time.Second, fixedClock(now), rand.New(rand.NewSource(7)))
	require.NoError(t, err)
	return m
}

// cardsByTag returns the two card ids for every pair tag.
func cardsByTag(m *models.Match) map[int][]string {
	out := make(map[int][]string)
	for _, c := range m.Deck {
		out[c.PairTag] = append(out[c.PairTag], c.ID)
	}
	return out
}
