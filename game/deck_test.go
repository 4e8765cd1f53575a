package game

import (
	"errors"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-match/models"
)

func TestGenerateDeck(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for pairs := 1; pairs <= 40; pairs++ {
		deck, err := GenerateDeck(pairs, rng)
		require.NoError(t, err)
		require.Len(t, deck, pairs*2)

		counts := map[int]int{}
		for _, c := range deck {
			counts[c.PairTag]++
			assert.False(t, c.Revealed)
			assert.False(t, c.Matched)
			assert.Empty(t, c.OwnerID)
			assert.NotEmpty(t, c.ID)
		}
		assert.Len(t, counts, pairs)
		for tag, n := range counts {
			assert.Equal(t, 2, n, "pair tag %d", tag)
		}
	}
}

func TestGenerateDeckRejectsBadPairCount(t *testing.T) {
	for _, pairs := range []int{0, -1} {
		_, err := GenerateDeck(pairs, nil)
		assert.ErrorIs(t, err, ErrInvalidPairCount)
		kind, ok := KindOf(err)
		assert.True(t, ok)
		assert.Equal(t, KindValidation, kind)
	}
}

func TestShuffleDeckPreservesCards(t *testing.T) {
	deck, err := GenerateDeck(12, rand.New(rand.NewSource(3)))
	require.NoError(t, err)

	before := append([]models.Card(nil), deck...)
	ShuffleDeck(deck, rand.New(rand.NewSource(99)))

	byTag := func(cards []models.Card) []models.Card {
		out := append([]models.Card(nil), cards...)
		sort.Slice(out, func(i, j int) bool {
			if out[i].PairTag != out[j].PairTag {
				return out[i].PairTag < out[j].PairTag
			}
			return out[i].ID < out[j].ID
		})
		return out
	}
	assert.Equal(t, byTag(before), byTag(deck))
}

func TestGenerateDeckSeeded(t *testing.T) {
	tags := func(seed int64) []int {
		deck, err := GenerateDeck(10, rand.New(rand.NewSource(seed)))
		require.NoError(t, err)
		out := make([]int, len(deck))
		for i, c := range deck {
			out[i] = c.PairTag
		}
		return out
	}
	assert.Equal(t, tags(42), tags(42))
}

func TestValidateDeck(t *testing.T) {
	tests := []struct {
		name string
		deck []models.Card
	}{
		{"empty", nil},
		{"odd", []models.Card{{ID: "a", PairTag: 0}}},
		{"triple", []models.Card{{ID: "a", PairTag: 0}, {ID: "b", PairTag: 0}, {ID: "c", PairTag: 0}, {ID: "d", PairTag: 1}}},
		{"out of range", []models.Card{{ID: "a", PairTag: 0}, {ID: "b", PairTag: 5}}},
		{"duplicate id", []models.Card{{ID: "a", PairTag: 0}, {ID: "a", PairTag: 0}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateDeck(tt.deck)
			assert.True(t, errors.Is(err, ErrCorruptDeck), "got %v", err)
		})
	}

	assert.NoError(t, ValidateDeck([]models.Card{{ID: "a", PairTag: 0}, {ID: "b", PairTag: 0}}))
}
