package game

import (
	"math/rand"

	"github.com/google/uuid"

	"memory-match/models"
)

// GenerateDeck returns 2*pairs hidden cards, two for every pair tag in
// [0, pairs), in uniformly shuffled order. A nil rng uses the global source.
func GenerateDeck(pairs int, rng *rand.Rand) ([]models.Card, error) {
	if pairs < 1 {
		return nil, Errorf(ErrInvalidPairCount, "got %d", pairs)
	}

	deck := make([]models.Card, 0, pairs*2)
	for tag := 0; tag < pairs; tag++ {
		for i := 0; i < 2; i++ {
			deck = append(deck, models.Card{ID: uuid.NewString(), PairTag: tag})
		}
	}
	ShuffleDeck(deck, rng)

	if err := ValidateDeck(deck); err != nil {
		return nil, err
	}
	return deck, nil
}

// ShuffleDeck permutes deck in place with a Fisher-Yates shuffle.
func ShuffleDeck(deck []models.Card, rng *rand.Rand) {
	swap := func(i, j int) { deck[i], deck[j] = deck[j], deck[i] }
	if rng == nil {
		rand.Shuffle(len(deck), swap)
		return
	}
	rng.Shuffle(len(deck), swap)
}

// ValidateDeck checks that every pair tag in [0, len/2) appears exactly twice
// and that card ids are unique.
func ValidateDeck(deck []models.Card) error {
	if len(deck) == 0 || len(deck)%2 != 0 {
		return Errorf(ErrCorruptDeck, "deck has %d cards", len(deck))
	}
	pairs := len(deck) / 2
	counts := make([]int, pairs)
	ids := make(map[string]struct{}, len(deck))
	for _, c := range deck {
		if c.PairTag < 0 || c.PairTag >= pairs {
			return Errorf(ErrCorruptDeck, "pair tag %d out of range", c.PairTag)
		}
		counts[c.PairTag]++
		if _, dup := ids[c.ID]; dup {
			return Errorf(ErrCorruptDeck, "duplicate card id %s", c.ID)
		}
		ids[c.ID] = struct{}{}
	}
	for tag, n := range counts {
		if n != 2 {
			return Errorf(ErrCorruptDeck, "pair tag %d appears %d times", tag, n)
		}
	}
	return nil
}
