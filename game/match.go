package game

import (
	"math/rand"
	"time"

	"github.com/google/uuid"

	"memory-match/models"
)

// NewMatch builds a fresh match between a and b. Player a opens the match and
// gets double time for the first turn. Persisting it is the caller's job.
func NewMatch(a, b models.MatchPlayer, pairs int, turnDuration time.Duration, clock Clock, rng *rand.Rand) (*models.Match, error) {
	if a.ID == "" || b.ID == "" {
		return nil, Errorf(ErrInvalidPlayers, "player id missing")
	}
	if a.ID == b.ID {
		return nil, Errorf(ErrInvalidPlayers, "player %s cannot play against themselves", a.ID)
	}
	if turnDuration <= 0 {
		return nil, Errorf(ErrInvalidTurnDuration, "got %s", turnDuration)
	}
	deck, err := GenerateDeck(pairs, rng)
	if err != nil {
		return nil, err
	}

	a.RatingDelta, b.RatingDelta = nil, nil
	now := clock.Now()
	return &models.Match{
		ID:             uuid.NewString(),
		PlayerA:        a,
		PlayerB:        b,
		Turn:           models.Turn{PlayerID: a.ID},
		Stage:          models.StageAwaitingFirstReveal,
		Deck:           deck,
		TurnDeadline:   clock.DeadlineOnCreate(turnDuration),
		TurnDurationMs: turnDuration.Milliseconds(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}
