package game

import (
	"memory-match/models"
)

// Engine applies moves to a match held under the turn lock.
type Engine struct {
	Clock Clock
	// K scales rating deltas when a match finishes.
	K int
}

// NewEngine returns an Engine with the given clock and rating factor. A
// non-positive k falls back to DefaultK.
func NewEngine(clock Clock, k int) *Engine {
	if k <= 0 {
		k = DefaultK
	}
	return &Engine{Clock: clock, K: k}
}

// MoveResult describes what a successful move did.
type MoveResult struct {
	// Matched is set when a second reveal completed at least one pair.
	Matched bool
	// Finished is set when the move matched the last pair.
	Finished bool
	// Settlement is populated only for finishing moves.
	Settlement *Settlement
}

// ApplyMove reveals cardID for actingID and advances the match. On error the
// match is left untouched. The caller holds the turn lock and persists m.
func (e *Engine) ApplyMove(m *models.Match, actingID, enemyID, cardID string) (MoveResult, error) {
	idx := m.CardIndex(cardID)
	if idx < 0 {
		return MoveResult{}, Errorf(ErrCardNotFound, "%s", cardID)
	}
	target := &m.Deck[idx]
	if target.Matched {
		return MoveResult{}, ErrCardAlreadyMatched
	}
	if target.Revealed {
		return MoveResult{}, ErrCardAlreadyRevealed
	}
	if m.Stage == models.StageFinished {
		return MoveResult{}, ErrMatchFinished
	}

	var res MoveResult
	switch m.Stage {
	case models.StageAwaitingFirstReveal:
		// Cover whatever the previous attempt left face up.
		for i := range m.Deck {
			if m.Deck[i].Revealed && !m.Deck[i].Matched {
				m.Deck[i].Revealed = false
			}
		}
		m.Stage = models.StageAwaitingSecondReveal

	case models.StageAwaitingSecondReveal:
		for i := range m.Deck {
			c := &m.Deck[i]
			if i == idx || !c.Revealed || c.Matched || c.PairTag != target.PairTag {
				continue
			}
			for _, card := range []*models.Card{c, target} {
				card.Matched = true
				card.Revealed = false
				card.OwnerID = actingID
			}
			res.Matched = true
		}

		if allMatched(m.Deck) {
			res.Finished = true
		} else {
			m.Stage = models.StageAwaitingFirstReveal
			if res.Matched {
				m.Turn.PlayerID = actingID
			} else {
				m.Turn.PlayerID = enemyID
			}
		}

	default:
		return MoveResult{}, Errorf(ErrInvalidStage, "stage %d", int(m.Stage))
	}

	now := e.Clock.Now()
	m.MoveCount++
	target.Revealed = true
	m.TurnDeadline = now.Add(m.TurnDuration())

	if res.Finished {
		m.Stage = models.StageFinished
		m.Turn = models.Turn{}
		m.FinishedAt = &now
		s := Settle(m, e.K)
		res.Settlement = &s
	}
	return res, nil
}

func allMatched(deck []models.Card) bool {
	for _, c := range deck {
		if !c.Matched {
			return false
		}
	}
	return true
}
