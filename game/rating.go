package game

import (
	"math"

	"memory-match/models"
)

// DefaultK is the rating factor applied when none is configured.
const DefaultK = 50

// Settlement is the rating outcome of a finished match. On a draw WinnerID
// and LoserID are still assigned so the formula has two sides to work with.
type Settlement struct {
	WinnerID    string
	LoserID     string
	WinnerDelta int
	LoserDelta  int
	Draw        bool
}

// Changes returns the per-player increments to apply to the player store.
func (s Settlement) Changes() []models.RatingChange {
	return []models.RatingChange{
		{PlayerID: s.WinnerID, Delta: s.WinnerDelta},
		{PlayerID: s.LoserID, Delta: s.LoserDelta},
	}
}

// ExpectedScore is the Elo expectation for a player rated r against opp.
func ExpectedScore(r, opp int) float64 {
	return 1 / (1 + math.Pow(10, float64(opp-r)/400))
}

// Settle scores a finished match from card ownership and records the result
// on m: winner name, draw flag and each player's rating delta. Expected
// scores use the ratings snapshotted on the match at pairing time. If a player
// finished another match since then, the stored rating has moved but the
// expectation does not see it; the delta is still added to the stored total.
func Settle(m *models.Match, k int) Settlement {
	if k <= 0 {
		k = DefaultK
	}
	var ownedA, ownedB int
	for _, c := range m.Deck {
		switch c.OwnerID {
		case "":
		case m.PlayerA.ID:
			ownedA++
		case m.PlayerB.ID:
			ownedB++
		}
	}

	winner, loser := &m.PlayerA, &m.PlayerB
	if ownedB > ownedA {
		winner, loser = loser, winner
	}
	draw := ownedA == ownedB

	actualW, actualL := 1.0, 0.0
	if draw {
		actualW, actualL = 0.5, 0.5
	}
	expectedW := ExpectedScore(winner.Rating, loser.Rating)
	expectedL := 1 - expectedW

	s := Settlement{
		WinnerID:    winner.ID,
		LoserID:     loser.ID,
		WinnerDelta: int(math.Round(float64(k) * (actualW - expectedW))),
		LoserDelta:  int(math.Round(float64(k) * (actualL - expectedL))),
		Draw:        draw,
	}

	wd, ld := s.WinnerDelta, s.LoserDelta
	winner.RatingDelta = &wd
	loser.RatingDelta = &ld
	m.IsDraw = draw
	if draw {
		m.WinnerName = nil
	} else {
		name := winner.DisplayName
		m.WinnerName = &name
	}
	return s
}

// TitleFor picks the label of the highest threshold strictly below rating.
// It returns fallback when no threshold qualifies.
func TitleFor(table models.TitleMap, rating int, fallback string) string {
	title := fallback
	for _, threshold := range table.Thresholds() {
		if threshold >= rating {
			break
		}
		title = table[threshold]
	}
	return title
}
