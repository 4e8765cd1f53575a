package game

import (
	"time"

	"memory-match/models"
)

// Clock supplies the current time. The zero value uses time.Now.
type Clock func() time.Time

// Now returns the current time.
func (c Clock) Now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// DeadlineOnCreate gives the first turn double time to absorb pairing latency.
func (c Clock) DeadlineOnCreate(d time.Duration) time.Time {
	return c.Now().Add(2 * d)
}

// DeadlineOnMove returns the deadline for the move after the current one.
func (c Clock) DeadlineOnMove(d time.Duration) time.Time {
	return c.Now().Add(d)
}

// CanTakeOver reports whether requester may seize the turn: the requester is
// a participant other than the active player, the match is still running and
// the active player's deadline has passed.
func (c Clock) CanTakeOver(m *models.Match, requester string) bool {
	if !m.IsParticipant(requester) || m.Stage == models.StageFinished {
		return false
	}
	if requester == m.Turn.PlayerID {
		return false
	}
	return c.Now().After(m.TurnDeadline)
}

// TakeOver hands the turn to requester and restarts the turn from its first
// reveal. The match continues normally afterwards.
func (c Clock) TakeOver(m *models.Match, requester string) {
	m.Turn = models.Turn{PlayerID: requester}
	m.Stage = models.StageAwaitingFirstReveal
	m.TurnDeadline = c.DeadlineOnMove(m.TurnDuration())
}
