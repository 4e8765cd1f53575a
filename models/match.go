package models

import "time"

// Stage is the two-phase turn state of a match plus its terminal state.
type Stage int

const (
	StageFinished             Stage = -1
	StageAwaitingFirstReveal  Stage = 1
	StageAwaitingSecondReveal Stage = 2
)

// Valid reports whether s is one of the known stages.
func (s Stage) Valid() bool {
	switch s {
	case StageFinished, StageAwaitingFirstReveal, StageAwaitingSecondReveal:
		return true
	}
	return false
}

func (s Stage) String() string {
	switch s {
	case StageFinished:
		return "finished"
	case StageAwaitingFirstReveal:
		return "awaiting_first_reveal"
	case StageAwaitingSecondReveal:
		return "awaiting_second_reveal"
	}
	return "unknown"
}

// Card is a single tile on the board. Exactly two cards share a PairTag.
type Card struct {
	ID       string `json:"id"`
	PairTag  int    `json:"pair_tag"`
	Revealed bool   `json:"revealed"`
	Matched  bool   `json:"matched"`
	OwnerID  string `json:"owner_id,omitempty"`
}

// MatchPlayer is the snapshot of a player taken when the match was created.
// RatingDelta is only set once the match is finished.
type MatchPlayer struct {
	ID          string `json:"id" gorm:"type:varchar(64);not null;index"`
	DisplayName string `json:"display_name" gorm:"not null"`
	Title       string `json:"title"`
	Rating      int    `json:"rating"`
	RatingDelta *int   `json:"rating_delta,omitempty"`
}

// Turn records whose move it is and doubles as the cross-process move lock.
// While LockToken is set a move is in flight; the token is never a player id.
type Turn struct {
	PlayerID    string     `json:"player_id" gorm:"type:varchar(64);not null;default:'';index"`
	LockToken   string     `json:"-" gorm:"type:varchar(64);not null;default:''"`
	LockedUntil *time.Time `json:"-"`
}

// Locked reports whether a move is currently in flight.
func (t Turn) Locked() bool {
	return t.LockToken != ""
}

// Holder returns the player entitled to submit the next move. It returns
// false while the turn is locked or once the match has been finished.
func (t Turn) Holder() (string, bool) {
	if t.Locked() || t.PlayerID == "" {
		return "", false
	}
	return t.PlayerID, true
}

// Match is the persisted game record. It is created once at pairing and
// mutated only through the move and takeover paths; it is never deleted.
type Match struct {
	ID             string      `gorm:"primaryKey;type:uuid" json:"id"`
	PlayerA        MatchPlayer `gorm:"embedded;embeddedPrefix:player_a_" json:"player_a"`
	PlayerB        MatchPlayer `gorm:"embedded;embeddedPrefix:player_b_" json:"player_b"`
	Turn           Turn        `gorm:"embedded;embeddedPrefix:turn_" json:"turn"`
	Stage          Stage       `gorm:"not null;index" json:"stage"`
	MoveCount      int         `gorm:"not null;default:0" json:"move_count"`
	Deck           []Card      `gorm:"serializer:json;type:jsonb;not null" json:"deck"`
	TurnDeadline   time.Time   `gorm:"not null" json:"turn_deadline"`
	TurnDurationMs int64       `gorm:"not null" json:"turn_duration_ms"`
	WinnerName     *string     `json:"winner_name,omitempty"`
	IsDraw         bool        `gorm:"not null;default:false" json:"is_draw"`

	// Revision increases on every committed change and drives change watchers.
	Revision   int64      `gorm:"not null;default:0" json:"revision"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	ArchivedAt *time.Time `gorm:"index" json:"archived_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TurnDuration returns the per-move time budget.
func (m *Match) TurnDuration() time.Duration {
	return time.Duration(m.TurnDurationMs) * time.Millisecond
}

// IsParticipant reports whether playerID occupies one of the two player slots.
func (m *Match) IsParticipant(playerID string) bool {
	return playerID != "" && (m.PlayerA.ID == playerID || m.PlayerB.ID == playerID)
}

// Player returns the slot occupied by playerID, or nil for spectators.
func (m *Match) Player(playerID string) *MatchPlayer {
	switch {
	case playerID == "":
		return nil
	case m.PlayerA.ID == playerID:
		return &m.PlayerA
	case m.PlayerB.ID == playerID:
		return &m.PlayerB
	}
	return nil
}

// Opponent returns the id of the other participant.
func (m *Match) Opponent(playerID string) (string, bool) {
	switch {
	case !m.IsParticipant(playerID):
		return "", false
	case m.PlayerA.ID == playerID:
		return m.PlayerB.ID, true
	default:
		return m.PlayerA.ID, true
	}
}

// CardIndex returns the deck position of cardID, or -1.
func (m *Match) CardIndex(cardID string) int {
	for i := range m.Deck {
		if m.Deck[i].ID == cardID {
			return i
		}
	}
	return -1
}

// Clone returns a deep copy that shares no mutable state with m.
func (m *Match) Clone() *Match {
	if m == nil {
		return nil
	}
	out := *m
	out.PlayerA = m.PlayerA.clone()
	out.PlayerB = m.PlayerB.clone()
	out.Turn.LockedUntil = cloneTime(m.Turn.LockedUntil)
	out.Deck = append([]Card(nil), m.Deck...)
	if m.WinnerName != nil {
		name := *m.WinnerName
		out.WinnerName = &name
	}
	out.FinishedAt = cloneTime(m.FinishedAt)
	out.ArchivedAt = cloneTime(m.ArchivedAt)
	return &out
}

func (p MatchPlayer) clone() MatchPlayer {
	if p.RatingDelta != nil {
		d := *p.RatingDelta
		p.RatingDelta = &d
	}
	return p
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// RatingChange is one player's settled rating adjustment.
type RatingChange struct {
	PlayerID string
	Delta    int
}
