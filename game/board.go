package game

import (
	"time"

	"memory-match/models"
)

// BoardCard is a card as clients see it. PairTag is nil while the card is
// face down and unmatched.
type BoardCard struct {
	ID       string `json:"id"`
	PairTag  *int   `json:"pair_tag"`
	Revealed bool   `json:"revealed"`
	Matched  bool   `json:"matched"`
	OwnerID  string `json:"owner_id,omitempty"`
}

// BoardPlayer is the public view of a match participant.
type BoardPlayer struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Title       string `json:"title"`
	Rating      int    `json:"rating"`
	RatingDelta *int   `json:"rating_delta,omitempty"`
}

// Board is the client-safe projection of a match.
type Board struct {
	ID           string      `json:"id"`
	Revision     int64       `json:"revision"`
	PlayerA      BoardPlayer `json:"player_a"`
	PlayerB      BoardPlayer `json:"player_b"`
	ActivePlayer string      `json:"active_player"`
	Stage        int         `json:"stage"`
	MoveCount    int         `json:"move_count"`
	TurnDeadline time.Time   `json:"next_move"`
	MoveTimeMs   int64       `json:"move_time_ms"`
	WinnerName   *string     `json:"winner_name,omitempty"`
	IsDraw       bool        `json:"is_draw"`
	Cards        []BoardCard `json:"cards"`
}

// ProjectBoard masks every hidden card's pair tag and drops lock internals.
func ProjectBoard(m *models.Match) Board {
	b := Board{
		ID:           m.ID,
		Revision:     m.Revision,
		PlayerA:      boardPlayer(m.PlayerA),
		PlayerB:      boardPlayer(m.PlayerB),
		ActivePlayer: m.Turn.PlayerID,
		Stage:        int(m.Stage),
		MoveCount:    m.MoveCount,
		TurnDeadline: m.TurnDeadline,
		MoveTimeMs:   m.TurnDurationMs,
		IsDraw:       m.IsDraw,
		Cards:        make([]BoardCard, len(m.Deck)),
	}
	if m.WinnerName != nil {
		name := *m.WinnerName
		b.WinnerName = &name
	}
	for i, c := range m.Deck {
		b.Cards[i] = projectCard(c)
	}
	return b
}

func projectCard(c models.Card) BoardCard {
	bc := BoardCard{ID: c.ID, Revealed: c.Revealed, Matched: c.Matched, OwnerID: c.OwnerID}
	if c.Revealed || c.Matched {
		tag := c.PairTag
		bc.PairTag = &tag
	}
	return bc
}

func boardPlayer(p models.MatchPlayer) BoardPlayer {
	bp := BoardPlayer{ID: p.ID, DisplayName: p.DisplayName, Title: p.Title, Rating: p.Rating}
	if p.RatingDelta != nil {
		d := *p.RatingDelta
		bp.RatingDelta = &d
	}
	return bp
}

// CardPatch replaces the card at Index.
type CardPatch struct {
	Index int       `json:"index"`
	Card  BoardCard `json:"card"`
}

// BoardPatch carries only the fields that changed between two revisions.
// Nil fields are unchanged.
type BoardPatch struct {
	MatchID      string       `json:"match_id"`
	FromRevision int64        `json:"from_revision"`
	Revision     int64        `json:"revision"`
	PlayerA      *BoardPlayer `json:"player_a,omitempty"`
	PlayerB      *BoardPlayer `json:"player_b,omitempty"`
	ActivePlayer *string      `json:"active_player,omitempty"`
	Stage        *int         `json:"stage,omitempty"`
	MoveCount    *int         `json:"move_count,omitempty"`
	TurnDeadline *time.Time   `json:"next_move,omitempty"`
	WinnerName   *string      `json:"winner_name,omitempty"`
	IsDraw       *bool        `json:"is_draw,omitempty"`
	Cards        []CardPatch  `json:"cards,omitempty"`
}

// DiffBoards returns the patch that turns prev into next. Both boards must
// describe the same match and deck.
func DiffBoards(prev, next Board) BoardPatch {
	p := BoardPatch{MatchID: next.ID, FromRevision: prev.Revision, Revision: next.Revision}
	if !samePlayer(prev.PlayerA, next.PlayerA) {
		v := next.PlayerA
		p.PlayerA = &v
	}
	if !samePlayer(prev.PlayerB, next.PlayerB) {
		v := next.PlayerB
		p.PlayerB = &v
	}
	if prev.ActivePlayer != next.ActivePlayer {
		v := next.ActivePlayer
		p.ActivePlayer = &v
	}
	if prev.Stage != next.Stage {
		v := next.Stage
		p.Stage = &v
	}
	if prev.MoveCount != next.MoveCount {
		v := next.MoveCount
		p.MoveCount = &v
	}
	if !prev.TurnDeadline.Equal(next.TurnDeadline) {
		v := next.TurnDeadline
		p.TurnDeadline = &v
	}
	if !sameString(prev.WinnerName, next.WinnerName) && next.WinnerName != nil {
		v := *next.WinnerName
		p.WinnerName = &v
	}
	if prev.IsDraw != next.IsDraw {
		v := next.IsDraw
		p.IsDraw = &v
	}
	for i, c := range next.Cards {
		if i < len(prev.Cards) && sameCard(prev.Cards[i], c) {
			continue
		}
		p.Cards = append(p.Cards, CardPatch{Index: i, Card: c})
	}
	return p
}

// Empty reports whether the patch changes nothing.
func (p BoardPatch) Empty() bool {
	return p.PlayerA == nil && p.PlayerB == nil && p.ActivePlayer == nil &&
		p.Stage == nil && p.MoveCount == nil && p.TurnDeadline == nil &&
		p.WinnerName == nil && p.IsDraw == nil && len(p.Cards) == 0
}

// Apply returns b with the patch applied. Patches for out-of-range cards are
// ignored.
func (p BoardPatch) Apply(b Board) Board {
	out := b
	out.Cards = append([]BoardCard(nil), b.Cards...)
	out.Revision = p.Revision
	if p.PlayerA != nil {
		out.PlayerA = *p.PlayerA
	}
	if p.PlayerB != nil {
		out.PlayerB = *p.PlayerB
	}
	if p.ActivePlayer != nil {
		out.ActivePlayer = *p.ActivePlayer
	}
	if p.Stage != nil {
		out.Stage = *p.Stage
	}
	if p.MoveCount != nil {
		out.MoveCount = *p.MoveCount
	}
	if p.TurnDeadline != nil {
		out.TurnDeadline = *p.TurnDeadline
	}
	if p.WinnerName != nil {
		name := *p.WinnerName
		out.WinnerName = &name
	}
	if p.IsDraw != nil {
		out.IsDraw = *p.IsDraw
	}
	for _, cp := range p.Cards {
		if cp.Index < 0 || cp.Index >= len(out.Cards) {
			continue
		}
		out.Cards[cp.Index] = cp.Card
	}
	return out
}

func samePlayer(a, b BoardPlayer) bool {
	return a.ID == b.ID && a.DisplayName == b.DisplayName && a.Title == b.Title &&
		a.Rating == b.Rating && sameInt(a.RatingDelta, b.RatingDelta)
}

func sameCard(a, b BoardCard) bool {
	return a.ID == b.ID && a.Revealed == b.Revealed && a.Matched == b.Matched &&
		a.OwnerID == b.OwnerID && sameInt(a.PairTag, b.PairTag)
}

func sameInt(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func sameString(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
