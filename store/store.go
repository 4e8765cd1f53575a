// Package store defines the persistence contract for matches, players, the
// matchmaking queue and the game configuration singleton.
package store

import (
	"context"
	"errors"
	"time"

	"memory-match/models"
)

var (
	// ErrNotFound is returned when the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrNotClaimed is returned when a conditional turn claim matched nothing.
	ErrNotClaimed = errors.New("turn not claimed")
	// ErrLockLost is returned when a commit or release no longer holds the token.
	ErrLockLost = errors.New("turn lock lost")
)

// Claim describes a conditional turn claim. The claim succeeds only when
// PlayerID is the active player of an unfinished match and no unexpired lock
// is held.
type Claim struct {
	MatchID  string
	PlayerID string
	Token    string
	Now      time.Time
	Until    time.Time
}

// TitleFunc derives a player's title from a rating.
type TitleFunc func(rating int) string

// PairFunc builds a match from the two oldest queue entries.
type PairFunc func(first, second models.QueueEntry) (*models.Match, error)

// MatchStore persists matches and implements the turn lock.
type MatchStore interface {
	CreateMatch(ctx context.Context, m *models.Match) error
	GetMatch(ctx context.Context, id string) (*models.Match, error)
	ActiveMatches(ctx context.Context, playerID string) ([]models.Match, error)

	// ClaimTurn locks the turn and returns the match as it was when claimed.
	ClaimTurn(ctx context.Context, c Claim) (*models.Match, error)
	// ReleaseTurn clears the lock without touching anything else.
	ReleaseTurn(ctx context.Context, matchID, token string) error
	// CommitMove writes the mutated match, clears the lock and bumps the
	// revision. m.Revision is updated in place.
	CommitMove(ctx context.Context, m *models.Match, token string) error
	// CommitFinish writes the finished match and applies every rating change
	// in one transaction. Titles are recomputed from the resulting ratings.
	CommitFinish(ctx context.Context, m *models.Match, token string, changes []models.RatingChange, title TitleFunc) error
	// TakeOver hands the turn of an unfinished match whose deadline passed
	// before now to requester. It returns ErrNotClaimed when the condition
	// does not hold.
	TakeOver(ctx context.Context, matchID, requester string, now, deadline time.Time) (*models.Match, error)

	// Watch emits the match every time a new revision is committed. The
	// channel is closed when ctx is done.
	Watch(ctx context.Context, matchID string) (<-chan *models.Match, error)

	FinishedUnarchived(ctx context.Context, limit int) ([]models.Match, error)
	MarkArchived(ctx context.Context, matchID string, at time.Time) error
}

// PlayerStore persists player profiles.
type PlayerStore interface {
	// EnsurePlayer inserts p if no player with its id exists and returns the
	// stored record.
	EnsurePlayer(ctx context.Context, p models.Player) (*models.Player, error)
	GetPlayer(ctx context.Context, id string) (*models.Player, error)
	Leaderboard(ctx context.Context, limit int) ([]models.Player, error)
}

// QueueStore persists the matchmaking queue.
type QueueStore interface {
	// ToggleEntry removes the player's entry if present, otherwise inserts
	// e. It reports whether the entry was inserted.
	ToggleEntry(ctx context.Context, e models.QueueEntry) (bool, error)
	// ListQueue returns entries created after notBefore, oldest first.
	ListQueue(ctx context.Context, notBefore time.Time) ([]models.QueueEntry, error)
	// PairOldest removes the two oldest live entries and stores the match
	// built from them in one transaction. It returns nil when fewer than two
	// live entries exist.
	PairOldest(ctx context.Context, notBefore time.Time, pair PairFunc) (*models.Match, error)
	// DeleteExpired removes entries created before notBefore.
	DeleteExpired(ctx context.Context, notBefore time.Time) (int64, error)
}

// ConfigStore persists the game configuration singleton.
type ConfigStore interface {
	// EnsureConfig stores def under its key unless a record already exists
	// and returns the stored record.
	EnsureConfig(ctx context.Context, def models.GameConfig) (*models.GameConfig, error)
	GetConfig(ctx context.Context, id string) (*models.GameConfig, error)
	SaveConfig(ctx context.Context, c models.GameConfig) error
}

// Store is the full persistence surface used by the services.
type Store interface {
	MatchStore
	PlayerStore
	QueueStore
	ConfigStore
	Close() error
}
