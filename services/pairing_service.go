package services

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"memory-match/game"
	"memory-match/metrics"
	"memory-match/models"
	"memory-match/store"
)

// QueueStatus is the outcome of a queue toggle.
type QueueStatus string

const (
	QueueStatusQueued  QueueStatus = "queued"
	QueueStatusRemoved QueueStatus = "removed"
	QueueStatusPaired  QueueStatus = "paired"
)

// JoinResult is returned by JoinQueue. Match is set when the caller was paired.
type JoinResult struct {
	Status QueueStatus   `json:"status"`
	Match  *models.Match `json:"-"`
	Board  *game.Board   `json:"game,omitempty"`
}

// PairingService runs the matchmaking queue: toggling entries, pairing the
// two oldest live entries into a match and expiring stale entries.
type PairingService struct {
	Store   store.QueueStore
	Players *ProgressionService
	Config  *ConfigService
	Metrics metrics.GameMetrics
	Clock   game.Clock
	// TTL bounds how long an entry stays eligible for pairing.
	TTL time.Duration

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewPairingService(s store.QueueStore, players *ProgressionService, cfg *ConfigService, m metrics.GameMetrics, clock game.Clock, ttl time.Duration, rng *rand.Rand) *PairingService {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &PairingService{
		Store:   s,
		Players: players,
		Config:  cfg,
		Metrics: m,
		Clock:   clock,
		TTL:     ttl,
		rng:     rng,
	}
}

func (ps *PairingService) notBefore() time.Time {
	return ps.Clock.Now().Add(-ps.TTL)
}

// JoinQueue toggles the caller's queue entry. Joining pairs the two oldest
// live entries when at least two exist.
func (ps *PairingService) JoinQueue(ctx context.Context, playerID, displayName string) (JoinResult, error) {
	player, err := ps.Players.EnsurePlayer(ctx, playerID, displayName)
	if err != nil {
		return JoinResult{}, err
	}
	log := logrus.WithField("player_id", playerID)

	inserted, err := ps.Store.ToggleEntry(ctx, models.QueueEntry{
		ID:          uuid.NewString(),
		PlayerID:    player.ID,
		DisplayName: player.DisplayName,
		Rating:      player.Rating,
		Title:       player.Title,
		CreatedAt:   ps.Clock.Now(),
	})
	if err != nil {
		return JoinResult{}, fmt.Errorf("failed to toggle queue entry: %w", err)
	}
	if !inserted {
		log.Info("left matchmaking queue")
		return JoinResult{Status: QueueStatusRemoved}, nil
	}

	cfg, err := ps.Config.Current(ctx)
	if err != nil {
		return JoinResult{}, err
	}
	m, err := ps.Store.PairOldest(ctx, ps.notBefore(), func(first, second models.QueueEntry) (*models.Match, error) {
		return ps.newMatch(first, second, cfg)
	})
	if err != nil {
		return JoinResult{}, fmt.Errorf("failed to pair queue: %w", err)
	}
	if m == nil || !m.IsParticipant(playerID) {
		log.Info("joined matchmaking queue")
		return JoinResult{Status: QueueStatusQueued}, nil
	}

	ps.Metrics.AddMatchCreated()
	log.WithFields(logrus.Fields{
		"match_id":   m.ID,
		"player_a":   m.PlayerA.ID,
		"player_b":   m.PlayerB.ID,
		"card_pairs": len(m.Deck) / 2,
	}).Info("match created")
	board := game.ProjectBoard(m)
	return JoinResult{Status: QueueStatusPaired, Match: m, Board: &board}, nil
}

func (ps *PairingService) newMatch(first, second models.QueueEntry, cfg models.GameConfig) (*models.Match, error) {
	ps.rngMu.Lock()
	defer ps.rngMu.Unlock()
	return game.NewMatch(
		entryPlayer(first),
		entryPlayer(second),
		cfg.RankedCardPairs,
		cfg.MoveTime(),
		ps.Clock,
		ps.rng,
	)
}

func entryPlayer(e models.QueueEntry) models.MatchPlayer {
	return models.MatchPlayer{
		ID:          e.PlayerID,
		DisplayName: e.DisplayName,
		Title:       e.Title,
		Rating:      e.Rating,
	}
}

// ListQueue returns live entries, oldest first.
func (ps *PairingService) ListQueue(ctx context.Context) ([]models.QueueEntry, error) {
	entries, err := ps.Store.ListQueue(ctx, ps.notBefore())
	if err != nil {
		return nil, err
	}
	ps.Metrics.SetQueueSize(len(entries))
	return entries, nil
}

// SweepExpired deletes entries older than the TTL.
func (ps *PairingService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := ps.Store.DeleteExpired(ctx, ps.notBefore())
	if err != nil {
		return 0, fmt.Errorf("failed to sweep queue: %w", err)
	}
	if n > 0 {
		logrus.WithField("expired", n).Info("removed stale queue entries")
	}
	return n, nil
}
