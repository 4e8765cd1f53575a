package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"memory-match/game"
	"memory-match/models"
	"memory-match/store"
)

const (
	DefaultLeaderboardLimit = 100
	MaxLeaderboardLimit     = 100
)

// ProgressionService manages player profiles: creation on first sight,
// titles and the leaderboard. Ratings only change through match completion.
type ProgressionService struct {
	Store         store.PlayerStore
	Config        *ConfigService
	DefaultRating int
	DefaultTitle  string
}

func NewProgressionService(s store.PlayerStore, cfg *ConfigService, defaultRating int, defaultTitle string) *ProgressionService {
	return &ProgressionService{Store: s, Config: cfg, DefaultRating: defaultRating, DefaultTitle: defaultTitle}
}

// EnsurePlayer returns the stored profile, creating it with the starting
// rating if the player has never been seen (idempotent).
func (s *ProgressionService) EnsurePlayer(ctx context.Context, playerID, displayName string) (*models.Player, error) {
	if playerID == "" {
		return nil, fmt.Errorf("player id is required")
	}
	if displayName == "" {
		displayName = playerID
	}
	titles, err := s.Titles(ctx)
	if err != nil {
		return nil, err
	}
	p, err := s.Store.EnsurePlayer(ctx, models.Player{
		ID:          playerID,
		DisplayName: displayName,
		Rating:      s.DefaultRating,
		Title:       titles(s.DefaultRating),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to ensure player %s: %w", playerID, err)
	}
	return p, nil
}

func (s *ProgressionService) Player(ctx context.Context, playerID string) (*models.Player, error) {
	p, err := s.Store.GetPlayer(ctx, playerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("player %s: %w", playerID, err)
		}
		return nil, err
	}
	return p, nil
}

// Leaderboard returns the top players by rating. limit is clamped to
// 1..MaxLeaderboardLimit; zero means the default.
func (s *ProgressionService) Leaderboard(ctx context.Context, limit int) ([]models.Player, error) {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		limit = MaxLeaderboardLimit
	}
	return s.Store.Leaderboard(ctx, limit)
}

// Titles snapshots the configured title table into a lookup function.
func (s *ProgressionService) Titles(ctx context.Context) (store.TitleFunc, error) {
	table := models.TitleMap{}
	if s.Config != nil {
		cfg, err := s.Config.Current(ctx)
		if err != nil {
			return nil, err
		}
		table = cfg.TitleMap
	}
	fallback := s.DefaultTitle
	return func(rating int) string {
		return game.TitleFor(table, rating, fallback)
	}, nil
}

// titlesOrDefault never fails: when the config cannot be read the default
// title is used and the problem is logged.
func (s *ProgressionService) titlesOrDefault(ctx context.Context) store.TitleFunc {
	titles, err := s.Titles(ctx)
	if err != nil {
		logrus.WithError(err).Warn("title table unavailable, using default title")
		fallback := s.DefaultTitle
		return func(int) string { return fallback }
	}
	return titles
}
