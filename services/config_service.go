package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"memory-match/models"
	"memory-match/store"
)

// ErrInvalidConfig is returned for configuration updates outside the allowed ranges.
var ErrInvalidConfig = errors.New("invalid game configuration")

// ConfigService owns the GameConfig singleton.
type ConfigService struct {
	Store store.ConfigStore
}

func NewConfigService(s store.ConfigStore) *ConfigService {
	return &ConfigService{Store: s}
}

// Ensure creates the singleton with defaults unless it already exists. It is
// called once at startup.
func (s *ConfigService) Ensure(ctx context.Context) (models.GameConfig, error) {
	cfg, err := s.Store.EnsureConfig(ctx, models.DefaultGameConfig())
	if err != nil {
		return models.GameConfig{}, fmt.Errorf("failed to ensure game config: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"card_pairs": cfg.RankedCardPairs,
		"move_time":  cfg.RankedMoveTime,
		"titles":     len(cfg.TitleMap),
	}).Info("game config ready")
	return *cfg, nil
}

// Current reads the singleton. It is read on every use so that several
// processes sharing a database see operator changes immediately.
func (s *ConfigService) Current(ctx context.Context) (models.GameConfig, error) {
	cfg, err := s.Store.GetConfig(ctx, models.DefaultConfigID)
	if errors.Is(err, store.ErrNotFound) {
		return s.Ensure(ctx)
	}
	if err != nil {
		return models.GameConfig{}, err
	}
	return *cfg, nil
}

// ConfigUpdate is a partial update; nil fields are left unchanged.
type ConfigUpdate struct {
	RankedCardPairs *int            `json:"rankedcardpairs"`
	RankedMoveTime  *int            `json:"rankedmovetime"`
	TitleMap        models.TitleMap `json:"titlemap"`
}

func (s *ConfigService) Update(ctx context.Context, upd ConfigUpdate) (models.GameConfig, error) {
	cfg, err := s.Current(ctx)
	if err != nil {
		return models.GameConfig{}, err
	}
	if upd.RankedCardPairs != nil {
		if *upd.RankedCardPairs < 1 || *upd.RankedCardPairs > models.MaxRankedCardPairs {
			return models.GameConfig{}, fmt.Errorf("%w: rankedcardpairs must be between 1 and %d", ErrInvalidConfig, models.MaxRankedCardPairs)
		}
		cfg.RankedCardPairs = *upd.RankedCardPairs
	}
	if upd.RankedMoveTime != nil {
		if *upd.RankedMoveTime < 1 || *upd.RankedMoveTime > models.MaxRankedMoveTime {
			return models.GameConfig{}, fmt.Errorf("%w: rankedmovetime must be between 1 and %d", ErrInvalidConfig, models.MaxRankedMoveTime)
		}
		cfg.RankedMoveTime = *upd.RankedMoveTime
	}
	if upd.TitleMap != nil {
		for threshold, title := range upd.TitleMap {
			if title == "" {
				return models.GameConfig{}, fmt.Errorf("%w: empty title for threshold %d", ErrInvalidConfig, threshold)
			}
		}
		cfg.TitleMap = upd.TitleMap
	}
	if err := s.Store.SaveConfig(ctx, cfg); err != nil {
		return models.GameConfig{}, fmt.Errorf("failed to save game config: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"card_pairs": cfg.RankedCardPairs,
		"move_time":  cfg.RankedMoveTime,
		"titles":     len(cfg.TitleMap),
	}).Info("game config updated")
	return cfg, nil
}
