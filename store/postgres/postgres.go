// Package postgres implements store.Store on PostgreSQL through GORM.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	gormpg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"memory-match/models"
	"memory-match/store"
)

// Store is the GORM-backed store. Watch polls the match revision every
// PollInterval.
type Store struct {
	DB           *gorm.DB
	PollInterval time.Duration
}

var _ store.Store = (*Store)(nil)

// Open connects to dsn and migrates the schema.
func Open(dsn string, pollInterval time.Duration) (*Store, error) {
	db, err := gorm.Open(gormpg.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	s := New(db, pollInterval)
	if err := s.Migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func New(db *gorm.DB, pollInterval time.Duration) *Store {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Store{DB: db, PollInterval: pollInterval}
}

func (s *Store) Migrate() error {
	if err := s.DB.AutoMigrate(
		&models.Player{},
		&models.Match{},
		&models.QueueEntry{},
		&models.GameConfig{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.ErrNotFound
	}
	return err
}

// ---- matches ----

// commitColumns are the match fields a move or completion may change.
var commitColumns = []string{
	"turn_player_id", "turn_lock_token", "turn_locked_until",
	"stage", "move_count", "deck", "turn_deadline",
	"winner_name", "is_draw",
	"player_a_rating_delta", "player_b_rating_delta",
	"revision", "finished_at", "updated_at",
}

func (s *Store) CreateMatch(ctx context.Context, m *models.Match) error {
	return s.DB.WithContext(ctx).Create(m).Error
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	var m models.Match
	if err := s.DB.WithContext(ctx).First(&m, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &m, nil
}

func (s *Store) ActiveMatches(ctx context.Context, playerID string) ([]models.Match, error) {
	var out []models.Match
	err := s.DB.WithContext(ctx).
		Where("stage <> ? AND (player_a_id = ? OR player_b_id = ?)", models.StageFinished, playerID, playerID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// ClaimTurn is a single conditional UPDATE ... RETURNING, so two processes
// racing for the same turn cannot both succeed.
func (s *Store) ClaimTurn(ctx context.Context, c store.Claim) (*models.Match, error) {
	var m models.Match
	res := s.DB.WithContext(ctx).Model(&m).
		Clauses(clause.Returning{}).
		Where("id = ? AND turn_player_id = ? AND stage <> ?", c.MatchID, c.PlayerID, models.StageFinished).
		Where("(turn_lock_token = '' OR turn_locked_until IS NULL OR turn_locked_until < ?)", c.Now).
		Updates(map[string]interface{}{
			"turn_lock_token":   c.Token,
			"turn_locked_until": c.Until,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetMatch(ctx, c.MatchID); err != nil {
			return nil, err
		}
		return nil, store.ErrNotClaimed
	}
	return &m, nil
}

func (s *Store) ReleaseTurn(ctx context.Context, matchID, token string) error {
	res := s.DB.WithContext(ctx).Model(&models.Match{}).
		Where("id = ? AND turn_lock_token = ?", matchID, token).
		Updates(map[string]interface{}{
			"turn_lock_token":   "",
			"turn_locked_until": nil,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrLockLost
	}
	return nil
}

func (s *Store) CommitMove(ctx context.Context, m *models.Match, token string) error {
	return commitMatch(s.DB.WithContext(ctx), m, token)
}

// commitMatch writes m only while token still holds the lock and the
// revision is the one the move was computed from.
func commitMatch(db *gorm.DB, m *models.Match, token string) error {
	if token == "" {
		return store.ErrLockLost
	}
	next := *m
	next.Turn.LockToken = ""
	next.Turn.LockedUntil = nil
	next.Revision = m.Revision + 1

	res := db.Model(&next).
		Where("turn_lock_token = ? AND revision = ?", token, m.Revision).
		Select(commitColumns).
		Updates(&next)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrLockLost
	}
	m.Turn = next.Turn
	m.Revision = next.Revision
	m.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *Store) CommitFinish(ctx context.Context, m *models.Match, token string, changes []models.RatingChange, title store.TitleFunc) error {
	committed := *m
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := commitMatch(tx, &committed, token); err != nil {
			return err
		}
		for _, ch := range changes {
			var p models.Player
			res := tx.Model(&p).
				Clauses(clause.Returning{}).
				Where("id = ?", ch.PlayerID).
				Update("rating", gorm.Expr("rating + ?", ch.Delta))
			if res.Error != nil {
				return fmt.Errorf("rating change for %s: %w", ch.PlayerID, res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("rating change for %s: %w", ch.PlayerID, store.ErrNotFound)
			}
			if title == nil {
				continue
			}
			if err := tx.Model(&models.Player{}).
				Where("id = ?", ch.PlayerID).
				Update("title", title(p.Rating)).Error; err != nil {
				return fmt.Errorf("title for %s: %w", ch.PlayerID, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	*m = committed
	return nil
}

func (s *Store) TakeOver(ctx context.Context, matchID, requester string, now, deadline time.Time) (*models.Match, error) {
	var m models.Match
	res := s.DB.WithContext(ctx).Model(&m).
		Clauses(clause.Returning{}).
		Where("id = ? AND stage <> ? AND turn_player_id <> ? AND turn_deadline < ?",
			matchID, models.StageFinished, requester, now).
		Where("(player_a_id = ? OR player_b_id = ?)", requester, requester).
		Updates(map[string]interface{}{
			"turn_player_id":    requester,
			"turn_lock_token":   "",
			"turn_locked_until": nil,
			"stage":             models.StageAwaitingFirstReveal,
			"turn_deadline":     deadline,
			"revision":          gorm.Expr("revision + 1"),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetMatch(ctx, matchID); err != nil {
			return nil, err
		}
		return nil, store.ErrNotClaimed
	}
	return &m, nil
}

// Watch polls the match and emits it whenever its revision moves past the
// last one seen.
func (s *Store) Watch(ctx context.Context, matchID string) (<-chan *models.Match, error) {
	current, err := s.GetMatch(ctx, matchID)
	if err != nil {
		return nil, err
	}
	out := make(chan *models.Match, 1)
	go func() {
		defer close(out)
		last := current.Revision
		ticker := time.NewTicker(s.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			m, err := s.GetMatch(ctx, matchID)
			if err != nil {
				if ctx.Err() == nil {
					logrus.WithError(err).WithField("match_id", matchID).Warn("watch poll failed")
				}
				continue
			}
			if m.Revision <= last {
				continue
			}
			last = m.Revision
			select {
			case out <- m:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (s *Store) FinishedUnarchived(ctx context.Context, limit int) ([]models.Match, error) {
	var out []models.Match
	q := s.DB.WithContext(ctx).
		Where("stage = ? AND archived_at IS NULL", models.StageFinished).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

func (s *Store) MarkArchived(ctx context.Context, matchID string, at time.Time) error {
	res := s.DB.WithContext(ctx).Model(&models.Match{}).
		Where("id = ?", matchID).
		UpdateColumn("archived_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ---- players ----

func (s *Store) EnsurePlayer(ctx context.Context, p models.Player) (*models.Player, error) {
	db := s.DB.WithContext(ctx)
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&p).Error; err != nil {
		return nil, err
	}
	return s.GetPlayer(ctx, p.ID)
}

func (s *Store) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	var p models.Player
	if err := s.DB.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]models.Player, error) {
	var out []models.Player
	q := s.DB.WithContext(ctx).Order("rating DESC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// ---- queue ----

func (s *Store) ToggleEntry(ctx context.Context, e models.QueueEntry) (bool, error) {
	inserted := false
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("player_id = ?", e.PlayerID).Delete(&models.QueueEntry{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if err := tx.Create(&e).Error; err != nil {
			return err
		}
		inserted = true
		return nil
	})
	return inserted, err
}

func (s *Store) ListQueue(ctx context.Context, notBefore time.Time) ([]models.QueueEntry, error) {
	var out []models.QueueEntry
	err := s.DB.WithContext(ctx).
		Where("created_at > ?", notBefore).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// PairOldest locks the two oldest live entries with SKIP LOCKED so
// concurrent pairings never grab the same player.
func (s *Store) PairOldest(ctx context.Context, notBefore time.Time, pair store.PairFunc) (*models.Match, error) {
	var created *models.Match
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var entries []models.QueueEntry
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("created_at > ?", notBefore).
			Order("created_at ASC, id ASC").
			Limit(2).
			Find(&entries).Error; err != nil {
			return err
		}
		if len(entries) < 2 {
			return nil
		}
		m, err := pair(entries[0], entries[1])
		if err != nil {
			return err
		}
		if err := tx.Create(m).Error; err != nil {
			return fmt.Errorf("failed to create match: %w", err)
		}
		if err := tx.Where("id IN ?", []string{entries[0].ID, entries[1].ID}).
			Delete(&models.QueueEntry{}).Error; err != nil {
			return err
		}
		created = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Store) DeleteExpired(ctx context.Context, notBefore time.Time) (int64, error) {
	res := s.DB.WithContext(ctx).Where("created_at <= ?", notBefore).Delete(&models.QueueEntry{})
	return res.RowsAffected, res.Error
}

// ---- config ----

func (s *Store) EnsureConfig(ctx context.Context, def models.GameConfig) (*models.GameConfig, error) {
	if err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&def).Error; err != nil {
		return nil, err
	}
	return s.GetConfig(ctx, def.ConfID)
}

func (s *Store) GetConfig(ctx context.Context, id string) (*models.GameConfig, error) {
	var c models.GameConfig
	if err := s.DB.WithContext(ctx).First(&c, "conf_id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *Store) SaveConfig(ctx context.Context, c models.GameConfig) error {
	return s.DB.WithContext(ctx).Save(&c).Error
}
