package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"memory-match/game"
	"memory-match/models"
	"memory-match/services"
	"memory-match/store"
	"memory-match/utils"
)

const defaultArchiveBatch = 50

// Uploader stores a single object.
type Uploader interface {
	Put(ctx context.Context, key string, body []byte) error
}

// MatchArchive is the document written for every finished match.
type MatchArchive struct {
	Match      *models.Match `json:"match"`
	Board      game.Board    `json:"board"`
	ArchivedAt time.Time     `json:"archived_at"`
}

// MatchArchiveWorker copies finished matches to object storage and marks
// them archived. Matches are never deleted.
type MatchArchiveWorker struct {
	store    store.MatchStore
	uploader Uploader
	clock    game.Clock
	batch    int
}

func NewMatchArchiveWorker(s store.MatchStore, uploader Uploader, clock game.Clock) *MatchArchiveWorker {
	return &MatchArchiveWorker{store: s, uploader: uploader, clock: clock, batch: defaultArchiveBatch}
}

// RunOnce archives one batch and returns how many matches were uploaded.
// A failed upload leaves the match unarchived so the next run retries it.
func (w *MatchArchiveWorker) RunOnce(ctx context.Context) (int, error) {
	finished, err := w.store.FinishedUnarchived(ctx, w.batch)
	if err != nil {
		return 0, fmt.Errorf("list finished matches: %w", err)
	}

	archived := 0
	for i := range finished {
		m := &finished[i]
		now := w.clock.Now()
		body, err := json.Marshal(MatchArchive{Match: m, Board: game.ProjectBoard(m), ArchivedAt: now})
		if err != nil {
			return archived, fmt.Errorf("encode match %s: %w", m.ID, err)
		}
		key := utils.ArchiveKey(m)
		if err := w.uploader.Put(ctx, key, body); err != nil {
			logrus.WithError(err).WithField("match_id", m.ID).Warn("📦 archive upload failed")
			continue
		}
		if err := w.store.MarkArchived(ctx, m.ID, now); err != nil {
			return archived, fmt.Errorf("mark match %s archived: %w", m.ID, err)
		}
		archived++
		logrus.WithFields(logrus.Fields{"match_id": m.ID, "key": key}).Debug("📦 match archived")
	}
	return archived, nil
}

// Job wraps RunOnce for the scheduler.
func (w *MatchArchiveWorker) Job(interval time.Duration) services.Job {
	return services.Job{
		Name:     "match-archive",
		Interval: interval,
		Run: func(ctx context.Context) {
			n, err := w.RunOnce(ctx)
			if err != nil {
				logrus.WithError(err).Error("[Archive] batch failed")
				return
			}
			if n > 0 {
				logrus.WithField("count", n).Info("📦 archived finished matches")
			}
		},
	}
}
