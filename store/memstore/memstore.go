// Package memstore is an in-process implementation of store.Store. It backs
// the test suites and single-node deployments started with STORE_DRIVER=memory.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"memory-match/models"
	"memory-match/store"
)

const watchBuffer = 16

type watcher struct {
	matchID string
	ch      chan *models.Match
}

// Store keeps every record in memory behind a single mutex. Values handed in
// and out are deep copies.
type Store struct {
	mu       sync.Mutex
	matches  map[string]*models.Match
	players  map[string]*models.Player
	queue    map[string]models.QueueEntry
	configs  map[string]models.GameConfig
	watchers map[*watcher]struct{}
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		matches:  make(map[string]*models.Match),
		players:  make(map[string]*models.Player),
		queue:    make(map[string]models.QueueEntry),
		configs:  make(map[string]models.GameConfig),
		watchers: make(map[*watcher]struct{}),
	}
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for w := range s.watchers {
		close(w.ch)
		delete(s.watchers, w)
	}
	return nil
}

// ---- matches ----

func (s *Store) CreateMatch(ctx context.Context, m *models.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.createMatchLocked(m)
}

func (s *Store) createMatchLocked(m *models.Match) error {
	if m.ID == "" {
		return fmt.Errorf("match id is required")
	}
	if _, exists := s.matches[m.ID]; exists {
		return fmt.Errorf("match %s already exists", m.ID)
	}
	now := time.Now()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	s.matches[m.ID] = m.Clone()
	return nil
}

func (s *Store) GetMatch(ctx context.Context, id string) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m.Clone(), nil
}

func (s *Store) ActiveMatches(ctx context.Context, playerID string) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Match{}
	for _, m := range s.matches {
		if m.Stage != models.StageFinished && m.IsParticipant(playerID) {
			out = append(out, *m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ClaimTurn(ctx context.Context, c store.Claim) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[c.MatchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if m.Stage == models.StageFinished || m.Turn.PlayerID != c.PlayerID || c.PlayerID == "" {
		return nil, store.ErrNotClaimed
	}
	if m.Turn.Locked() && m.Turn.LockedUntil != nil && !m.Turn.LockedUntil.Before(c.Now) {
		return nil, store.ErrNotClaimed
	}
	until := c.Until
	m.Turn.LockToken = c.Token
	m.Turn.LockedUntil = &until
	return m.Clone(), nil
}

func (s *Store) ReleaseTurn(ctx context.Context, matchID, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, err := s.lockedMatch(matchID, token)
	if err != nil {
		return err
	}
	m.Turn.LockToken = ""
	m.Turn.LockedUntil = nil
	return nil
}

func (s *Store) CommitMove(ctx context.Context, m *models.Match, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lockedMatch(m.ID, token); err != nil {
		return err
	}
	s.commitLocked(m)
	return nil
}

func (s *Store) CommitFinish(ctx context.Context, m *models.Match, token string, changes []models.RatingChange, title store.TitleFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.lockedMatch(m.ID, token); err != nil {
		return err
	}
	// Check every player first so nothing is applied on failure.
	for _, ch := range changes {
		if _, ok := s.players[ch.PlayerID]; !ok {
			return fmt.Errorf("rating change for %s: %w", ch.PlayerID, store.ErrNotFound)
		}
	}
	now := time.Now()
	for _, ch := range changes {
		p := s.players[ch.PlayerID]
		p.Rating += ch.Delta
		if title != nil {
			p.Title = title(p.Rating)
		}
		p.UpdatedAt = now
	}
	s.commitLocked(m)
	return nil
}

// lockedMatch returns the stored match if token currently holds its lock.
func (s *Store) lockedMatch(matchID, token string) (*models.Match, error) {
	stored, ok := s.matches[matchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if token == "" || stored.Turn.LockToken != token {
		return nil, store.ErrLockLost
	}
	return stored, nil
}

func (s *Store) commitLocked(m *models.Match) {
	stored := s.matches[m.ID]
	m.Turn.LockToken = ""
	m.Turn.LockedUntil = nil
	m.Revision = stored.Revision + 1
	m.CreatedAt = stored.CreatedAt
	m.UpdatedAt = time.Now()
	s.matches[m.ID] = m.Clone()
	s.notifyLocked(m)
}

func (s *Store) TakeOver(ctx context.Context, matchID, requester string, now, deadline time.Time) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if m.Stage == models.StageFinished || !m.IsParticipant(requester) ||
		m.Turn.PlayerID == requester || !m.TurnDeadline.Before(now) {
		return nil, store.ErrNotClaimed
	}
	m.Turn = models.Turn{PlayerID: requester}
	m.Stage = models.StageAwaitingFirstReveal
	m.TurnDeadline = deadline
	m.Revision++
	m.UpdatedAt = time.Now()
	s.notifyLocked(m)
	return m.Clone(), nil
}

func (s *Store) Watch(ctx context.Context, matchID string) (<-chan *models.Match, error) {
	s.mu.Lock()
	if _, ok := s.matches[matchID]; !ok {
		s.mu.Unlock()
		return nil, store.ErrNotFound
	}
	w := &watcher{matchID: matchID, ch: make(chan *models.Match, watchBuffer)}
	s.watchers[w] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.watchers[w]; ok {
			delete(s.watchers, w)
			close(w.ch)
		}
	}()
	return w.ch, nil
}

// notifyLocked never blocks: a slow watcher loses its oldest pending update.
func (s *Store) notifyLocked(m *models.Match) {
	for w := range s.watchers {
		if w.matchID != m.ID {
			continue
		}
		snapshot := m.Clone()
		for {
			select {
			case w.ch <- snapshot:
			default:
				select {
				case <-w.ch:
				default:
				}
				continue
			}
			break
		}
	}
}

func (s *Store) FinishedUnarchived(ctx context.Context, limit int) ([]models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Match{}
	for _, m := range s.matches {
		if m.Stage == models.StageFinished && m.ArchivedAt == nil {
			out = append(out, *m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkArchived(ctx context.Context, matchID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.matches[matchID]
	if !ok {
		return store.ErrNotFound
	}
	m.ArchivedAt = &at
	return nil
}

// ---- players ----

func (s *Store) EnsurePlayer(ctx context.Context, p models.Player) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.players[p.ID]; ok {
		out := *existing
		return &out, nil
	}
	now := time.Now()
	p.CreatedAt, p.UpdatedAt = now, now
	stored := p
	s.players[p.ID] = &stored
	return &p, nil
}

func (s *Store) GetPlayer(ctx context.Context, id string) (*models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.players[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := *p
	return &out, nil
}

func (s *Store) Leaderboard(ctx context.Context, limit int) ([]models.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rating != out[j].Rating {
			return out[i].Rating > out[j].Rating
		}
		return out[i].ID < out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- queue ----

func (s *Store) ToggleEntry(ctx context.Context, e models.QueueEntry) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.queue[e.PlayerID]; ok {
		delete(s.queue, e.PlayerID)
		return false, nil
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	s.queue[e.PlayerID] = e
	return true, nil
}

func (s *Store) ListQueue(ctx context.Context, notBefore time.Time) ([]models.QueueEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveQueueLocked(notBefore), nil
}

func (s *Store) liveQueueLocked(notBefore time.Time) []models.QueueEntry {
	out := []models.QueueEntry{}
	for _, e := range s.queue {
		if e.CreatedAt.After(notBefore) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// PairOldest holds the store lock while pair runs; pair must not call back
// into the store.
func (s *Store) PairOldest(ctx context.Context, notBefore time.Time, pair store.PairFunc) (*models.Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	live := s.liveQueueLocked(notBefore)
	if len(live) < 2 {
		return nil, nil
	}
	m, err := pair(live[0], live[1])
	if err != nil {
		return nil, err
	}
	if err := s.createMatchLocked(m); err != nil {
		return nil, err
	}
	delete(s.queue, live[0].PlayerID)
	delete(s.queue, live[1].PlayerID)
	return m.Clone(), nil
}

func (s *Store) DeleteExpired(ctx context.Context, notBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, e := range s.queue {
		if !e.CreatedAt.After(notBefore) {
			delete(s.queue, id)
			n++
		}
	}
	return n, nil
}

// ---- config ----

func (s *Store) EnsureConfig(ctx context.Context, def models.GameConfig) (*models.GameConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.configs[def.ConfID]; ok {
		out := existing.Clone()
		return &out, nil
	}
	def.UpdatedAt = time.Now()
	s.configs[def.ConfID] = def.Clone()
	out := def.Clone()
	return &out, nil
}

func (s *Store) GetConfig(ctx context.Context, id string) (*models.GameConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	out := c.Clone()
	return &out, nil
}

func (s *Store) SaveConfig(ctx context.Context, c models.GameConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c.UpdatedAt = time.Now()
	s.configs[c.ConfID] = c.Clone()
	return nil
}
