package services

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"memory-match/game"
	"memory-match/models"
	"memory-match/store"
	"memory-match/store/memstore"
)

type recordingMetrics struct {
	mu                sync.Mutex
	moves             map[string]int
	turnConflicts     int
	takeovers         int
	created           int
	finished          map[string]int
	consistencyErrors map[string]int
	queueSize         int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		moves:             map[string]int{},
		finished:          map[string]int{},
		consistencyErrors: map[string]int{},
	}
}

func (m *recordingMetrics) AddMove(result string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.moves[result]++
}

func (m *recordingMetrics) AddTurnConflict() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnConflicts++
}

func (m *recordingMetrics) AddTakeover() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.takeovers++
}

func (m *recordingMetrics) AddMatchCreated() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

func (m *recordingMetrics) AddMatchFinished(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished[outcome]++
}

func (m *recordingMetrics) AddConsistencyError(code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consistencyErrors[code]++
}

func (m *recordingMetrics) SetQueueSize(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queueSize = n
}

type publication struct {
	matchID string
	payload any
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []publication
}

func (n *recordingNotifier) Publish(matchID string, v any) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, publication{matchID: matchID, payload: v})
	return nil
}

func (n *recordingNotifier) all() []publication {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]publication(nil), n.sent...)
}

type testEnv struct {
	mu  sync.Mutex
	now time.Time

	clock    game.Clock
	store    *memstore.Store
	metrics  *recordingMetrics
	notifier *recordingNotifier
	config   *ConfigService
	players  *ProgressionService
	pairing  *PairingService
	matches  *MatchService
}

func newTestEnv(t *testing.T, pairs int) *testEnv {
	t.Helper()
	ctx := context.Background()
	env := &testEnv{
		now:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		store:    memstore.New(),
		metrics:  newRecordingMetrics(),
		notifier: &recordingNotifier{},
	}
	env.clock = func() time.Time {
		env.mu.Lock()
		defer env.mu.Unlock()
		return env.now
	}

	env.config = NewConfigService(env.store)
	_, err := env.config.Ensure(ctx)
	require.NoError(t, err)
	_, err = env.config.Update(ctx, ConfigUpdate{
		RankedCardPairs: &pairs,
		TitleMap:        models.TitleMap{1010: "Bronze", 1100: "Silver"},
	})
	require.NoError(t, err)

	env.players = NewProgressionService(env.store, env.config, 1000, "Novice")
	env.pairing = NewPairingService(env.store, env.players, env.config, env.metrics, env.clock, 5*time.Minute, rand.New(rand.NewSource(1)))
	env.matches = NewMatchService(env.store, game.NewEngine(env.clock, game.DefaultK), env.players, env.metrics, 10*time.Second)
	env.matches.Notifier = env.notifier
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.now = e.now.Add(d)
}

// startMatch queues alice then bob, so alice holds the first turn.
func (e *testEnv) startMatch(t *testing.T) *models.Match {
	t.Helper()
	ctx := context.Background()
	res, err := e.pairing.JoinQueue(ctx, "alice", "Alice")
	require.NoError(t, err)
	require.Equal(t, QueueStatusQueued, res.Status)
	e.advance(time.Second)
	res, err = e.pairing.JoinQueue(ctx, "bob", "Bob")
	require.NoError(t, err)
	require.Equal(t, QueueStatusPaired, res.Status)
	return e.match(t, res.Match.ID)
}

func (e *testEnv) match(t *testing.T, id string) *models.Match {
	t.Helper()
	m, err := e.store.GetMatch(context.Background(), id)
	require.NoError(t, err)
	return m
}

func (e *testEnv) move(t *testing.T, matchID, playerID, cardID string) *MoveOutcome {
	t.Helper()
	out, err := e.matches.SubmitMove(context.Background(), matchID, playerID, cardID)
	require.NoError(t, err)
	return out
}

func cardsByTag(m *models.Match) map[int][]string {
	out := make(map[int][]string)
	for _, c := range m.Deck {
		out[c.PairTag] = append(out[c.PairTag], c.ID)
	}
	return out
}

// gatedStore pauses commits until released so concurrent requests can be
// interleaved deterministically.
type gatedStore struct {
	store.MatchStore
	entered chan struct{}
	proceed chan struct{}
}

func (g *gatedStore) CommitMove(ctx context.Context, m *models.Match, token string) error {
	g.entered <- struct{}{}
	<-g.proceed
	return g.MatchStore.CommitMove(ctx, m, token)
}

// failingFinishStore refuses to commit completions.
type failingFinishStore struct {
	store.MatchStore
	err error
}

func (f *failingFinishStore) CommitFinish(context.Context, *models.Match, string, []models.RatingChange, store.TitleFunc) error {
	return f.err
}
