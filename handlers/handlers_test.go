package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-match/game"
	"memory-match/metrics"
	"memory-match/middleware"
	"memory-match/models"
	"memory-match/services"
	"memory-match/store/memstore"
)

const testToken = "gateway-secret"

type testApp struct {
	app   *fiber.App
	store *memstore.Store

	mu  sync.Mutex
	now time.Time
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	ta := &testApp{
		store: memstore.New(),
		now:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	clock := game.Clock(func() time.Time {
		ta.mu.Lock()
		defer ta.mu.Unlock()
		return ta.now
	})

	ctx := context.Background()
	registry := prometheus.NewRegistry()
	gameMetrics := metrics.NewMetrics(registry)

	cfg := services.NewConfigService(ta.store)
	_, err := cfg.Ensure(ctx)
	require.NoError(t, err)
	pairs := 1
	_, err = cfg.Update(ctx, services.ConfigUpdate{RankedCardPairs: &pairs})
	require.NoError(t, err)

	progression := services.NewProgressionService(ta.store, cfg, 1000, "Novice")
	pairing := services.NewPairingService(ta.store, progression, cfg, gameMetrics, clock, 5*time.Minute, rand.New(rand.NewSource(1)))
	matches := services.NewMatchService(ta.store, game.NewEngine(clock, game.DefaultK), progression, gameMetrics, 10*time.Second)

	ta.app = fiber.New()
	SetupSystemRoutes(ta.app, registry)
	ta.app.Use(middleware.GatewayAuthMiddleware(testToken), middleware.UserContextMiddleware())
	SetupPlayRoutes(ta.app, pairing, matches)
	SetupProgressionRoutes(ta.app, progression)
	SetupAdminRoutes(ta.app, cfg)
	return ta
}

func (ta *testApp) advance(d time.Duration) {
	ta.mu.Lock()
	defer ta.mu.Unlock()
	ta.now = ta.now.Add(d)
}

func (ta *testApp) do(t *testing.T, method, path, user string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("X-User-ID", user)
		if user == "root" {
			req.Header.Set("X-User-Roles", "admin")
		}
	}
	resp, err := ta.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

// pair queues alice then bob and returns the stored match.
func (ta *testApp) pair(t *testing.T) *models.Match {
	t.Helper()
	status, body := ta.do(t, http.MethodPost, "/play/queue", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "queued", body["status"])

	ta.advance(time.Second)
	status, body = ta.do(t, http.MethodPost, "/play/queue", "bob", nil)
	require.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, "paired", body["status"])

	g, ok := body["game"].(map[string]any)
	require.True(t, ok, "paired response carries the board")
	m, err := ta.store.GetMatch(context.Background(), g["id"].(string))
	require.NoError(t, err)
	return m
}

func TestHealthBypassesGateway(t *testing.T) {
	ta := newTestApp(t)
	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = ta.app.Test(httptest.NewRequest(http.MethodGet, "/leaderboard", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestPlayFlow(t *testing.T) {
	ta := newTestApp(t)
	m := ta.pair(t)
	require.Len(t, m.Deck, 2)

	// Hidden cards never leak their pair tag.
	status, body := ta.do(t, http.MethodGet, "/play/games/"+m.ID, "", nil)
	require.Equal(t, fiber.StatusOK, status)
	for _, c := range body["cards"].([]any) {
		assert.Nil(t, c.(map[string]any)["pair_tag"])
	}

	// Not bob's turn.
	status, body = ta.do(t, http.MethodPost, "/play/move?gameid="+m.ID, "bob", fiber.Map{"discover_id": m.Deck[0].ID})
	assert.Equal(t, fiber.StatusForbidden, status)
	assert.Equal(t, "not_your_turn", body["code"])

	status, body = ta.do(t, http.MethodPost, "/play/move?gameid="+m.ID, "alice", fiber.Map{"discover_id": "nope"})
	assert.Equal(t, fiber.StatusBadRequest, status)
	assert.Equal(t, "card_not_found", body["code"])

	status, body = ta.do(t, http.MethodPost, "/play/move?gameid="+m.ID, "alice", fiber.Map{"discover_id": m.Deck[0].ID})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, false, body["finished"])

	status, body = ta.do(t, http.MethodPost, "/play/move?gameid="+m.ID, "alice", fiber.Map{"discover_id": m.Deck[1].ID})
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["matched"])
	assert.Equal(t, true, body["finished"])
	g := body["game"].(map[string]any)
	assert.Equal(t, "alice", g["winner_name"])

	status, body = ta.do(t, http.MethodPost, "/play/move?gameid="+m.ID, "bob", fiber.Map{"discover_id": m.Deck[0].ID})
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, "match_finished", body["code"])

	status, body = ta.do(t, http.MethodGet, "/players/alice", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1025, body["rating"])

	status, body = ta.do(t, http.MethodGet, "/leaderboard?limit=1", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	board := body["leaderboard"].([]any)
	require.Len(t, board, 1)
	assert.Equal(t, "alice", board[0].(map[string]any)["player_id"])
}

func TestMoveValidation(t *testing.T) {
	ta := newTestApp(t)

	status, _ := ta.do(t, http.MethodPost, "/play/move?gameid=x", "", fiber.Map{"discover_id": "c"})
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, _ = ta.do(t, http.MethodPost, "/play/move", "alice", fiber.Map{"discover_id": "c"})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = ta.do(t, http.MethodPost, "/play/move?gameid=x", "alice", fiber.Map{})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = ta.do(t, http.MethodPost, "/play/move?gameid=missing", "alice", fiber.Map{"discover_id": "c"})
	assert.Equal(t, fiber.StatusNotFound, status)
}

func TestQueueToggle(t *testing.T) {
	ta := newTestApp(t)

	status, body := ta.do(t, http.MethodPost, "/play/queue", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "queued", body["status"])

	status, body = ta.do(t, http.MethodGet, "/play/queue", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["count"])

	status, body = ta.do(t, http.MethodPost, "/play/queue", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "removed", body["status"])
}

func TestTakeover(t *testing.T) {
	ta := newTestApp(t)
	m := ta.pair(t)

	status, body := ta.do(t, http.MethodPost, "/play/takeover?gameid="+m.ID, "bob", nil)
	assert.Equal(t, fiber.StatusConflict, status)
	assert.Equal(t, false, body["taken_over"])

	ta.advance(m.TurnDuration()*2 + time.Second)
	status, body = ta.do(t, http.MethodPost, "/play/takeover?gameid="+m.ID, "bob", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, true, body["taken_over"])
	assert.Equal(t, "bob", body["game"].(map[string]any)["active_player"])

	status, body = ta.do(t, http.MethodGet, "/play/games", "bob", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Len(t, body["games"], 1)
}

func TestAdminConfig(t *testing.T) {
	ta := newTestApp(t)

	status, _ := ta.do(t, http.MethodGet, "/admin/config", "alice", nil)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, body := ta.do(t, http.MethodGet, "/admin/config", "root", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 1, body["rankedcardpairs"])

	status, _ = ta.do(t, http.MethodPut, "/admin/config", "root", fiber.Map{"rankedcardpairs": 0})
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, body = ta.do(t, http.MethodPut, "/admin/config", "root", fiber.Map{"rankedcardpairs": 6})
	require.Equal(t, fiber.StatusOK, status)
	assert.EqualValues(t, 6, body["rankedcardpairs"])
}

func TestMetricsEndpoint(t *testing.T) {
	ta := newTestApp(t)
	ta.pair(t)

	resp, err := ta.app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.NoError(t, err)
	raw, _ := io.ReadAll(resp.Body)
	assert.Contains(t, string(raw), "memory_match_matches_created_total")
}

func TestStoredIdsSurviveLaterRequests(t *testing.T) {
	ta := newTestApp(t)
	m := ta.pair(t)

	// Unrelated traffic with longer header values reuses request buffers.
	status, _ := ta.do(t, http.MethodGet, "/play/games/"+m.ID, "zzzzzzzz", nil)
	require.Equal(t, fiber.StatusOK, status)
	status, _ = ta.do(t, http.MethodPost, "/play/queue", "yyyyyyyyyyyy", nil)
	require.Equal(t, fiber.StatusOK, status)

	got, err := ta.store.GetMatch(context.Background(), m.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.PlayerA.ID)
	assert.Equal(t, "bob", got.PlayerB.ID)
	assert.Equal(t, "alice", got.Turn.PlayerID)
	assert.Equal(t, "alice", got.PlayerA.DisplayName)

	status, body := ta.do(t, http.MethodGet, "/players/alice", "", nil)
	require.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "alice", body["id"])

	status, body = ta.do(t, http.MethodGet, "/play/queue", "alice", nil)
	require.Equal(t, fiber.StatusOK, status)
	queue := body["queue"].([]any)
	require.Len(t, queue, 1)
	assert.Equal(t, "yyyyyyyyyyyy", queue[0].(map[string]any)["player_id"])

	status, _ = ta.do(t, http.MethodPost, "/play/move?gameid="+m.ID, "alice", fiber.Map{"discover_id": m.Deck[0].ID})
	assert.Equal(t, fiber.StatusOK, status)
}
