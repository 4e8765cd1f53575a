package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memory-match/models"
	"memory-match/store"
	"memory-match/store/memstore"
)

func TestEnsurePlayer(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	cfg := NewConfigService(s)
	_, err := cfg.Update(ctx, ConfigUpdate{TitleMap: models.TitleMap{900: "Apprentice"}})
	require.NoError(t, err)
	svc := NewProgressionService(s, cfg, 1000, "Novice")

	p, err := svc.EnsurePlayer(ctx, "dana", "")
	require.NoError(t, err)
	assert.Equal(t, "dana", p.DisplayName)
	assert.Equal(t, 1000, p.Rating)
	assert.Equal(t, "Apprentice", p.Title)

	again, err := svc.EnsurePlayer(ctx, "dana", "Dana")
	require.NoError(t, err)
	assert.Equal(t, "dana", again.DisplayName)

	_, err = svc.EnsurePlayer(ctx, "", "x")
	assert.Error(t, err)

	_, err = svc.Player(ctx, "nobody")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLeaderboardLimit(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	svc := NewProgressionService(s, NewConfigService(s), 1000, "Novice")

	for i := 0; i < MaxLeaderboardLimit+5; i++ {
		_, err := s.EnsurePlayer(ctx, models.Player{ID: fmt.Sprintf("p%03d", i), DisplayName: "P", Rating: 1000 + i})
		require.NoError(t, err)
	}

	top, err := svc.Leaderboard(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, top, DefaultLeaderboardLimit)
	assert.Equal(t, 1000+MaxLeaderboardLimit+4, top[0].Rating)

	top, err = svc.Leaderboard(ctx, 1000)
	require.NoError(t, err)
	assert.Len(t, top, MaxLeaderboardLimit)

	top, err = svc.Leaderboard(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, top, 3)
}
