package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("GAME_SERVICE_TOKEN", "secret")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, ":5200", cfg.Port)
	assert.Equal(t, DriverMemory, cfg.StoreDriver)
	assert.Equal(t, 300*time.Second, cfg.QueueTTL)
	assert.Equal(t, 10*time.Second, cfg.TurnLockLease)
	assert.Equal(t, 50, cfg.RatingK)
	assert.Equal(t, 1000, cfg.DefaultRating)
	assert.Equal(t, "Novice", cfg.DefaultTitle)
	assert.True(t, cfg.PartialUpdateMode)
	assert.Equal(t, "memory.match", cfg.NatsSubjectPrefix)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
}

func TestParseClampsQueueTTL(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("GAME_SERVICE_TOKEN", "secret")

	t.Setenv("QUEUE_TTL", "5s")
	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, 60*time.Second, cfg.QueueTTL)

	t.Setenv("QUEUE_TTL", "1h")
	cfg, err = Parse()
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, cfg.QueueTTL)
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"postgres without dsn", map[string]string{"STORE_DRIVER": "postgres", "GAME_SERVICE_TOKEN": "x"}},
		{"unknown driver", map[string]string{"STORE_DRIVER": "mongo", "GAME_SERVICE_TOKEN": "x"}},
		{"missing token", map[string]string{"STORE_DRIVER": "memory"}},
		{"bad k", map[string]string{"STORE_DRIVER": "memory", "GAME_SERVICE_TOKEN": "x", "RATING_K": "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GAME_SERVICE_TOKEN", "")
			t.Setenv("DATABASE_URL", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}

func TestAllowedOriginsTrimmed(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("GAME_SERVICE_TOKEN", "secret")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}
