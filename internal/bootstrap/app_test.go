package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-match/internal/config"
)

func TestNew_LocalStack(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = filepath.Join(t.TempDir(), "app.db")
	cfg.Database.AutoMigrate = true
	cfg.VectorIndex.Backend = "memory"

	ctx := context.Background()
	app, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	assert.Equal(t, "memory", app.Index.Backend())
	assert.Nil(t, app.Storage.RabbitMQ)
	assert.Nil(t, app.Storage.Redis)

	checks := app.HealthChecks()
	require.Contains(t, checks, "database")
	require.NoError(t, checks["database"](ctx))
	require.NoError(t, checks["vector_index"](ctx))

	stop, err := app.StartBackground(ctx)
	require.NoError(t, err)
	stop()

	h := app.Handlers()
	assert.NotNil(t, h.Match)
	assert.NotNil(t, h.Index)

	stats, err := app.Indexing.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.RoleChunks)
}
