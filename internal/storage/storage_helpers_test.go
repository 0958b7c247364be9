package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"talent-match/internal/config"
	"talent-match/internal/storage"
)

// newTestDatabase 在临时目录中创建sqlite数据库并迁移表结构
func newTestDatabase(t *testing.T) *storage.Database {
	t.Helper()
	db, err := storage.NewDatabase(&config.DatabaseConfig{
		Driver:      "sqlite",
		DSN:         filepath.Join(t.TempDir(), "test.db"),
		LogLevel:    1,
		AutoMigrate: true,
	})
	require.NoError(t, err, "创建测试数据库失败")
	t.Cleanup(func() { db.Close() })
	return db
}
