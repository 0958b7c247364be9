package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"talent-match/internal/config"
)

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", path})
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), path)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err, "生成的示例配置应能被加载")
	assert.Equal(t, config.DefaultConfig().VectorIndex.ChunkSize, cfg.VectorIndex.ChunkSize)

	rootCmd.SetArgs([]string{"config", "init", path})
	require.Error(t, rootCmd.Execute(), "已存在的文件不应被覆盖")
}

func TestSearchCommand_RequiresQuery(t *testing.T) {
	rootCmd.SetArgs([]string{"search"})
	require.Error(t, rootCmd.Execute())
}
