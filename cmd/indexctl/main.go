// Package main 实现 indexctl 命令行工具，用于离线维护向量索引和排查匹配结果
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"talent-match/internal/bootstrap"
	"talent-match/internal/config"
	"talent-match/internal/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "indexctl",
	Short: "Maintain the role/resume vector index",
	Long:  "indexctl rebuilds and inspects the role/resume vector index and runs candidate matching from the command line, using the same configuration as the HTTP server.",
}

func init() {
	rootCmd.SilenceUsage = true
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// openApp 加载配置并初始化应用依赖，日志输出到标准错误以免污染JSON结果
func openApp(ctx context.Context) (*bootstrap.App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(logger.Config{
		Level:      cfg.Logger.Level,
		Format:     cfg.Logger.Format,
		TimeFormat: cfg.Logger.TimeFormat,
		Output:     os.Stderr,
	})
	return bootstrap.New(ctx, cfg)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("输出JSON失败: %w", err)
	}
	return nil
}
