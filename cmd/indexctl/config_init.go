package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"talent-match/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a sample config file",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := "config.yaml"
	if len(args) > 0 {
		path = args[0]
	}
	if err := config.CreateSampleConfig(path); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "示例配置已写入 %s\n", path)
	return nil
}
