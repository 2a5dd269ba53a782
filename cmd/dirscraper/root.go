package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/LouYuanbo1/dirscraper/internal/config"
)

func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dirscraper",
		Short: "Scrape company contacts from a JS-rendered business directory",
		Long: `dirscraper discovers company pages for each search term in a city,
opens them in parallel browser sessions and extracts name, address,
phones, emails and websites into a spreadsheet.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "YAML or JSON file overlaid on the built-in defaults")
	cmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")

	cmd.AddCommand(NewCrawlCmd())
	cmd.AddCommand(NewRegionsCmd())
	return cmd
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig 内嵌默认值 -> 配置文件 -> 环境变量
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	base, err := config.ParseConfig(appConfig)
	if err != nil {
		return nil, fmt.Errorf("parse built-in config: %w", err)
	}
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(base, path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.Log.Level = level
	}
	return cfg, nil
}
