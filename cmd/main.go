// Package main is the entry point for the adzantune daemon.
//
// adzantune arbitrates one speaker between normal music (local files or a
// Spotify Connect device), prayer-time adzan with its iqomah countdown, and
// advertisement spots.
//
// Build:
//
//	go build -o build/adzantune ./cmd
//
// Run:
//
//	./build/adzantune serve --config adzantune.yaml
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tejashwikalptaru/adzantune/internal/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "adzantune",
	Short:         "AdzanTune - prayer-aware music playback daemon",
	Long:          "AdzanTune plays local and Spotify music and hands the speaker to the adzan, the iqomah countdown and advertisements when they are due.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "adzantune.yaml", "Path to the YAML configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig loads configuration (called by commands that need it)
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
