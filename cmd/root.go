package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tunegate/resolver/internal/config"
	"github.com/tunegate/resolver/internal/match"
)

var (
	cfg             *config.Config
	matchConfigPath string
)

var rootCmd = &cobra.Command{
	Use:   "resolver",
	Short: "Artist entity resolution and canonicalization engine",
	Long:  "Resolves messy artist references (free text, platform ids) to canonical entities by querying streaming and metadata authorities, scoring candidates, and maintaining a merge-aware canonical store.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := applyMatchConfig(cfg, matchConfigPath); err != nil {
			return err
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

// applyMatchConfig replaces the matching policy with one loaded from a
// standalone weights file, when the flag is set.
func applyMatchConfig(c *config.Config, path string) error {
	if path == "" {
		return nil
	}
	mc, err := match.LoadConfig(path)
	if err != nil {
		return fmt.Errorf("load match config: %w", err)
	}
	c.Match = mc
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&matchConfigPath, "match-config", "",
		"YAML file overriding matching weights and thresholds")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
