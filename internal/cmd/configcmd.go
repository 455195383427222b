package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/config"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/observability"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and scaffold configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration the simulator would run with, after merging
defaults, config file and METALFAB_* environment variables.`,
	RunE: runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter config file to ~/.metalfab-simulator",
	RunE:  runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configInitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to render configuration", err)
	}
	fmt.Print(string(out))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return exitError(foundry.ExitFileNotFound, "Cannot find home directory", err)
	}
	dir := filepath.Join(home, ".metalfab-simulator")
	path := filepath.Join(dir, "metalfab-sim.yaml")

	force, _ := cmd.Flags().GetBool("force")
	if _, err := os.Stat(path); err == nil && !force {
		return exitError(foundry.ExitInvalidArgument, "Config file already exists",
			fmt.Errorf("%s exists, use --force to overwrite", path))
	}

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Failed to render configuration", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot create config directory", err)
	}
	if err := os.WriteFile(path, out, 0o644); err != nil {
		return exitError(foundry.ExitFileWriteError, "Cannot write config file", err)
	}

	observability.CLILogger.Info("✅ Wrote starter config", zap.String("path", path))
	return nil
}
