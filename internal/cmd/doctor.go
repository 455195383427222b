package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/config"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/observability"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/broker"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/facility"
)

var doctorSkipBroker bool

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long: `Run diagnostic checks on the environment and suggest fixes for common
issues.

Examples:
  metalfab-sim doctor                # Full environment check
  metalfab-sim doctor --skip-broker  # Skip the broker connectivity check`,
	Run: runDoctor,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
	doctorCmd.Flags().BoolVar(&doctorSkipBroker, "skip-broker", false, "Skip MQTT broker connectivity check")
}

func runDoctor(cmd *cobra.Command, args []string) {
	observability.CLILogger.Info("=== metalfab-sim doctor ===")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("Running diagnostic checks...")
	observability.CLILogger.Info("")

	allChecks := true
	checkNum := 1
	totalChecks := 5
	if doctorSkipBroker {
		totalChecks = 4
	}

	// Check 1: Go version
	goVersion := runtime.Version()
	if goVersion >= "go1.23" {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking Go version... ✅ %s", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
	} else {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking Go version... ⚠️  %s (recommended: go1.23+)", checkNum, totalChecks, goVersion),
			zap.String("go_version", goVersion))
		allChecks = false
	}
	checkNum++

	// Check 2: Configuration
	cfg, err := config.Load(cmd.Context())
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking configuration... ❌ %v", checkNum, totalChecks, err),
			zap.Error(err))
		allChecks = false
	} else {
		observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking configuration... ✅ broker=%s level=%d", checkNum, totalChecks, cfg.Broker.URL, cfg.Simulator.Level))
	}
	checkNum++

	// Check 3: State directory
	home, err := os.UserHomeDir()
	if err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking state directory... ❌ Cannot find home directory", checkNum, totalChecks),
			zap.Error(err))
		allChecks = false
	} else {
		stateDir := filepath.Join(home, ".metalfab-simulator")
		if _, statErr := os.Stat(stateDir); statErr == nil {
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking state directory... ✅ %s", checkNum, totalChecks, stateDir),
				zap.String("state_dir", stateDir))
		} else {
			observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking state directory... ✅ %s (will be created on first run)", checkNum, totalChecks, stateDir))
		}
	}
	checkNum++

	// Check 4: Built-in sites
	sites := facility.BuiltIn()
	cells := 0
	for _, s := range sites {
		cells += len(s.Cells)
	}
	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking built-in sites... ✅ %d sites, %d cells", checkNum, totalChecks, len(sites), cells),
		zap.Int("sites", len(sites)),
		zap.Int("cells", cells))
	checkNum++

	// Check 5: Broker connectivity
	if !doctorSkipBroker && cfg != nil {
		allChecks = runBrokerCheck(cmd.Context(), cfg, checkNum, totalChecks) && allChecks
	}

	observability.CLILogger.Info("")
	if allChecks {
		observability.CLILogger.Info("✅ All checks passed! Your metalfab-sim installation is healthy.")
	} else {
		observability.CLILogger.Warn("⚠️  Some checks failed. Review the output above for details.")
	}
	observability.CLILogger.Info("")
	observability.CLILogger.Info("=== End Diagnostics ===")
}

// runBrokerCheck verifies the configured MQTT broker accepts connections.
func runBrokerCheck(ctx context.Context, cfg *config.Config, checkNum, totalChecks int) bool {
	if cfg.Broker.URL == "" {
		observability.CLILogger.Warn(fmt.Sprintf("[%d/%d] Checking broker... ⚠️  No broker URL configured", checkNum, totalChecks))
		printBrokerHelp()
		return false
	}

	transport := broker.NewPahoTransport(broker.PahoConfig{
		BrokerURL:      cfg.Broker.URL,
		ClientID:       cfg.Broker.ClientID + "-doctor",
		Username:       cfg.Broker.Username,
		Password:       cfg.Broker.Password,
		ConnectTimeout: 5 * time.Second,
	}, zap.NewNop())

	connectCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := transport.Connect(connectCtx); err != nil {
		observability.CLILogger.Error(fmt.Sprintf("[%d/%d] Checking broker... ❌ Cannot connect to %s", checkNum, totalChecks, cfg.Broker.URL),
			zap.Error(err))
		printBrokerHelp()
		return false
	}
	transport.Close()

	observability.CLILogger.Info(fmt.Sprintf("[%d/%d] Checking broker... ✅ Connected to %s", checkNum, totalChecks, cfg.Broker.URL),
		zap.String("broker_url", cfg.Broker.URL))
	return true
}

// printBrokerHelp prints help for configuring the MQTT broker.
func printBrokerHelp() {
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To configure the MQTT broker:")
	observability.CLILogger.Info("  1. Set METALFAB_BROKER_URL (e.g. tcp://localhost:1883), or")
	observability.CLILogger.Info("  2. Set broker.url in metalfab-sim.yaml, or")
	observability.CLILogger.Info("  3. Pass --broker on the command line")
	observability.CLILogger.Info("")
	observability.CLILogger.Info("To run without a broker, use 'metalfab-sim run --dry-run'.")
	observability.CLILogger.Info("")
}
