// Package cmd implements the metalfab-sim command line interface.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// versionInfo holds build-time version metadata injected via ldflags.
var versionInfo = struct {
	Version   string
	Commit    string
	BuildDate string
}{
	Version:   "dev",
	Commit:    "HEAD",
	BuildDate: "unknown",
}

// SetVersionInfo records build metadata for the version command.
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

var rootCmd = &cobra.Command{
	Use:   "metalfab-sim",
	Short: "Multi-site sheet metal factory simulator for a Unified Namespace",
	Long: `metalfab-sim simulates a multi-site sheet metal fabrication company and
publishes its live data to an MQTT broker using ISA-95 style Unified
Namespace topics (umh/v1/{enterprise}/{site}/...).

Machines run a PackML state machine, jobs flow through routing steps,
and the publication detail is gated by a runtime complexity level (0-4)
that can be changed over MQTT while the simulator runs.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "Config file path (default searches ., ~/.metalfab-simulator, /etc/metalfab-sim)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("broker", "", "MQTT broker URL (e.g. tcp://localhost:1883)")

	_ = viper.BindPFlag("logging.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("broker.url", rootCmd.PersistentFlags().Lookup("broker"))
}

func initConfig() {
	setDefaults()

	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("metalfab-sim")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.metalfab-simulator")
		viper.AddConfigPath("/etc/metalfab-sim")
	}

	viper.SetEnvPrefix("METALFAB")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// setDefaults installs viper defaults for the global instance used by
// the CLI commands.
func setDefaults() {
	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.shutdown_timeout", "10s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.profile", "structured")

	viper.SetDefault("broker.url", "tcp://localhost:1883")
	viper.SetDefault("broker.client_id", "metalfab-sim")

	viper.SetDefault("simulator.level", 3)
	viper.SetDefault("simulator.sites", []string{"eindhoven"})
	viper.SetDefault("simulator.tick_interval", "1s")

	viper.SetDefault("uns.prefix", "umh/v1")
	viper.SetDefault("uns.enterprise", "metalfab")

	viper.SetDefault("health.enabled", true)
}

// exitError creates an error that will cause the CLI to exit with the given code.
func exitError(code int, message string, err error) error {
	return fmt.Errorf("%s: %w (exit code %d)", message, err, code)
}

// ExitWithCode logs a fatal error and terminates with the given exit code.
func ExitWithCode(logger *zap.Logger, code int, message string, err error) {
	logger.Error(message, zap.Error(err), zap.Int("exit_code", code))
	os.Exit(code)
}

// Execute runs the root command and maps errors onto process exit codes.
func Execute() error {
	return rootCmd.Execute()
}
