package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/config"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/observability"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/broker"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/complexity"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/facility"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

var levelCmd = &cobra.Command{
	Use:   "level <0-4>",
	Short: "Set the complexity level of a running simulator",
	Long: `Publish a complexity level change to the control topic of a running
simulator instance.

Levels:
  0  paused      (nothing published)
  1  sensors     (raw sensor values and energy)
  2  stateful    (machine states, counters, OEE)
  3  erp-mes     (business context, ERP and MES aggregates)
  4  full        (digital product passports)

Examples:
  metalfab-sim level 4
  metalfab-sim level 0 --broker tcp://factory.local:1883`,
	Args: cobra.ExactArgs(1),
	RunE: runLevel,
}

var siteCmd = &cobra.Command{
	Use:   "site <site-id> <on|off>",
	Short: "Enable or disable a site on a running simulator",
	Long: `Publish a site enable or disable command to a running simulator.

Examples:
  metalfab-sim site roeselare on
  metalfab-sim site brasov off`,
	Args: cobra.ExactArgs(2),
	RunE: runSite,
}

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Clear all retained simulator topics from the broker",
	Long: `Publish a namespace clear command. The running simulator erases every
retained topic it manages and republishes the descriptive layer for the
enabled sites.`,
	Args: cobra.NoArgs,
	RunE: runClear,
}

func init() {
	rootCmd.AddCommand(levelCmd)
	rootCmd.AddCommand(siteCmd)
	rootCmd.AddCommand(clearCmd)
}

func runLevel(cmd *cobra.Command, args []string) error {
	n, err := strconv.Atoi(args[0])
	if err != nil || !complexity.Level(n).Valid() {
		return exitError(foundry.ExitInvalidArgument, "Invalid level", fmt.Errorf("level must be an integer 0-4, got %q", args[0]))
	}
	return publishControl(cmd, uns.ControlLevelTopic, args[0],
		fmt.Sprintf("level set to %d (%s)", n, complexity.Level(n)))
}

func runSite(cmd *cobra.Command, args []string) error {
	siteID, state := args[0], args[1]
	if !knownSite(siteID) {
		return exitError(foundry.ExitInvalidArgument, "Unknown site", fmt.Errorf("site %q is not a built-in site", siteID))
	}
	var payload string
	switch state {
	case "on", "enable", "true", "1":
		payload = "1"
	case "off", "disable", "false", "0":
		payload = "0"
	default:
		return exitError(foundry.ExitInvalidArgument, "Invalid state", fmt.Errorf("state must be on or off, got %q", state))
	}
	return publishControl(cmd, uns.ControlSiteTopic(siteID), payload,
		fmt.Sprintf("site %s set to %s", siteID, state))
}

func runClear(cmd *cobra.Command, args []string) error {
	return publishControl(cmd, uns.ControlClearTopic, "1", "namespace clear requested")
}

func knownSite(siteID string) bool {
	for _, cfg := range facility.BuiltIn() {
		if cfg.SiteID == siteID {
			return true
		}
	}
	return false
}

// publishControl connects to the configured broker, publishes one
// retained control message, and disconnects.
func publishControl(cmd *cobra.Command, topic, payload, okMsg string) error {
	ctx := cmd.Context()
	var overrides []map[string]any
	if url, _ := cmd.Flags().GetString("broker"); url != "" {
		overrides = append(overrides, map[string]any{"broker": map[string]any{"url": url}})
	}
	cfg, err := config.Load(ctx, overrides...)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}
	if cfg.Broker.URL == "" {
		return exitError(foundry.ExitInvalidArgument, "No broker configured", fmt.Errorf("set broker.url or --broker"))
	}

	transport := broker.NewPahoTransport(broker.PahoConfig{
		BrokerURL: cfg.Broker.URL,
		ClientID:  cfg.Broker.ClientID + "-ctl",
		Username:  cfg.Broker.Username,
		Password:  cfg.Broker.Password,
	}, zap.NewNop())

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := transport.Connect(connectCtx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to broker", err)
	}
	defer transport.Close()

	if err := transport.Publish(uns.NewMessage(topic, []byte(payload))); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to publish control message", err)
	}

	observability.CLILogger.Info(fmt.Sprintf("✅ %s", okMsg), zap.String("topic", topic))
	return nil
}
