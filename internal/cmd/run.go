package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/config"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/observability"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/server"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/internal/server/handlers"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/broker"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/complexity"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/publish"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/simulator"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

var (
	runLevelFlag  int
	runSites  []string
	runTick   time.Duration
	runSeed   int64
	runDryRun bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the simulator and publish to the broker",
	Long: `Run the factory simulation and publish its data to the configured
MQTT broker.

Examples:
  metalfab-sim run                                 # Defaults: eindhoven, level 3
  metalfab-sim run --sites eindhoven,roeselare     # Two sites
  metalfab-sim run --level 4 --tick 500ms          # Full detail, fast ticks
  metalfab-sim run --dry-run                       # In-memory broker, no network`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().IntVar(&runLevelFlag, "level", -1, "Initial complexity level 0-4 (overrides config)")
	runCmd.Flags().StringSliceVar(&runSites, "sites", nil, "Site IDs to enable at startup (overrides config)")
	runCmd.Flags().DurationVar(&runTick, "tick", 0, "Tick interval (overrides config)")
	runCmd.Flags().Int64Var(&runSeed, "seed", 0, "Random seed (0 seeds from the clock)")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Use an in-memory broker instead of MQTT")
}

func runRun(cmd *cobra.Command, args []string) error {
	overrides := map[string]any{}
	if runLevelFlag >= 0 {
		overrides["simulator"] = map[string]any{"level": runLevelFlag}
	}
	if len(runSites) > 0 {
		sim, _ := overrides["simulator"].(map[string]any)
		if sim == nil {
			sim = map[string]any{}
		}
		sim["sites"] = runSites
		overrides["simulator"] = sim
	}
	if runTick > 0 {
		sim, _ := overrides["simulator"].(map[string]any)
		if sim == nil {
			sim = map[string]any{}
		}
		sim["tick_interval"] = runTick.String()
		overrides["simulator"] = sim
	}
	if url, _ := cmd.Flags().GetString("broker"); url != "" {
		overrides["broker"] = map[string]any{"url": url}
	}

	cfg, err := config.Load(cmd.Context(), overrides)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	log, err := observability.Init(cfg.Logging.Level, cfg.Logging.Profile)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid logging configuration", err)
	}
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	transport, err := buildTransport(ctx, cfg, log)
	if err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to connect to broker", err)
	}
	defer transport.Close()

	bcfg := broker.DefaultConfig()
	if cfg.Broker.QueueSize > 0 {
		bcfg.QueueSize = cfg.Broker.QueueSize
	}
	if cfg.Broker.RateLimit > 0 {
		bcfg.RateLimit = rate.Limit(cfg.Broker.RateLimit)
	}
	if cfg.Broker.Burst > 0 {
		bcfg.Burst = cfg.Broker.Burst
	}

	level := complexity.Level(cfg.Simulator.Level).Clamp()
	client := broker.NewClient(transport, bcfg, level, log)
	client.Start(ctx)
	defer client.Stop()

	pub := publish.New(publish.Config{
		Prefix:     cfg.UNS.Prefix,
		Enterprise: cfg.UNS.Enterprise,
	}, client, log)

	simCfg := simulator.DefaultConfig()
	simCfg.InitialLevel = level
	simCfg.EnabledSites = cfg.Simulator.Sites
	simCfg.TickInterval = cfg.Simulator.TickInterval
	if runSeed != 0 {
		simCfg.Seed = runSeed
	} else {
		simCfg.Seed = cfg.Simulator.Seed
	}

	sim := simulator.New(simCfg, client, pub, log)
	if err := sim.AttachControl(); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Failed to subscribe to control topics", err)
	}

	if cfg.Server.Enabled {
		startStatusServer(ctx, cfg, sim, client, transport, log)
	}

	log.Info("simulator starting",
		zap.String("level", level.String()),
		zap.Strings("sites", cfg.Simulator.Sites),
		zap.Duration("tick", cfg.Simulator.TickInterval),
		zap.Bool("dry_run", runDryRun))

	if err := sim.Run(ctx); err != nil && ctx.Err() == nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Simulator stopped", err)
	}
	log.Info("simulator stopped")
	return nil
}

// buildTransport connects the MQTT transport, or an in-memory one when
// dry-run is requested or no broker URL is configured.
func buildTransport(ctx context.Context, cfg *config.Config, log *zap.Logger) (broker.Transport, error) {
	if runDryRun || cfg.Broker.URL == "" {
		t := broker.NewMemTransport()
		_ = t.Connect(ctx)
		return t, nil
	}

	t := broker.NewPahoTransport(broker.PahoConfig{
		BrokerURL: cfg.Broker.URL,
		ClientID:  cfg.Broker.ClientID,
		Username:  cfg.Broker.Username,
		Password:  cfg.Broker.Password,
		KeepAlive: cfg.Broker.KeepAlive,
	}, log)

	connectCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := t.Connect(connectCtx); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", cfg.Broker.URL, err)
	}
	return t, nil
}

// brokerChecker probes broker liveness for the health endpoints by
// round-tripping a nothing-publish through the transport.
type brokerChecker struct {
	transport broker.Transport
}

func (c *brokerChecker) CheckHealth(ctx context.Context) error {
	probe := uns.Message{Topic: "metalfab-sim/health/probe", Payload: []byte("1")}
	done := make(chan error, 1)
	go func() {
		done <- c.transport.Publish(probe)
	}()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func startStatusServer(ctx context.Context, cfg *config.Config, sim *simulator.Simulator, client *broker.Client, transport broker.Transport, log *zap.Logger) {
	handlers.InitHealthManager(versionInfo.Version)
	if cfg.Health.Enabled {
		if hm := handlers.GetHealthManager(); hm != nil {
			hm.RegisterChecker("broker", &brokerChecker{transport: transport})
		}
	}
	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)
	handlers.SetStatusProvider(func() any {
		counters := client.Counters()
		sites := map[string]any{}
		for _, f := range sim.Facilities() {
			sites[f.SiteID()] = map[string]any{
				"enabled":  f.Enabled(),
				"machines": len(f.Machines()),
			}
		}
		return map[string]any{
			"level":              int(sim.Level()),
			"level_name":         sim.Level().String(),
			"sites":              sites,
			"messages_published": counters.Published,
			"messages_dropped":   counters.Dropped,
			"messages_failed":    counters.Failed,
		}
	})

	srv := server.New(cfg.Server.Host, cfg.Server.Port)
	go func() {
		if err := srv.Start(ctx, cfg.Server.ShutdownTimeout); err != nil {
			log.Error("status server stopped", zap.Error(err))
		}
	}()
	log.Info("status server listening", zap.String("addr", srv.Addr()))
}
