// Package simulator runs the multi-site factory simulation: a
// single-threaded tick loop driving every enabled facility, a job queue
// feeding idle cells, and a control channel that changes the complexity
// level, toggles sites and clears the namespace at runtime.
package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/broker"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/complexity"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/dpp"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/facility"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/jobs"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/machine"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/publish"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

// Config holds the orchestration knobs.
type Config struct {
	// TickInterval is the wall-clock duration of one simulation step.
	TickInterval time.Duration `json:"tick_interval" yaml:"tick_interval"`

	// TickJitter randomizes each tick interval by ±this fraction so the
	// published stream does not look metronomic. Default: 0.1.
	TickJitter float64 `json:"tick_jitter" yaml:"tick_jitter"`

	// InitialLevel is the complexity level at startup.
	InitialLevel complexity.Level `json:"initial_level" yaml:"initial_level"`

	// EnabledSites lists the site IDs publishing at startup.
	EnabledSites []string `json:"enabled_sites" yaml:"enabled_sites"`

	// MaxQueuedJobs caps the per-site job queue.
	MaxQueuedJobs int `json:"max_queued_jobs" yaml:"max_queued_jobs"`

	// JobCreateEvery is the tick cadence for new work orders.
	JobCreateEvery int `json:"job_create_every" yaml:"job_create_every"`

	// ERPEvery and MESEvery are the tick cadences of the site-level
	// business aggregates.
	ERPEvery int `json:"erp_every" yaml:"erp_every"`
	MESEvery int `json:"mes_every" yaml:"mes_every"`

	// StatusEvery is the tick cadence of the simulator status topic.
	StatusEvery int `json:"status_every" yaml:"status_every"`

	// ShippedRetention is how long shipped jobs and their passports stay
	// around before garbage collection.
	ShippedRetention time.Duration `json:"shipped_retention" yaml:"shipped_retention"`

	// Seed fixes the random source; zero seeds from the clock.
	Seed int64 `json:"seed" yaml:"seed"`

	// FirstRunMarker is the path of the first-run marker file. Empty
	// disables the first-run welcome.
	FirstRunMarker string `json:"first_run_marker" yaml:"first_run_marker"`
}

// DefaultConfig returns the standard orchestration settings.
func DefaultConfig() Config {
	marker := ""
	if home, err := os.UserHomeDir(); err == nil {
		marker = filepath.Join(home, ".metalfab-simulator", ".first_run_complete")
	}
	return Config{
		TickInterval:     time.Second,
		TickJitter:       0.1,
		InitialLevel:     complexity.LevelERPMES,
		EnabledSites:     []string{"eindhoven"},
		MaxQueuedJobs:    20,
		JobCreateEvery:   15,
		ERPEvery:         3,
		MESEvery:         2,
		StatusEvery:      10,
		ShippedRetention: 5 * time.Minute,
		FirstRunMarker:   marker,
	}
}

type commandKind int

const (
	cmdLevel commandKind = iota
	cmdSite
	cmdClear
)

type command struct {
	kind   commandKind
	level  complexity.Level
	siteID string
	enable bool
}

type shippedJob struct {
	job *jobs.Job
	at  time.Time
}

// Simulator owns all simulation state. All mutation happens inside the
// tick loop; control messages are queued and drained at tick boundaries.
type Simulator struct {
	cfg    Config
	log    *zap.Logger
	client *broker.Client
	pub    *publish.Publisher

	rng        *rand.Rand
	gen        *jobs.Generator
	dpp        *dpp.Registry
	facilities []*facility.Facility

	queues  map[string][]*jobs.Job
	shipped []shippedJob

	commands chan command

	runCtx  context.Context
	tick    uint64
	now     time.Time
	started time.Time
}

// New assembles a Simulator over the built-in sites.
func New(cfg Config, client *broker.Client, pub *publish.Publisher, log *zap.Logger) *Simulator {
	if log == nil {
		log = zap.NewNop()
	}
	def := DefaultConfig()
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = def.TickInterval
	}
	if cfg.TickJitter < 0 || cfg.TickJitter >= 1 {
		cfg.TickJitter = def.TickJitter
	}
	if cfg.MaxQueuedJobs <= 0 {
		cfg.MaxQueuedJobs = def.MaxQueuedJobs
	}
	if cfg.JobCreateEvery <= 0 {
		cfg.JobCreateEvery = def.JobCreateEvery
	}
	if cfg.ERPEvery <= 0 {
		cfg.ERPEvery = def.ERPEvery
	}
	if cfg.MESEvery <= 0 {
		cfg.MESEvery = def.MESEvery
	}
	if cfg.StatusEvery <= 0 {
		cfg.StatusEvery = def.StatusEvery
	}
	if cfg.ShippedRetention <= 0 {
		cfg.ShippedRetention = def.ShippedRetention
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(seed))
	now := time.Now()

	s := &Simulator{
		cfg:      cfg,
		log:      log,
		client:   client,
		pub:      pub,
		rng:      rng,
		dpp:      dpp.NewRegistry(nil),
		queues:   make(map[string][]*jobs.Job),
		commands: make(chan command, 64),
		runCtx:   context.Background(),
		now:      now,
		started:  now,
	}
	s.gen = jobs.NewGenerator(rng, func() time.Time { return s.now })

	enabled := make(map[string]bool, len(cfg.EnabledSites))
	for _, id := range cfg.EnabledSites {
		enabled[id] = true
	}
	for _, siteCfg := range facility.BuiltIn() {
		f := facility.New(siteCfg, rng, now)
		f.SetEnabled(enabled[siteCfg.SiteID])
		s.facilities = append(s.facilities, f)
	}
	client.SetLevel(cfg.InitialLevel)
	return s
}

// Facilities returns all sites, enabled or not.
func (s *Simulator) Facilities() []*facility.Facility { return s.facilities }

// Level returns the active complexity level.
func (s *Simulator) Level() complexity.Level { return s.client.Level() }

// Passports returns the passport registry.
func (s *Simulator) Passports() *dpp.Registry { return s.dpp }

func (s *Simulator) facilityByID(id string) *facility.Facility {
	for _, f := range s.facilities {
		if f.SiteID() == id {
			return f
		}
	}
	return nil
}

// AttachControl subscribes to the control topics. Commands take effect at
// the next tick boundary.
func (s *Simulator) AttachControl() error {
	if err := s.client.Subscribe(uns.ControlLevelTopic, 1, s.onLevel); err != nil {
		return fmt.Errorf("subscribe level control: %w", err)
	}
	if err := s.client.Subscribe(uns.ControlSitePrefix+"+", 1, s.onSite); err != nil {
		return fmt.Errorf("subscribe site control: %w", err)
	}
	if err := s.client.Subscribe(uns.ControlClearTopic, 1, s.onClear); err != nil {
		return fmt.Errorf("subscribe clear control: %w", err)
	}
	return nil
}

func (s *Simulator) onLevel(topic string, payload []byte, _ bool) {
	l, err := complexity.ParseLevel(payload)
	if err != nil {
		s.log.Warn("ignoring level command", zap.Error(err))
		return
	}
	s.enqueue(command{kind: cmdLevel, level: l})
}

func (s *Simulator) onSite(topic string, payload []byte, _ bool) {
	siteID := strings.TrimPrefix(topic, uns.ControlSitePrefix)
	if siteID == "" || strings.Contains(siteID, "/") {
		return
	}
	on, err := parseBool(payload)
	if err != nil {
		s.log.Warn("ignoring site command", zap.String("site", siteID), zap.Error(err))
		return
	}
	s.enqueue(command{kind: cmdSite, siteID: siteID, enable: on})
}

func (s *Simulator) onClear(_ string, payload []byte, _ bool) {
	on, err := parseBool(payload)
	if err != nil || !on {
		return
	}
	s.enqueue(command{kind: cmdClear})
}

func (s *Simulator) enqueue(cmd command) {
	select {
	case s.commands <- cmd:
	default:
		s.log.Warn("control queue full, dropping command")
	}
}

func parseBool(payload []byte) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(string(payload))) {
	case "1", "true", "on", "enable", "enabled":
		return true, nil
	case "0", "false", "off", "disable", "disabled":
		return false, nil
	}
	var obj struct {
		Enabled *bool `json:"enabled"`
	}
	if err := json.Unmarshal(payload, &obj); err == nil && obj.Enabled != nil {
		return *obj.Enabled, nil
	}
	return false, fmt.Errorf("unrecognized boolean payload %q", payload)
}

// Run drives the tick loop until the context is cancelled.
func (s *Simulator) Run(ctx context.Context) error {
	s.runCtx = ctx
	s.firstRun()

	for _, f := range s.facilities {
		if f.Enabled() {
			s.pub.Descriptive(f)
		}
	}
	s.publishStatus()

	timer := time.NewTimer(s.nextInterval())
	defer timer.Stop()

	s.log.Info("simulation started",
		zap.Stringer("level", s.client.Level()),
		zap.Duration("tick", s.cfg.TickInterval))

	for {
		select {
		case <-ctx.Done():
			s.log.Info("simulation stopped", zap.Uint64("ticks", s.tick))
			return ctx.Err()
		case now := <-timer.C:
			s.step(now)
			timer.Reset(s.nextInterval())
		}
	}
}

// nextInterval jitters the tick interval by ±TickJitter so the publish
// stream does not beat in perfect lockstep.
func (s *Simulator) nextInterval() time.Duration {
	if s.cfg.TickJitter == 0 {
		return s.cfg.TickInterval
	}
	spread := 1 + (s.rng.Float64()*2-1)*s.cfg.TickJitter
	return time.Duration(float64(s.cfg.TickInterval) * spread)
}

// step advances the whole simulation by one tick. A panic in one tick is
// logged and skipped so a single bad transition cannot kill the loop.
func (s *Simulator) step(now time.Time) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("tick panicked",
				zap.Uint64("tick", s.tick),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
		}
	}()

	s.drainCommands()
	s.tick++
	s.now = now

	for _, f := range s.facilities {
		if !f.Enabled() {
			continue
		}
		siteID := f.SiteID()

		if s.tick%uint64(s.cfg.JobCreateEvery) == 0 && len(s.queues[siteID]) < s.cfg.MaxQueuedJobs {
			routing := f.Routing(s.rng)
			if len(routing) > 0 {
				s.queues[siteID] = append(s.queues[siteID], s.gen.Generate(routing))
			}
		}

		f.Tick(now, &siteSource{s: s, f: f})

		for _, m := range f.Machines() {
			s.pub.Machine(siteID, m, now)
		}
		if line := f.CoatingLine(); line != nil {
			s.pub.Coating(siteID, line.State())
		}
		for _, v := range f.Vehicles() {
			v.Tick(s.cfg.TickInterval)
			s.pub.AGV(siteID, v)
		}
		s.pub.Energy(siteID, f.Energy().Tick(now))

		if s.tick%uint64(s.cfg.ERPEvery) == 0 {
			s.pub.ERP(f, s.rng, now)
		}
		if s.tick%uint64(s.cfg.MESEvery) == 0 {
			s.pub.MES(f, s.rng, now)
		}
		if complexity.FeaturesFor(s.client.Level()).Passports {
			for _, p := range s.dpp.Active() {
				if p.SiteID != siteID {
					continue
				}
				s.pub.Passport(siteID, p)
			}
		}
	}

	s.gcShipped(now)

	if s.tick%uint64(s.cfg.StatusEvery) == 0 {
		s.publishStatus()
	}
}

func (s *Simulator) drainCommands() {
	for {
		select {
		case cmd := <-s.commands:
			s.apply(cmd)
		default:
			return
		}
	}
}

func (s *Simulator) apply(cmd command) {
	switch cmd.kind {
	case cmdLevel:
		old := s.client.Level()
		if cmd.level == old {
			return
		}
		s.client.SetLevel(cmd.level)
		s.log.Info("complexity level changed",
			zap.Stringer("from", old), zap.Stringer("to", cmd.level))
		if cmd.level == complexity.LevelFull && old < complexity.LevelFull {
			s.backfillPassports()
		}

	case cmdSite:
		f := s.facilityByID(cmd.siteID)
		if f == nil {
			s.log.Warn("site command for unknown site", zap.String("site", cmd.siteID))
			return
		}
		if f.Enabled() == cmd.enable {
			return
		}
		f.SetEnabled(cmd.enable)
		s.log.Info("site toggled", zap.String("site", cmd.siteID), zap.Bool("enabled", cmd.enable))
		if cmd.enable {
			s.pub.Descriptive(f)
		} else {
			n := s.client.ClearTracked(s.pub.TopicPatterns(cmd.siteID)...)
			s.log.Info("cleared retained site topics", zap.String("site", cmd.siteID), zap.Int("topics", n))
		}
		s.publishStatus()

	case cmdClear:
		s.clearNamespace()
	}
}

// backfillPassports creates passports for every job already on a machine
// when the level rises to Full. Creation is idempotent.
func (s *Simulator) backfillPassports() {
	n := 0
	for _, f := range s.facilities {
		for _, m := range f.Machines() {
			if j := m.Job(); j != nil && !s.dpp.Has(j.ID) {
				s.dpp.Create(j, f.SiteID())
				n++
			}
		}
	}
	if n > 0 {
		s.log.Info("created passports for in-flight jobs", zap.Int("count", n))
	}
}

// clearNamespace erases every retained topic under the enterprise tree,
// then republishes the descriptive layer and resets the clear trigger.
func (s *Simulator) clearNamespace() {
	var patterns []string
	for _, f := range s.facilities {
		patterns = append(patterns, s.pub.TopicPatterns(f.SiteID())...)
	}
	n, err := s.client.ClearRetained(s.runCtx, s.pub.SubscribeFilter(), patterns...)
	if err != nil {
		s.log.Error("namespace clear failed", zap.Error(err))
		return
	}
	s.log.Info("namespace cleared", zap.Int("topics", n))

	// Reset the trigger so a retained "1" does not re-fire on reconnect.
	s.client.PublishRaw(uns.NewMessage(uns.ControlClearTopic, []byte("0")))

	for _, f := range s.facilities {
		if f.Enabled() {
			s.pub.Descriptive(f)
		}
	}
	s.publishStatus()
}

func (s *Simulator) gcShipped(now time.Time) {
	keep := s.shipped[:0]
	for _, sj := range s.shipped {
		if now.Sub(sj.at) < s.cfg.ShippedRetention {
			keep = append(keep, sj)
			continue
		}
		s.dpp.Delete(sj.job.ID)
	}
	s.shipped = keep
}

// publishStatus writes the simulator's own status topics. These bypass
// the level gate so operators can always see the simulator state, even
// while paused.
func (s *Simulator) publishStatus() {
	counters := s.client.Counters()
	sites := make(map[string]any, len(s.facilities))
	for _, f := range s.facilities {
		sites[f.SiteID()] = map[string]any{
			"enabled":     f.Enabled(),
			"machines":    len(f.Machines()),
			"queued_jobs": len(s.queues[f.SiteID()]),
		}
		enabled := "0"
		if f.Enabled() {
			enabled = "1"
		}
		s.client.PublishRaw(uns.NewMessage(uns.StatusSitesPrefix+f.SiteID()+"/enabled", []byte(enabled)))
	}

	payload, err := json.Marshal(map[string]any{
		"level":            int(s.client.Level()),
		"level_name":       s.client.Level().String(),
		"namespaces":       complexity.Namespaces(s.client.Level()),
		"tick":             s.tick,
		"uptime_s":         int(s.now.Sub(s.started).Seconds()),
		"sites":            sites,
		"messages_sent":    counters.Published,
		"messages_dropped": counters.Dropped,
		"messages_failed":  counters.Failed,
		"active_passports": len(s.dpp.Active()),
	})
	if err != nil {
		return
	}
	s.client.PublishRaw(uns.NewMessage(uns.StatusTopic, payload))
}

// firstRun logs a one-time welcome and drops a marker file so later runs
// start quietly.
func (s *Simulator) firstRun() {
	if s.cfg.FirstRunMarker == "" {
		return
	}
	if _, err := os.Stat(s.cfg.FirstRunMarker); err == nil {
		return
	}
	s.log.Info("first run: publishing to the UNS tree",
		zap.String("prefix", uns.DefaultPrefix),
		zap.String("control", uns.ControlLevelTopic))
	if err := os.MkdirAll(filepath.Dir(s.cfg.FirstRunMarker), 0o755); err != nil {
		return
	}
	_ = os.WriteFile(s.cfg.FirstRunMarker, []byte(time.Now().Format(time.RFC3339)+"\n"), 0o644)
}

// siteSource feeds one facility's machines from the site job queue.
type siteSource struct {
	s *Simulator
	f *facility.Facility
}

var _ machine.JobSource = (*siteSource)(nil)

func (ss *siteSource) Claim(cellID string) *jobs.Job {
	siteID := ss.f.SiteID()
	q := ss.s.queues[siteID]
	for i, j := range q {
		if j.Status != jobs.StatusQueued || j.CurrentRoutingCell() != cellID {
			continue
		}
		ss.s.queues[siteID] = append(q[:i:i], q[i+1:]...)
		ss.s.gen.Start(j, cellID)
		if ss.s.client.Level().Enables(complexity.LevelFull) && !ss.s.dpp.Has(j.ID) {
			ss.s.dpp.Create(j, siteID)
		}
		return j
	}
	return nil
}

func (ss *siteSource) Release(j *jobs.Job) {
	ss.s.dpp.RecordOperation(j.ID, j.CurrentCell, j.QtyComplete)
	if ss.s.gen.Advance(j) {
		if p := ss.s.dpp.Finalize(j.ID); p != nil {
			ss.s.pub.Passport(ss.f.SiteID(), p)
		}
		ss.s.gen.Ship(j)
		ss.s.shipped = append(ss.s.shipped, shippedJob{job: j, at: ss.s.now})
		return
	}
	// Each routing step works the full batch again.
	j.QtyComplete = 0
	ss.s.queues[ss.f.SiteID()] = append(ss.s.queues[ss.f.SiteID()], j)
}
