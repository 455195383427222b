// Package machine implements the per-cell state machine and OEE
// accumulation engine at the heart of the simulation.
//
// Each Machine models one physical cell. The orchestrator drives it with
// one Tick per interval; the tick captures elapsed wall-clock time,
// accumulates it into the shift time buckets by pre-transition state,
// applies the transition table, and recomputes the OEE triple. All
// randomness flows through an injected source so behavior is reproducible
// under a fixed seed.
package machine

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/jobs"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/packml"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/sensors"
)

// DefaultShiftDuration is the accumulation window for shift counters.
const DefaultShiftDuration = 8 * time.Hour

// IdealCycleRates maps cell type to the ideal production rate in parts
// per hour used by the performance calculation.
var IdealCycleRates = map[string]float64{
	"laser_cutter":        30,
	"press_brake":         45,
	"robot_weld":          20,
	"manual_weld":         12,
	"assembly":            25,
	"powder_coating_line": 15,
	"quality_control":     40,
	"agv":                 60,
}

// DefaultIdealCycleRate applies to cell types missing from the table.
const DefaultIdealCycleRate = 25

// IdealRateFor returns the ideal cycle rate for a cell type.
func IdealRateFor(cellType string) float64 {
	if r, ok := IdealCycleRates[cellType]; ok {
		return r
	}
	return DefaultIdealCycleRate
}

// Probabilities holds the per-tick transition and production
// probabilities. Tests override individual entries to force paths.
type Probabilities struct {
	JobPickup        float64 // IDLE → STARTING when a matching job is queued
	Infeed           float64 // EXECUTE: infeed counter increment
	Outfeed          float64 // EXECUTE: outfeed counter increment
	Waste            float64 // EXECUTE: waste counter increment
	Microstop        float64 // EXECUTE → HOLDING (microstop)
	Breakdown        float64 // EXECUTE → HOLDING (breakdown)
	EarlyComplete    float64 // EXECUTE → COMPLETING (changeover)
	Suspend          float64 // EXECUTE → SUSPENDING (planned)
	MicrostopRecover float64 // HOLDING → EXECUTE per tick while microstopped
	BreakdownRecover float64 // HOLDING → EXECUTE per tick otherwise
}

// DefaultProbabilities returns the production transition table.
func DefaultProbabilities() Probabilities {
	return Probabilities{
		JobPickup:        0.1,
		Infeed:           0.3,
		Outfeed:          0.28,
		Waste:            0.01,
		Microstop:        0.02,
		Breakdown:        0.003,
		EarlyComplete:    0.02,
		Suspend:          0.03,
		MicrostopRecover: 0.40,
		BreakdownRecover: 0.05,
	}
}

// Config describes one cell.
type Config struct {
	ID    string
	Name  string
	Type  string
	Area  string
	OEM   string
	Model string

	// IdealRate overrides the per-type ideal cycle rate when non-zero.
	IdealRate float64

	// ShiftDuration overrides DefaultShiftDuration when non-zero.
	ShiftDuration time.Duration

	// Dwell times in simulated seconds for the fixed-dwell states.
	// Zero values select the defaults (3s completing, 3s suspending,
	// 2s unsuspending).
	CompletingDwellS   float64
	SuspendingDwellS   float64
	UnsuspendingDwellS float64

	// Probs overrides DefaultProbabilities when non-nil.
	Probs *Probabilities
}

// Asset holds the static descriptive identity of a cell, published once
// under the Asset namespace.
type Asset struct {
	AssetID      int    `json:"asset_id"`
	SerialNumber string `json:"serial_number"`
	InService    string `json:"in_service"`
	OEM          string `json:"oem"`
	Model        string `json:"model"`
}

// JobSource supplies queued jobs to idle cells and takes finished ones
// back. The orchestrator implements it; claims happen inside the
// single-threaded tick, so no locking is required.
type JobSource interface {
	// Claim returns the next queued job whose current routing step is
	// cellID and marks it started, or nil when none is available.
	Claim(cellID string) *jobs.Job

	// Release hands a job back after the cell finished its routing step.
	Release(j *jobs.Job)
}

// Machine is the state machine and OEE accumulator for one cell.
// Not safe for concurrent use; only the tick loop mutates it.
type Machine struct {
	cfg       Config
	probs     Probabilities
	idealRate float64
	shiftDur  time.Duration
	rng       *rand.Rand

	asset   Asset
	sensors []*sensors.Generator

	state    packml.State
	subState packml.SubState
	stop     *StopReason
	job      *jobs.Job

	shiftStart   time.Time
	lastTick     time.Time
	execSeconds  float64
	idleSeconds  float64
	heldSeconds  float64
	stateElapsed float64
	suspendDwell float64

	shiftInfeed   int
	shiftOutfeed  int
	shiftWaste    int
	partsProduced int
	partsScrap    int

	oee OEE
}

// New creates a Machine in IDLE with a fresh shift starting at now.
func New(cfg Config, rng *rand.Rand, now time.Time) *Machine {
	probs := DefaultProbabilities()
	if cfg.Probs != nil {
		probs = *cfg.Probs
	}
	idealRate := cfg.IdealRate
	if idealRate == 0 {
		idealRate = IdealRateFor(cfg.Type)
	}
	shiftDur := cfg.ShiftDuration
	if shiftDur == 0 {
		shiftDur = DefaultShiftDuration
	}
	if cfg.CompletingDwellS == 0 {
		cfg.CompletingDwellS = 3
	}
	if cfg.SuspendingDwellS == 0 {
		cfg.SuspendingDwellS = 3
	}
	if cfg.UnsuspendingDwellS == 0 {
		cfg.UnsuspendingDwellS = 2
	}

	inService := now.AddDate(-rng.Intn(10), -rng.Intn(12), 0)
	m := &Machine{
		cfg:       cfg,
		probs:     probs,
		idealRate: idealRate,
		shiftDur:  shiftDur,
		rng:       rng,
		asset: Asset{
			AssetID:      1 + rng.Intn(999),
			SerialNumber: fmt.Sprintf("SN%06d", rng.Intn(1000000)),
			InService:    inService.Format("2006-01-02"),
			OEM:          cfg.OEM,
			Model:        cfg.Model,
		},
		sensors:    sensors.ForCellType(cfg.Type, rng, nil),
		state:      packml.StateIdle,
		subState:   packml.SubStateNone,
		shiftStart: now,
	}
	m.computeOEE(now)
	return m
}

// Tick advances the machine by one simulation step.
func (m *Machine) Tick(now time.Time, js JobSource) {
	var elapsed float64
	if !m.lastTick.IsZero() {
		elapsed = now.Sub(m.lastTick).Seconds()
	}
	m.lastTick = now
	m.stateElapsed += elapsed

	// Time is attributed to the pre-transition state.
	switch {
	case m.state == packml.StateExecute:
		m.execSeconds += elapsed
	case m.state == packml.StateIdle:
		m.idleSeconds += elapsed
	case m.state.IsHeld():
		m.heldSeconds += elapsed
	}

	// The shift boundary must fire before the OEE ratios are computed so
	// the new shift starts from a clean baseline.
	if now.Sub(m.shiftStart) >= m.shiftDur {
		m.resetShift(now)
	}

	m.transition(js)
	m.computeOEE(now)
}

func (m *Machine) transition(js JobSource) {
	switch m.state {
	case packml.StateIdle:
		if m.job == nil && js != nil && m.rng.Float64() < m.probs.JobPickup {
			if j := js.Claim(m.cfg.ID); j != nil {
				m.job = j
				m.stop = nil
				m.setState(packml.StateStarting, packml.SubStateSetup)
				return
			}
		}
		if m.stop == nil {
			// Cosmetic idle classification for dashboards.
			category := StopChangeover
			if m.rng.Float64() >= 0.7 {
				category = StopPlanned
			}
			reason := PickStopReason(m.rng, category)
			m.stop = &reason
		}

	case packml.StateStarting:
		m.stop = nil
		m.setState(packml.StateExecute, packml.ExecuteSubState(m.cfg.Type))

	case packml.StateExecute:
		m.rollProduction()

		if m.job != nil && m.job.QtyComplete >= m.job.QtyTarget {
			m.setState(packml.StateCompleting, packml.SubStateChangeover)
			return
		}

		// At most one stochastic transition per tick; first match wins.
		switch {
		case m.rng.Float64() < m.probs.Microstop:
			m.hold(StopMicrostop, packml.SubStateFaultClearing)
		case m.rng.Float64() < m.probs.Breakdown:
			m.hold(StopBreakdown, packml.SubStateMaintenance)
		case m.rng.Float64() < m.probs.EarlyComplete:
			reason := PickStopReason(m.rng, StopChangeover)
			m.stop = &reason
			m.setState(packml.StateCompleting, packml.SubStateChangeover)
		case m.rng.Float64() < m.probs.Suspend:
			reason := PickStopReason(m.rng, StopPlanned)
			m.stop = &reason
			m.setState(packml.StateSuspending, packml.SubStateToolChange)
		}

	case packml.StateHolding:
		recover := m.probs.BreakdownRecover
		if m.stop != nil && m.stop.Category == StopMicrostop {
			recover = m.probs.MicrostopRecover
		}
		if m.rng.Float64() < recover {
			m.stop = nil
			m.setState(packml.StateExecute, packml.ExecuteSubState(m.cfg.Type))
		}

	case packml.StateCompleting:
		if m.stateElapsed >= m.cfg.CompletingDwellS {
			if m.job != nil {
				if js != nil {
					js.Release(m.job)
				}
				m.job = nil
			}
			reason := PickStopReason(m.rng, StopChangeover)
			m.stop = &reason
			m.setState(packml.StateIdle, packml.SubStateChangeover)
		}

	case packml.StateSuspending:
		if m.stateElapsed >= m.cfg.SuspendingDwellS {
			m.suspendDwell = 10 + m.rng.Float64()*35
			m.setState(packml.StateSuspended, m.subState)
		}

	case packml.StateSuspended:
		if m.stateElapsed >= m.suspendDwell {
			m.setState(packml.StateUnsuspending, m.subState)
		}

	case packml.StateUnsuspending:
		if m.stateElapsed >= m.cfg.UnsuspendingDwellS {
			m.stop = nil
			m.setState(packml.StateExecute, packml.ExecuteSubState(m.cfg.Type))
		}
	}
}

func (m *Machine) rollProduction() {
	if m.rng.Float64() < m.probs.Infeed {
		m.shiftInfeed++
	}
	if m.rng.Float64() < m.probs.Outfeed {
		m.shiftOutfeed++
		m.partsProduced++
		if m.job != nil {
			m.job.QtyComplete++
		}
	}
	if m.rng.Float64() < m.probs.Waste {
		m.shiftWaste++
		m.partsScrap++
		if m.job != nil {
			m.job.QtyScrap++
		}
	}
}

func (m *Machine) hold(category StopCategory, sub packml.SubState) {
	reason := PickStopReason(m.rng, category)
	m.stop = &reason
	m.setState(packml.StateHolding, sub)
}

// Hold forces the machine into HOLDING with the given reason. Exposed for
// external fault injection.
func (m *Machine) Hold(reason StopReason) {
	m.stop = &reason
	m.setState(packml.StateHolding, packml.SubStateFaultClearing)
}

func (m *Machine) setState(s packml.State, sub packml.SubState) {
	m.state = s
	m.subState = sub
	m.stateElapsed = 0
}

func (m *Machine) resetShift(now time.Time) {
	m.shiftStart = now
	m.execSeconds = 0
	m.idleSeconds = 0
	m.heldSeconds = 0
	m.shiftInfeed = 0
	m.shiftOutfeed = 0
	m.shiftWaste = 0
}

// Accessors. The publisher reads these every tick.

func (m *Machine) ID() string                { return m.cfg.ID }
func (m *Machine) Name() string              { return m.cfg.Name }
func (m *Machine) Type() string              { return m.cfg.Type }
func (m *Machine) Area() string              { return m.cfg.Area }
func (m *Machine) State() packml.State       { return m.state }
func (m *Machine) SubState() packml.SubState { return m.subState }
func (m *Machine) Asset() Asset              { return m.asset }
func (m *Machine) OEE() OEE                  { return m.oee }
func (m *Machine) IdealRate() float64        { return m.idealRate }

// Stop returns the active stop reason, or nil while producing.
func (m *Machine) Stop() *StopReason { return m.stop }

// Job returns the job the cell is working, or nil.
func (m *Machine) Job() *jobs.Job { return m.job }

// Counters returns the shift production counters and lifetime totals.
func (m *Machine) Counters() (infeed, outfeed, waste, produced, scrap int) {
	return m.shiftInfeed, m.shiftOutfeed, m.shiftWaste, m.partsProduced, m.partsScrap
}

// Readings samples every sensor for the current state, keyed by tag name.
func (m *Machine) Readings() map[string]sensors.Reading {
	out := make(map[string]sensors.Reading, len(m.sensors))
	for _, g := range m.sensors {
		out[g.Config().ID] = g.Generate(m.state)
	}
	return out
}
