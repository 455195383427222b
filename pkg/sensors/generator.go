// Package sensors produces synthetic sensor readings conditioned on
// machine run-state.
//
// Values are stochastic by design: a state-dependent base, slow linear
// drift accumulated per elapsed hour, Gaussian noise, then a clamp to the
// configured range. Consumers should assert ranges and distributions, not
// exact values.
package sensors

import (
	"math"
	"math/rand"
	"time"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/packml"
)

// Config configures a single sensor.
type Config struct {
	// ID is the tag name published for this sensor (e.g. "laser_power_pct").
	ID string

	// Base is the nominal value produced while the machine executes.
	Base float64

	// Min and Max bound the emitted value. Stopped machines read Min.
	Min float64
	Max float64

	// NoiseStdDev is the standard deviation of the Gaussian noise term.
	NoiseStdDev float64

	// DriftPerHour is a slow linear offset accumulated while the sensor
	// ages, simulating calibration drift.
	DriftPerHour float64

	// Unit is a display unit carried in extended readings.
	Unit string
}

// Reading is a single generated sample.
type Reading struct {
	TimestampMS int64   `json:"timestamp_ms"`
	Value       float64 `json:"value"`
}

// ExtendedReading adds quality and identity fields for historian-style
// consumers.
type ExtendedReading struct {
	TimestampMS int64   `json:"timestamp_ms"`
	Value       float64 `json:"value"`
	Quality     string  `json:"quality"`
	Unit        string  `json:"unit,omitempty"`
	SensorID    string  `json:"sensor_id"`
}

// Generator produces readings for one sensor. Generating a value advances
// internal drift state, so a Generator models an aging physical sensor.
// Not safe for concurrent use; the tick loop owns it.
type Generator struct {
	cfg   Config
	rng   *rand.Rand
	now   func() time.Time
	drift float64
	last  time.Time
}

// NewGenerator creates a Generator using the given random source and
// clock. Pass time.Now for production use.
func NewGenerator(cfg Config, rng *rand.Rand, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{cfg: cfg, rng: rng, now: now}
}

// Config returns the sensor's configuration.
func (g *Generator) Config() Config { return g.cfg }

// Generate produces the next reading for the given machine state.
func (g *Generator) Generate(state packml.State) Reading {
	ts := g.now()
	return Reading{TimestampMS: ts.UnixMilli(), Value: g.compute(state, ts)}
}

// GenerateExtended produces the next reading with quality and identity.
func (g *Generator) GenerateExtended(state packml.State) ExtendedReading {
	ts := g.now()
	return ExtendedReading{
		TimestampMS: ts.UnixMilli(),
		Value:       g.compute(state, ts),
		Quality:     "GOOD",
		Unit:        g.cfg.Unit,
		SensorID:    g.cfg.ID,
	}
}

func (g *Generator) compute(state packml.State, ts time.Time) float64 {
	if !g.last.IsZero() {
		g.drift += g.cfg.DriftPerHour * ts.Sub(g.last).Hours()
	}
	g.last = ts

	var base float64
	switch {
	case state.IsStopped():
		base = g.cfg.Min
	case state.IsProducing():
		base = g.cfg.Base + g.drift
	default:
		base = g.cfg.Base * 0.5
	}

	v := base + g.rng.NormFloat64()*g.cfg.NoiseStdDev
	v = math.Max(g.cfg.Min, math.Min(g.cfg.Max, v))
	return math.Round(v*100) / 100
}

// ForCellType returns the sensor set for a cell type, in publish order.
func ForCellType(cellType string, rng *rand.Rand, now func() time.Time) []*Generator {
	var configs []Config
	switch cellType {
	case "laser_cutter":
		configs = []Config{
			{ID: "LaserPower", Base: 88, Min: 0, Max: 100, NoiseStdDev: 4, Unit: "%"},
			{ID: "CuttingSpeed", Base: 3000, Min: 0, Max: 4200, NoiseStdDev: 300, Unit: "mm/min"},
			{ID: "AssistGas", Base: 11.5, Min: 0, Max: 15, NoiseStdDev: 1, Unit: "bar"},
			{ID: "FocalPosition", Base: 1.5, Min: -5, Max: 5, NoiseStdDev: 0.2, Unit: "mm"},
			{ID: "SheetTemp", Base: 200, Min: 0, Max: 320, NoiseStdDev: 25, DriftPerHour: 0.5, Unit: "°C"},
		}
	case "press_brake":
		configs = []Config{
			{ID: "Tonnage", Base: 125, Min: 0, Max: 200, NoiseStdDev: 15, Unit: "t"},
			{ID: "BendAngle", Base: 90, Min: 0, Max: 150, NoiseStdDev: 10, Unit: "°"},
			{ID: "StrokePosition", Base: 50, Min: 0, Max: 100, NoiseStdDev: 20, Unit: "%"},
			{ID: "BackgaugePos", Base: 400, Min: 0, Max: 800, NoiseStdDev: 30, Unit: "mm"},
		}
	case "robot_weld", "manual_weld":
		configs = []Config{
			{ID: "WeldCurrent", Base: 225, Min: 0, Max: 300, NoiseStdDev: 20, Unit: "A"},
			{ID: "WeldVoltage", Base: 27, Min: 0, Max: 35, NoiseStdDev: 2, Unit: "V"},
			{ID: "WireFeed", Base: 10, Min: 0, Max: 15, NoiseStdDev: 1.2, Unit: "m/min"},
			{ID: "GasFlow", Base: 16, Min: 0, Max: 20, NoiseStdDev: 1, Unit: "l/min"},
		}
	case "powder_coating_line":
		configs = []Config{
			{ID: "OvenTemp", Base: 190, Min: 0, Max: 205, NoiseStdDev: 3, Unit: "°C"},
			{ID: "BoothHumidity", Base: 50, Min: 0, Max: 70, NoiseStdDev: 4, Unit: "%"},
			{ID: "ConveyorSpeed", Base: 2.2, Min: 0, Max: 3, NoiseStdDev: 0.2, Unit: "m/min"},
			{ID: "PowderFlow", Base: 120, Min: 0, Max: 180, NoiseStdDev: 8, Unit: "g/min"},
		}
	case "agv":
		configs = []Config{
			{ID: "BatteryLevel", Base: 80, Min: 0, Max: 100, NoiseStdDev: 1, DriftPerHour: -2, Unit: "%"},
			{ID: "Speed", Base: 1.2, Min: 0, Max: 2.0, NoiseStdDev: 0.1, Unit: "m/s"},
		}
	default:
		configs = []Config{
			{ID: "Power", Base: 10, Min: 0, Max: 25, NoiseStdDev: 1, Unit: "kW"},
		}
	}

	gens := make([]*Generator, len(configs))
	for i, cfg := range configs {
		gens[i] = NewGenerator(cfg, rng, now)
	}
	return gens
}
