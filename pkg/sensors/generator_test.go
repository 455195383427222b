package sensors

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/packml"
)

func fixedClock(start time.Time, step time.Duration) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(step)
		return t
	}
}

func TestGenerateStaysInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	cfg := Config{ID: "power_kw", Base: 42, Min: 5, Max: 55, NoiseStdDev: 10}
	g := NewGenerator(cfg, rng, fixedClock(time.Unix(0, 0), time.Second))

	for i := 0; i < 5000; i++ {
		r := g.Generate(packml.StateExecute)
		assert.GreaterOrEqual(t, r.Value, cfg.Min)
		assert.LessOrEqual(t, r.Value, cfg.Max)
	}
}

func TestStateDependentBase(t *testing.T) {
	cfg := Config{ID: "tonnage_t", Base: 180, Min: 0, Max: 320, NoiseStdDev: 1}

	sample := func(state packml.State) float64 {
		rng := rand.New(rand.NewSource(7))
		g := NewGenerator(cfg, rng, fixedClock(time.Unix(0, 0), time.Second))
		var sum float64
		const n = 2000
		for i := 0; i < n; i++ {
			sum += g.Generate(state).Value
		}
		return sum / n
	}

	assert.InDelta(t, 180, sample(packml.StateExecute), 1.0, "running mean near base")
	assert.InDelta(t, 0, sample(packml.StateIdle), 0.5, "idle mean near min")
	assert.InDelta(t, 0, sample(packml.StateStopped), 0.5)
	assert.InDelta(t, 90, sample(packml.StateStarting), 1.0, "transitional mean near half base")
	assert.InDelta(t, 90, sample(packml.StateSuspended), 1.0)
}

func TestDriftAccumulatesWithElapsedTime(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	cfg := Config{ID: "coolant_temp_c", Base: 22, Min: 0, Max: 100, NoiseStdDev: 0, DriftPerHour: 2}
	g := NewGenerator(cfg, rng, fixedClock(time.Unix(0, 0), time.Hour))

	first := g.Generate(packml.StateExecute)
	assert.InDelta(t, 22, first.Value, 0.01, "no drift on first sample")

	second := g.Generate(packml.StateExecute)
	assert.InDelta(t, 24, second.Value, 0.01, "one hour of drift")

	third := g.Generate(packml.StateExecute)
	assert.InDelta(t, 26, third.Value, 0.01)
}

func TestGenerateExtended(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	cfg := Config{ID: "assist_gas_bar", Base: 12, Min: 0, Max: 25, NoiseStdDev: 0.5, Unit: "bar"}
	g := NewGenerator(cfg, rng, fixedClock(time.Unix(1700000000, 0), time.Second))

	r := g.GenerateExtended(packml.StateExecute)
	assert.Equal(t, "GOOD", r.Quality)
	assert.Equal(t, "bar", r.Unit)
	assert.Equal(t, "assist_gas_bar", r.SensorID)
	assert.Greater(t, r.TimestampMS, int64(1700000000000))
}

func TestForCellType(t *testing.T) {
	rng := rand.New(rand.NewSource(9))

	tests := []struct {
		cellType string
		ids      []string
	}{
		{"laser_cutter", []string{"LaserPower", "CuttingSpeed", "AssistGas", "FocalPosition", "SheetTemp"}},
		{"press_brake", []string{"Tonnage", "BendAngle", "StrokePosition", "BackgaugePos"}},
		{"robot_weld", []string{"WeldCurrent", "WeldVoltage", "WireFeed", "GasFlow"}},
		{"powder_coating_line", []string{"OvenTemp", "BoothHumidity", "ConveyorSpeed", "PowderFlow"}},
		{"agv", []string{"BatteryLevel", "Speed"}},
		{"assembly", []string{"Power"}},
	}

	for _, tt := range tests {
		t.Run(tt.cellType, func(t *testing.T) {
			gens := ForCellType(tt.cellType, rng, nil)
			require.Len(t, gens, len(tt.ids))
			for i, g := range gens {
				assert.Equal(t, tt.ids[i], g.Config().ID)
			}
		})
	}
}
