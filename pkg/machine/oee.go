package machine

import (
	"math"
	"time"
)

// OEE is the derived effectiveness triple plus display durations,
// recomputed on every tick.
type OEE struct {
	Availability float64 `json:"availability"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
	OEE          float64 `json:"oee"`

	DowntimeMinutes      float64 `json:"downtime_minutes"`
	IdleMinutes          float64 `json:"idle_minutes"`
	ShiftDurationMinutes float64 `json:"shift_duration_minutes"`
}

// perturbation keeps telemetry lines from flattening out visually.
const perturbation = 0.005

func (m *Machine) computeOEE(now time.Time) {
	// Floor the denominator so a fresh shift cannot divide by zero.
	planned := math.Max(now.Sub(m.shiftStart).Seconds(), 1.0)

	availability := clamp01(m.execSeconds / planned)

	performance := 0.0
	if execHours := m.execSeconds / 3600; execHours > 0 {
		performance = clamp01(float64(m.shiftOutfeed) / (m.idealRate * execHours))
	}

	quality := 1.0
	if total := m.shiftOutfeed + m.shiftWaste; total > 0 {
		quality = clamp01(float64(m.shiftOutfeed-m.shiftWaste) / float64(total))
	}

	availability = clamp01(availability + m.perturb())
	performance = clamp01(performance + m.perturb())
	quality = clamp01(quality + m.perturb())

	m.oee = OEE{
		Availability:         availability,
		Performance:          performance,
		Quality:              quality,
		OEE:                  availability * performance * quality,
		DowntimeMinutes:      round1(m.heldSeconds / 60),
		IdleMinutes:          round1(m.idleSeconds / 60),
		ShiftDurationMinutes: round1(planned / 60),
	}
}

func (m *Machine) perturb() float64 {
	return (m.rng.Float64()*2 - 1) * perturbation
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// ShiftAccumulators exposes the raw time buckets and counters for
// historian mirrors and tests.
type ShiftAccumulators struct {
	ShiftStart  time.Time
	ExecuteSecs float64
	IdleSecs    float64
	HeldSecs    float64
	Infeed      int
	Outfeed     int
	Waste       int
}

// Accumulators returns a snapshot of the shift accumulators.
func (m *Machine) Accumulators() ShiftAccumulators {
	return ShiftAccumulators{
		ShiftStart:  m.shiftStart,
		ExecuteSecs: m.execSeconds,
		IdleSecs:    m.idleSeconds,
		HeldSecs:    m.heldSeconds,
		Infeed:      m.shiftInfeed,
		Outfeed:     m.shiftOutfeed,
		Waste:       m.shiftWaste,
	}
}
