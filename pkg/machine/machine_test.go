package machine

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/jobs"
	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/packml"
)

// queueSource is a minimal JobSource backed by a slice.
type queueSource struct {
	queued   []*jobs.Job
	released []*jobs.Job
}

func (q *queueSource) Claim(cellID string) *jobs.Job {
	for i, j := range q.queued {
		if j.CurrentRoutingCell() == cellID {
			q.queued = append(q.queued[:i], q.queued[i+1:]...)
			j.Status = jobs.StatusInProgress
			j.CurrentCell = cellID
			return j
		}
	}
	return nil
}

func (q *queueSource) Release(j *jobs.Job) { q.released = append(q.released, j) }

func queuedJob(cellID string, target int) *jobs.Job {
	return &jobs.Job{
		ID:        "JOB_9941",
		Routing:   []string{cellID},
		QtyTarget: target,
		Status:    jobs.StatusQueued,
	}
}

var t0 = time.Date(2025, 6, 2, 6, 0, 0, 0, time.UTC)

func newTestMachine(t *testing.T, seed int64, cfg Config) *Machine {
	t.Helper()
	if cfg.ID == "" {
		cfg.ID = "laser_01"
	}
	if cfg.Type == "" {
		cfg.Type = "laser_cutter"
	}
	return New(cfg, rand.New(rand.NewSource(seed)), t0)
}

func TestReachesExecuteWithQueuedJob(t *testing.T) {
	m := newTestMachine(t, 1, Config{})
	src := &queueSource{queued: []*jobs.Job{queuedJob("laser_01", 100)}}

	now := t0
	for i := 0; i < 200 && m.State() != packml.StateExecute; i++ {
		now = now.Add(time.Second)
		m.Tick(now, src)
	}
	require.Equal(t, packml.StateExecute, m.State())
	require.NotNil(t, m.Job())
	assert.Equal(t, "JOB_9941", m.Job().ID)
	assert.Equal(t, packml.SubStateCutting, m.SubState())
}

func TestIdleWithoutJobGetsStopReason(t *testing.T) {
	m := newTestMachine(t, 2, Config{})
	src := &queueSource{}

	now := t0
	for i := 0; i < 50; i++ {
		now = now.Add(time.Second)
		m.Tick(now, src)
	}
	assert.Equal(t, packml.StateIdle, m.State())
	require.NotNil(t, m.Stop())
	cat := m.Stop().Category
	assert.True(t, cat == StopChangeover || cat == StopPlanned, string(cat))
}

func TestIdleStopCategorySplit(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	probs := DefaultProbabilities()
	probs.JobPickup = 0

	counts := map[StopCategory]int{}
	const n = 5000
	for i := 0; i < n; i++ {
		m := New(Config{ID: "c", Type: "assembly", Probs: &probs}, rng, t0)
		m.Tick(t0.Add(time.Second), &queueSource{})
		counts[m.Stop().Category]++
	}
	assert.InDelta(t, 0.70, float64(counts[StopChangeover])/n, 0.03)
	assert.InDelta(t, 0.30, float64(counts[StopPlanned])/n, 0.03)
}

func TestNoStopReasonWhileExecuting(t *testing.T) {
	m := newTestMachine(t, 3, Config{})
	src := &queueSource{}
	for i := 0; i < 5; i++ {
		src.queued = append(src.queued, queuedJob("laser_01", 50))
	}

	now := t0
	for i := 0; i < 20000; i++ {
		now = now.Add(time.Second)
		m.Tick(now, src)
		if m.State() == packml.StateExecute {
			assert.Nil(t, m.Stop(), "tick %d", i)
		}
		if len(src.queued) == 0 {
			src.queued = append(src.queued, queuedJob("laser_01", 50))
		}
	}
}

func TestQtyCompleteNeverDecreases(t *testing.T) {
	m := newTestMachine(t, 4, Config{})
	src := &queueSource{queued: []*jobs.Job{queuedJob("laser_01", 100000)}}

	now := t0
	prev := 0
	for i := 0; i < 10000; i++ {
		now = now.Add(time.Second)
		m.Tick(now, src)
		if j := m.Job(); j != nil {
			assert.GreaterOrEqual(t, j.QtyComplete, prev)
			prev = j.QtyComplete
		} else {
			prev = 0
		}
	}
}

func TestOEEBoundsAndProduct(t *testing.T) {
	m := newTestMachine(t, 5, Config{})
	src := &queueSource{queued: []*jobs.Job{queuedJob("laser_01", 100000)}}

	now := t0
	for i := 0; i < 5000; i++ {
		now = now.Add(time.Second)
		m.Tick(now, src)

		o := m.OEE()
		for name, v := range map[string]float64{
			"availability": o.Availability,
			"performance":  o.Performance,
			"quality":      o.Quality,
			"oee":          o.OEE,
		} {
			assert.GreaterOrEqual(t, v, 0.0, name)
			assert.LessOrEqual(t, v, 1.0, name)
		}
		assert.InDelta(t, o.Availability*o.Performance*o.Quality, o.OEE, 1e-9)
	}
}

func TestShiftResetClearsAccumulators(t *testing.T) {
	probs := DefaultProbabilities()
	probs.JobPickup = 0 // keep the cell idle so nothing accrues post-reset
	m := newTestMachine(t, 6, Config{ShiftDuration: time.Minute, Probs: &probs})
	src := &queueSource{}

	now := t0
	for i := 0; i < 59; i++ {
		now = now.Add(time.Second)
		m.Tick(now, src)
	}
	acc := m.Accumulators()
	assert.Equal(t, t0, acc.ShiftStart, "no reset before the boundary")
	assert.Greater(t, acc.IdleSecs, 0.0)

	// This tick crosses the 60s boundary.
	now = now.Add(time.Second)
	m.Tick(now, src)

	acc = m.Accumulators()
	assert.Equal(t, now, acc.ShiftStart)
	assert.Zero(t, acc.ExecuteSecs)
	assert.Zero(t, acc.IdleSecs)
	assert.Zero(t, acc.HeldSecs)
	assert.Zero(t, acc.Infeed)
	assert.Zero(t, acc.Outfeed)
	assert.Zero(t, acc.Waste)
}

func meanRecoveryTicks(t *testing.T, category StopCategory, trials int) float64 {
	t.Helper()
	rng := rand.New(rand.NewSource(99))
	total := 0
	for i := 0; i < trials; i++ {
		m := New(Config{ID: "c", Type: "laser_cutter"}, rng, t0)
		m.Hold(PickStopReason(rng, category))

		now := t0
		ticks := 0
		for m.State() != packml.StateExecute {
			now = now.Add(time.Second)
			m.Tick(now, &queueSource{})
			ticks++
			require.Less(t, ticks, 10000, "machine never recovered")
		}
		total += ticks
	}
	return float64(total) / float64(trials)
}

func TestRecoveryTimingByCategory(t *testing.T) {
	micro := meanRecoveryTicks(t, StopMicrostop, 1000)
	assert.InDelta(t, 2.5, micro, 2.5*0.2, "microstop mean recovery")

	breakdown := meanRecoveryTicks(t, StopBreakdown, 1000)
	assert.InDelta(t, 20.0, breakdown, 20.0*0.2, "breakdown mean recovery")
}

func TestFullShiftHourAtIdealRate(t *testing.T) {
	probs := Probabilities{} // no stochastic transitions or production
	m := newTestMachine(t, 7, Config{Probs: &probs})
	m.state = packml.StateExecute

	src := &queueSource{}
	now := t0
	m.Tick(now, src) // anchor lastTick

	for i := 1; i <= 3600; i++ {
		now = now.Add(time.Second)
		// 30 parts spread evenly across the hour, matching the laser
		// cutter's ideal rate.
		if i%120 == 0 {
			m.shiftOutfeed++
		}
		m.Tick(now, src)
	}

	o := m.OEE()
	assert.InDelta(t, 1.0, o.Availability, 0.006)
	assert.InDelta(t, 1.0, o.Performance, 0.006)
	assert.InDelta(t, 1.0, o.Quality, 0.006)
	assert.InDelta(t, 1.0, o.OEE, 0.02)
	assert.InDelta(t, 60.0, o.ShiftDurationMinutes, 0.2)
	assert.Zero(t, o.DowntimeMinutes)
}

func TestCompletingReleasesJobAndReturnsToIdle(t *testing.T) {
	probs := DefaultProbabilities()
	probs.Microstop = 0
	probs.Breakdown = 0
	probs.EarlyComplete = 0
	probs.Suspend = 0
	probs.Outfeed = 1.0
	probs.JobPickup = 1.0

	m := newTestMachine(t, 8, Config{Probs: &probs})
	src := &queueSource{queued: []*jobs.Job{queuedJob("laser_01", 3)}}

	now := t0
	sawCompleting := false
	for i := 0; i < 60 && len(src.released) == 0; i++ {
		now = now.Add(time.Second)
		m.Tick(now, src)
		if m.State() == packml.StateCompleting {
			sawCompleting = true
		}
	}
	require.Len(t, src.released, 1)
	assert.True(t, sawCompleting)
	assert.Equal(t, 3, src.released[0].QtyComplete)
	assert.Equal(t, packml.StateIdle, m.State())
	assert.Nil(t, m.Job())
	require.NotNil(t, m.Stop(), "changeover reason after completion")
	assert.Equal(t, StopChangeover, m.Stop().Category)
}

func TestSuspendPathRoundTrip(t *testing.T) {
	probs := DefaultProbabilities()
	probs.Microstop = 0
	probs.Breakdown = 0
	probs.EarlyComplete = 0
	probs.Suspend = 1.0
	probs.JobPickup = 1.0

	m := newTestMachine(t, 9, Config{Probs: &probs})
	src := &queueSource{queued: []*jobs.Job{queuedJob("laser_01", 100000)}}

	now := t0
	seen := map[packml.State]bool{}
	for i := 0; i < 300; i++ {
		now = now.Add(time.Second)
		m.Tick(now, src)
		seen[m.State()] = true
		if m.State() == packml.StateSuspended {
			require.NotNil(t, m.Stop())
			assert.Equal(t, StopPlanned, m.Stop().Category)
		}
	}
	assert.True(t, seen[packml.StateSuspending])
	assert.True(t, seen[packml.StateSuspended])
	assert.True(t, seen[packml.StateUnsuspending])
	assert.True(t, seen[packml.StateExecute])
}

func TestAssetIdentity(t *testing.T) {
	m := newTestMachine(t, 10, Config{OEM: "TRUMPF", Model: "TruLaser 3030"})
	a := m.Asset()
	assert.GreaterOrEqual(t, a.AssetID, 1)
	assert.LessOrEqual(t, a.AssetID, 999)
	assert.Regexp(t, `^SN\d{6}$`, a.SerialNumber)
	assert.Equal(t, "TRUMPF", a.OEM)
	assert.Equal(t, "TruLaser 3030", a.Model)
	assert.NotEmpty(t, a.InService)
}

func TestIdealRateLookup(t *testing.T) {
	assert.EqualValues(t, 30, IdealRateFor("laser_cutter"))
	assert.EqualValues(t, 20, IdealRateFor("robot_weld"))
	assert.EqualValues(t, 25, IdealRateFor("unknown_type"))
}
