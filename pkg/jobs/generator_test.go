package jobs

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClock() func() time.Time {
	t := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	return func() time.Time { return t }
}

func TestGenerate(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(1)), testClock())
	routing := []string{"laser_01", "press_brake_01", "assembly_01"}

	j := g.Generate(routing)
	assert.Regexp(t, `^JOB_\d{4}$`, j.ID)
	assert.Regexp(t, `^WO-2025-\d{4}$`, j.WorkOrder)
	assert.Equal(t, StatusQueued, j.Status)
	assert.Equal(t, routing, j.Routing)
	assert.Equal(t, "laser_01", j.CurrentRoutingCell())
	assert.GreaterOrEqual(t, j.QtyTarget, 50)
	assert.LessOrEqual(t, j.QtyTarget, 500)
	assert.NotEmpty(t, j.Customer)
	assert.NotEmpty(t, j.Material.Code)
	assert.True(t, j.DueDate.After(j.ScheduledEnd))
	assert.Greater(t, j.LaborCostEUR, 0.0)

	j2 := g.Generate(routing)
	assert.NotEqual(t, j.ID, j2.ID, "IDs are sequential")
}

func TestPriorityDistribution(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(42)), testClock())
	counts := map[Priority]int{}
	const n = 10000
	for i := 0; i < n; i++ {
		counts[g.Generate([]string{"laser_01"}).Priority]++
	}
	assert.InDelta(t, 0.30, float64(counts[PriorityLow])/n, 0.03)
	assert.InDelta(t, 0.50, float64(counts[PriorityNormal])/n, 0.03)
	assert.InDelta(t, 0.15, float64(counts[PriorityHigh])/n, 0.03)
	assert.InDelta(t, 0.05, float64(counts[PriorityUrgent])/n, 0.03)
}

func TestLifecycle(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(2)), testClock())
	j := g.Generate([]string{"laser_01", "assembly_01"})

	g.Start(j, "laser_01")
	assert.Equal(t, StatusInProgress, j.Status)
	assert.Equal(t, "laser_01", j.CurrentCell)
	require.NotNil(t, j.OperationStartedAt)
	assert.True(t, j.Active())

	done := g.Advance(j)
	assert.False(t, done)
	assert.Equal(t, StatusQueued, j.Status)
	assert.Equal(t, "assembly_01", j.CurrentRoutingCell())
	assert.Empty(t, j.CurrentCell)

	g.Start(j, "assembly_01")
	done = g.Advance(j)
	assert.True(t, done)
	assert.Equal(t, StatusCompleted, j.Status)
	require.NotNil(t, j.CompletedAt)
	assert.False(t, j.Active())

	g.Ship(j)
	assert.Equal(t, StatusShipped, j.Status)
	require.NotNil(t, j.ShippedAt)
}

func TestProgressPct(t *testing.T) {
	j := &Job{QtyTarget: 200, QtyComplete: 50}
	assert.InDelta(t, 25.0, j.ProgressPct(), 0.001)

	j.QtyComplete = 250
	assert.InDelta(t, 100.0, j.ProgressPct(), 0.001, "capped at 100")

	assert.Zero(t, (&Job{}).ProgressPct())
}

func TestDeliveryStatus(t *testing.T) {
	base := time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	j := &Job{
		ScheduledEnd: base.Add(24 * time.Hour),
		DueDate:      base.Add(72 * time.Hour),
	}
	assert.Equal(t, "AHEAD", j.DeliveryStatus(base))
	assert.Equal(t, "ON_TIME", j.DeliveryStatus(base.Add(48*time.Hour)))
	assert.Equal(t, "LATE", j.DeliveryStatus(base.Add(96*time.Hour)))
}
