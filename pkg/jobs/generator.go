package jobs

import (
	"fmt"
	"math/rand"
	"time"
)

// customers pairs a customer with the product they order.
var customers = []struct {
	Customer string
	Product  string
}{
	{"Van der Berg Machinebouw", "Conveyor Side Panel"},
	{"Kempen Agritech", "Seed Drill Housing"},
	{"Rheinmetall Precision", "Gearbox Mounting Plate"},
	{"Nordic Marine Systems", "Pump Skid Frame"},
	{"Alpina Lift Components", "Elevator Door Panel"},
	{"Benelux Rail Services", "Cable Tray Bracket"},
	{"Donau Energietechnik", "Inverter Enclosure"},
}

var operators = []string{
	"J. van Dijk", "M. Peeters", "L. Janssens", "A. Popescu",
	"S. de Vries", "K. Ionescu", "T. Vermeulen", "R. Bakker",
}

// Generator creates work orders with plausible business context. All
// randomness flows through the injected source.
type Generator struct {
	rng     *rand.Rand
	now     func() time.Time
	counter int
}

// NewGenerator creates a job generator. Pass time.Now for production use.
func NewGenerator(rng *rand.Rand, now func() time.Time) *Generator {
	if now == nil {
		now = time.Now
	}
	return &Generator{rng: rng, now: now, counter: 9940}
}

// Generate creates a new queued job with the given routing.
func (g *Generator) Generate(routing []string) *Job {
	g.counter++
	now := g.now()

	pick := customers[g.rng.Intn(len(customers))]
	qty := 50 + g.rng.Intn(451)
	estimatedHours := float64(qty) * (0.02 + g.rng.Float64()*0.08)
	start := now.Add(time.Duration(g.rng.Intn(4)) * time.Hour)
	end := start.Add(time.Duration(estimatedHours * float64(time.Hour)))

	return &Job{
		ID:             fmt.Sprintf("JOB_%04d", g.counter),
		WorkOrder:      fmt.Sprintf("WO-%d-%04d", now.Year(), g.counter),
		Customer:       pick.Customer,
		ProductName:    pick.Product,
		Material:       Materials[g.rng.Intn(len(Materials))],
		Priority:       pickPriority(g.rng),
		Operator:       operators[g.rng.Intn(len(operators))],
		Routing:        routing,
		QtyTarget:      qty,
		Status:         StatusQueued,
		CreatedAt:      now,
		ScheduledStart: start,
		ScheduledEnd:   end,
		DueDate:        end.Add(time.Duration(24+g.rng.Intn(72)) * time.Hour),
		EstimatedHours: estimatedHours,
		LaborCostEUR:   estimatedHours * 55,
		MarginPct:      0.25 + g.rng.Float64()*0.15,
	}
}

// Start marks the job in progress at the given cell.
func (g *Generator) Start(j *Job, cellID string) {
	now := g.now()
	j.Status = StatusInProgress
	j.CurrentCell = cellID
	j.OperationStartedAt = &now
}

// Advance moves the job to its next routing step after the current cell
// finishes. It returns true when the routing is exhausted and the job is
// complete.
func (g *Generator) Advance(j *Job) bool {
	j.CurrentCell = ""
	j.OperationStartedAt = nil
	j.CurrentStep++
	if j.CurrentStep >= len(j.Routing) {
		now := g.now()
		j.Status = StatusCompleted
		j.CompletedAt = &now
		return true
	}
	j.Status = StatusQueued
	return false
}

// Ship marks a completed job shipped.
func (g *Generator) Ship(j *Job) {
	now := g.now()
	j.Status = StatusShipped
	j.ShippedAt = &now
}
