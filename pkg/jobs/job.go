// Package jobs models work orders flowing through cells and generates
// their decorative business context (customers, products, materials).
package jobs

import (
	"math/rand"
	"time"
)

// Status is a job lifecycle status.
type Status string

const (
	StatusCreated    Status = "CREATED"
	StatusQueued     Status = "QUEUED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusOnHold     Status = "ON_HOLD"
	StatusBlocked    Status = "BLOCKED"
	StatusCompleted  Status = "COMPLETED"
	StatusShipped    Status = "SHIPPED"
	StatusCancelled  Status = "CANCELLED"
)

// Priority orders jobs for display; it does not affect scheduling.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityNormal Priority = "NORMAL"
	PriorityHigh   Priority = "HIGH"
	PriorityUrgent Priority = "URGENT"
)

// Material is a sheet material consumed by a job.
type Material struct {
	Code    string  `json:"code"`
	GaugeMM float64 `json:"gauge_mm"`
}

// Materials is the catalog of sheet materials carried in inventory.
var Materials = []Material{
	{Code: "DC01", GaugeMM: 2.0},
	{Code: "S235JR", GaugeMM: 3.0},
	{Code: "S355", GaugeMM: 4.0},
	{Code: "AISI304", GaugeMM: 1.5},
	{Code: "AISI316L", GaugeMM: 2.0},
	{Code: "AL5052", GaugeMM: 2.5},
	{Code: "AL6061", GaugeMM: 3.0},
}

// Job is a work order. The orchestrator owns every Job; cells reference a
// job by ID while working its current routing step.
type Job struct {
	ID        string `json:"job_id"`
	WorkOrder string `json:"work_order"`

	Customer    string   `json:"customer"`
	ProductName string   `json:"product_name"`
	Material    Material `json:"material"`
	Priority    Priority `json:"priority"`
	Operator    string   `json:"operator"`

	// Routing is the ordered list of cell IDs the job visits.
	Routing     []string `json:"routing"`
	CurrentStep int      `json:"current_step"`
	CurrentCell string   `json:"current_cell,omitempty"`

	QtyTarget   int `json:"qty_target"`
	QtyComplete int `json:"qty_complete"`
	QtyScrap    int `json:"qty_scrap"`

	Status Status `json:"status"`

	CreatedAt          time.Time  `json:"created_at"`
	ScheduledStart     time.Time  `json:"scheduled_start"`
	ScheduledEnd       time.Time  `json:"scheduled_end"`
	DueDate            time.Time  `json:"due_date"`
	OperationStartedAt *time.Time `json:"operation_started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	ShippedAt          *time.Time `json:"shipped_at,omitempty"`

	// ERP cost fields, populated at creation.
	EstimatedHours float64 `json:"estimated_hours"`
	LaborCostEUR   float64 `json:"labor_cost_eur"`
	MarginPct      float64 `json:"margin_pct"`

	PassportID string `json:"passport_id,omitempty"`
}

// Active reports whether the job still needs production work.
func (j *Job) Active() bool {
	switch j.Status {
	case StatusCompleted, StatusShipped, StatusCancelled:
		return false
	}
	return true
}

// CurrentRoutingCell returns the cell ID of the current routing step, or
// "" when the routing is exhausted.
func (j *Job) CurrentRoutingCell() string {
	if j.CurrentStep >= len(j.Routing) {
		return ""
	}
	return j.Routing[j.CurrentStep]
}

// ProgressPct returns completed quantity as a percentage of target.
func (j *Job) ProgressPct() float64 {
	if j.QtyTarget == 0 {
		return 0
	}
	pct := float64(j.QtyComplete) / float64(j.QtyTarget) * 100
	if pct > 100 {
		pct = 100
	}
	return pct
}

// DeliveryStatus classifies schedule adherence for MES displays.
func (j *Job) DeliveryStatus(now time.Time) string {
	switch {
	case now.Before(j.ScheduledEnd):
		return "AHEAD"
	case now.Before(j.DueDate):
		return "ON_TIME"
	default:
		return "LATE"
	}
}

func pickPriority(rng *rand.Rand) Priority {
	// 30% low, 50% normal, 15% high, 5% urgent.
	r := rng.Float64()
	switch {
	case r < 0.30:
		return PriorityLow
	case r < 0.80:
		return PriorityNormal
	case r < 0.95:
		return PriorityHigh
	default:
		return PriorityUrgent
	}
}
