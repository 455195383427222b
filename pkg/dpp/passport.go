// Package dpp implements digital product passports: per-job records of
// material provenance, processing history and carbon footprint that are
// published at the highest complexity level.
package dpp

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/jobs"
)

// EventType classifies a passport history entry.
type EventType string

const (
	EventCreated            EventType = "CREATED"
	EventOperationCompleted EventType = "OPERATION_COMPLETED"
	EventQualityChecked     EventType = "QUALITY_CHECKED"
	EventFinalized          EventType = "FINALIZED"
	EventShipped            EventType = "SHIPPED"
)

// Status is a passport lifecycle status.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusActive    Status = "ACTIVE"
	StatusFinalized Status = "FINALIZED"
)

// Event is one entry in a passport's processing history.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	CellID    string    `json:"cell_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Passport is the digital product passport for one job.
type Passport struct {
	ID        string `json:"passport_id"`
	JobID     string `json:"job_id"`
	WorkOrder string `json:"work_order"`
	SiteID    string `json:"site_id"`

	Product  string        `json:"product"`
	Customer string        `json:"customer"`
	Material jobs.Material `json:"material"`

	Status    Status    `json:"status"`
	CreatedAt time.Time `json:"created_at"`

	Events []Event `json:"events"`

	// CarbonKG accumulates an estimated embedded footprint as routing
	// steps complete.
	CarbonKG float64 `json:"carbon_kg"`
}

// Registry owns all passports, keyed by job ID. Not safe for concurrent
// use; the tick loop owns it.
type Registry struct {
	now       func() time.Time
	passports map[string]*Passport
}

// NewRegistry creates an empty passport registry. Pass time.Now for
// production use.
func NewRegistry(now func() time.Time) *Registry {
	if now == nil {
		now = time.Now
	}
	return &Registry{now: now, passports: make(map[string]*Passport)}
}

// Create opens a passport for a job at the site that owns it. Creating
// twice for the same job is a no-op returning the existing passport, which
// makes the level-4 catch-up action idempotent.
func (r *Registry) Create(j *jobs.Job, siteID string) *Passport {
	if p, ok := r.passports[j.ID]; ok {
		return p
	}
	now := r.now()
	p := &Passport{
		ID:        uuid.NewString(),
		JobID:     j.ID,
		WorkOrder: j.WorkOrder,
		SiteID:    siteID,
		Product:   j.ProductName,
		Customer:  j.Customer,
		Material:  j.Material,
		Status:    StatusActive,
		CreatedAt: now,
		Events:    []Event{{Type: EventCreated, Timestamp: now}},
	}
	r.passports[j.ID] = p
	j.PassportID = p.ID
	return p
}

// Get returns the passport for a job, or nil.
func (r *Registry) Get(jobID string) *Passport { return r.passports[jobID] }

// Has reports whether a passport exists for the job.
func (r *Registry) Has(jobID string) bool {
	_, ok := r.passports[jobID]
	return ok
}

// RecordOperation appends a completed routing step to the job's passport,
// if one exists.
func (r *Registry) RecordOperation(jobID, cellID string, qtyComplete int) {
	p := r.passports[jobID]
	if p == nil || p.Status == StatusFinalized {
		return
	}
	p.Events = append(p.Events, Event{
		Type:      EventOperationCompleted,
		Timestamp: r.now(),
		CellID:    cellID,
		Detail:    fmt.Sprintf("qty_complete=%d", qtyComplete),
	})
	// Rough per-operation footprint estimate.
	p.CarbonKG += 0.4 * float64(qtyComplete)
}

// Finalize closes the passport when its job finishes.
func (r *Registry) Finalize(jobID string) *Passport {
	p := r.passports[jobID]
	if p == nil || p.Status == StatusFinalized {
		return p
	}
	p.Status = StatusFinalized
	p.Events = append(p.Events, Event{Type: EventFinalized, Timestamp: r.now()})
	return p
}

// Active returns the passports that are not yet finalized.
func (r *Registry) Active() []*Passport {
	var out []*Passport
	for _, p := range r.passports {
		if p.Status != StatusFinalized {
			out = append(out, p)
		}
	}
	return out
}

// Delete removes a passport once its job has been garbage-collected.
func (r *Registry) Delete(jobID string) { delete(r.passports, jobID) }
