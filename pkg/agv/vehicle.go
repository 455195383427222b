// Package agv simulates automated guided vehicles moving between named
// waypoints on the shop floor. Vehicles run a small state machine: idle
// vehicles pick up transport tasks, low batteries force a detour to the
// charging station, and loading/unloading take a few ticks to finish.
package agv

import (
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Status is the vehicle's current activity.
type Status string

const (
	StatusIdle      Status = "IDLE"
	StatusMoving    Status = "MOVING"
	StatusLoading   Status = "LOADING"
	StatusUnloading Status = "UNLOADING"
	StatusCharging  Status = "CHARGING"
	StatusDocked    Status = "DOCKED"
)

// Waypoint is a named position on the floor plan, in meters from the
// origin.
type Waypoint struct {
	Name string
	Zone string
	X, Y float64
}

// The floor plan is shared by all vehicles. Stops A-F are the production
// areas; the docks and the charging station are terminal positions.
var waypoints = map[string]Waypoint{
	"A":         {Name: "A", Zone: "WAREHOUSE", X: 5, Y: 5},
	"B":         {Name: "B", Zone: "LASER_AREA", X: 15, Y: 5},
	"C":         {Name: "C", Zone: "BENDING_AREA", X: 25, Y: 5},
	"D":         {Name: "D", Zone: "WELDING_AREA", X: 35, Y: 5},
	"E":         {Name: "E", Zone: "SHIPPING", X: 45, Y: 5},
	"F":         {Name: "F", Zone: "FINISHING", X: 25, Y: 15},
	"DOCK_01":   {Name: "DOCK_01", Zone: "WAREHOUSE", X: 2, Y: 2},
	"DOCK_02":   {Name: "DOCK_02", Zone: "SHIPPING", X: 48, Y: 2},
	"CHARGE_01": {Name: "CHARGE_01", Zone: "CHARGING_STATION", X: 10, Y: 25},
}

var taskStops = []string{"A", "B", "C", "D", "E", "F"}

const (
	maxPayloadKG   = 250.0
	lowBatteryPct  = 25.0
	chargedPct     = 95.0
	chargeStepPct  = 0.5
	newTaskProb    = 0.05
	dockedTaskProb = 0.03
	handlingProb   = 0.2
	arriveRadiusM  = 0.5
)

// Position is a 2D floor coordinate.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// State is the published snapshot of one vehicle.
type State struct {
	AGVID      string   `json:"agv_id"`
	Position   Position `json:"position"`
	HeadingDeg float64  `json:"heading_deg"`

	CurrentWaypoint string `json:"current_waypoint"`
	TargetWaypoint  string `json:"target_waypoint"`
	Path            string `json:"path"`
	Zone            string `json:"zone"`

	Status         Status  `json:"status"`
	BatteryPct     float64 `json:"battery_pct"`
	IsCharging     bool    `json:"is_charging"`
	DockingStation string  `json:"docking_station,omitempty"`

	CurrentTask  string  `json:"current_task,omitempty"`
	PayloadKG    float64 `json:"payload_kg"`
	PayloadPct   float64 `json:"payload_pct"`
	MaxPayloadKG float64 `json:"max_payload_kg"`

	SpeedMPS          float64 `json:"speed_mps"`
	DistanceTraveledM float64 `json:"distance_traveled_m"`

	ErrorCode string `json:"error_code,omitempty"`
}

// Vehicle is one AGV. Not safe for concurrent use; the tick loop owns it.
type Vehicle struct {
	id   string
	area string
	rng  *rand.Rand

	x, y    float64
	heading float64
	current string
	target  string
	path    string
	zone    string

	status   Status
	battery  float64
	charging bool
	dock     string

	task      string
	payloadKG float64

	speedMPS  float64
	traveledM float64
}

// NewVehicle places a vehicle at a random production stop with a partly
// drained battery, the same way a fleet looks mid-shift.
func NewVehicle(id, area string, rng *rand.Rand) *Vehicle {
	start := waypoints[taskStops[rng.Intn(len(taskStops))]]
	target := taskStops[rng.Intn(len(taskStops))]
	return &Vehicle{
		id:      id,
		area:    area,
		rng:     rng,
		x:       start.X,
		y:       start.Y,
		heading: rng.Float64() * 360,
		current: start.Name,
		target:  target,
		path:    start.Name + "→" + target,
		zone:    start.Zone,
		status:  StatusIdle,
		battery: 70 + rng.Float64()*30,
	}
}

// ID returns the vehicle's cell ID.
func (v *Vehicle) ID() string { return v.id }

// Area returns the site area the vehicle's cell belongs to.
func (v *Vehicle) Area() string { return v.area }

// Tick advances the vehicle by one simulation step of duration dt.
func (v *Vehicle) Tick(dt time.Duration) {
	wp, ok := waypoints[v.target]
	if !ok {
		return
	}
	dx := wp.X - v.x
	dy := wp.Y - v.y
	dist := math.Hypot(dx, dy)
	if dist > 0.1 {
		v.heading = math.Mod(math.Atan2(dy, dx)*180/math.Pi+360, 360)
	}

	switch v.status {
	case StatusIdle:
		if v.battery < lowBatteryPct {
			v.startTask("CHARGE_01", "RETURN_TO_CHARGE")
		} else if v.rng.Float64() < newTaskProb {
			next := taskStops[v.rng.Intn(len(taskStops))]
			v.startTask(next, "TRANSPORT_TO_"+next)
			v.payloadKG = v.randomPayload()
		}

	case StatusMoving:
		if dist > arriveRadiusM {
			v.move(dx, dy, dist, dt)
		} else {
			v.arrive(wp)
		}

	case StatusCharging:
		v.battery = math.Min(100, v.battery+chargeStepPct)
		if v.battery >= chargedPct {
			v.charging = false
			v.dock = ""
			v.task = ""
			v.status = StatusIdle
			v.target = taskStops[v.rng.Intn(len(taskStops)-1)]
			v.path = "CHARGE_01→" + v.target
		}

	case StatusLoading, StatusUnloading:
		if v.rng.Float64() < handlingProb {
			if v.status == StatusLoading {
				v.payloadKG = v.randomPayload()
			} else {
				v.payloadKG = 0
			}
			v.status = StatusIdle
			v.task = ""
		}

	case StatusDocked:
		if v.rng.Float64() < dockedTaskProb {
			next := taskStops[v.rng.Intn(len(taskStops))]
			v.startTask(next, "TRANSPORT_TO_"+next)
			v.dock = ""
		}
	}
}

func (v *Vehicle) startTask(target, task string) {
	v.target = target
	v.path = v.current + "→" + target
	v.status = StatusMoving
	v.task = task
}

func (v *Vehicle) randomPayload() float64 {
	return 20 + v.rng.Float64()*(maxPayloadKG*0.8-20)
}

func (v *Vehicle) move(dx, dy, dist float64, dt time.Duration) {
	speed := v.rng.NormFloat64()*0.2 + 1.5
	speed = math.Max(0.5, math.Min(2.0, speed))
	v.speedMPS = speed

	step := speed * dt.Seconds()
	if step > dist {
		step = dist
	}
	v.x += dx / dist * step
	v.y += dy / dist * step
	v.traveledM += step

	drain := 0.01
	if v.payloadKG > 0 {
		drain = 0.02
	}
	v.battery = math.Max(0, v.battery-drain)
	v.zone = waypoints[v.target].Zone
}

func (v *Vehicle) arrive(wp Waypoint) {
	v.x = wp.X
	v.y = wp.Y
	v.current = wp.Name
	v.zone = wp.Zone
	v.speedMPS = 0

	switch {
	case wp.Name == "CHARGE_01":
		v.status = StatusCharging
		v.charging = true
		v.dock = wp.Name
		v.task = "CHARGING"
	case wp.Name == "DOCK_01" || wp.Name == "DOCK_02":
		v.status = StatusDocked
		v.dock = wp.Name
		v.task = ""
	case v.payloadKG > 0:
		v.status = StatusUnloading
	default:
		v.status = StatusLoading
	}
}

// State returns the vehicle's published snapshot, with the same rounding
// the subscribing dashboards expect.
func (v *Vehicle) State() State {
	payloadPct := 0.0
	if maxPayloadKG > 0 {
		payloadPct = round1(v.payloadKG / maxPayloadKG * 100)
	}
	return State{
		AGVID:             v.id,
		Position:          Position{X: round2(v.x), Y: round2(v.y)},
		HeadingDeg:        round1(v.heading),
		CurrentWaypoint:   v.current,
		TargetWaypoint:    v.target,
		Path:              v.path,
		Zone:              v.zone,
		Status:            v.status,
		BatteryPct:        round1(v.battery),
		IsCharging:        v.charging,
		DockingStation:    v.dock,
		CurrentTask:       v.task,
		PayloadKG:         round1(v.payloadKG),
		PayloadPct:        payloadPct,
		MaxPayloadKG:      maxPayloadKG,
		SpeedMPS:          round2(v.speedMPS),
		DistanceTraveledM: round1(v.traveledM),
	}
}

func round1(f float64) float64 { return math.Round(f*10) / 10 }
func round2(f float64) float64 { return math.Round(f*100) / 100 }

// String implements fmt.Stringer for log output.
func (v *Vehicle) String() string {
	return fmt.Sprintf("%s@%s(%s)", v.id, v.current, v.status)
}
