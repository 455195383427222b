// Package coating models a powder coating line as a chain of zones that
// carriers traverse, with booth color changes and oven conditions.
package coating

import (
	"math"
	"math/rand"
)

// Zones in traversal order.
var Zones = []string{"loading", "pretreatment", "drying", "coating", "curing", "cooling"}

// ralColors are the powder colors the booth cycles through.
var ralColors = []string{
	"RAL7016", "RAL9005", "RAL9010", "RAL5010", "RAL3020", "RAL6005", "RAL9006",
}

// colorChangeProb is the per-tick probability of a booth color change.
const colorChangeProb = 0.002

// State is a snapshot of the whole line.
type State struct {
	LineID string `json:"line_id"`

	// ZoneCounts is the number of carriers currently in each zone.
	ZoneCounts map[string]int `json:"zone_counts"`

	TraversalsInLine int `json:"traversals_in_line"`
	CompletedToday   int `json:"completed_today"`

	BoothColor   string  `json:"booth_color"`
	ColorChanges int     `json:"color_changes"`
	OvenTempC    float64 `json:"oven_temp_c"`
	ConveyorMPM  float64 `json:"conveyor_m_per_min"`
}

// Line is the simulation model. Not safe for concurrent use.
type Line struct {
	id  string
	rng *rand.Rand

	zones        map[string]int
	completed    int
	color        string
	colorChanges int
	ovenTemp     float64
	conveyor     float64
}

// NewLine creates a line with a few carriers already in progress.
func NewLine(id string, rng *rand.Rand) *Line {
	l := &Line{
		id:       id,
		rng:      rng,
		zones:    make(map[string]int, len(Zones)),
		color:    ralColors[rng.Intn(len(ralColors))],
		ovenTemp: 188,
		conveyor: 2.2,
	}
	for _, z := range Zones {
		l.zones[z] = rng.Intn(3)
	}
	return l
}

// Tick advances carriers through the zones and updates booth conditions.
func (l *Line) Tick() {
	// Unload from the last zone.
	last := Zones[len(Zones)-1]
	if l.zones[last] > 0 && l.rng.Float64() < 0.3 {
		l.zones[last]--
		l.completed++
	}

	// Shift carriers downstream, last zone first so a carrier moves at
	// most one zone per tick.
	for i := len(Zones) - 2; i >= 0; i-- {
		from, to := Zones[i], Zones[i+1]
		if l.zones[from] > 0 && l.zones[to] < 4 && l.rng.Float64() < 0.25 {
			l.zones[from]--
			l.zones[to]++
		}
	}

	// New carriers arrive at loading.
	if l.zones[Zones[0]] < 4 && l.rng.Float64() < 0.2 {
		l.zones[Zones[0]]++
	}

	if l.rng.Float64() < colorChangeProb {
		l.color = ralColors[l.rng.Intn(len(ralColors))]
		l.colorChanges++
	}

	l.ovenTemp = clamp(l.ovenTemp+l.rng.NormFloat64()*0.5, 180, 195)
	l.conveyor = clamp(l.conveyor+l.rng.NormFloat64()*0.05, 1.5, 3.0)
}

// State returns a snapshot for publication.
func (l *Line) State() State {
	counts := make(map[string]int, len(Zones))
	total := 0
	for _, z := range Zones {
		counts[z] = l.zones[z]
		total += l.zones[z]
	}
	return State{
		LineID:           l.id,
		ZoneCounts:       counts,
		TraversalsInLine: total,
		CompletedToday:   l.completed,
		BoothColor:       l.color,
		ColorChanges:     l.colorChanges,
		OvenTempC:        math.Round(l.ovenTemp*10) / 10,
		ConveyorMPM:      math.Round(l.conveyor*100) / 100,
	}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
