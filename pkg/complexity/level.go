// Package complexity implements the simulator-wide complexity level and the
// feature gating derived from it.
//
// The level is a total order 0–4. Feature sets are strictly monotonic:
// everything enabled at level N stays enabled at every level above N. The
// level is the single knob that controls how much of the namespace the
// simulator populates.
package complexity

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/SheetMetalConnect/metalfab-uns-simulator/pkg/uns"
)

// Level is the simulator-wide complexity level.
type Level int

const (
	// LevelPaused suspends all data publication.
	LevelPaused Level = 0
	// LevelSensors publishes raw sensor readings and basic energy data.
	LevelSensors Level = 1
	// LevelStateful adds machine states, job tracking and OEE.
	LevelStateful Level = 2
	// LevelERPMES adds ERP/MES business context and dashboards.
	LevelERPMES Level = 3
	// LevelFull adds digital product passports.
	LevelFull Level = 4
)

// MinLevel and MaxLevel bound the valid range.
const (
	MinLevel = LevelPaused
	MaxLevel = LevelFull
)

var levelNames = map[Level]string{
	LevelPaused:   "Paused",
	LevelSensors:  "Sensors",
	LevelStateful: "Stateful",
	LevelERPMES:   "ERP/MES",
	LevelFull:     "Full",
}

// String returns the human-readable level name.
func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// Valid reports whether l is within the defined range.
func (l Level) Valid() bool { return l >= MinLevel && l <= MaxLevel }

// Clamp returns l constrained to the valid range.
func (l Level) Clamp() Level {
	if l < MinLevel {
		return MinLevel
	}
	if l > MaxLevel {
		return MaxLevel
	}
	return l
}

// Enables reports whether a feature requiring level required is active at l.
func (l Level) Enables(required Level) bool { return l >= required }

// ParseLevel parses a control payload into a Level. It accepts either a
// bare integer ("3") or a JSON object ({"level": 3}). Out-of-range values
// are rejected, not clamped, so a malformed command leaves the current
// level untouched.
func ParseLevel(payload []byte) (Level, error) {
	s := strings.TrimSpace(string(payload))
	if s == "" {
		return 0, fmt.Errorf("empty level payload")
	}

	if n, err := strconv.Atoi(s); err == nil {
		l := Level(n)
		if !l.Valid() {
			return 0, fmt.Errorf("level %d out of range [%d,%d]", n, MinLevel, MaxLevel)
		}
		return l, nil
	}

	var obj struct {
		Level *int `json:"level"`
	}
	if err := json.Unmarshal(payload, &obj); err != nil {
		return 0, fmt.Errorf("invalid level payload %q: %w", s, err)
	}
	if obj.Level == nil {
		return 0, fmt.Errorf("level payload %q missing level field", s)
	}
	l := Level(*obj.Level)
	if !l.Valid() {
		return 0, fmt.Errorf("level %d out of range [%d,%d]", *obj.Level, MinLevel, MaxLevel)
	}
	return l, nil
}

// Features describes what a given level enables. Flags are cumulative.
type Features struct {
	Sensors      bool // raw sensor values
	EnergyBasic  bool // basic energy metering
	MachineState bool // PackML state publication
	JobTracking  bool // job/work-order context
	AGVPositions bool // AGV position updates
	ERPJobData   bool // ERP enrichment on job payloads
	MESQuality   bool // MES quality metrics
	MESOEE       bool // OEE publication
	Delivery     bool // delivery performance metrics
	InventoryWIP bool // inventory and WIP aggregates
	Dashboards   bool // dashboard summary topics
	Passports    bool // digital product passports
}

// FeaturesFor returns the feature set active at level l.
func FeaturesFor(l Level) Features {
	var f Features
	if l >= LevelSensors {
		f.Sensors = true
		f.EnergyBasic = true
	}
	if l >= LevelStateful {
		f.MachineState = true
		f.JobTracking = true
		f.AGVPositions = true
	}
	if l >= LevelERPMES {
		f.ERPJobData = true
		f.MESQuality = true
		f.MESOEE = true
		f.Delivery = true
		f.InventoryWIP = true
		f.Dashboards = true
	}
	if l >= LevelFull {
		f.Passports = true
	}
	return f
}

// Namespaces returns the UNS namespace segments populated at level l.
// Level 0 publishes nothing, so the list is empty there.
func Namespaces(l Level) []string {
	var ns []string
	if l >= LevelSensors {
		ns = append(ns, uns.NamespaceAsset, uns.NamespaceEdge, uns.NamespaceRaw)
	}
	if l >= LevelStateful {
		ns = append(ns, uns.NamespaceLine)
	}
	if l >= LevelERPMES {
		ns = append(ns, uns.NamespaceERP, uns.NamespaceMES, uns.NamespaceDashboard)
	}
	if l >= LevelFull {
		ns = append(ns, uns.NamespaceDPP)
	}
	return ns
}
