package machine

import "math/rand"

// StopCategory classifies why a machine is not producing. The category
// drives the recovery probability while held.
type StopCategory string

const (
	StopChangeover StopCategory = "changeover"
	StopPlanned    StopCategory = "planned"
	StopBreakdown  StopCategory = "breakdown"
	StopMicrostop  StopCategory = "microstop"
)

// StopReason is a coded explanation for a non-producing machine. A cell
// holds at most one at a time; it is cleared on return to a productive
// state.
type StopReason struct {
	Code     string       `json:"code"`
	Name     string       `json:"name"`
	Category StopCategory `json:"category"`
}

var stopReasons = map[StopCategory][]StopReason{
	StopChangeover: {
		{Code: "ST01", Name: "Sheet Size Changeover", Category: StopChangeover},
		{Code: "ST02", Name: "Tool/Die Change", Category: StopChangeover},
		{Code: "ST03", Name: "Material Change", Category: StopChangeover},
		{Code: "ST04", Name: "NC Program Load", Category: StopChangeover},
		{Code: "ST05", Name: "Fixture Setup", Category: StopChangeover},
	},
	StopPlanned: {
		{Code: "PS01", Name: "Lunch Break", Category: StopPlanned},
		{Code: "PS02", Name: "Shift Change", Category: StopPlanned},
		{Code: "PS03", Name: "Planned Maintenance", Category: StopPlanned},
		{Code: "PS04", Name: "Tooling Inspection", Category: StopPlanned},
	},
	StopBreakdown: {
		{Code: "BD01", Name: "Laser Source Error", Category: StopBreakdown},
		{Code: "BD02", Name: "Hydraulic Pressure Loss", Category: StopBreakdown},
		{Code: "BD03", Name: "Drive Axis Fault", Category: StopBreakdown},
		{Code: "BD04", Name: "Chiller Overtemp", Category: StopBreakdown},
		{Code: "BD05", Name: "Safety Circuit Trip", Category: StopBreakdown},
		{Code: "BD06", Name: "Gas Supply Fault", Category: StopBreakdown},
	},
	StopMicrostop: {
		{Code: "MS01", Name: "Sheet Misposition", Category: StopMicrostop},
		{Code: "MS02", Name: "Nozzle Collision Detect", Category: StopMicrostop},
		{Code: "MS03", Name: "Part Tip-Up", Category: StopMicrostop},
		{Code: "MS04", Name: "Slug Jam", Category: StopMicrostop},
		{Code: "MS05", Name: "Backgauge Timeout", Category: StopMicrostop},
		{Code: "MS06", Name: "Wire Feed Stall", Category: StopMicrostop},
	},
}

// PickStopReason selects a random coded reason from the given category.
func PickStopReason(rng *rand.Rand, category StopCategory) StopReason {
	reasons := stopReasons[category]
	return reasons[rng.Intn(len(reasons))]
}

// StopReasonsFor returns the full reason table for a category.
func StopReasonsFor(category StopCategory) []StopReason {
	return stopReasons[category]
}
