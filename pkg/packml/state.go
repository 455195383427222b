// Package packml defines the machine state vocabulary used by every cell
// in the simulation.
//
// The state set follows the PackML unit/machine state model. Only a subset
// of states is driven by the default transition engine; the remainder exist
// so that payloads and downstream consumers can represent the full model.
// States serialize as stable uppercase string tokens (e.g. "EXECUTE");
// downstream tooling keys on these exact values.
package packml

// State is a PackML machine state.
type State string

// The seventeen PackML states.
const (
	StateStopped      State = "STOPPED"
	StateIdle         State = "IDLE"
	StateStarting     State = "STARTING"
	StateExecute      State = "EXECUTE"
	StateCompleting   State = "COMPLETING"
	StateCompleted    State = "COMPLETED"
	StateResetting    State = "RESETTING"
	StateHolding      State = "HOLDING"
	StateHeld         State = "HELD"
	StateUnholding    State = "UNHOLDING"
	StateSuspending   State = "SUSPENDING"
	StateSuspended    State = "SUSPENDED"
	StateUnsuspending State = "UNSUSPENDING"
	StateAborting     State = "ABORTING"
	StateAborted      State = "ABORTED"
	StateClearing     State = "CLEARING"
	StateStopping     State = "STOPPING"
)

// All lists every state in the model, in protocol order.
var All = []State{
	StateStopped, StateIdle, StateStarting, StateExecute,
	StateCompleting, StateCompleted, StateResetting,
	StateHolding, StateHeld, StateUnholding,
	StateSuspending, StateSuspended, StateUnsuspending,
	StateAborting, StateAborted, StateClearing, StateStopping,
}

// String returns the wire token for the state.
func (s State) String() string { return string(s) }

// stateNumbers follows the PackTags numeric state encoding.
var stateNumbers = map[State]int{
	StateClearing:     1,
	StateStopped:      2,
	StateStarting:     3,
	StateIdle:         4,
	StateSuspended:    5,
	StateExecute:      6,
	StateStopping:     7,
	StateAborting:     8,
	StateAborted:      9,
	StateHolding:      10,
	StateHeld:         11,
	StateUnholding:    12,
	StateSuspending:   13,
	StateUnsuspending: 14,
	StateResetting:    15,
	StateCompleting:   16,
	StateCompleted:    17,
}

// Number returns the PackTags numeric code for the state, or 0 for an
// undefined state.
func (s State) Number() int { return stateNumbers[s] }

// Valid reports whether s is one of the defined states.
func (s State) Valid() bool {
	for _, v := range All {
		if s == v {
			return true
		}
	}
	return false
}

// IsProducing reports whether the machine is actively producing parts.
func (s State) IsProducing() bool { return s == StateExecute }

// IsStopped reports whether the machine is in a resting state where
// sensors read their minimum values.
func (s State) IsStopped() bool {
	return s == StateStopped || s == StateIdle || s == StateAborted
}

// IsHeld reports whether the machine is held or on its way into or out of
// a hold. Time spent in these states counts as downtime.
func (s State) IsHeld() bool {
	return s == StateHolding || s == StateHeld || s == StateUnholding
}

// SubState is a finer-grained activity indicator published alongside the
// PackML state for operator displays.
type SubState string

const (
	SubStateNone            SubState = "NONE"
	SubStateSetup           SubState = "SETUP"
	SubStateCutting         SubState = "CUTTING"
	SubStateBending         SubState = "BENDING"
	SubStateWelding         SubState = "WELDING"
	SubStatePainting        SubState = "PAINTING"
	SubStateChangeover      SubState = "CHANGEOVER"
	SubStateWaitingMaterial SubState = "WAITING_MATERIAL"
	SubStateWaitingOperator SubState = "WAITING_OPERATOR"
	SubStateToolChange      SubState = "TOOL_CHANGE"
	SubStateQualityCheck    SubState = "QUALITY_CHECK"
	SubStateMaintenance     SubState = "MAINTENANCE"
	SubStateFaultClearing   SubState = "FAULT_CLEARING"
)

// ExecuteSubState returns the sub-state a cell of the given type enters
// when it begins executing.
func ExecuteSubState(cellType string) SubState {
	switch cellType {
	case "laser_cutter":
		return SubStateCutting
	case "press_brake":
		return SubStateBending
	case "robot_weld", "manual_weld":
		return SubStateWelding
	case "powder_coating_line":
		return SubStatePainting
	case "quality_control":
		return SubStateQualityCheck
	default:
		return SubStateNone
	}
}
