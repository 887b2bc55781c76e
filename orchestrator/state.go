package orchestrator

import (
	"fmt"
	"slices"
)

// State is a step of a meal analysis run.
type State string

const (
	StateReceived            State = "Received"
	StateVisionDone          State = "VisionDone"
	StateBarcodeBranch       State = "BarcodeBranch"
	StatePhotoBranch         State = "PhotoBranch"
	StateNutritionDone       State = "NutritionDone"
	StatePersonalizationDone State = "PersonalizationDone"
	StateWellnessDone        State = "WellnessDone"
	StateAggregated          State = "Aggregated"
	StatePersisted           State = "Persisted"
	StateResponded           State = "Responded"
	StateFailed              State = "Failed"
)

// transitions lists the legal next states. A barcode request skips vision
// and goes straight to the barcode branch; a barcode lookup that misses
// falls back to the photo branch.
var transitions = map[State][]State{
	StateReceived:            {StateVisionDone, StateBarcodeBranch, StateFailed},
	StateVisionDone:          {StateBarcodeBranch, StatePhotoBranch},
	StateBarcodeBranch:       {StateNutritionDone, StatePhotoBranch},
	StatePhotoBranch:         {StateNutritionDone},
	StateNutritionDone:       {StatePersonalizationDone},
	StatePersonalizationDone: {StateWellnessDone},
	StateWellnessDone:        {StateAggregated},
	StateAggregated:          {StatePersisted, StateResponded},
	StatePersisted:           {StateResponded},
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateResponded || s == StateFailed
}

// CanTransition reports whether to is a legal successor of from.
func CanTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// machine tracks the current state and the path taken through the run.
type machine struct {
	current State
	path    []State
}

func newMachine() *machine {
	return &machine{current: StateReceived, path: []State{StateReceived}}
}

func (m *machine) advance(to State) error {
	if !CanTransition(m.current, to) {
		return fmt.Errorf("illegal transition %s -> %s", m.current, to)
	}
	m.current = to
	m.path = append(m.path, to)
	return nil
}

func (m *machine) pathStrings() []string {
	out := make([]string, len(m.path))
	for i, s := range m.path {
		out[i] = string(s)
	}
	return out
}
