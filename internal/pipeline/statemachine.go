package pipeline

import "dupvault/internal/model"

// transitions is the allowed-transition table of spec.md §4.7. A
// transition not listed here is rejected with no state change.
var transitions = map[model.PipelineState]map[model.PipelineState]bool{
	model.StateIdle: {
		model.StateScanning:    true,
		model.StateHashing:     true, // resume
		model.StatePlanning:    true, // resume
		model.StateReadyToCopy: true, // resume
		model.StateCopying:     true, // resume
	},
	model.StateScanning: {
		model.StateScanPaused: true,
		model.StateHashing:    true,
		model.StateIdle:       true,
		model.StateFaulted:    true,
	},
	model.StateScanPaused: {
		model.StateScanning: true,
		model.StateIdle:     true,
	},
	model.StateHashing: {
		model.StateHashPaused: true,
		model.StatePlanning:   true,
		model.StateIdle:       true,
		model.StateFaulted:    true,
	},
	model.StateHashPaused: {
		model.StateHashing: true,
		model.StateIdle:    true,
	},
	model.StatePlanning: {
		model.StateReadyToCopy: true,
		model.StateIdle:        true,
	},
	model.StateReadyToCopy: {
		model.StateCopying:  true,
		model.StatePlanning: true,
		model.StateIdle:     true,
	},
	model.StateCopying: {
		model.StateCopyPaused: true,
		model.StateCompleted:  true,
		model.StateIdle:       true,
		model.StateFaulted:    true,
	},
	model.StateCopyPaused: {
		model.StateCopying: true,
		model.StateIdle:    true,
	},
	model.StateCompleted: {
		model.StateIdle: true,
	},
	model.StateFaulted: {
		model.StateIdle: true,
	},
}

// CanTransition reports whether moving from 'from' to 'to' is permitted.
func CanTransition(from, to model.PipelineState) bool {
	return transitions[from][to]
}
