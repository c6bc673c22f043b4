// Package concurrency derives worker counts and UI update cadence from the
// CPU profile table in spec.md §4.3.
package concurrency

import "dupvault/internal/model"

// Tier holds the derived concurrency settings for one CPU profile.
type Tier struct {
	Hashers     int
	CopyWorkers int
	UpdateHz    float64
}

// ForProfile resolves a Tier given the project's CPU profile and the number
// of logical cores available.
func ForProfile(profile model.CPUProfile, cores int) Tier {
	if cores < 1 {
		cores = 1
	}
	switch profile {
	case model.ProfileEco:
		return Tier{Hashers: 1, CopyWorkers: 1, UpdateHz: 1}
	case model.ProfileFast:
		return Tier{Hashers: max(1, (cores*3)/4), CopyWorkers: 2, UpdateHz: 5}
	case model.ProfileMax:
		copyWorkers := 4
		if cores < 4 {
			copyWorkers = 2
		}
		return Tier{Hashers: max(1, cores-1), CopyWorkers: copyWorkers, UpdateHz: 5}
	default: // Balanced
		return Tier{Hashers: max(1, cores/4), CopyWorkers: 2, UpdateHz: 5}
	}
}
