package conflicts

import (
	"sort"
	"strings"

	"github.com/jakechorley/volunteer-planner/pkg/core/model"
	"github.com/jakechorley/volunteer-planner/pkg/core/timeslot"
)

// Find returns the shifts in existing whose time interval overlaps the candidate.
// The candidate itself (matched by ID) is never reported. The result holds each
// conflicting shift once, ordered by starting time then ID, so it does not depend
// on the order of existing.
func Find(candidate model.Shift, existing []model.Shift) []model.Shift {
	window := timeslot.Normalize(candidate.StartingTime, candidate.EndingTime)

	seen := make(map[string]bool)
	found := []model.Shift{}
	for _, shift := range existing {
		if shift.ID == candidate.ID || seen[shift.ID] {
			continue
		}
		if window.Overlaps(timeslot.Normalize(shift.StartingTime, shift.EndingTime)) {
			seen[shift.ID] = true
			found = append(found, shift)
		}
	}

	sort.Slice(found, func(i, j int) bool {
		if !found[i].StartingTime.Equal(found[j].StartingTime) {
			return found[i].StartingTime.Before(found[j].StartingTime)
		}
		return found[i].ID < found[j].ID
	})

	return found
}

// Describe renders conflicting shifts as a comma separated list for display
func Describe(shifts []model.Shift) string {
	parts := make([]string, len(shifts))
	for i, shift := range shifts {
		parts[i] = shift.String()
	}
	return strings.Join(parts, ", ")
}
