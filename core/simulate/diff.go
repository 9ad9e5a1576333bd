package simulate

import (
	"reflect"
	"sort"

	"github.com/kilianp07/induction/core/model"
)

// StatusChange records a trainset whose assigned status differs.
type StatusChange struct {
	TrainsetID string       `json:"trainset_id"`
	From       model.Status `json:"from"`
	To         model.Status `json:"to"`
}

// ReasonChange records a trainset whose blocking reasons differ.
type ReasonChange struct {
	TrainsetID string         `json:"trainset_id"`
	Before     []model.Reason `json:"before"`
	After      []model.Reason `json:"after"`
}

// Diff compares a simulated decision set against its baseline.
type Diff struct {
	AddedToService     []string             `json:"added_to_service"`
	RemovedFromService []string             `json:"removed_from_service"`
	StatusChanges      []StatusChange       `json:"status_changes"`
	ReasonChanges      []ReasonChange       `json:"reason_changes"`
	BaselineCounts     map[model.Status]int `json:"baseline_counts"`
	SimulatedCounts    map[model.Status]int `json:"simulated_counts"`
	CountDelta         map[model.Status]int `json:"count_delta"`
	ShortfallDelta     int                  `json:"shortfall_delta"`
}

// Empty reports whether the simulation changed nothing.
func (d Diff) Empty() bool {
	return len(d.StatusChanges) == 0 && len(d.ReasonChanges) == 0 && d.ShortfallDelta == 0
}

// Compare builds the diff between two decision sets. Trainsets present in
// only one set compare against an empty status.
func Compare(base, sim model.DecisionSet) Diff {
	d := Diff{
		AddedToService:     []string{},
		RemovedFromService: []string{},
		StatusChanges:      []StatusChange{},
		ReasonChanges:      []ReasonChange{},
		BaselineCounts:     base.Counts(),
		SimulatedCounts:    sim.Counts(),
		CountDelta:         map[model.Status]int{},
		ShortfallDelta:     sim.Shortfall - base.Shortfall,
	}
	for _, st := range model.AssignableStatuses {
		d.CountDelta[st] = d.SimulatedCounts[st] - d.BaselineCounts[st]
	}

	ids := map[string]struct{}{}
	for _, x := range base.Decisions {
		ids[x.TrainsetID] = struct{}{}
	}
	for _, x := range sim.Decisions {
		ids[x.TrainsetID] = struct{}{}
	}
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	for _, id := range sorted {
		b, _ := base.Decision(id)
		s, _ := sim.Decision(id)
		if b.Status != s.Status {
			d.StatusChanges = append(d.StatusChanges, StatusChange{TrainsetID: id, From: b.Status, To: s.Status})
			switch {
			case s.Status == model.StatusService:
				d.AddedToService = append(d.AddedToService, id)
			case b.Status == model.StatusService:
				d.RemovedFromService = append(d.RemovedFromService, id)
			}
		}
		if !sameReasons(b.BlockingReasons, s.BlockingReasons) {
			d.ReasonChanges = append(d.ReasonChanges, ReasonChange{
				TrainsetID: id,
				Before:     append([]model.Reason{}, b.BlockingReasons...),
				After:      append([]model.Reason{}, s.BlockingReasons...),
			})
		}
	}
	return d
}

func sameReasons(a, b []model.Reason) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
