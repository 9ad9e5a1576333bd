// Package conflict scans snapshots for logically contradictory state.
//
// Conflicts are warnings. The detector never corrects data and runs
// independently of any optimization run.
package conflict

import (
	"fmt"
	"sort"
	"time"

	"github.com/kilianp07/induction/core/eligibility"
	"github.com/kilianp07/induction/core/model"
)

// Check inspects a snapshot and reports conflicts.
type Check func(s model.Snapshot, elig eligibility.Map) []model.Conflict

// Detector runs a fixed list of checks.
type Detector struct {
	validator *eligibility.Validator
	checks    []Check
}

// DefaultChecks returns the built-in checks.
func DefaultChecks() []Check {
	return []Check{StaleCertificates, OverrideContradictions, FitStatusWithBlocker, OrphanRecords, DuplicateBays}
}

// New returns a detector. A nil validator uses the default rules.
func New(v *eligibility.Validator, checks ...Check) *Detector {
	if v == nil {
		v = eligibility.New()
	}
	if len(checks) == 0 {
		checks = DefaultChecks()
	}
	return &Detector{validator: v, checks: checks}
}

// Detect returns every conflict ordered by trainset id, kind and detail.
func (d *Detector) Detect(s model.Snapshot) []model.Conflict {
	elig := d.validator.Validate(s)
	out := []model.Conflict{}
	for _, c := range d.checks {
		out = append(out, c(s, elig)...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].TrainsetID != out[j].TrainsetID {
			return out[i].TrainsetID < out[j].TrainsetID
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Detail < out[j].Detail
	})
	return out
}

// StaleCertificates flags certificates still marked valid after their end
// date, a sign of clock skew or a stale sync.
func StaleCertificates(s model.Snapshot, _ eligibility.Map) []model.Conflict {
	var out []model.Conflict
	for _, c := range s.Certificates {
		if c.Valid && !s.TakenAt.Before(c.End) {
			out = append(out, model.Conflict{
				TrainsetID: c.TrainsetID,
				Kind:       model.ConflictStaleCertificate,
				Detail:     fmt.Sprintf("%s certificate marked valid but ended %s", c.Type, c.End.UTC().Format(time.RFC3339)),
			})
		}
	}
	return out
}

// OverrideContradictions flags active overrides forcing service on a trainset
// that a hard rule excludes.
func OverrideContradictions(s model.Snapshot, elig eligibility.Map) []model.Conflict {
	var out []model.Conflict
	for id, ov := range model.ActiveOverrides(s.Overrides) {
		res, ok := elig[id]
		if !ok || res.Eligible || ov.Status != model.StatusService {
			continue
		}
		out = append(out, model.Conflict{
			TrainsetID: id,
			Kind:       model.ConflictOverrideContradiction,
			Detail:     fmt.Sprintf("override %s forces %s despite %s", ov.ID, ov.Status, res.Primary()),
		})
	}
	return out
}

// FitStatusWithBlocker flags trainsets reported in revenue service while a
// hard rule blocks them.
func FitStatusWithBlocker(s model.Snapshot, elig eligibility.Map) []model.Conflict {
	var out []model.Conflict
	for _, t := range s.Trainsets {
		res := elig[t.ID]
		if t.Status != model.StatusService || res.Eligible {
			continue
		}
		out = append(out, model.Conflict{
			TrainsetID: t.ID,
			Kind:       model.ConflictFitStatusWithBlocker,
			Detail:     fmt.Sprintf("reported %s while blocked by %s", t.Status, res.Primary()),
		})
	}
	return out
}

// OrphanRecords flags records that reference a trainset absent from the
// snapshot. Unassigned branding contracts are allowed.
func OrphanRecords(s model.Snapshot, _ eligibility.Map) []model.Conflict {
	known := make(map[string]struct{}, len(s.Trainsets))
	for _, t := range s.Trainsets {
		known[t.ID] = struct{}{}
	}
	var out []model.Conflict
	orphan := func(id, what string) {
		if _, ok := known[id]; ok {
			return
		}
		out = append(out, model.Conflict{TrainsetID: id, Kind: model.ConflictOrphanRecord, Detail: what + " references unknown trainset"})
	}
	for _, c := range s.Certificates {
		orphan(c.TrainsetID, fmt.Sprintf("%s certificate", c.Type))
	}
	for _, j := range s.JobCards {
		orphan(j.TrainsetID, "job card "+j.ID)
	}
	for _, b := range s.Contracts {
		if b.TrainsetID != "" {
			orphan(b.TrainsetID, "branding contract "+b.ID)
		}
	}
	for _, c := range s.CleaningSlots {
		if c.TrainsetID != "" {
			orphan(c.TrainsetID, "cleaning slot "+c.ID)
		}
	}
	for _, o := range s.Overrides {
		if o.Active() {
			orphan(o.TrainsetID, "override "+o.ID)
		}
	}
	return out
}

// DuplicateBays flags trainsets sharing one stabling bay.
func DuplicateBays(s model.Snapshot, _ eligibility.Map) []model.Conflict {
	byBay := map[string][]string{}
	for _, t := range s.Trainsets {
		if t.StablingBay != "" {
			byBay[t.StablingBay] = append(byBay[t.StablingBay], t.ID)
		}
	}
	var out []model.Conflict
	for bay, ids := range byBay {
		if len(ids) < 2 {
			continue
		}
		sort.Strings(ids)
		for i, id := range ids {
			others := append(append([]string(nil), ids[:i]...), ids[i+1:]...)
			out = append(out, model.Conflict{
				TrainsetID: id,
				Kind:       model.ConflictDuplicateBay,
				Detail:     fmt.Sprintf("bay %s shared with %v", bay, others),
			})
		}
	}
	return out
}
