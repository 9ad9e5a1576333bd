// Package eligibility classifies trainsets as service-eligible or not.
//
// Rules run in a fixed priority order. Every failing rule contributes its
// reasons; the first reason recorded is the primary blocking reason.
package eligibility

import (
	"sort"
	"time"

	"github.com/kilianp07/induction/core/model"
)

// Result is the eligibility verdict for one trainset.
type Result struct {
	Eligible bool           `json:"eligible"`
	Reasons  []model.Reason `json:"blocking_reasons,omitempty"`
}

// Primary returns the highest-priority blocking reason, or "" if eligible.
func (r Result) Primary() model.Reason {
	if len(r.Reasons) == 0 {
		return ""
	}
	return r.Reasons[0]
}

// Map holds one Result per trainset id.
type Map map[string]Result

// Eligible returns the eligible ids in ascending order.
func (m Map) Eligible() []string { return m.filter(true) }

// Ineligible returns the ineligible ids in ascending order.
func (m Map) Ineligible() []string { return m.filter(false) }

func (m Map) filter(want bool) []string {
	var ids []string
	for id, r := range m {
		if r.Eligible == want {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// Rule inspects one trainset and returns its blocking reasons, if any.
type Rule interface {
	Name() string
	Check(v model.TrainsetView, now time.Time) []model.Reason
}

// DefaultRules returns the built-in rules in priority order.
func DefaultRules() []Rule {
	return []Rule{CertificateRule{}, JobCardRule{}, HardwareFaultRule{}}
}

// Validator evaluates rules against snapshots. It holds no state between
// calls.
type Validator struct {
	rules []Rule
}

// New returns a validator running rules in the given order, or the default
// rules when none are supplied.
func New(rules ...Rule) *Validator {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Validator{rules: rules}
}

// Validate classifies every trainset of the snapshot at s.TakenAt.
func (v *Validator) Validate(s model.Snapshot) Map {
	idx := s.Index()
	out := make(Map, len(s.Trainsets))
	for _, id := range idx.IDs() {
		view, _ := idx.View(id)
		out[id] = v.Check(view, s.TakenAt)
	}
	return out
}

// Check evaluates the rules against a single trainset.
func (v *Validator) Check(view model.TrainsetView, now time.Time) Result {
	var reasons []model.Reason
	for _, r := range v.rules {
		reasons = append(reasons, r.Check(view, now)...)
	}
	return Result{Eligible: len(reasons) == 0, Reasons: reasons}
}

// CertificateRule requires a currently valid instance of every mandatory
// certificate type.
type CertificateRule struct{}

func (CertificateRule) Name() string { return "certificates" }

func (CertificateRule) Check(v model.TrainsetView, now time.Time) []model.Reason {
	var out []model.Reason
	for _, ct := range model.MandatoryCertificates {
		ok := false
		for _, c := range v.Certificates {
			if c.Type == ct && c.ValidAt(now) {
				ok = true
				break
			}
		}
		if !ok {
			out = append(out, model.CertificateExpired(ct))
		}
	}
	return out
}

// JobCardRule blocks trainsets with any open high-severity job card.
type JobCardRule struct{}

func (JobCardRule) Name() string { return "job_cards" }

func (JobCardRule) Check(v model.TrainsetView, _ time.Time) []model.Reason {
	for _, j := range v.JobCards {
		if j.Blocking() {
			return []model.Reason{model.ReasonJobCardOpen}
		}
	}
	return nil
}

// HardwareFaultRule blocks trainsets whose physical status is out of service.
type HardwareFaultRule struct{}

func (HardwareFaultRule) Name() string { return "hardware_fault" }

func (HardwareFaultRule) Check(v model.TrainsetView, _ time.Time) []model.Reason {
	if v.Trainset.HardwareFault() {
		return []model.Reason{model.ReasonHardwareFault}
	}
	return nil
}
