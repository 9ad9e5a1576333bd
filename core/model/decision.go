package model

import (
	"sort"
	"time"
)

// Reason is a blocking reason code produced by the constraint validator.
type Reason string

const (
	ReasonJobCardOpen   Reason = "job_card_open"
	ReasonHardwareFault Reason = "hardware_fault"

	certificateExpiredPrefix = "certificate_expired:"
)

// CertificateExpired returns the reason code for a missing or expired
// certificate of type t.
func CertificateExpired(t CertificateType) Reason {
	return Reason(certificateExpiredPrefix + string(t))
}

// ComponentName names one objective sub-score.
type ComponentName string

const (
	MileageBalance    ComponentName = "mileage_balance"
	BrandingUrgency   ComponentName = "branding_urgency"
	CleaningReadiness ComponentName = "cleaning_readiness"
	StablingCost      ComponentName = "stabling_cost"
)

// Components lists the objective components in their fixed vector order.
var Components = []ComponentName{MileageBalance, BrandingUrgency, CleaningReadiness, StablingCost}

// ScoreComponent is one entry of a score vector.
type ScoreComponent struct {
	Name         ComponentName `json:"name"`
	Value        float64       `json:"value"`
	Weight       float64       `json:"weight"`
	Contribution float64       `json:"contribution"`
}

// ScoreVector holds the per-objective sub-scores of a trainset and their
// weighted sum.
type ScoreVector struct {
	TrainsetID string           `json:"trainset_id"`
	Components []ScoreComponent `json:"components"`
	Total      float64          `json:"total"`
}

// Component returns the named component.
func (v ScoreVector) Component(name ComponentName) (ScoreComponent, bool) {
	for _, c := range v.Components {
		if c.Name == name {
			return c, true
		}
	}
	return ScoreComponent{}, false
}

// TraceKind classifies a trace entry.
type TraceKind string

const (
	TraceBlocking  TraceKind = "blocking"
	TraceOverride  TraceKind = "override"
	TraceRank      TraceKind = "rank"
	TraceComponent TraceKind = "component"
	TraceSelection TraceKind = "selection"
	TraceShortfall TraceKind = "shortfall"
	TraceWarning   TraceKind = "warning"
)

// TraceEntry is one contributing fact behind a decision.
type TraceEntry struct {
	Kind   TraceKind `json:"kind"`
	Code   string    `json:"code"`
	Detail string    `json:"detail"`
	Value  float64   `json:"value,omitempty"`
}

// Decision is the immutable induction outcome for one trainset in one run.
type Decision struct {
	TrainsetID      string       `json:"trainset_id"`
	Status          Status       `json:"status"`
	Score           float64      `json:"score"`
	Scores          *ScoreVector `json:"scores,omitempty"`
	Eligible        bool         `json:"eligible"`
	BlockingReasons []Reason     `json:"blocking_reasons,omitempty"`
	Rank            int          `json:"rank,omitempty"`
	Pinned          bool         `json:"pinned"`
	Override        *Override    `json:"override,omitempty"`
	Trace           []TraceEntry `json:"trace"`
	// EstimatedServiceHours projects revenue hours for service decisions.
	EstimatedServiceHours float64 `json:"estimated_service_hours,omitempty"`
}

// DecisionSet is the complete output of one optimization run. Decisions are
// ordered by trainset id.
type DecisionSet struct {
	// Fingerprint is derived from the run inputs; identical inputs yield the
	// same fingerprint.
	Fingerprint   string     `json:"fingerprint"`
	GeneratedAt   time.Time  `json:"generated_at"`
	Demand        int        `json:"service_demand"`
	EligibleCount int        `json:"eligible_count"`
	Shortfall     int        `json:"shortfall"`
	Decisions     []Decision `json:"decisions"`
	// Conflicts are the warnings detected on the evaluated snapshot.
	Conflicts []Conflict `json:"conflicts,omitempty"`
}

// Infeasible reports whether the run could not meet demand.
func (s DecisionSet) Infeasible() bool { return s.Shortfall > 0 }

// Counts returns the number of decisions per assigned status.
func (s DecisionSet) Counts() map[Status]int {
	out := make(map[Status]int, len(AssignableStatuses))
	for _, st := range AssignableStatuses {
		out[st] = 0
	}
	for _, d := range s.Decisions {
		out[d.Status]++
	}
	return out
}

// Decision returns the decision for the given trainset.
func (s DecisionSet) Decision(id string) (Decision, bool) {
	i := sort.Search(len(s.Decisions), func(i int) bool { return s.Decisions[i].TrainsetID >= id })
	if i < len(s.Decisions) && s.Decisions[i].TrainsetID == id {
		return s.Decisions[i], true
	}
	return Decision{}, false
}

// WithStatus returns the ids assigned the given status, sorted.
func (s DecisionSet) WithStatus(st Status) []string {
	var ids []string
	for _, d := range s.Decisions {
		if d.Status == st {
			ids = append(ids, d.TrainsetID)
		}
	}
	return ids
}

// ConflictKind classifies a data contradiction.
type ConflictKind string

const (
	ConflictStaleCertificate      ConflictKind = "stale_certificate"
	ConflictOverrideContradiction ConflictKind = "override_contradicts_eligibility"
	ConflictFitStatusWithBlocker  ConflictKind = "fit_status_with_blocker"
	ConflictOrphanRecord          ConflictKind = "orphan_record"
	ConflictDuplicateBay          ConflictKind = "duplicate_stabling_bay"
)

// Conflict is a warning about logically contradictory snapshot state. It is
// reported alongside normal output and never corrects anything.
type Conflict struct {
	TrainsetID string       `json:"trainset_id"`
	Kind       ConflictKind `json:"kind"`
	Detail     string       `json:"detail"`
}
