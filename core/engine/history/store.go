// Package history keeps the audit trail of decision sets. A new run
// supersedes the previous one without erasing it.
package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kilianp07/induction/core/model"
)

// ErrEmpty is returned by Latest when nothing has been recorded.
var ErrEmpty = errors.New("no decision history")

// Record is one optimization run.
type Record struct {
	RunID       string               `json:"run_id"`
	Timestamp   time.Time            `json:"timestamp"`
	Fingerprint string               `json:"fingerprint"`
	Demand      int                  `json:"service_demand"`
	Shortfall   int                  `json:"shortfall"`
	Counts      map[model.Status]int `json:"counts"`
	Decisions   []model.Decision     `json:"decisions"`
	Conflicts   []model.Conflict     `json:"conflicts,omitempty"`
	// GeneratedAt is the snapshot instant the run evaluated.
	GeneratedAt time.Time `json:"generated_at,omitempty"`
}

// NewRecord wraps a decision set.
func NewRecord(runID string, at time.Time, ds model.DecisionSet) Record {
	return Record{
		RunID:       runID,
		Timestamp:   at,
		Fingerprint: ds.Fingerprint,
		Demand:      ds.Demand,
		Shortfall:   ds.Shortfall,
		Counts:      ds.Counts(),
		Decisions:   ds.Decisions,
		Conflicts:   ds.Conflicts,
		GeneratedAt: ds.GeneratedAt,
	}
}

// DecisionSet rebuilds the decision set of the run.
func (r Record) DecisionSet() model.DecisionSet {
	eligible := 0
	for _, d := range r.Decisions {
		if d.Eligible {
			eligible++
		}
	}
	generated := r.GeneratedAt
	if generated.IsZero() {
		generated = r.Timestamp
	}
	return model.DecisionSet{
		Fingerprint:   r.Fingerprint,
		GeneratedAt:   generated,
		Demand:        r.Demand,
		EligibleCount: eligible,
		Shortfall:     r.Shortfall,
		Decisions:     r.Decisions,
		Conflicts:     r.Conflicts,
	}
}

// Query filters records. Zero fields do not filter.
type Query struct {
	Start time.Time
	End   time.Time
	// TrainsetID keeps only that trainset's decision in each record.
	TrainsetID string
	// Limit keeps the most recent records.
	Limit int
}

func (q Query) matchTime(ts time.Time) bool {
	if !q.Start.IsZero() && ts.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && ts.After(q.End) {
		return false
	}
	return true
}

// narrow applies the trainset filter, reporting whether r should be kept.
func (q Query) narrow(r *Record) bool {
	if q.TrainsetID == "" {
		return true
	}
	for _, d := range r.Decisions {
		if d.TrainsetID == q.TrainsetID {
			r.Decisions = []model.Decision{d}
			return true
		}
	}
	return false
}

func (q Query) limit(res []Record) []Record {
	if q.Limit > 0 && len(res) > q.Limit {
		return res[len(res)-q.Limit:]
	}
	return res
}

// Store persists records.
type Store interface {
	Append(ctx context.Context, rec Record) error
	// Query returns matching records in timestamp order.
	Query(ctx context.Context, q Query) ([]Record, error)
	// Latest returns the most recently appended record.
	Latest(ctx context.Context) (Record, error)
	Close() error
}

// MemoryStore keeps records in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	s.records = append(s.records, rec)
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Query(_ context.Context, q Query) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var res []Record
	for _, r := range s.records {
		if !q.matchTime(r.Timestamp) || !q.narrow(&r) {
			continue
		}
		res = append(res, r)
	}
	sort.SliceStable(res, func(i, j int) bool { return res[i].Timestamp.Before(res[j].Timestamp) })
	return q.limit(res), nil
}

func (s *MemoryStore) Latest(context.Context) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return Record{}, ErrEmpty
	}
	return s.records[len(s.records)-1], nil
}

func (s *MemoryStore) Close() error { return nil }
