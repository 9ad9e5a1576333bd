// Package optimizer assigns every trainset one induction status.
//
// Selection is a constrained top-k: ineligible trainsets go to maintenance,
// overridden trainsets take their forced status, and the remaining eligible
// pool is ranked by (score desc, mileage asc, id asc) and sliced at the
// outstanding service demand.
package optimizer

import (
	"sort"

	"github.com/kilianp07/induction/core/eligibility"
	"github.com/kilianp07/induction/core/model"
)

// Candidate is one member of the rankable pool.
type Candidate struct {
	ID      string
	Score   float64
	Mileage float64
}

// Less is the total order used for service selection.
func Less(a, b Candidate) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.Mileage != b.Mileage {
		return a.Mileage < b.Mileage
	}
	return a.ID < b.ID
}

// Rank sorts candidates in selection order.
func Rank(c []Candidate) {
	sort.SliceStable(c, func(i, j int) bool { return Less(c[i], c[j]) })
}

// Input is everything a run depends on.
type Input struct {
	Trainsets   []model.Trainset
	Eligibility eligibility.Map
	Scores      map[string]model.ScoreVector
	Demand      int
	// Overrides holds the active override per trainset id.
	Overrides map[string]model.Override
}

// Assignment is the status chosen for one trainset.
type Assignment struct {
	TrainsetID string
	Status     model.Status
	Eligible   bool
	Pinned     bool
	Override   *model.Override
	// Rank is the 1-based position in the pool ranking; zero outside the pool.
	Rank    int
	Score   float64
	Mileage float64
}

// Plan is the optimizer output.
type Plan struct {
	Demand        int
	EligibleCount int
	// ForcedService counts overrides pinning a trainset into service. They
	// consume demand before the pool is sliced.
	ForcedService int
	PoolSize      int
	Selected      int
	Shortfall     int
	// Ranking is the pool in selection order.
	Ranking []Candidate
	// Assignments is sorted by trainset id.
	Assignments []Assignment
}

// Assignment returns the assignment of a trainset.
func (p Plan) Assignment(id string) (Assignment, bool) {
	i := sort.Search(len(p.Assignments), func(i int) bool { return p.Assignments[i].TrainsetID >= id })
	if i < len(p.Assignments) && p.Assignments[i].TrainsetID == id {
		return p.Assignments[i], true
	}
	return Assignment{}, false
}

// Count returns the number of assignments with the given status.
func (p Plan) Count(st model.Status) int {
	n := 0
	for _, a := range p.Assignments {
		if a.Status == st {
			n++
		}
	}
	return n
}

// Optimize computes the plan. It is a pure function of its input.
func Optimize(in Input) Plan {
	p := Plan{Demand: max(in.Demand, 0)}
	byID := make(map[string]*Assignment, len(in.Trainsets))
	p.Assignments = make([]Assignment, 0, len(in.Trainsets))

	for _, t := range in.Trainsets {
		if _, dup := byID[t.ID]; dup {
			continue
		}
		res, ok := in.Eligibility[t.ID]
		a := Assignment{
			TrainsetID: t.ID,
			Eligible:   ok && res.Eligible,
			Score:      in.Scores[t.ID].Total,
			Mileage:    t.Mileage,
		}
		if a.Eligible {
			p.EligibleCount++
		}
		if ov, pinned := in.Overrides[t.ID]; pinned {
			ov := ov
			a.Pinned = true
			a.Override = &ov
			a.Status = ov.Status
			if ov.Status == model.StatusService {
				p.ForcedService++
			}
		} else if a.Eligible {
			p.Ranking = append(p.Ranking, Candidate{ID: t.ID, Score: a.Score, Mileage: t.Mileage})
		} else {
			a.Status = model.StatusMaintenance
		}
		p.Assignments = append(p.Assignments, a)
		byID[t.ID] = &p.Assignments[len(p.Assignments)-1]
	}

	Rank(p.Ranking)
	p.PoolSize = len(p.Ranking)
	need := max(p.Demand-p.ForcedService, 0)
	p.Selected = min(need, p.PoolSize)
	p.Shortfall = need - p.Selected

	for i, c := range p.Ranking {
		a := byID[c.ID]
		a.Rank = i + 1
		if i < p.Selected {
			a.Status = model.StatusService
		} else {
			a.Status = model.StatusStandby
		}
	}

	sort.Slice(p.Assignments, func(i, j int) bool { return p.Assignments[i].TrainsetID < p.Assignments[j].TrainsetID })
	return p
}
