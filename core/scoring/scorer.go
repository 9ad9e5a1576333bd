// Package scoring computes objective sub-scores and their weighted sum for
// trainsets. The scorer only ranks; it never decides a status.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/induction/core/model"
)

// Aggregates are the fleet-wide values the component scores are relative to.
type Aggregates struct {
	Now           time.Time
	MeanMileage   float64
	StdDevMileage float64
	MinExitCost   float64
	MaxExitCost   float64
	FleetSize     int
}

// ComputeAggregates derives the fleet aggregates of a snapshot.
func ComputeAggregates(s model.Snapshot) Aggregates {
	agg := Aggregates{Now: s.TakenAt, FleetSize: len(s.Trainsets)}
	if len(s.Trainsets) > 0 {
		km := make([]float64, len(s.Trainsets))
		for i, t := range s.Trainsets {
			km[i] = t.Mileage
		}
		agg.MeanMileage = stat.Mean(km, nil)
		if len(km) > 1 {
			agg.StdDevMileage = stat.StdDev(km, nil)
		}
	}
	if len(s.StablingSlots) > 0 {
		costs := make([]float64, len(s.StablingSlots))
		for i, sl := range s.StablingSlots {
			costs[i] = sl.ExitCost
		}
		agg.MinExitCost = floats.Min(costs)
		agg.MaxExitCost = floats.Max(costs)
	}
	return agg
}

// Mileage returns the mileage record of t relative to the fleet mean.
func (a Aggregates) Mileage(t model.Trainset) model.MileageRecord {
	rec := model.MileageRecord{TrainsetID: t.ID, Total: t.Mileage}
	if a.MeanMileage > 0 {
		rec.Deviation = (t.Mileage - a.MeanMileage) / a.MeanMileage
	}
	return rec
}

// Scorer computes score vectors. It is safe for concurrent use.
type Scorer struct {
	cfg      Config
	mileage  mileageCurve
	branding brandingCurve
}

// New validates cfg and returns a scorer.
func New(cfg Config) (*Scorer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("scoring config: %w", err)
	}
	return &Scorer{cfg: cfg, mileage: mileageCurves[cfg.MileageCurve], branding: brandingCurves[cfg.BrandingCurve]}, nil
}

// Config returns the scorer configuration.
func (s *Scorer) Config() Config { return s.cfg }

// Score computes the score vector of a single trainset.
func (s *Scorer) Score(v model.TrainsetView, agg Aggregates) model.ScoreVector {
	values := map[model.ComponentName]float64{
		model.MileageBalance:    s.MileageBalance(agg.Mileage(v.Trainset)),
		model.BrandingUrgency:   s.BrandingUrgency(v.Contract, agg.Now),
		model.CleaningReadiness: s.CleaningReadiness(v.Trainset, v.CleaningSlots, agg.Now),
		model.StablingCost:      s.StablingCost(v.Slot, agg),
	}
	vec := model.ScoreVector{TrainsetID: v.Trainset.ID, Components: make([]model.ScoreComponent, 0, len(model.Components))}
	for _, name := range model.Components {
		w := s.cfg.Weights.Of(name)
		c := model.ScoreComponent{Name: name, Value: values[name], Weight: w, Contribution: w * values[name]}
		vec.Components = append(vec.Components, c)
		vec.Total += c.Contribution
	}
	return vec
}

// ScoreAll scores the given trainsets of a snapshot. Unknown ids are skipped.
func (s *Scorer) ScoreAll(snap model.Snapshot, ids []string) map[string]model.ScoreVector {
	idx := snap.Index()
	agg := ComputeAggregates(snap)
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	out := make(map[string]model.ScoreVector, len(sorted))
	for _, id := range sorted {
		v, ok := idx.View(id)
		if !ok {
			continue
		}
		out[id] = s.Score(v, agg)
	}
	return out
}

// MileageBalance is positive for units below the fleet mean and negative for
// units above it, zero inside the deviation threshold and bounded by 1.
func (s *Scorer) MileageBalance(rec model.MileageRecord) float64 {
	dev := math.Abs(rec.Deviation)
	t := s.cfg.MileageDeviationThreshold
	if dev <= t {
		return 0
	}
	mag := s.mileage((dev - t) / t)
	if rec.Deviation > 0 {
		return -mag
	}
	return mag
}

// BrandingUrgency grows with the exposure still owed and as the contract
// deadline approaches. Units without a running contract score zero.
func (s *Scorer) BrandingUrgency(c *model.BrandingContract, now time.Time) float64 {
	if c == nil || now.Before(c.Start) || !now.Before(c.End) {
		return 0
	}
	behind := clamp(c.Remaining()/c.Target, 0, 1)
	if behind == 0 {
		return 0
	}
	period := c.End.Sub(c.Start).Seconds()
	remaining := c.End.Sub(now).Seconds() / period
	return behind * s.branding(remaining, s.cfg.BrandingDecay)
}

// CleaningReadiness penalizes units due for cleaning with no cleaning slot
// booked.
func (s *Scorer) CleaningReadiness(t model.Trainset, slots []model.CleaningSlot, now time.Time) float64 {
	due := t.LastCleaned.IsZero() || now.Sub(t.LastCleaned) >= s.cfg.CleaningInterval
	if !due {
		return 0
	}
	for _, sl := range slots {
		if sl.End.After(now) {
			return 0
		}
	}
	return -1
}

// StablingCost maps the exit cost of the unit's bay onto [-1,1], with the
// cheapest exit scoring 1.
func (s *Scorer) StablingCost(slot *model.StablingSlot, agg Aggregates) float64 {
	if slot == nil {
		return 0
	}
	span := agg.MaxExitCost - agg.MinExitCost
	if span <= 0 {
		return 0
	}
	return 1 - 2*clamp((slot.ExitCost-agg.MinExitCost)/span, 0, 1)
}
