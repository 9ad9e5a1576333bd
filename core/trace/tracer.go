// Package trace turns an optimizer plan into explained decisions.
//
// The tracer is a pure post-pass over the plan and the score vectors the
// optimizer already ranked on; it never recomputes scores or eligibility.
package trace

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/kilianp07/induction/core/eligibility"
	"github.com/kilianp07/induction/core/model"
	"github.com/kilianp07/induction/core/optimizer"
)

// Trace codes that are not reason codes or component names.
const (
	CodeRank        = "rank"
	CodeTieBreak    = "tie_break"
	CodeSelected    = "selected"
	CodeStandby     = "standby"
	CodeShortfall   = "shortfall"
	CodeMaintenance = "maintenance"
	CodeExposure    = "branding_exposure"
	CodeContradicts = string(model.ConflictOverrideContradiction)
)

// Options tune the trace detail.
type Options struct {
	// TopComponents limits the component entries per decision; zero keeps all.
	TopComponents int
	// EstimatedServiceHours is attached to every service decision when
	// ServiceHours is nil.
	EstimatedServiceHours float64
	// ServiceHours projects revenue hours from a trainset's mileage.
	ServiceHours func(mileage float64) float64
}

// Tracer builds decisions. It is stateless and safe for concurrent use.
type Tracer struct {
	opts Options
}

// New returns a tracer.
func New(opts Options) *Tracer { return &Tracer{opts: opts} }

// WithServiceHours returns a copy of t projecting service hours with fn.
func (t *Tracer) WithServiceHours(fn func(mileage float64) float64) *Tracer {
	opts := t.opts
	opts.ServiceHours = fn
	return &Tracer{opts: opts}
}

func (t *Tracer) serviceHours(mileage float64) float64 {
	if t.opts.ServiceHours != nil {
		return t.opts.ServiceHours(mileage)
	}
	return t.opts.EstimatedServiceHours
}

// Decisions explains every assignment of the plan, in trainset id order.
func (t *Tracer) Decisions(p optimizer.Plan, elig eligibility.Map, scores map[string]model.ScoreVector) []model.Decision {
	out := make([]model.Decision, 0, len(p.Assignments))
	for _, a := range p.Assignments {
		var vec *model.ScoreVector
		if v, ok := scores[a.TrainsetID]; ok && a.Eligible {
			v := v
			vec = &v
		}
		out = append(out, t.Explain(p, a, elig[a.TrainsetID], vec))
	}
	return out
}

// Explain builds the decision for one assignment.
func (t *Tracer) Explain(p optimizer.Plan, a optimizer.Assignment, res eligibility.Result, vec *model.ScoreVector) model.Decision {
	d := model.Decision{
		TrainsetID:      a.TrainsetID,
		Status:          a.Status,
		Score:           a.Score,
		Scores:          vec,
		Eligible:        a.Eligible,
		BlockingReasons: append([]model.Reason(nil), res.Reasons...),
		Rank:            a.Rank,
		Pinned:          a.Pinned,
		Trace:           []model.TraceEntry{},
	}
	if a.Override != nil {
		ov := *a.Override
		d.Override = &ov
	}

	for i, r := range res.Reasons {
		detail := "additional blocking reason"
		if i == 0 {
			detail = "primary blocking reason"
		}
		d.Trace = append(d.Trace, model.TraceEntry{Kind: model.TraceBlocking, Code: string(r), Detail: detail})
	}

	switch {
	case a.Pinned:
		d.Trace = append(d.Trace, t.override(a, res)...)
	case !a.Eligible:
		d.Trace = append(d.Trace, model.TraceEntry{
			Kind: model.TraceSelection, Code: CodeMaintenance,
			Detail: "held for maintenance until blocking reasons clear",
		})
	default:
		d.Trace = append(d.Trace, t.ranked(p, a, vec)...)
	}

	if a.Status == model.StatusService {
		hours := t.serviceHours(a.Mileage)
		d.EstimatedServiceHours = hours
		if vec != nil && hours > 0 {
			if c, ok := vec.Component(model.BrandingUrgency); ok && c.Value > 0 {
				d.Trace = append(d.Trace, model.TraceEntry{
					Kind: model.TraceSelection, Code: CodeExposure,
					Detail: fmt.Sprintf("projects %.1f h of branding exposure toward an unmet contract", hours),
					Value:  hours,
				})
			}
		}
	}
	return d
}

func (t *Tracer) override(a optimizer.Assignment, res eligibility.Result) []model.TraceEntry {
	ov := a.Override
	if ov == nil {
		return nil
	}
	detail := fmt.Sprintf("forced to %s", ov.Status)
	if ov.Author != "" {
		detail += " by " + ov.Author
	}
	if !ov.CreatedAt.IsZero() {
		detail += " at " + ov.CreatedAt.UTC().Format(time.RFC3339)
	}
	if ov.Reason != "" {
		detail += ": " + ov.Reason
	}
	out := []model.TraceEntry{{Kind: model.TraceOverride, Code: "override:" + string(ov.Status), Detail: detail}}
	if ov.Status == model.StatusService && !a.Eligible {
		out = append(out, model.TraceEntry{
			Kind: model.TraceWarning, Code: CodeContradicts,
			Detail: fmt.Sprintf("forced into service despite %s", res.Primary()),
		})
	}
	return out
}

func (t *Tracer) ranked(p optimizer.Plan, a optimizer.Assignment, vec *model.ScoreVector) []model.TraceEntry {
	out := []model.TraceEntry{{
		Kind: model.TraceRank, Code: CodeRank,
		Detail: fmt.Sprintf("ranked %s of %d eligible by combined score", Ordinal(a.Rank), p.PoolSize),
		Value:  float64(a.Rank),
	}}
	if vec != nil {
		for _, c := range t.components(*vec) {
			out = append(out, model.TraceEntry{
				Kind: model.TraceComponent, Code: string(c.Name),
				Detail: fmt.Sprintf("%s contributed %+.3f of %+.3f total", c.Name, c.Contribution, vec.Total),
				Value:  c.Contribution,
			})
		}
	}
	if tie, ok := tieBreak(p, a.Rank); ok {
		out = append(out, tie)
	}
	if a.Status == model.StatusService {
		out = append(out, model.TraceEntry{
			Kind: model.TraceSelection, Code: CodeSelected,
			Detail: fmt.Sprintf("within the %d service slots left after overrides", p.Selected),
		})
		if p.Shortfall > 0 {
			out = append(out, model.TraceEntry{
				Kind: model.TraceShortfall, Code: CodeShortfall,
				Detail: fmt.Sprintf("demand %d exceeds eligible supply, shortfall %d", p.Demand, p.Shortfall),
				Value:  float64(p.Shortfall),
			})
		}
		return out
	}
	detail := fmt.Sprintf("below the service cutoff at rank %d", p.Selected)
	if p.Selected == 0 {
		detail = "no service slots left after overrides"
	}
	out = append(out, model.TraceEntry{Kind: model.TraceSelection, Code: CodeStandby, Detail: detail})
	return out
}

// components returns the score components ordered by contribution magnitude.
func (t *Tracer) components(vec model.ScoreVector) []model.ScoreComponent {
	cs := append([]model.ScoreComponent(nil), vec.Components...)
	sort.SliceStable(cs, func(i, j int) bool {
		return math.Abs(cs[i].Contribution) > math.Abs(cs[j].Contribution)
	})
	if t.opts.TopComponents > 0 && len(cs) > t.opts.TopComponents {
		cs = cs[:t.opts.TopComponents]
	}
	return cs
}

// tieBreak explains the cutoff when the last selected and first standby
// candidate share a combined score.
func tieBreak(p optimizer.Plan, rank int) (model.TraceEntry, bool) {
	cut := p.Selected
	if cut == 0 || cut >= len(p.Ranking) || (rank != cut && rank != cut+1) {
		return model.TraceEntry{}, false
	}
	in, outc := p.Ranking[cut-1], p.Ranking[cut]
	if in.Score != outc.Score {
		return model.TraceEntry{}, false
	}
	by := "lower trainset id"
	if in.Mileage != outc.Mileage {
		by = "lower cumulative mileage"
	}
	other := outc.ID
	if rank == cut+1 {
		other = in.ID
	}
	return model.TraceEntry{
		Kind: model.TraceRank, Code: CodeTieBreak,
		Detail: fmt.Sprintf("tied with %s on combined score, broken by %s", other, by),
	}, true
}

// Ordinal formats n as 1st, 2nd, 3rd, 4th, 11th, 21st and so on.
func Ordinal(n int) string {
	suffix := "th"
	switch n % 100 {
	case 11, 12, 13:
	default:
		switch n % 10 {
		case 1:
			suffix = "st"
		case 2:
			suffix = "nd"
		case 3:
			suffix = "rd"
		}
	}
	return fmt.Sprintf("%d%s", n, suffix)
}
