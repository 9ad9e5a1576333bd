package scoring

import "math"

const (
	CurveLinear      = "linear"
	CurveSigmoid     = "sigmoid"
	CurveExponential = "exponential"
)

// mileageCurve maps the excess deviation, in multiples of the threshold, to a
// magnitude in [0,1]. Curves are non-decreasing and map 0 to 0.
type mileageCurve func(excess float64) float64

var mileageCurves = map[string]mileageCurve{
	CurveLinear: func(x float64) float64 {
		return clamp(x, 0, 1)
	},
	CurveSigmoid: func(x float64) float64 {
		if x <= 0 {
			return 0
		}
		return 2/(1+math.Exp(-4*x)) - 1
	},
}

// brandingCurve maps the remaining fraction of a contract period to a time
// pressure in (0,1]. Curves are non-increasing in remaining time, so urgency
// grows as the deadline approaches.
type brandingCurve func(remaining, decay float64) float64

var brandingCurves = map[string]brandingCurve{
	CurveLinear: func(r, _ float64) float64 {
		return 1 - clamp(r, 0, 1)/2
	},
	CurveExponential: func(r, k float64) float64 {
		return math.Exp(-k * clamp(r, 0, 1))
	},
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
