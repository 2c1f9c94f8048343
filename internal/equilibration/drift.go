package equilibration

import (
	"context"
	"math"
)

const minDriftSamples = 4

// DriftClassifier is a built-in stationarity heuristic. It keeps the last
// ProdFraction of the series, splits that tail into halves, and calls the
// series equilibrated when the half means differ by at most Threshold
// standard errors.
type DriftClassifier struct {
	Threshold    float64
	ProdFraction float64
}

func (d DriftClassifier) IsEquilibrated(_ context.Context, series []float64) (Result, error) {
	frac := d.ProdFraction
	if frac <= 0 || frac > 1 {
		frac = 0.5
	}
	start := len(series) - int(math.Round(float64(len(series))*frac))
	tail := series[start:]
	if len(tail) < minDriftSamples {
		return Result{Equilibrated: false, Metadata: map[string]float64{"samples": float64(len(tail))}}, nil
	}
	half := len(tail) / 2
	a, b := tail[:half], tail[half:]
	meanA, varA := meanVar(a)
	meanB, varB := meanVar(b)
	stderr := math.Sqrt(varA/float64(len(a)) + varB/float64(len(b)))
	diff := math.Abs(meanA - meanB)

	var score float64
	switch {
	case stderr > 0:
		score = diff / stderr
	case diff == 0:
		score = 0
	default:
		score = math.Inf(1)
	}
	return Result{
		Equilibrated: score <= d.Threshold,
		Metadata: map[string]float64{
			"samples":     float64(len(tail)),
			"drift":       diff,
			"drift_sigma": score,
		},
	}, nil
}

func meanVar(xs []float64) (float64, float64) {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))
	if len(xs) < 2 {
		return mean, 0
	}
	var ss float64
	for _, x := range xs {
		ss += (x - mean) * (x - mean)
	}
	return mean, ss / float64(len(xs)-1)
}
