// Package regression fits ordinary least squares lines of one dependent
// variable on one predictor.
package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// predictors is the number of explanatory variables in a simple regression.
const predictors = 1

// ErrDegenerateFit is returned when a fit has too few samples or too little
// variation for its adjusted R² to be defined.
var ErrDegenerateFit = errors.New("degenerate fit")

// Result is a fitted line y = Slope*x + Intercept.
type Result struct {
	Slope      float64
	Intercept  float64
	R2         float64
	AdjustedR2 float64
	N          int
}

// Fit regresses y on x. It returns ErrDegenerateFit (wrapped) when n <= 2,
// when x is constant, or when the goodness of fit is not a finite number.
func Fit(x, y []float64) (Result, error) {
	if len(x) != len(y) {
		return Result{}, fmt.Errorf("mismatched lengths: %d x values, %d y values", len(x), len(y))
	}
	n := len(x)
	if n <= predictors+1 {
		return Result{}, fmt.Errorf("%w: %d samples", ErrDegenerateFit, n)
	}
	if stat.Variance(x, nil) == 0 {
		return Result{}, fmt.Errorf("%w: predictor is constant", ErrDegenerateFit)
	}

	intercept, slope := stat.LinearRegression(x, y, nil, false)
	r2 := stat.RSquared(x, y, nil, intercept, slope)
	adj := AdjustedR2(r2, n, predictors)
	if math.IsNaN(adj) || math.IsInf(adj, 0) {
		return Result{}, fmt.Errorf("%w: adjusted r2 is %v", ErrDegenerateFit, adj)
	}

	return Result{
		Slope:      slope,
		Intercept:  intercept,
		R2:         r2,
		AdjustedR2: adj,
		N:          n,
	}, nil
}

// AdjustedR2 penalizes r2 for the number of predictors p given n samples.
func AdjustedR2(r2 float64, n, p int) float64 {
	return 1 - (1-r2)*float64(n-1)/float64(n-p-1)
}
