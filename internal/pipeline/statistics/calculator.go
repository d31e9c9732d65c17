package statistics

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// Pearson returns the sample correlation coefficient of x and y. It is NaN
// when the slices differ in length, hold fewer than two values, or either
// one is constant.
func Pearson(x, y []float64) float64 {
	if len(x) != len(y) || len(x) < 2 {
		return math.NaN()
	}
	if isConstant(x) || isConstant(y) {
		return math.NaN()
	}

	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return r
	}
	return math.Max(-1, math.Min(1, r))
}

func isConstant(x []float64) bool {
	for _, v := range x[1:] {
		if v != x[0] {
			return false
		}
	}
	return true
}

// Compute encodes the nominal columns and correlates each predictor with
// Income.
func Compute(ds *Dataset) Report {
	income := ds.Income
	gender := EncodeLabels(ds.Gender)
	state := EncodeLabels(ds.State)

	return Report{
		GenderToIncome:     Coefficient(Pearson(gender.Floats(), income)),
		ExperienceToIncome: Coefficient(Pearson(ds.Experience, income)),
		StateToIncome:      Coefficient(Pearson(state.Floats(), income)),
	}
}
