package bbl

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

var nanValue = math.NaN()

//CalcBorders selects up to maxBorders borders for a numeric column. Borders sit at quantiles of
//the non-NaN values, snapped to the midpoint between adjacent unique values, so no border ever
//separates equal values. NaN values are allowed only with NanMin or NanMax.
func CalcBorders(values []float64, maxBorders int, nanMode NanMode) ([]float64, error) {
	if maxBorders <= 0 {
		return nil, fmt.Errorf("%w: border count must be positive, got %d", ErrConfiguration, maxBorders)
	}
	sorted := make([]float64, 0, len(values))
	for row, value := range values {
		if math.IsNaN(value) {
			if nanMode == NanForbidden {
				return nil, fmt.Errorf("%w: nan value in row %d with nan mode %v", ErrConfiguration, row, nanMode)
			}
			continue
		}
		sorted = append(sorted, value)
	}
	sort.Float64s(sorted)

	uniq := uniqueSorted(sorted)
	if len(uniq) < 2 {
		return []float64{}, nil
	}
	if len(uniq)-1 <= maxBorders {
		borders := make([]float64, len(uniq)-1)
		for i := range borders {
			borders[i] = (uniq[i] + uniq[i+1]) / 2
		}
		return borders, nil
	}

	borders := make([]float64, 0, maxBorders)
	for k := 1; k <= maxBorders; k++ {
		q := stat.Quantile(float64(k)/float64(maxBorders+1), stat.Empirical, sorted, nil)
		border := snapToMidpoint(uniq, q)
		if len(borders) == 0 || border > borders[len(borders)-1] {
			borders = append(borders, border)
		}
	}
	return borders, nil
}

func uniqueSorted(sorted []float64) []float64 {
	uniq := make([]float64, 0, len(sorted))
	for i, v := range sorted {
		if i == 0 || v != uniq[len(uniq)-1] {
			uniq = append(uniq, v)
		}
	}
	return uniq
}

//snapToMidpoint returns the midpoint of the unique values around q. uniq has at least two values.
func snapToMidpoint(uniq []float64, q float64) float64 {
	j := sort.SearchFloat64s(uniq, q)
	if j == 0 {
		j = 1
	}
	if j >= len(uniq) {
		j = len(uniq) - 1
	}
	return (uniq[j-1] + uniq[j]) / 2
}
