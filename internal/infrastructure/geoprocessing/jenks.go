package geoprocessing

import (
	"math"
	"sort"

	"github.com/ESP-OSD-DFO/DFO-CI-Toolbox/pkg/errors"
)

// Breaks returns the upper bounds of Jenks natural-breaks classes, ascending;
// the last bound is the maximum value. When values have no more distinct
// entries than classes, each distinct value is its own class.
func (e *Engine) Breaks(values []float64, classes int) ([]float64, error) {
	if classes < 1 {
		return nil, errors.InvalidParam("classes must be at least 1")
	}
	if len(values) == 0 {
		return nil, errors.InvalidParam("no values to classify")
	}
	data := append([]float64(nil), values...)
	sort.Float64s(data)

	distinct := uniqueSorted(data)
	if len(distinct) <= classes {
		return distinct, nil
	}
	if len(data) > e.maxBreakSample {
		data = sampleSorted(data, e.maxBreakSample)
	}
	return jenks(data, classes), nil
}

// jenks runs the Fisher–Jenks dynamic programme on sorted data.
func jenks(data []float64, k int) []float64 {
	n := len(data)
	lower := make([][]int, n+1)
	variance := make([][]float64, n+1)
	for i := range lower {
		lower[i] = make([]int, k+1)
		variance[i] = make([]float64, k+1)
	}
	for j := 1; j <= k; j++ {
		lower[1][j] = 1
		for i := 2; i <= n; i++ {
			variance[i][j] = math.Inf(1)
		}
	}

	for l := 2; l <= n; l++ {
		var sum, sumSq, w, v float64
		for m := 1; m <= l; m++ {
			lowIdx := l - m + 1
			val := data[lowIdx-1]
			sumSq += val * val
			sum += val
			w++
			v = sumSq - sum*sum/w
			prev := lowIdx - 1
			if prev == 0 {
				continue
			}
			for j := 2; j <= k; j++ {
				if variance[l][j] >= v+variance[prev][j-1] {
					lower[l][j] = lowIdx
					variance[l][j] = v + variance[prev][j-1]
				}
			}
		}
		lower[l][1] = 1
		variance[l][1] = v
	}

	breaks := make([]float64, k)
	breaks[k-1] = data[n-1]
	end := n
	for j := k; j >= 2; j-- {
		start := lower[end][j] - 1 // 0-based first index of class j
		breaks[j-2] = data[start-1]
		end = start
	}
	return breaks
}

func uniqueSorted(sorted []float64) []float64 {
	out := make([]float64, 0, len(sorted))
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			out = append(out, v)
		}
	}
	return out
}

// sampleSorted keeps n evenly spaced ranks, always including both ends.
func sampleSorted(sorted []float64, n int) []float64 {
	out := make([]float64, n)
	last := len(sorted) - 1
	for i := 0; i < n; i++ {
		out[i] = sorted[int(math.Round(float64(i)*float64(last)/float64(n-1)))]
	}
	return out
}
