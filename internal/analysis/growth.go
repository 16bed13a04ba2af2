package analysis

import "math"

// GrowthRate fits log(population) against time by least squares and returns
// the exponential rate together with the doubling time. Samples with a zero
// population are skipped. ok is false with fewer than two usable samples or
// a non-positive rate.
func GrowthRate(times, population []float64) (rate, doubling float64, ok bool) {
	var sx, sy, sxx, sxy, n float64
	for i := range times {
		if i >= len(population) || population[i] <= 0 {
			continue
		}
		x, y := times[i], math.Log(population[i])
		sx += x
		sy += y
		sxx += x * x
		sxy += x * y
		n++
	}
	if n < 2 {
		return 0, 0, false
	}
	den := n*sxx - sx*sx
	if den == 0 {
		return 0, 0, false
	}
	rate = (n*sxy - sx*sy) / den
	if !(rate > 0) {
		return rate, 0, false
	}
	return rate, math.Ln2 / rate, true
}
