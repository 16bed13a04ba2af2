package analysis

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// Bin is one frequency bin of a power spectrum.
type Bin struct {
	Freq  float64
	Power float64
}

// Spectrum returns the one-sided power spectrum of data sampled every dt.
// The mean is removed and a Hann window applied before the transform.
func Spectrum(data []float64, dt float64) []Bin {
	n := len(data)
	if n < 2 || !(dt > 0) {
		return nil
	}

	mean := 0.0
	for _, v := range data {
		mean += v
	}
	mean /= float64(n)

	windowed := make([]float64, n)
	for i, v := range data {
		w := 0.5 * (1 - math.Cos(2*math.Pi*float64(i)/float64(n-1)))
		windowed[i] = (v - mean) * w
	}

	spectrum := fft.FFTReal(windowed)
	bins := make([]Bin, n/2+1)
	for k := range bins {
		mag := cmplx.Abs(spectrum[k])
		bins[k] = Bin{
			Freq:  float64(k) / (float64(n) * dt),
			Power: mag * mag / float64(n),
		}
	}
	return bins
}

// DominantPeriod reports the period of the strongest non-DC bin. ok is false
// for series that are too short or flat.
func DominantPeriod(data []float64, dt float64) (period float64, ok bool) {
	bins := Spectrum(data, dt)
	if len(bins) < 2 {
		return 0, false
	}
	best := 1
	for k := 2; k < len(bins); k++ {
		if bins[k].Power > bins[best].Power {
			best = k
		}
	}
	if bins[best].Power < 1e-12 {
		return 0, false
	}
	return 1 / bins[best].Freq, true
}
