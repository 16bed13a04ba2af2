// Package analysis turns recorded colony series into summary numbers and
// terminal plots.
//
//   - [Spectrum]: power spectrum of a uniformly sampled series
//   - [DominantPeriod]: period of the strongest non-DC component
//   - [GrowthRate]: exponential growth rate and doubling time of a population
//   - [Layout]: top-down projection of a colony
//
// # Oscillation
//
// A bonded colony rings after each division. The kinetic-energy series of a
// stored run shows this as a spectral peak:
//
//	period, ok := analysis.DominantPeriod(series.Energy, dt)
//	if ok {
//	    fmt.Printf("ringing period %.3f\n", period)
//	}
package analysis
