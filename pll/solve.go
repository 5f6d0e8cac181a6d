// Package pll finds divider coefficients for the GPC PLL.
//
// The PLL output is derived from the reference clock as:
//
//	u     = ref / M
//	vco   = u * N = ref * N / M
//	out   = vco / PL
//
// M, N and PL are integers, so most targets can only be approximated.
package pll

import (
	"errors"
	"fmt"
	"log"
)

// ErrNoSolution means no M/N/PL triple satisfies the VCO and u limits, either because the
// limits are inconsistent or because the target can't be reached.
var ErrNoSolution = errors.New("no PLL coefficients within limits")

// Debug enables logging of intermediate search results.
var Debug = false

type Coeff struct {
	M  uint32
	N  uint32
	PL uint32
}

// Rate is the output frequency the coefficients produce from ref, truncated the same way
// the hardware's integer dividers do.
func (c Coeff) Rate(ref uint32) uint32 {
	if c.M == 0 || c.PL == 0 {
		return 0
	}
	return ref * c.N / (c.M * c.PL)
}

// VCO is the pre-divider frequency.
func (c Coeff) VCO(ref uint32) uint32 {
	if c.M == 0 {
		return 0
	}
	return ref * c.N / c.M
}

func (c Coeff) String() string {
	return fmt.Sprintf("M %d, N %d, PL %d", c.M, c.N, c.PL)
}

func clamp(v, min, max uint32) uint32 {
	if v > max {
		v = max
	}
	if v < min {
		v = min
	}
	return v
}

func absDiff(a, b uint32) uint32 {
	if a > b {
		return a - b
	}
	return b - a
}

// Solve picks coefficients that bring ref (MHz) as close as possible to target (MHz) within
// the limits in p. It returns the coefficients and the rate they actually produce, which
// callers must use in place of target.
//
// The search doesn't try every (M, N, PL). PL only covers the range that can bring target
// into the VCO window, M stops as soon as u drops below MinU (u falls as M grows), and for
// each M only the one or two N values either side of target*PL are tried. This keeps the
// search to a handful of candidates per PL.
//
// If bestFit is false, the search stops at the first candidate within about 0.46% of the
// target (see Params.EarlyExitRatio). An exact match always stops it.
func Solve(ref, target uint32, p *Params, bestFit bool) (Coeff, uint32, error) {
	err := p.Validate()
	if err != nil {
		return Coeff{}, 0, err
	}
	if ref == 0 || target == 0 {
		return Coeff{}, 0, fmt.Errorf("%w: ref %d MHz, target %d MHz", ErrNoSolution, ref, target)
	}

	maxVCO := p.MaxVCO
	targetVCO := target + target/p.VCOMarginDiv
	if maxVCO < targetVCO {
		maxVCO = targetVCO
	}
	highPL := clamp((maxVCO+targetVCO-1)/targetVCO, p.MinPL, p.MaxPL)
	lowPL := clamp(p.MinVCO/targetVCO, p.MinPL, p.MaxPL)
	if Debug {
		log.Printf("pll: target %d MHz, low PL %d, high PL %d", target, lowPL, highPL)
	}

	var (
		best      Coeff
		bestDelta uint32
		found     bool
	)
search:
	for pl := highPL; pl >= lowPL; pl-- {
		tv := target * pl
		for m := p.MinM; m <= p.MaxM; m++ {
			u := ref / m
			if u < p.MinU {
				break
			}
			if u > p.MaxU {
				continue
			}
			n := tv * m / ref
			n2 := (tv*m + ref - 1) / ref
			if n > p.MaxN {
				break
			}
			for ; n <= n2; n++ {
				if n < p.MinN {
					continue
				}
				if n > p.MaxN {
					break
				}
				vco := ref * n / m
				if vco < p.MinVCO || vco > maxVCO {
					continue
				}
				delta := absDiff((vco+pl/2)/pl, target)
				if found && delta >= bestDelta {
					continue
				}
				found = true
				bestDelta = delta
				best = Coeff{M: m, N: n, PL: pl}
				if delta == 0 || (!bestFit && vco/delta > p.EarlyExitRatio) {
					break search
				}
				if Debug {
					log.Printf("pll: delta %d @ %v", delta, best)
				}
			}
		}
	}

	if !found {
		return Coeff{}, 0, fmt.Errorf("%w: ref %d MHz, target %d MHz, vco %d-%d MHz", ErrNoSolution, ref, target, p.MinVCO, maxVCO)
	}
	if bestFit && bestDelta != 0 && Debug {
		log.Printf("pll: no exact match for %d MHz, off by %d", target, bestDelta)
	}
	rate := best.Rate(ref)
	if Debug {
		log.Printf("pll: actual %d MHz, %v", rate, best)
	}
	return best, rate, nil
}
