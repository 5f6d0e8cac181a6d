package pll

import (
	"fmt"
)

// Params are the fixed limits of one PLL family. Frequencies are in MHz.
type Params struct {
	MinFreq, MaxFreq uint32
	MinVCO, MaxVCO   uint32
	MinU, MaxU       uint32
	MinM, MaxM       uint32
	MinN, MaxN       uint32
	MinPL, MaxPL     uint32

	// EarlyExitRatio ends a non-best-fit search once vco/delta exceeds it.
	EarlyExitRatio uint32
	// VCOMarginDiv widens the target VCO by target/VCOMarginDiv.
	VCOMarginDiv uint32
}

// GK20A is the GPC PLL table from the vbios PLL info.
var GK20A = Params{
	MinFreq: 403, MaxFreq: 806,
	MinVCO: 1100, MaxVCO: 2200,
	MinU: 25, MaxU: 100,
	MinM: 1, MaxM: 255,
	MinN: 8, MaxN: 255,
	MinPL: 1, MaxPL: 63,

	EarlyExitRatio: 218, // ~0.46%
	VCOMarginDiv:   50,  // 2%
}

// Clamp limits rate to [MinFreq, MaxFreq].
func (p *Params) Clamp(rate uint32) uint32 {
	if rate > p.MaxFreq {
		return p.MaxFreq
	}
	if rate < p.MinFreq {
		return p.MinFreq
	}
	return rate
}

func (p *Params) Validate() error {
	pairs := []struct {
		name     string
		min, max uint32
	}{
		{"freq", p.MinFreq, p.MaxFreq},
		{"vco", p.MinVCO, p.MaxVCO},
		{"u", p.MinU, p.MaxU},
		{"M", p.MinM, p.MaxM},
		{"N", p.MinN, p.MaxN},
		{"PL", p.MinPL, p.MaxPL},
	}
	for _, pr := range pairs {
		if pr.min > pr.max {
			return fmt.Errorf("%w: %s bounds inverted, min %d > max %d", ErrNoSolution, pr.name, pr.min, pr.max)
		}
	}
	if p.MinM == 0 || p.MinPL == 0 {
		return fmt.Errorf("%w: M and PL must be at least 1, got M>=%d, PL>=%d", ErrNoSolution, p.MinM, p.MinPL)
	}
	if p.VCOMarginDiv == 0 {
		return fmt.Errorf("%w: zero VCO margin divisor", ErrNoSolution)
	}
	return nil
}
