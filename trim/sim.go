package trim

import (
	"sync"
)

// Access is one register access seen by Sim.
type Access struct {
	Write bool
	Off   uint32
	Val   uint32
}

// Sim is an in-memory trim block. The PLL reports lock once GPCPLL_CFG has been read
// LockAfter times with the PLL enabled and lock detection powered. A negative LockAfter
// means it never locks.
type Sim struct {
	LockAfter int
	Log       []Access

	mu    sync.Mutex
	regs  map[uint32]uint32
	polls int
}

// NewSim returns a block as the boot firmware leaves it: PLL running on the VCO path with
// M=1, N=31, PL=1 and lock detection powered off.
func NewSim(lockAfter int) *Sim {
	return &Sim{
		LockAfter: lockAfter,
		regs: map[uint32]uint32{
			GPCPLL_CFG:   GPCPLL_CFG_ENABLE_YES | GPCPLL_CFG_ENB_LCKDET_POWER_OFF,
			GPCPLL_COEFF: CoeffMdiv(1) | CoeffNdiv(31) | CoeffPldiv(1),
			SEL_VCO:      SEL_VCO_GPC2CLK_OUT_VCO,
			GPC2CLK_OUT:  0,
		},
	}
}

func (s *Sim) Read32(off uint32) (uint32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val := s.regs[off]
	if off == GPCPLL_CFG && val&GPCPLL_CFG_ENABLE_M == GPCPLL_CFG_ENABLE_YES &&
		val&GPCPLL_CFG_ENB_LCKDET_M == GPCPLL_CFG_ENB_LCKDET_POWER_ON {
		if s.LockAfter >= 0 && s.polls >= s.LockAfter {
			val |= GPCPLL_CFG_PLL_LOCK_TRUE
			s.regs[off] = val
		}
		s.polls++
	}
	s.Log = append(s.Log, Access{false, off, val})
	return val, nil
}

func (s *Sim) Write32(off uint32, val uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off == GPCPLL_CFG {
		// Lock is read-only and drops whenever the PLL is disabled
		val = SetField(val, GPCPLL_CFG_PLL_LOCK_M, s.regs[off])
		if val&GPCPLL_CFG_ENABLE_M == GPCPLL_CFG_ENABLE_NO {
			val &^= GPCPLL_CFG_PLL_LOCK_M
			s.polls = 0
		}
	}
	s.regs[off] = val
	s.Log = append(s.Log, Access{true, off, val})
	return nil
}

// Peek reads a register without logging or advancing the lock counter.
func (s *Sim) Peek(off uint32) uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs[off]
}
