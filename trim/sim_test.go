package trim

import (
	"testing"
)

func locked(s *Sim) bool {
	cfg, _ := s.Read32(GPCPLL_CFG)
	return cfg&GPCPLL_CFG_PLL_LOCK_M == GPCPLL_CFG_PLL_LOCK_TRUE
}

func TestSimLock(t *testing.T) {
	tests := []struct {
		lockAfter int
		polls     int
		want      bool
	}{
		{0, 1, true},
		{3, 3, false},
		{3, 4, true},
		{-1, 100, false},
	}

	for _, test := range tests {
		s := NewSim(test.lockAfter)
		// Lock detection is off as the firmware leaves it, so nothing can lock yet
		if locked(s) {
			t.Errorf("(%d): locked before lock detection powered on", test.lockAfter)
		}
		Update(s, GPCPLL_CFG, GPCPLL_CFG_ENB_LCKDET_M, GPCPLL_CFG_ENB_LCKDET_POWER_ON)
		got := false
		for i := 0; i < test.polls; i++ {
			got = locked(s)
		}
		if got != test.want {
			t.Errorf("(%d): locked after %d polls got: %v, want: %v", test.lockAfter, test.polls, got, test.want)
		}
	}
}

func TestSimDisableDropsLock(t *testing.T) {
	s := NewSim(0)
	Update(s, GPCPLL_CFG, GPCPLL_CFG_ENB_LCKDET_M, GPCPLL_CFG_ENB_LCKDET_POWER_ON)
	if !locked(s) {
		t.Fatalf("not locked with LockAfter 0")
	}
	Update(s, GPCPLL_CFG, GPCPLL_CFG_ENABLE_M, GPCPLL_CFG_ENABLE_NO)
	if s.Peek(GPCPLL_CFG)&GPCPLL_CFG_PLL_LOCK_M != 0 {
		t.Errorf("lock still set after disable")
	}
	// Software can't set the lock bit itself
	s.Write32(GPCPLL_CFG, GPCPLL_CFG_PLL_LOCK_TRUE)
	if s.Peek(GPCPLL_CFG)&GPCPLL_CFG_PLL_LOCK_M != 0 {
		t.Errorf("lock bit writable")
	}
}
