package clk

import (
	"fmt"
	"log"

	"github.com/Jon-Bright/gpcclk/pll"
	"github.com/Jon-Bright/gpcclk/trim"
)

// program applies coeff to the PLL. Consumers are moved to the bypass clock for the duration,
// and only moved back once the PLL reports lock. Nothing else may touch the trim registers
// while this runs.
func (c *Clock) program(coeff pll.Coeff) error {
	if Debug {
		log.Printf("clk: programming %v", coeff)
	}

	// Put PLL in bypass before programming it
	err := trim.Update(c.regs, trim.SEL_VCO, trim.SEL_VCO_GPC2CLK_OUT_M, trim.SEL_VCO_GPC2CLK_OUT_BYPASS)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegisterIO, err)
	}

	err = trim.Update(c.regs, trim.GPCPLL_CFG, trim.GPCPLL_CFG_ENABLE_M, trim.GPCPLL_CFG_ENABLE_NO)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegisterIO, err)
	}

	err = c.regs.Write32(trim.GPCPLL_COEFF,
		trim.CoeffMdiv(coeff.M)|trim.CoeffNdiv(coeff.N)|trim.CoeffPldiv(coeff.PL))
	if err != nil {
		return fmt.Errorf("%w: couldn't write coefficients: %v", ErrRegisterIO, err)
	}

	err = trim.Update(c.regs, trim.GPCPLL_CFG, trim.GPCPLL_CFG_ENABLE_M, trim.GPCPLL_CFG_ENABLE_YES)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegisterIO, err)
	}

	cfg, err := c.regs.Read32(trim.GPCPLL_CFG)
	if err != nil {
		return fmt.Errorf("%w: couldn't read GPCPLL_CFG: %v", ErrRegisterIO, err)
	}
	if cfg&trim.GPCPLL_CFG_ENB_LCKDET_M == trim.GPCPLL_CFG_ENB_LCKDET_POWER_OFF {
		cfg = trim.SetField(cfg, trim.GPCPLL_CFG_ENB_LCKDET_M, trim.GPCPLL_CFG_ENB_LCKDET_POWER_ON)
		err = c.regs.Write32(trim.GPCPLL_CFG, cfg)
		if err != nil {
			return fmt.Errorf("%w: couldn't power lock detection: %v", ErrRegisterIO, err)
		}
	}

	err = c.waitLock()
	if err != nil {
		// The output stays on bypass; there's no safe way to continue with this PLL
		if IsFatal(err) && c.fatal != nil {
			c.fatal(err)
		}
		return err
	}

	err = trim.Update(c.regs, trim.SEL_VCO, trim.SEL_VCO_GPC2CLK_OUT_M, trim.SEL_VCO_GPC2CLK_OUT_VCO)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegisterIO, err)
	}
	return nil
}

// pollCount is how many times the lock bit is checked before giving up.
func (c *Clock) pollCount() int {
	n := (c.lockTimeout + c.pollInterval - 1) / c.pollInterval
	return int(n) + 1
}

func (c *Clock) waitLock() error {
	polls := c.pollCount()
	for i := 0; i < polls; i++ {
		cfg, err := c.regs.Read32(trim.GPCPLL_CFG)
		if err != nil {
			return fmt.Errorf("%w: couldn't read lock status: %v", ErrRegisterIO, err)
		}
		if cfg&trim.GPCPLL_CFG_PLL_LOCK_M == trim.GPCPLL_CFG_PLL_LOCK_TRUE {
			if Debug {
				log.Printf("clk: locked after %d polls", i+1)
			}
			return nil
		}
		c.sleep(c.pollInterval)
	}
	return fmt.Errorf("%w within %v (%d polls)", ErrLockTimeout, c.lockTimeout, polls)
}
