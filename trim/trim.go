// Package trim describes the GK20A clock trim registers that control the GPC PLL, and the
// ways of getting at them.
package trim

// Register offsets from the start of the GPU register aperture (BAR0).
const (
	GPCPLL_CFG   = uint32(0x00137000)
	GPCPLL_COEFF = uint32(0x00137004)
	SEL_VCO      = uint32(0x00137100)
	GPC2CLK_OUT  = uint32(0x00137250)

	// The trim block fits in one page from GPCPLL_CFG.
	WINDOW_BASE = GPCPLL_CFG
	WINDOW_SIZE = 0x1000
)

// GPCPLL_CFG fields
const (
	GPCPLL_CFG_ENABLE_M   = uint32(1 << 0)
	GPCPLL_CFG_ENABLE_NO  = uint32(0 << 0)
	GPCPLL_CFG_ENABLE_YES = uint32(1 << 0)
	GPCPLL_CFG_IDDQ_M     = uint32(1 << 1)

	GPCPLL_CFG_ENB_LCKDET_M         = uint32(1 << 4)
	GPCPLL_CFG_ENB_LCKDET_POWER_ON  = uint32(0 << 4)
	GPCPLL_CFG_ENB_LCKDET_POWER_OFF = uint32(1 << 4)

	GPCPLL_CFG_PLL_LOCK_M    = uint32(1 << 17)
	GPCPLL_CFG_PLL_LOCK_TRUE = uint32(1 << 17)
)

// SEL_VCO fields
const (
	SEL_VCO_GPC2CLK_OUT_M      = uint32(1 << 0)
	SEL_VCO_GPC2CLK_OUT_BYPASS = uint32(0 << 0)
	SEL_VCO_GPC2CLK_OUT_VCO    = uint32(1 << 0)
)

// GPC2CLK_OUT fields
const (
	GPC2CLK_OUT_BYPDIV_M      = uint32(0x3f << 0)
	GPC2CLK_OUT_BYPDIV_BY1    = uint32(0 << 0)
	GPC2CLK_OUT_VCODIV_M      = uint32(0x3f << 8)
	GPC2CLK_OUT_VCODIV_BY1    = uint32(0 << 8)
	GPC2CLK_OUT_SDIV14_M      = uint32(1 << 31)
	GPC2CLK_OUT_SDIV14_INDIV4 = uint32(1 << 31)
)

func CoeffMdiv(val uint32) uint32 {
	return (val & 0xff) << 0
}

func CoeffNdiv(val uint32) uint32 {
	return (val & 0xff) << 8
}

func CoeffPldiv(val uint32) uint32 {
	return (val & 0x3f) << 16
}

// CoeffFields splits a GPCPLL_COEFF value back into M, N and PL.
func CoeffFields(reg uint32) (m, n, pl uint32) {
	return reg & 0xff, (reg >> 8) & 0xff, (reg >> 16) & 0x3f
}

// SetField replaces the bits of data selected by mask with val.
func SetField(data, mask, val uint32) uint32 {
	return (data &^ mask) | (val & mask)
}

// Names maps offsets to register names for logging.
var Names = map[uint32]string{
	GPCPLL_CFG:   "GPCPLL_CFG",
	GPCPLL_COEFF: "GPCPLL_COEFF",
	SEL_VCO:      "SEL_VCO",
	GPC2CLK_OUT:  "GPC2CLK_OUT",
}
