package trim

import (
	"testing"

	mmap "github.com/edsrzf/mmap-go"
)

func TestCoeffFields(t *testing.T) {
	tests := []struct {
		m, n, pl uint32
		want     uint32
	}{
		{1, 31, 1, 0x00011F01},
		{1, 62, 4, 0x00043E01},
		{255, 255, 63, 0x003FFFFF},
	}
	for _, test := range tests {
		got := CoeffMdiv(test.m) | CoeffNdiv(test.n) | CoeffPldiv(test.pl)
		if got != test.want {
			t.Errorf("coeff(%d, %d, %d) got: %08X, want: %08X", test.m, test.n, test.pl, got, test.want)
		}
		m, n, pl := CoeffFields(got)
		if m != test.m || n != test.n || pl != test.pl {
			t.Errorf("CoeffFields(%08X) got: %d, %d, %d, want: %d, %d, %d", got, m, n, pl, test.m, test.n, test.pl)
		}
	}
}

func TestSetField(t *testing.T) {
	tests := []struct {
		data, mask, val uint32
		want            uint32
	}{
		{0xFFFFFFFF, SEL_VCO_GPC2CLK_OUT_M, SEL_VCO_GPC2CLK_OUT_BYPASS, 0xFFFFFFFE},
		{0x00000000, SEL_VCO_GPC2CLK_OUT_M, SEL_VCO_GPC2CLK_OUT_VCO, 0x00000001},
		{0x00003F3F, GPC2CLK_OUT_VCODIV_M | GPC2CLK_OUT_BYPDIV_M | GPC2CLK_OUT_SDIV14_M,
			GPC2CLK_OUT_VCODIV_BY1 | GPC2CLK_OUT_BYPDIV_BY1 | GPC2CLK_OUT_SDIV14_INDIV4, 0x80000000},
		// Bits outside the mask are never taken from val
		{0x00000000, GPCPLL_CFG_ENABLE_M, 0xFFFFFFFF, 0x00000001},
	}
	for _, test := range tests {
		if got := SetField(test.data, test.mask, test.val); got != test.want {
			t.Errorf("SetField(%08X, %08X, %08X) got: %08X, want: %08X", test.data, test.mask, test.val, got, test.want)
		}
	}
}

func TestUpdate(t *testing.T) {
	s := NewSim(0)
	err := Update(s, SEL_VCO, SEL_VCO_GPC2CLK_OUT_M, SEL_VCO_GPC2CLK_OUT_BYPASS)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if got := s.Peek(SEL_VCO); got != SEL_VCO_GPC2CLK_OUT_BYPASS {
		t.Errorf("SEL_VCO got: %08X, want: %08X", got, SEL_VCO_GPC2CLK_OUT_BYPASS)
	}
	if len(s.Log) != 2 || s.Log[0].Write || !s.Log[1].Write {
		t.Errorf("Update accesses got: %v, want one read then one write", s.Log)
	}
}

func TestName(t *testing.T) {
	if got := Name(GPCPLL_COEFF); got != "GPCPLL_COEFF" {
		t.Errorf("Name(GPCPLL_COEFF) got: %s", got)
	}
	if got := Name(0x1234); got != "00001234" {
		t.Errorf("Name(0x1234) got: %s", got)
	}
}

func TestMemWindow(t *testing.T) {
	m := &Mem{buf: make(mmap.MMap, 2*PAGE_SIZE), offs: 0x40}
	err := m.Write32(GPCPLL_COEFF, 0x00043E01)
	if err != nil {
		t.Fatalf("Write32 failed: %v", err)
	}
	got, err := m.Read32(GPCPLL_COEFF)
	if err != nil {
		t.Fatalf("Read32 failed: %v", err)
	}
	if got != 0x00043E01 {
		t.Errorf("Read32 got: %08X, want: %08X", got, 0x00043E01)
	}
	if cfg, _ := m.Read32(GPCPLL_CFG); cfg != 0 {
		t.Errorf("GPCPLL_CFG got: %08X, want it untouched", cfg)
	}

	bad := []uint32{0, WINDOW_BASE - 4, WINDOW_BASE + WINDOW_SIZE, GPCPLL_CFG + 2}
	for _, off := range bad {
		if _, err := m.Read32(off); err == nil {
			t.Errorf("Read32(%08X) succeeded, want error", off)
		}
		if err := m.Write32(off, 0); err == nil {
			t.Errorf("Write32(%08X) succeeded, want error", off)
		}
	}

	closed := &Mem{}
	if _, err := closed.Read32(GPCPLL_CFG); err == nil {
		t.Errorf("Read32 on unmapped window succeeded, want error")
	}
}
