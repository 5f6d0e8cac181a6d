package trim

import (
	"fmt"
)

// Regs is 32-bit access to the register aperture. Offsets are from the start of BAR0.
// Mem, Serial and Sim satisfy it.
type Regs interface {
	Read32(off uint32) (uint32, error)
	Write32(off uint32, val uint32) error
}

// Update does a read-modify-write of the bits of register off selected by mask.
func Update(r Regs, off, mask, val uint32) error {
	data, err := r.Read32(off)
	if err != nil {
		return fmt.Errorf("couldn't read %s: %w", Name(off), err)
	}
	err = r.Write32(off, SetField(data, mask, val))
	if err != nil {
		return fmt.Errorf("couldn't write %s: %w", Name(off), err)
	}
	return nil
}

func Name(off uint32) string {
	if n, ok := Names[off]; ok {
		return n
	}
	return fmt.Sprintf("%08X", off)
}
