package trim

import (
	"fmt"
	mmap "github.com/edsrzf/mmap-go"
	"log"
	"os"
	"sync/atomic"
	"unsafe"
)

const (
	MEM_FILE  = "/dev/mem"
	PAGE_SIZE = 4096 // Theoretically, we could get this via whatever getconf does
)

// Mem gives access to the trim window of a GPU aperture mapped from /dev/mem.
type Mem struct {
	buf  mmap.MMap
	offs uintptr // offset of WINDOW_BASE within buf
}

// OpenMem maps the trim window of the aperture whose physical address is bar0.
func OpenMem(bar0 uintptr) (*Mem, error) {
	physAddr := bar0 + uintptr(WINDOW_BASE)
	buf, offs, err := mapMem(physAddr, WINDOW_SIZE)
	if err != nil {
		return nil, fmt.Errorf("couldn't map trim registers at %08X: %v", physAddr, err)
	}
	log.Printf("Got trim buf[%d], offset %d", len(buf), offs)
	return &Mem{buf: buf, offs: offs}, nil
}

// mapMem opens /dev/mem and uses mmap to map a given physical address into our address space.
// Since the mapping has to start at a page boundary, the physical address is rounded down to the
// nearest page boundary. mapMem returns the mapped memory and the offset that should be used to
// access it (=physAddr%PAGE_SIZE).
func mapMem(physAddr uintptr, size int) (mmap.MMap, uintptr, error) {
	f, err := os.OpenFile(MEM_FILE, os.O_RDWR|os.O_SYNC, os.ModePerm)
	if err != nil {
		return nil, 0, fmt.Errorf("couldn't open %s: %v", MEM_FILE, err)
	}
	defer f.Close() // Ignore error

	pagemask := ^uintptr(PAGE_SIZE - 1)
	mapAddr := physAddr & pagemask
	size += int(physAddr - mapAddr)
	mm, err := mmap.MapRegion(f, size, mmap.RDWR, 0, int64(mapAddr))
	if err != nil {
		return nil, 0, fmt.Errorf("couldn't map region (%v, %v): %v", physAddr, size, err)
	}
	return mm, physAddr & (PAGE_SIZE - 1), nil
}

func (m *Mem) reg(off uint32) (*uint32, error) {
	if m.buf == nil {
		return nil, fmt.Errorf("trim registers not mapped")
	}
	if off < WINDOW_BASE || off >= WINDOW_BASE+WINDOW_SIZE || off%4 != 0 {
		return nil, fmt.Errorf("offset %08X outside trim window", off)
	}
	i := m.offs + uintptr(off-WINDOW_BASE)
	return (*uint32)(unsafe.Pointer(&m.buf[i])), nil
}

func (m *Mem) Read32(off uint32) (uint32, error) {
	p, err := m.reg(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint32(p), nil
}

func (m *Mem) Write32(off uint32, val uint32) error {
	p, err := m.reg(off)
	if err != nil {
		return err
	}
	atomic.StoreUint32(p, val)
	return nil
}

func (m *Mem) Close() error {
	if m.buf == nil {
		return nil
	}
	err := m.buf.Unmap()
	m.buf = nil
	return err
}
