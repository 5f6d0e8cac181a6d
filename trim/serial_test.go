package trim

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

// fakeBridge answers frames the way the debug MCU does, backed by a Sim.
type fakeBridge struct {
	regs   *Sim
	out    bytes.Buffer
	stale  bool // send a reply with the wrong ID first
	nak    bool
	closed bool
}

func (f *fakeBridge) Write(p []byte) (int, error) {
	frm, err := readFrame(bytes.NewReader(p))
	if err != nil {
		return 0, err
	}
	if f.stale {
		f.out.Write(pack(frm.ID-1, frm.Type|FrameAck, []byte{0, 0, 0, 0}))
	}
	if f.nak {
		f.out.Write(pack(frm.ID, FrameNak, []byte("bus fault")))
		return len(p), nil
	}
	off := binary.BigEndian.Uint32(frm.Data[0:4])
	switch frm.Type {
	case FrameRead:
		v, _ := f.regs.Read32(off)
		resp := make([]byte, 4)
		binary.BigEndian.PutUint32(resp, v)
		f.out.Write(pack(frm.ID, FrameRead|FrameAck, resp))
	case FrameWrite:
		f.regs.Write32(off, binary.BigEndian.Uint32(frm.Data[4:8]))
		f.out.Write(pack(frm.ID, FrameWrite|FrameAck, nil))
	}
	return len(p), nil
}

func (f *fakeBridge) Read(b []byte) (int, error) {
	return f.out.Read(b)
}

func (f *fakeBridge) Close() error {
	f.closed = true
	return nil
}

func TestSerialReadWrite(t *testing.T) {
	fb := &fakeBridge{regs: NewSim(0)}
	s := NewSerial(fb)

	// Value and offset bytes include STX, ETX and ESC, which all need escaping
	val := uint32(0x021B0300)
	err := s.Write32(GPCPLL_COEFF, val)
	if err != nil {
		t.Fatalf("Write32 failed: %v", err)
	}
	if got := fb.regs.Peek(GPCPLL_COEFF); got != val {
		t.Errorf("bridge register got: %08X, want: %08X", got, val)
	}
	got, err := s.Read32(GPCPLL_COEFF)
	if err != nil {
		t.Fatalf("Read32 failed: %v", err)
	}
	if got != val {
		t.Errorf("Read32 got: %08X, want: %08X", got, val)
	}

	if err := s.Close(); err != nil || !fb.closed {
		t.Errorf("Close got: %v, closed %v", err, fb.closed)
	}
}

func TestSerialStaleReply(t *testing.T) {
	fb := &fakeBridge{regs: NewSim(0), stale: true}
	s := NewSerial(fb)
	got, err := s.Read32(SEL_VCO)
	if err != nil {
		t.Fatalf("Read32 failed: %v", err)
	}
	if got != SEL_VCO_GPC2CLK_OUT_VCO {
		t.Errorf("Read32 got: %08X, want: %08X", got, SEL_VCO_GPC2CLK_OUT_VCO)
	}
}

func TestSerialNak(t *testing.T) {
	s := NewSerial(&fakeBridge{regs: NewSim(0), nak: true})
	_, err := s.Read32(SEL_VCO)
	if err == nil || !strings.Contains(err.Error(), "bus fault") {
		t.Errorf("Read32 error got: %v, want bridge rejection", err)
	}
}

// silentBridge swallows requests and never answers.
type silentBridge struct{}

func (silentBridge) Write(p []byte) (int, error) { return len(p), nil }
func (silentBridge) Read(b []byte) (int, error)  { return 0, nil }
func (silentBridge) Close() error                { return nil }

func TestSerialTimeout(t *testing.T) {
	s := NewSerial(silentBridge{})
	err := s.Write32(SEL_VCO, 0)
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Errorf("Write32 error got: %v, want timeout", err)
	}
}

// rawFrame is a frame body before escaping, with a header claiming length n.
func rawFrame(id, typ uint8, n uint16, data []byte) []byte {
	var b bytes.Buffer
	binary.Write(&b, binary.BigEndian, &frameHeader{Version: 0, Type: typ, ID: id, Length: n})
	b.Write(data)
	b.Write(calcChecksum(b.Bytes()))
	return b.Bytes()
}

func TestUnserializeBadFrames(t *testing.T) {
	data := []byte{0x10, 0x20, 0x30, 0x40}
	good := rawFrame(7, FrameRead, 4, data)

	corrupt := append([]byte{}, good...)
	corrupt[FrameHeaderLength] ^= 0xFF

	short := append([]byte{}, good[:FrameHeaderLength+FrameChecksumLength-1]...)

	tests := []struct {
		name string
		p    []byte
		ok   bool
	}{
		{"good", good, true},
		{"corrupt", corrupt, false},
		{"short", short, false},
		{"bad length", rawFrame(7, FrameRead, 3, data), false},
	}
	for _, test := range tests {
		frm, err := unserialize(test.p)
		if test.ok && (err != nil || frm.ID != 7 || frm.Type != FrameRead || !bytes.Equal(frm.Data, data)) {
			t.Errorf("%s: got %v, %v, want frame 7", test.name, frm, err)
		}
		if !test.ok && err == nil {
			t.Errorf("%s: succeeded, want error", test.name)
		}
	}
}
