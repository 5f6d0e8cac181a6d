package trim

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/jacobsa/go-serial/serial"
	"github.com/sigurn/crc16"
)

// The serial bridge is a debug MCU that performs register accesses on behalf of the host.
// Each request and reply is a frame:
//
//	STX escape(header | data | crc16-arc(header | data)) ETX
//
// where any STX, ETX or ESC inside the frame is preceded by ESC.

const (
	STX byte = 0x02
	ETX byte = 0x03
	ESC byte = 0x1B

	FrameHeaderLength   = 5
	FrameChecksumLength = 2

	FrameRead  uint8 = 0x01
	FrameWrite uint8 = 0x02
	FrameAck   uint8 = 0x80 // ORed with the request type
	FrameNak   uint8 = 0xFF

	// Reads that return nothing before a reply is given up on. With the
	// 100ms inter-character timeout below, that's about a second.
	maxIdleReads = 10
)

var crcTable = crc16.MakeTable(crc16.CRC16_ARC)

type frameHeader struct {
	Version uint8
	Type    uint8
	ID      uint8
	Length  uint16
}

type frame struct {
	Type uint8
	ID   uint8
	Data []byte
}

// Serial reaches the registers through a serial bridge.
type Serial struct {
	rw  io.ReadWriteCloser
	mu  sync.Mutex
	seq uint8
}

func OpenSerial(dev string, baud uint) (*Serial, error) {
	port, err := serial.Open(serial.OpenOptions{
		PortName:              dev,
		BaudRate:              baud,
		DataBits:              8,
		StopBits:              1,
		InterCharacterTimeout: 100,
		MinimumReadSize:       0,
		RTSCTSFlowControl:     false,
	})
	if err != nil {
		return nil, fmt.Errorf("couldn't open %s: %v", dev, err)
	}
	return NewSerial(port), nil
}

// NewSerial wraps an already open bridge connection.
func NewSerial(rw io.ReadWriteCloser) *Serial {
	return &Serial{rw: rw}
}

func (s *Serial) Read32(off uint32) (uint32, error) {
	req := make([]byte, 4)
	binary.BigEndian.PutUint32(req, off)
	resp, err := s.request(FrameRead, req)
	if err != nil {
		return 0, err
	}
	if len(resp) != 4 {
		return 0, fmt.Errorf("read %08X: reply has %d bytes, want 4", off, len(resp))
	}
	return binary.BigEndian.Uint32(resp), nil
}

func (s *Serial) Write32(off uint32, val uint32) error {
	req := make([]byte, 8)
	binary.BigEndian.PutUint32(req[0:], off)
	binary.BigEndian.PutUint32(req[4:], val)
	_, err := s.request(FrameWrite, req)
	return err
}

func (s *Serial) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rw.Close()
}

func (s *Serial) request(typ uint8, data []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := s.seq
	packed := pack(id, typ, data)
	n, err := s.rw.Write(packed)
	if err != nil {
		return nil, fmt.Errorf("couldn't write frame: %v", err)
	}
	if n != len(packed) {
		return nil, fmt.Errorf("short frame write, %d of %d bytes", n, len(packed))
	}

	for {
		frm, err := readFrame(s.rw)
		if err != nil {
			return nil, err
		}
		if frm.ID != id {
			// Reply to a request we already gave up on
			log.Printf("Dropping stale frame %d, waiting for %d", frm.ID, id)
			continue
		}
		switch frm.Type {
		case typ | FrameAck:
			return frm.Data, nil
		case FrameNak:
			return nil, fmt.Errorf("bridge rejected request: %s", frm.Data)
		default:
			return nil, fmt.Errorf("unexpected reply type %02X to %02X", frm.Type, typ)
		}
	}
}

func readFrame(r io.Reader) (*frame, error) {
	var buffer bytes.Buffer
	b := make([]byte, 1)
	idle := 0
	started := false
	for {
		n, err := r.Read(b)
		if err != nil && err != io.EOF {
			return nil, err
		}
		if n == 0 {
			idle++
			if idle >= maxIdleReads {
				return nil, errors.New("timed out waiting for bridge reply")
			}
			continue
		}
		idle = 0

		switch b[0] {
		case STX:
			buffer.Reset()
			started = true
		case ETX:
			if !started {
				continue
			}
			return unserialize(buffer.Bytes())
		case ESC:
			n, err = r.Read(b)
			if err != nil && err != io.EOF {
				return nil, err
			}
			if n == 0 {
				return nil, errors.New("frame truncated after escape")
			}
			fallthrough
		default:
			if started {
				buffer.WriteByte(b[0])
			}
		}
	}
}

func escape(data []byte) []byte {
	var buf bytes.Buffer
	for _, b := range data {
		switch b {
		case STX, ETX, ESC:
			buf.WriteByte(ESC)
		}
		buf.WriteByte(b)
	}
	return buf.Bytes()
}

func calcChecksum(data []byte) []byte {
	arr := make([]byte, 2)
	binary.BigEndian.PutUint16(arr, crc16.Checksum(data, crcTable))
	return arr
}

func pack(id uint8, typ uint8, data []byte) []byte {
	header := frameHeader{
		Version: 0,
		Type:    typ,
		ID:      id,
		Length:  uint16(len(data)),
	}
	var payload bytes.Buffer
	binary.Write(&payload, binary.BigEndian, &header)
	payload.Write(data)
	payload.Write(calcChecksum(payload.Bytes()))

	var res bytes.Buffer
	res.WriteByte(STX)
	res.Write(escape(payload.Bytes()))
	res.WriteByte(ETX)
	return res.Bytes()
}

func unserialize(p []byte) (*frame, error) {
	if len(p) < FrameHeaderLength+FrameChecksumLength {
		return nil, fmt.Errorf("frame too short, %d bytes", len(p))
	}
	pcrc := len(p) - FrameChecksumLength
	payload := p[:pcrc]
	if !bytes.Equal(p[pcrc:], calcChecksum(payload)) {
		return nil, errors.New("frame checksum mismatch")
	}
	hdr := frameHeader{}
	err := binary.Read(bytes.NewReader(payload[:FrameHeaderLength]), binary.BigEndian, &hdr)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse frame header: %v", err)
	}
	data := payload[FrameHeaderLength:]
	if len(data) != int(hdr.Length) {
		return nil, fmt.Errorf("frame length %d, header says %d", len(data), hdr.Length)
	}
	return &frame{Type: hdr.Type, ID: hdr.ID, Data: data}, nil
}
