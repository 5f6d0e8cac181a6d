package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/Jon-Bright/gpcclk/clk"
	"github.com/Jon-Bright/gpcclk/pll"
	"github.com/Jon-Bright/gpcclk/trim"
)

var regsType = flag.String("regs", "mem", "How to reach the trim registers: one of mem, serial, sim")
var memBase = flag.Uint64("membase", 0, "Physical address of the GPU register aperture. 0 means detect from the device tree")
var serialDev = flag.String("serialdev", "/dev/ttyUSB0", "The serial device of the register bridge, for -regs=serial")
var serialBaud = flag.Uint("serialbaud", 115200, "The baud rate of the register bridge")
var simLockAfter = flag.Int("simlockafter", 3, "For -regs=sim, how many polls the simulated PLL takes to lock. -1 never locks")
var port = flag.Int("port", 24602, "The port that the server should listen to")
var refClk = flag.Uint("refclk", 0, "The PLL reference clock in MHz. 0 means use the SoC's")
var refClkFile = flag.String("refclkfile", "", "A file holding the reference clock rate in Hz. Overrides -refclk")
var dvfsFile = flag.String("dvfsfile", "", "A file to write the new GPU rate (Hz) to for the platform's DVFS")
var dvfsStatus = flag.String("dvfsstatus", "", "A file that reports the rate DVFS has settled at. Only relevant if -dvfsfile is specified")
var dvfsCmd = flag.String("dvfscmd", "", "A command to run with the new GPU rate (Hz) appended. Overrides -dvfsfile")
var dvfsWait = flag.Duration("dvfswait", 2*time.Second, "How long to wait for DVFS to settle")
var lockTimeout = flag.Duration("locktimeout", clk.DefaultLockTimeout, "How long to wait for the PLL to lock")
var rate = flag.Uint("rate", 0, "A rate in MHz to set after init. 0 leaves the minimum rate")
var debug = flag.Bool("debug", false, "Log solver and sequencer details")

type Server struct {
	c *clk.Clock
	l net.Listener
}

func NewServer(port int, c *clk.Clock) (*Server, error) {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, err
	}
	log.Printf("Listening on port %d", port)
	return &Server{c, l}, nil
}

func parseMHz(parms string) (uint32, error) {
	r, err := strconv.ParseUint(strings.TrimSpace(parms), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("couldn't parse rate '%s': %v", parms, err)
	}
	return uint32(r), nil
}

// command runs one request and returns the reply line.
func (s *Server) command(cmd, parms string) (string, error) {
	switch cmd {
	case "RATE":
		return fmt.Sprintf("%d", s.c.Rate()), nil
	case "COEFF":
		c := s.c.Coeff()
		return fmt.Sprintf("%d %d %d", c.M, c.N, c.PL), nil
	case "ROUND":
		r, err := parseMHz(parms)
		if err != nil {
			return "", err
		}
		r, err = s.c.RoundRate(r)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%d", r), nil
	case "SET":
		r, err := parseMHz(parms)
		if err != nil {
			return "", err
		}
		err = s.c.SetRate(r)
		if err != nil {
			return "", err
		}
		return "OK", nil
	}
	return "", fmt.Errorf("unknown command: %s", cmd)
}

func (s *Server) handleConnection(c net.Conn) {
	log.Printf("Handling connection from %v", c.RemoteAddr())
	defer c.Close()
	r := bufio.NewReader(c)
	w := bufio.NewWriter(c)
	for {
		l, err := r.ReadString('\n')
		if err == io.EOF {
			log.Printf("EOF for connection %v", c.RemoteAddr())
			return
		}
		if err != nil {
			log.Printf("Error reading string for connection %v: %v", c.RemoteAddr(), err)
			return
		}
		l = strings.TrimSpace(l)
		log.Printf("Got line '%s'", l)
		t := strings.SplitN(l, " ", 2)
		cmd := strings.ToUpper(t[0])
		parms := ""
		if len(t) > 1 {
			parms = t[1]
		}
		if cmd == "QUIT" {
			return
		}
		reply, err := s.command(cmd, parms)
		if err != nil {
			es := fmt.Sprintf("Error running %s: %v", cmd, err)
			log.Print(es)
			w.WriteString("ERR: " + es + "\n")
			err = w.Flush()
			if err != nil {
				log.Printf("error writing error reply: %v", err)
			}
			return
		}
		w.WriteString(reply + "\n")
		err = w.Flush()
		if err != nil {
			log.Printf("error writing reply: %v", err)
			return
		}
	}
}

func (s *Server) handleConnections() {
	for {
		conn, err := s.l.Accept()
		if err != nil {
			log.Printf("Error accepting connection: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

// openRegs returns the register block selected by -regs, and the SoC if one was detected.
func openRegs() (trim.Regs, *soc, error) {
	switch *regsType {
	case "mem":
		bar0 := uintptr(*memBase)
		var s *soc
		if bar0 == 0 {
			var err error
			s, err = detectSoC()
			if err != nil {
				return nil, nil, fmt.Errorf("couldn't detect SoC: %v", err)
			}
			log.Printf("Detected %s", s.name)
			bar0 = s.bar0
		}
		m, err := trim.OpenMem(bar0)
		if err != nil {
			return nil, nil, err
		}
		return m, s, nil
	case "serial":
		sr, err := trim.OpenSerial(*serialDev, *serialBaud)
		if err != nil {
			return nil, nil, fmt.Errorf("couldn't open register bridge: %v", err)
		}
		return sr, nil, nil
	case "sim":
		return trim.NewSim(*simLockAfter), nil, nil
	}
	return nil, nil, fmt.Errorf("unrecognized register access: %v", *regsType)
}

func main() {
	flag.Parse()
	pll.Debug = *debug
	clk.Debug = *debug

	regs, s, err := openRegs()
	if err != nil {
		log.Fatalf("Failed opening registers: %v", err)
	}
	params := &pll.GK20A
	refMHz := uint32(clk.DefaultRefMHz)
	if s != nil {
		params = s.params
		refMHz = s.refMHz
	}
	if *refClk != 0 {
		refMHz = uint32(*refClk)
	}

	c := clk.New(regs, clk.Config{
		Params:      params,
		Voltage:     newRegulator(*dvfsFile, *dvfsStatus, *dvfsCmd, *dvfsWait),
		RefClock:    refClockSource(*refClkFile, refMHz),
		LockTimeout: *lockTimeout,
		Fatal: func(err error) {
			log.Fatalf("GPC PLL unusable, GPU needs a reset: %v", err)
		},
	})
	err = c.Init()
	if err != nil {
		log.Fatalf("Failed initializing GPC clock: %v", err)
	}
	if *rate != 0 {
		err = c.SetRate(uint32(*rate))
		if err != nil {
			log.Fatalf("Failed setting rate %d MHz: %v", *rate, err)
		}
	}
	log.Printf("GPC clock at %d MHz", c.Rate())

	srv, err := NewServer(*port, c)
	if err != nil {
		log.Fatalf("Failed creating server: %v", err)
	}
	srv.handleConnections()
}
