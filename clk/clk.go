// Package clk owns the GPC clock of one GPU: it brings the PLL up, changes its rate and keeps
// the supply voltage in step with it.
package clk

import (
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Jon-Bright/gpcclk/pll"
	"github.com/Jon-Bright/gpcclk/trim"
)

const (
	MHz = 1000000

	DefaultRefMHz       = 26
	DefaultLockTimeout  = 5 * time.Second
	DefaultPollInterval = 100 * time.Microsecond
)

// DefaultCoeff is what the vbios programs. It's used until the first rate change.
var DefaultCoeff = pll.Coeff{M: 1, N: 31, PL: 1}

// Debug enables logging of each sequencing step.
var Debug = false

// Voltage is the regulator that has to follow the clock rate.
type Voltage interface {
	SetVoltageForFrequency(hz uint64) error
}

// RefClock is the PLL's input clock.
type RefClock interface {
	RateMHz() uint32
}

// FixedRefClock is a reference clock of known, constant rate.
type FixedRefClock uint32

func (f FixedRefClock) RateMHz() uint32 {
	return uint32(f)
}

type Config struct {
	// Params defaults to pll.GK20A.
	Params *pll.Params
	// Voltage may be nil if nothing needs to follow the rate.
	Voltage Voltage
	// RefClock obtains the reference clock at init.
	RefClock func() (RefClock, error)

	LockTimeout  time.Duration
	PollInterval time.Duration
	// Sleep defaults to time.Sleep.
	Sleep func(time.Duration)
	// Fatal, if set, is called once when the PLL fails to lock, before the error is returned.
	Fatal func(error)
}

// Clock is the clock state of one GPU. Rate changes are serialized; Rate can be called at any
// time.
type Clock struct {
	regs         trim.Regs
	params       *pll.Params
	volt         Voltage
	getRef       func() (RefClock, error)
	lockTimeout  time.Duration
	pollInterval time.Duration
	sleep        func(time.Duration)
	fatal        func(error)

	mu      sync.Mutex
	swReady bool
	ref     RefClock
	refMHz  uint32
	coeff   pll.Coeff
	freq    uint32 // MHz, accessed atomically
}

func New(regs trim.Regs, cfg Config) *Clock {
	c := &Clock{
		regs:         regs,
		params:       cfg.Params,
		volt:         cfg.Voltage,
		getRef:       cfg.RefClock,
		lockTimeout:  cfg.LockTimeout,
		pollInterval: cfg.PollInterval,
		sleep:        cfg.Sleep,
		fatal:        cfg.Fatal,
	}
	if c.params == nil {
		c.params = &pll.GK20A
	}
	if c.lockTimeout <= 0 {
		c.lockTimeout = DefaultLockTimeout
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.sleep == nil {
		c.sleep = time.Sleep
	}
	return c
}

// Init brings up clock support: software state (once), the output dividers and the PLL with
// its current coefficients, then drops to the lowest supported rate.
func (c *Clock) Init() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.resetEnableHW()
	if err != nil {
		return err
	}
	err = c.setupSW()
	if err != nil {
		return err
	}
	err = c.setupHW()
	if err != nil {
		return err
	}
	return c.setRate(c.params.MinFreq)
}

func (c *Clock) resetEnableHW() error {
	return nil
}

func (c *Clock) setupSW() error {
	if c.swReady {
		if Debug {
			log.Printf("clk: software state ready, skipping setup")
		}
		return nil
	}

	c.refMHz = DefaultRefMHz
	c.coeff = DefaultCoeff

	if c.getRef == nil {
		return fmt.Errorf("%w: no reference clock configured", ErrDependencyUnavailable)
	}
	ref, err := c.getRef()
	if err != nil {
		return fmt.Errorf("%w: couldn't get reference clock: %v", ErrDependencyUnavailable, err)
	}
	c.ref = ref
	if mhz := ref.RateMHz(); mhz != 0 {
		c.refMHz = mhz
	}
	atomic.StoreUint32(&c.freq, c.coeff.Rate(c.refMHz))
	log.Printf("GPC PLL ref %d MHz, boot %v, %d MHz", c.refMHz, c.coeff, c.Rate())

	c.swReady = true
	return nil
}

func (c *Clock) setupHW() error {
	err := trim.Update(c.regs, trim.GPC2CLK_OUT,
		trim.GPC2CLK_OUT_SDIV14_M|trim.GPC2CLK_OUT_VCODIV_M|trim.GPC2CLK_OUT_BYPDIV_M,
		trim.GPC2CLK_OUT_SDIV14_INDIV4|trim.GPC2CLK_OUT_VCODIV_BY1|trim.GPC2CLK_OUT_BYPDIV_BY1)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRegisterIO, err)
	}
	return c.program(c.coeff)
}

// Rate returns the current GPC PLL rate in MHz without touching the hardware.
func (c *Clock) Rate() uint32 {
	return atomic.LoadUint32(&c.freq)
}

// Coeff returns the coefficients last handed to the PLL.
func (c *Clock) Coeff() pll.Coeff {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.coeff
}

// RoundRate returns the rate SetRate would settle near for rate, accepting the first
// close-enough coefficients. Nothing is programmed.
func (c *Clock) RoundRate(rate uint32) (uint32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.swReady {
		return 0, ErrNotReady
	}
	_, freq, err := pll.Solve(c.refMHz, c.params.Clamp(rate), c.params, false)
	return freq, err
}

// SetRate moves the PLL as close as it can get to rate (MHz), clamped to the supported range.
// Voltage is raised before a rate increase and lowered after a decrease. On error nothing is
// rolled back: the regulator may already have changed, so restoring the old rate could be
// worse than leaving it.
func (c *Clock) SetRate(rate uint32) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.swReady {
		return ErrNotReady
	}
	return c.setRate(rate)
}

func (c *Clock) setRate(rate uint32) error {
	old := c.Rate()
	clamped := c.params.Clamp(rate)
	if Debug {
		log.Printf("clk: curr freq %d MHz, target %d MHz", old, rate)
	}
	if clamped == old {
		return nil
	}

	coeff, freq, err := pll.Solve(c.refMHz, clamped, c.params, true)
	if err != nil {
		return c.rateErr(rate, clamped, err)
	}
	// From here the new rate is the current one, whether or not programming succeeds
	c.coeff = coeff
	atomic.StoreUint32(&c.freq, freq)

	if freq > old {
		err = c.setVoltage(freq)
		if err != nil {
			return c.rateErr(rate, clamped, err)
		}
	}
	err = c.program(coeff)
	if err != nil {
		return c.rateErr(rate, clamped, err)
	}
	if freq < old {
		err = c.setVoltage(freq)
		if err != nil {
			return c.rateErr(rate, clamped, err)
		}
	}
	log.Printf("GPC clock %d MHz -> %d MHz (%v)", old, freq, coeff)
	return nil
}

func (c *Clock) setVoltage(mhz uint32) error {
	if c.volt == nil {
		return nil
	}
	err := c.volt.SetVoltageForFrequency(uint64(mhz) * MHz)
	if err != nil {
		return fmt.Errorf("%w for %d MHz: %v", ErrVoltageAdjust, mhz, err)
	}
	return nil
}

func (c *Clock) rateErr(rate, clamped uint32, err error) error {
	err = fmt.Errorf("couldn't set rate to %d MHz (requested %d MHz): %w", clamped, rate, err)
	log.Print(err)
	return err
}
