package main

import (
	"fmt"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/Jon-Bright/gpcclk/clk"
)

// refClockSource returns how the PLL's reference clock is obtained at init. If path is set,
// the rate (in Hz) is read from it, e.g. /sys/kernel/debug/clk/pll_ref/clk_rate; otherwise the
// clock is assumed to run at mhz.
func refClockSource(path string, mhz uint32) func() (clk.RefClock, error) {
	if path == "" {
		return func() (clk.RefClock, error) {
			return clk.FixedRefClock(mhz), nil
		}
	}
	return func() (clk.RefClock, error) {
		b, err := ioutil.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("couldn't read reference clock rate: %v", err)
		}
		hz, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("couldn't parse reference clock rate %q: %v", b, err)
		}
		if hz < clk.MHz {
			return nil, fmt.Errorf("reference clock rate %d Hz too low", hz)
		}
		return clk.FixedRefClock(hz / clk.MHz), nil
	}
}
