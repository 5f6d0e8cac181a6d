package main

import (
	"bytes"
	"fmt"
	"io/ioutil"

	"github.com/Jon-Bright/gpcclk/pll"
)

const COMPATIBLE_FILE = "/proc/device-tree/compatible"

type soc struct {
	name   string
	bar0   uintptr // physical address of the GPU register aperture
	refMHz uint32
	params *pll.Params
}

var socVariants = map[string]soc{
	"nvidia,tegra124": {
		name:   "Tegra K1 (GK20A)",
		bar0:   0x57000000,
		refMHz: 26,
		params: &pll.GK20A,
	},
	"nvidia,tegra132": {
		name:   "Tegra K1 64-bit (GK20A)",
		bar0:   0x57000000,
		refMHz: 26,
		params: &pll.GK20A,
	},
}

// detectSoC works out which SoC we're on from the device tree's root compatible list.
func detectSoC() (*soc, error) {
	b, err := ioutil.ReadFile(COMPATIBLE_FILE)
	if err != nil {
		return nil, fmt.Errorf("couldn't read %s: %v", COMPATIBLE_FILE, err)
	}
	return parseCompatible(b)
}

// parseCompatible picks the first known entry of a NUL-separated compatible list.
func parseCompatible(b []byte) (*soc, error) {
	for _, c := range bytes.Split(b, []byte{0}) {
		if s, ok := socVariants[string(c)]; ok {
			return &s, nil
		}
	}
	return nil, fmt.Errorf("couldn't identify SoC from %q", bytes.TrimRight(b, "\x00"))
}
