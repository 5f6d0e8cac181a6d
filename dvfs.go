package main

import (
	"fmt"
	"io/ioutil"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/Jon-Bright/gpcclk/clk"
	"github.com/go-cmd/cmd"
)

// fileRegulator hands the new GPU clock rate to the platform's DVFS code through a file,
// typically the gbus rate in debugfs. If statusFile is set, it waits for the platform to
// report the same rate back there.
type fileRegulator struct {
	rateFile   string
	statusFile string
	wait       time.Duration
}

func (f *fileRegulator) SetVoltageForFrequency(hz uint64) error {
	want := strconv.FormatUint(hz, 10)
	err := ioutil.WriteFile(f.rateFile, []byte(want+"\n"), 0644)
	if err != nil {
		return fmt.Errorf("couldn't write %s: %v", f.rateFile, err)
	}
	if f.statusFile == "" {
		return nil
	}
	start := time.Now()
	for {
		b, err := ioutil.ReadFile(f.statusFile)
		if err != nil {
			return fmt.Errorf("couldn't query DVFS status: %v", err)
		}
		t := time.Now()
		if strings.TrimSpace(string(b)) == want {
			log.Printf("Voltage settled for %s Hz after %v", want, t.Sub(start))
			return nil
		}
		if t.Sub(start) > f.wait {
			return fmt.Errorf("timed out waiting for DVFS at %s Hz, status %q, started %v, now %v", want, strings.TrimSpace(string(b)), start, t)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// cmdRegulator runs an external helper with the new rate in Hz as its last argument.
type cmdRegulator struct {
	name string
	args []string
	wait time.Duration
}

func (c *cmdRegulator) SetVoltageForFrequency(hz uint64) error {
	args := append(append([]string{}, c.args...), strconv.FormatUint(hz, 10))
	h := cmd.NewCmd(c.name, args...)
	var status cmd.Status
	select {
	case status = <-h.Start():
	case <-time.After(c.wait):
		h.Stop() // Ignore error
		return fmt.Errorf("%s didn't finish within %v", c.name, c.wait)
	}
	if status.Error != nil {
		return fmt.Errorf("couldn't run %s: %v", c.name, status.Error)
	}
	if status.Exit != 0 {
		return fmt.Errorf("%s exited with %d: %s", c.name, status.Exit, strings.Join(status.Stderr, "; "))
	}
	return nil
}

// newRegulator picks the voltage collaborator from flags. With neither a file nor a command
// configured, nothing follows the clock.
func newRegulator(rateFile, statusFile, command string, wait time.Duration) clk.Voltage {
	if f := strings.Fields(command); len(f) > 0 {
		return &cmdRegulator{name: f[0], args: f[1:], wait: wait}
	}
	if rateFile != "" {
		return &fileRegulator{rateFile: rateFile, statusFile: statusFile, wait: wait}
	}
	log.Printf("No DVFS configured, voltage won't follow the clock")
	return nil
}
