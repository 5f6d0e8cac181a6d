package clk

import (
	"errors"

	"github.com/Jon-Bright/gpcclk/pll"
)

var (
	// ErrConfiguration means the solver found no coefficients for the request.
	ErrConfiguration = pll.ErrNoSolution
	// ErrDependencyUnavailable means the reference clock couldn't be obtained at init.
	ErrDependencyUnavailable = errors.New("dependency unavailable")
	// ErrLockTimeout means the PLL didn't lock. The clock output is left on bypass and the
	// PLL must not be used until the device is reset.
	ErrLockTimeout = errors.New("PLL failed to lock")
	// ErrVoltageAdjust means the regulator refused a change. Its state is unknown afterwards.
	ErrVoltageAdjust = errors.New("voltage adjust failed")
	ErrRegisterIO    = errors.New("register access failed")
	ErrNotReady      = errors.New("clock support not initialized")
)

// IsFatal reports whether err leaves the PLL in a state that only a device reset recovers.
func IsFatal(err error) bool {
	return errors.Is(err, ErrLockTimeout)
}
