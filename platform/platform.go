// Package platform defines the indicator/entry-pin/reset facade the
// bootloader core consumes. Real pin and reset-instruction access is out of
// scope per spec.md §1; this package is the contract, mirroring the way the
// teacher repo keeps GPIO pin assignments (bindicator.go's pinGreenLED etc.)
// behind small setter functions rather than scattering machine.* calls
// through the command loop.
package platform

// Facade is the hardware surface spec.md §4.8 names.
type Facade interface {
	IndicatorOn()
	IndicatorOff()
	// EntryActive reports whether the entry pin is at the configured
	// bootload-force level.
	EntryActive() bool
	// Reset performs a device reset and does not return on real hardware.
	// Hosted implementations (tests, the simulator) may return instead of
	// halting the process; callers must treat a Reset call as terminal.
	Reset()
	// JumpToApp clears call/bank state and branches to the application
	// reset vector. Like Reset, it does not return on real hardware.
	JumpToApp()
	// SettleDelay spins briefly so weak pullups on the entry pin can
	// stabilize before EntryActive is sampled.
	SettleDelay()
}
