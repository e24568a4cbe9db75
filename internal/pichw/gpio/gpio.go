//go:build tinygo

// Package gpio is the real-hardware platform.Facade: indicator LED and
// entry-forcing pin driven through TinyGo's machine package, the same
// Configure/High/Low idiom bindicator.go uses for its bin-status LEDs.
package gpio

import (
	"machine"
	"time"
)

// Facade drives the bootloader-entry indicator LED and reads the
// entry-forcing pin (normally pulled up, grounded by the programmer to force
// bootloader entry). Reset and JumpToApp both hand control back to the
// application's own boot path: Reset asks the watchdog to fire, JumpToApp
// calls into the application's reset vector directly.
type Facade struct {
	Indicator   machine.Pin
	EntryPin    machine.Pin
	AppEntry    func()
	settleDelay time.Duration
}

// New configures the two GPIO lines the bootloader needs. settleDelay is the
// debounce window ShouldEnter waits out before sampling EntryPin, mirroring
// bindicator.go's own pin-settle pattern around its LED pins.
func New(indicator, entryPin machine.Pin, appEntry func(), settleDelay time.Duration) *Facade {
	f := &Facade{Indicator: indicator, EntryPin: entryPin, AppEntry: appEntry, settleDelay: settleDelay}
	f.Indicator.Configure(machine.PinConfig{Mode: machine.PinOutput})
	f.EntryPin.Configure(machine.PinConfig{Mode: machine.PinInputPullup})
	f.Indicator.Low()
	return f
}

func (f *Facade) IndicatorOn()  { f.Indicator.High() }
func (f *Facade) IndicatorOff() { f.Indicator.Low() }

// EntryActive reports the entry pin grounded (active-low, per the
// programmer's pull-to-ground convention).
func (f *Facade) EntryActive() bool { return !f.EntryPin.Get() }

func (f *Facade) SettleDelay() { time.Sleep(f.settleDelay) }

// Reset asks the watchdog to bite by starving it, the same
// fatalError/ota.Reboot fallback main.go uses when it wants a clean restart
// without a direct CPU reset instruction.
func (f *Facade) Reset() {
	machine.Watchdog.Configure(machine.WatchdogConfig{TimeoutMillis: 1})
	machine.Watchdog.Start()
	for {
		time.Sleep(time.Second)
	}
}

func (f *Facade) JumpToApp() {
	if f.AppEntry != nil {
		f.AppEntry()
	}
}
