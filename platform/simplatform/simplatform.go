// Package simplatform is a hosted platform.Facade used by tests and
// cmd/pic18boot-sim. It records every observable effect instead of driving
// pins, the way spec.md §9 asks a hosted reimplementation to treat
// JumpToApp as "a sentinel observable effect" rather than a real branch.
package simplatform

// Facade records indicator/reset/jump state instead of touching hardware.
type Facade struct {
	IndicatorLit bool
	ForceEntry   bool // set by tests to simulate the entry pin being held low
	ResetCalled  bool
	JumpedToApp  bool
	SettleDelays int
}

func New() *Facade { return &Facade{} }

func (f *Facade) IndicatorOn()  { f.IndicatorLit = true }
func (f *Facade) IndicatorOff() { f.IndicatorLit = false }
func (f *Facade) EntryActive() bool { return f.ForceEntry }
func (f *Facade) Reset()            { f.ResetCalled = true }
func (f *Facade) JumpToApp()        { f.JumpedToApp = true }
func (f *Facade) SettleDelay()      { f.SettleDelays++ }
