// Package native reads and writes the debug registers of real threads.
//
// A Thread fetches the registers of one thread, lets the caller inspect
// and modify them through a hwbp.DebugRegisters view and commits them back
// only if the view was modified. The helpers in this file implement the
// common operations on top of a single fetch/apply cycle.
package native

import (
	"errors"
	"fmt"

	"github.com/hwbp-go/hwbp/pkg/hwbp"
	"github.com/hwbp-go/hwbp/pkg/logflags"
)

// ErrNotSupported is returned on platforms without a debug register
// provider.
var ErrNotSupported = errors.New("hardware breakpoints not supported on this platform")

// Thread is a source and destination of debug register values.
type Thread interface {
	// WithDebugRegisters reads the debug registers of the thread, calls f
	// and, if f returns without error and modified them, writes the
	// registers back.
	WithDebugRegisters(f func(*hwbp.DebugRegisters) error) error
}

// AccessError is returned when the debug registers of a thread can not be
// read or written.
type AccessError struct {
	Op  string // fetch, apply, attach or detach
	TID int
	Err error
}

func (err *AccessError) Error() string {
	return fmt.Sprintf("could not %s debug registers of thread %d: %v", err.Op, err.TID, err.Err)
}

func (err *AccessError) Unwrap() error {
	return err.Err
}

// Apply writes bp into its slot, enabled or not as bp says.
func Apply(t Thread, bp hwbp.HardwareBreakpoint) error {
	return t.WithDebugRegisters(func(drs *hwbp.DebugRegisters) error {
		return drs.SetBreakpoint(bp)
	})
}

// Enable writes bp into its slot and enables it.
func Enable(t Thread, bp hwbp.HardwareBreakpoint) (hwbp.HardwareBreakpoint, error) {
	bp.Enabled = true
	if err := Apply(t, bp); err != nil {
		return bp, err
	}
	logflags.NativeLogger().Debugf("enabled %v", bp)
	return bp, nil
}

// Disable writes bp into its slot and disables it.
func Disable(t Thread, bp hwbp.HardwareBreakpoint) (hwbp.HardwareBreakpoint, error) {
	bp.Enabled = false
	if err := Apply(t, bp); err != nil {
		return bp, err
	}
	logflags.NativeLogger().Debugf("disabled %v", bp)
	return bp, nil
}

// Unused returns the breakpoint currently stored in the first unused
// slot of t. The boolean is false if all slots are in use.
func Unused(t Thread) (hwbp.HardwareBreakpoint, bool, error) {
	var bp hwbp.HardwareBreakpoint
	var ok bool
	err := t.WithDebugRegisters(func(drs *hwbp.DebugRegisters) error {
		var slot hwbp.Slot
		slot, ok = drs.UnusedSlot()
		if ok {
			bp = drs.Breakpoint(slot)
		}
		return nil
	})
	return bp, ok, err
}

// Breakpoints returns the four breakpoints of t.
func Breakpoints(t Thread) ([hwbp.NumSlots]hwbp.HardwareBreakpoint, error) {
	var bps [hwbp.NumSlots]hwbp.HardwareBreakpoint
	err := t.WithDebugRegisters(func(drs *hwbp.DebugRegisters) error {
		bps = drs.Breakpoints()
		return nil
	})
	return bps, err
}

// ClearSlot zeroes the address register of slot and its DR7 fields, unlike
// Disable which only clears the local enable bit.
func ClearSlot(t Thread, slot hwbp.Slot) error {
	return t.WithDebugRegisters(func(drs *hwbp.DebugRegisters) error {
		return drs.ClearBreakpoint(slot)
	})
}

// Clear disables every breakpoint of t and zeroes its address registers.
func Clear(t Thread) error {
	return t.WithDebugRegisters(func(drs *hwbp.DebugRegisters) error {
		drs.ClearAll()
		return nil
	})
}

// Trapped captures DR6, clears its triggered bits and resolves the
// breakpoint that caused the last trap, all within one fetch/apply cycle.
// The returned DR6 is the value before clearing.
func Trapped(t Thread) (bp hwbp.HardwareBreakpoint, dr6 hwbp.DR6, ok bool, err error) {
	err = t.WithDebugRegisters(func(drs *hwbp.DebugRegisters) error {
		dr6 = drs.DR6()
		drs.ClearStatus()
		bp, ok = drs.BreakpointByStatus(uint64(dr6))
		return nil
	})
	if err == nil && ok {
		logflags.NativeLogger().Debugf("trap on %v (DR6 %#x)", bp, uint64(dr6))
	}
	return bp, dr6, ok, err
}
