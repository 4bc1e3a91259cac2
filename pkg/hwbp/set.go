package hwbp

import (
	"errors"
	"fmt"
)

// ErrExhausted is returned when all four hardware breakpoints are in use.
var ErrExhausted = errors.New("hardware breakpoints exhausted")

// UnusedSlot returns the first slot, scanning First to Fourth, whose local
// enable bit is clear. It returns false if every slot is in use.
func (drs *DebugRegisters) UnusedSlot() (Slot, bool) {
	dr7 := drs.DR7()
	for _, slot := range Slots {
		if !dr7.Enabled(slot) {
			return slot, true
		}
	}
	return 0, false
}

// SetUnused stores bp in the first unused slot, ignoring bp.Slot, and
// returns it with its slot filled in.
func (drs *DebugRegisters) SetUnused(bp HardwareBreakpoint) (HardwareBreakpoint, error) {
	slot, ok := drs.UnusedSlot()
	if !ok {
		return bp, ErrExhausted
	}
	bp.Slot = slot
	return bp, drs.SetBreakpoint(bp)
}

// BreakpointByStatus returns the breakpoint in the lowest slot whose
// triggered bit is set in dr6. The status value is a parameter rather than
// read from the registers so that a trap handler can capture DR6 once, on
// entry, and clear it before doing anything else.
func (drs *DebugRegisters) BreakpointByStatus(dr6 uint64) (HardwareBreakpoint, bool) {
	for _, slot := range Slots {
		if DR6(dr6).Triggered(slot) {
			return drs.Breakpoint(slot), true
		}
	}
	return HardwareBreakpoint{}, false
}

// Breakpoints decodes every slot, enabled or not, in slot order.
func (drs *DebugRegisters) Breakpoints() [NumSlots]HardwareBreakpoint {
	var r [NumSlots]HardwareBreakpoint
	for i, slot := range Slots {
		r[i] = drs.Breakpoint(slot)
	}
	return r
}

// BreakpointsByAddress returns the breakpoints whose range covers addr.
// Disabled breakpoints are included.
func (drs *DebugRegisters) BreakpointsByAddress(addr uint64) []HardwareBreakpoint {
	var r []HardwareBreakpoint
	for _, bp := range drs.Breakpoints() {
		if bp.Covers(addr) {
			r = append(r, bp)
		}
	}
	return r
}

// ClearBreakpoint zeroes the address register of slot and its fields in
// DR7: both enable bits, the condition and the size. DR6 is not modified.
func (drs *DebugRegisters) ClearBreakpoint(slot Slot) error {
	if !slot.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, uint8(slot))
	}
	if *drs.pAddrs[slot] != 0 {
		*drs.pAddrs[slot] = 0
		drs.Dirty = true
	}
	dr7 := drs.DR7()
	if cleared := dr7.WithoutBreakpoint(slot); cleared != dr7 {
		*drs.pDR7 = uint64(cleared)
		drs.Dirty = true
	}
	return nil
}

// ClearAll disables every slot and zeroes the address registers. DR7 bits
// that do not belong to a slot are preserved, DR6 is not touched.
func (drs *DebugRegisters) ClearAll() {
	for _, p := range drs.pAddrs {
		if *p != 0 {
			*p = 0
			drs.Dirty = true
		}
	}
	dr7 := drs.DR7()
	if cleared := dr7.WithoutBreakpoints(); cleared != dr7 {
		*drs.pDR7 = uint64(cleared)
		drs.Dirty = true
	}
}

// UnusedSlot returns the first unused slot of s.
func UnusedSlot(s Snapshot) (Slot, bool) {
	return s.DebugRegisters().UnusedSlot()
}

// BreakpointByStatus returns the lowest slot of s triggered in dr6.
func BreakpointByStatus(s Snapshot, dr6 uint64) (HardwareBreakpoint, bool) {
	return s.DebugRegisters().BreakpointByStatus(dr6)
}

// Breakpoints decodes every slot of s.
func Breakpoints(s Snapshot) [NumSlots]HardwareBreakpoint {
	return s.DebugRegisters().Breakpoints()
}
