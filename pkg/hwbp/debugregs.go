package hwbp

import (
	"errors"
	"fmt"
)

// ErrInvalidSlot is returned when a breakpoint names a slot other than
// First through Fourth.
var ErrInvalidSlot = errors.New("invalid hardware breakpoint slot")

// ErrInvalidEncoding is returned when a breakpoint's size or condition
// has no DR7 encoding.
var ErrInvalidEncoding = errors.New("invalid hardware breakpoint encoding")

// DebugRegisters represents x86 debug registers described in the Intel 64
// and IA-32 Architectures Software Developer's Manual, Vol. 3B, section
// 17.2. The registers themselves live in a structure owned by the caller
// (a ptrace scratch buffer, a Windows CONTEXT, a Snapshot), DebugRegisters
// only reads and writes them through pointers.
//
// Dirty is set whenever a method changes one of the registers, so that
// the caller knows the structure must be committed back to the thread.
type DebugRegisters struct {
	pAddrs     [NumSlots]*uint64
	pDR6, pDR7 *uint64
	Dirty      bool
}

func NewDebugRegisters(pDR0, pDR1, pDR2, pDR3, pDR6, pDR7 *uint64) *DebugRegisters {
	return &DebugRegisters{
		pAddrs: [NumSlots]*uint64{pDR0, pDR1, pDR2, pDR3},
		pDR6:   pDR6,
		pDR7:   pDR7,
		Dirty:  false,
	}
}

// Snapshot is a self-contained copy of the debug registers of a thread.
type Snapshot struct {
	Addr [NumSlots]uint64
	DR6  uint64
	DR7  uint64
}

// DebugRegisters returns a view that reads and writes s in place.
func (s *Snapshot) DebugRegisters() *DebugRegisters {
	return NewDebugRegisters(&s.Addr[0], &s.Addr[1], &s.Addr[2], &s.Addr[3], &s.DR6, &s.DR7)
}

// Snapshot copies the current register values.
func (drs *DebugRegisters) Snapshot() Snapshot {
	var s Snapshot
	for i, p := range drs.pAddrs {
		s.Addr[i] = *p
	}
	s.DR6 = *drs.pDR6
	s.DR7 = *drs.pDR7
	return s
}

// DR6 returns the current value of the status register.
func (drs *DebugRegisters) DR6() DR6 {
	return DR6(*drs.pDR6)
}

// DR7 returns the current value of the control register.
func (drs *DebugRegisters) DR7() DR7 {
	return DR7(*drs.pDR7)
}

// Breakpoint decodes the breakpoint at slot. Every register content
// decodes, including the reserved condition encoding. An invalid slot
// decodes to a disabled breakpoint.
func (drs *DebugRegisters) Breakpoint(slot Slot) HardwareBreakpoint {
	if !slot.Valid() {
		return HardwareBreakpoint{Slot: slot}
	}
	dr7 := drs.DR7()
	return HardwareBreakpoint{
		Slot:      slot,
		Address:   *drs.pAddrs[slot],
		Size:      dr7.Size(slot),
		Condition: dr7.Condition(slot),
		Enabled:   dr7.Enabled(slot),
	}
}

// SetBreakpoint writes bp into its slot: the address register, the R/W
// and LEN fields and the local enable bit. The new DR7 value is computed
// first and stored once, so re-arming an enabled slot never goes through a
// disabled state. Nothing else in DR7 or DR6 changes.
//
// Only the slot, size and condition are checked, so that they cannot alias
// another encoding. For the other constraints see HardwareBreakpoint.Validate.
func (drs *DebugRegisters) SetBreakpoint(bp HardwareBreakpoint) error {
	if !bp.Slot.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, uint8(bp.Slot))
	}
	if !bp.Size.Valid() {
		return fmt.Errorf("%w: size %d", ErrInvalidEncoding, uint8(bp.Size))
	}
	if !bp.Condition.Valid() {
		return fmt.Errorf("%w: condition %d", ErrInvalidEncoding, uint8(bp.Condition))
	}
	olddr7 := drs.DR7()
	dr7 := olddr7.
		WithCondition(bp.Slot, bp.Condition).
		WithSize(bp.Slot, bp.Size).
		WithEnabled(bp.Slot, bp.Enabled)

	if *drs.pAddrs[bp.Slot] != bp.Address {
		*drs.pAddrs[bp.Slot] = bp.Address
		drs.Dirty = true
	}
	if dr7 != olddr7 {
		*drs.pDR7 = uint64(dr7)
		drs.Dirty = true
	}
	return nil
}

// Status returns true if the triggered bit of slot is set in DR6.
func (drs *DebugRegisters) Status(slot Slot) bool {
	return slot.Valid() && drs.DR6().Triggered(slot)
}

// ClearStatus zeroes B0-B3 in DR6, leaving the other bits alone. The
// processor never clears them, a trap handler must do it once per trap
// after it has captured DR6, otherwise the next trap is attributed to a
// stale slot.
func (drs *DebugRegisters) ClearStatus() {
	dr6 := drs.DR6()
	if cleared := dr6.ClearTriggered(); cleared != dr6 {
		*drs.pDR6 = uint64(cleared)
		drs.Dirty = true
	}
}

// Decode returns the breakpoint at slot in s.
func Decode(s Snapshot, slot Slot) HardwareBreakpoint {
	return s.DebugRegisters().Breakpoint(slot)
}

// Encode returns s with bp written into its slot.
func Encode(bp HardwareBreakpoint, s Snapshot) (Snapshot, error) {
	err := s.DebugRegisters().SetBreakpoint(bp)
	return s, err
}

// Status returns the triggered bit of slot in s.
func Status(s Snapshot, slot Slot) bool {
	return s.DebugRegisters().Status(slot)
}

// ClearStatus returns s with B0-B3 of DR6 zeroed.
func ClearStatus(s Snapshot) Snapshot {
	s.DebugRegisters().ClearStatus()
	return s
}
