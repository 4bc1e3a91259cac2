package hwbp

// DR7 is the value of the debug control register.
type DR7 uint64

// DR6 is the value of the debug status register.
type DR6 uint64

// All four slots share the same DR7 layout, shifted by a fixed stride.
func localEnableOffset(slot Slot) uint {
	return uint(slot) * 2
}

func globalEnableOffset(slot Slot) uint {
	return uint(slot)*2 + 1
}

func conditionOffset(slot Slot) uint {
	return 16 + uint(slot)*4
}

func sizeOffset(slot Slot) uint {
	return 18 + uint(slot)*4
}

const (
	// dr7SlotFields covers L0-G3 (bits 0-7) and R/W0-LEN3 (bits 16-31).
	dr7SlotFields = 0x00000000ffff00ff

	dr6Triggered = 0xf
	dr6BD        = 1 << 13
	dr6BS        = 1 << 14
	dr6BT        = 1 << 15
)

// Enabled returns the local enable bit (Ln) of slot.
func (r DR7) Enabled(slot Slot) bool {
	return r&(1<<localEnableOffset(slot)) != 0
}

// WithEnabled returns r with the local enable bit of slot set to enabled.
func (r DR7) WithEnabled(slot Slot, enabled bool) DR7 {
	r &^= 1 << localEnableOffset(slot)
	if enabled {
		r |= 1 << localEnableOffset(slot)
	}
	return r
}

// GlobalEnabled returns the global enable bit (Gn) of slot. User mode
// debug registers are managed through the local bits, the global bits are
// only reported.
func (r DR7) GlobalEnabled(slot Slot) bool {
	return r&(1<<globalEnableOffset(slot)) != 0
}

// WithGlobalEnabled returns r with the global enable bit of slot set to enabled.
func (r DR7) WithGlobalEnabled(slot Slot, enabled bool) DR7 {
	r &^= 1 << globalEnableOffset(slot)
	if enabled {
		r |= 1 << globalEnableOffset(slot)
	}
	return r
}

// Condition returns the R/W field of slot.
func (r DR7) Condition(slot Slot) Condition {
	return ConditionFromBits(uint8(r >> conditionOffset(slot)))
}

// WithCondition returns r with the R/W field of slot set to cond.
func (r DR7) WithCondition(slot Slot, cond Condition) DR7 {
	r &^= 0b11 << conditionOffset(slot)
	r |= DR7(cond.Bits()) << conditionOffset(slot)
	return r
}

// Size returns the LEN field of slot.
func (r DR7) Size(slot Slot) Size {
	return SizeFromBits(uint8(r >> sizeOffset(slot)))
}

// WithSize returns r with the LEN field of slot set to sz.
func (r DR7) WithSize(slot Slot, sz Size) DR7 {
	r &^= 0b11 << sizeOffset(slot)
	r |= DR7(sz.Bits()) << sizeOffset(slot)
	return r
}

// WithoutBreakpoint returns r with both enable bits, the condition and
// the size of slot zeroed.
func (r DR7) WithoutBreakpoint(slot Slot) DR7 {
	r &^= 0b11 << localEnableOffset(slot)
	r &^= 0b1111 << conditionOffset(slot)
	return r
}

// WithoutBreakpoints returns r with the enable bits, conditions and sizes
// of every slot zeroed. Bits 8-15 (LE, GE, RTM, GD) and anything above bit
// 31 are preserved.
func (r DR7) WithoutBreakpoints() DR7 {
	return r &^ dr7SlotFields
}

// Triggered returns the Bn bit of slot, set when the slot's condition was
// met. The processor may set it even when the slot is not enabled, and it
// is never cleared by the hardware.
func (r DR6) Triggered(slot Slot) bool {
	return r&(1<<uint(slot)) != 0
}

// TriggeredSlots returns every slot whose Bn bit is set, in slot order.
func (r DR6) TriggeredSlots() []Slot {
	var slots []Slot
	for _, slot := range Slots {
		if r.Triggered(slot) {
			slots = append(slots, slot)
		}
	}
	return slots
}

// Breakpoint returns true if any of B0-B3 is set.
func (r DR6) Breakpoint() bool {
	return r&dr6Triggered != 0
}

// DebugRegisterAccess returns the BD flag (bit 13): the next instruction
// accesses a debug register while DR7.GD is set.
func (r DR6) DebugRegisterAccess() bool {
	return r&dr6BD != 0
}

// SingleStep returns the BS flag (bit 14): the exception was caused by
// single stepping.
func (r DR6) SingleStep() bool {
	return r&dr6BS != 0
}

// TaskSwitch returns the BT flag (bit 15).
func (r DR6) TaskSwitch() bool {
	return r&dr6BT != 0
}

// ClearTriggered returns r with B0-B3 zeroed.
func (r DR6) ClearTriggered() DR6 {
	return r &^ dr6Triggered
}
