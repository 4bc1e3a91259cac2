package hwbp

import "fmt"

// HardwareBreakpoint describes the configuration of one slot. It has no
// identity beyond its slot: two values with the same Slot describe the
// same hardware resource at different points in time.
type HardwareBreakpoint struct {
	Slot      Slot
	Address   uint64
	Size      Size
	Condition Condition
	Enabled   bool
}

// New returns a disabled breakpoint for slot, watching one byte at address
// 0 for reads and writes.
func New(slot Slot) HardwareBreakpoint {
	return HardwareBreakpoint{
		Slot:      slot,
		Size:      One,
		Condition: ReadWrite,
	}
}

func (bp HardwareBreakpoint) WithSlot(slot Slot) HardwareBreakpoint {
	bp.Slot = slot
	return bp
}

func (bp HardwareBreakpoint) WithAddress(addr uint64) HardwareBreakpoint {
	bp.Address = addr
	return bp
}

func (bp HardwareBreakpoint) WithSize(sz Size) HardwareBreakpoint {
	bp.Size = sz
	return bp
}

func (bp HardwareBreakpoint) WithCondition(cond Condition) HardwareBreakpoint {
	bp.Condition = cond
	return bp
}

func (bp HardwareBreakpoint) WithEnabled(enabled bool) HardwareBreakpoint {
	bp.Enabled = enabled
	return bp
}

// Covers returns true if addr falls inside [Address, Address+Size).
// The enabled flag is not considered.
func (bp HardwareBreakpoint) Covers(addr uint64) bool {
	return addr >= bp.Address && addr-bp.Address < uint64(bp.Size.Bytes())
}

func (bp HardwareBreakpoint) String() string {
	state := "disabled"
	if bp.Enabled {
		state = "enabled"
	}
	return fmt.Sprintf("%s: %#x %s %d byte(s) %s", bp.Slot, bp.Address, bp.Condition, bp.Size.Bytes(), state)
}

// ContractError describes a breakpoint the processor would misinterpret.
type ContractError struct {
	Breakpoint HardwareBreakpoint
	Reason     string
}

func (err *ContractError) Error() string {
	return fmt.Sprintf("invalid hardware breakpoint %d at %#x: %s", uint8(err.Breakpoint.Slot), err.Breakpoint.Address, err.Reason)
}

// Validate checks the constraints the encoding itself does not enforce.
// Disabled breakpoints are always valid.
func (bp HardwareBreakpoint) Validate() error {
	if !bp.Enabled {
		return nil
	}
	if !bp.Slot.Valid() {
		return &ContractError{bp, fmt.Sprintf("slot %d out of range", uint8(bp.Slot))}
	}
	if !bp.Condition.Usable() {
		return &ContractError{bp, "reserved condition encoding"}
	}
	n := bp.Size.Bytes()
	if n == 0 {
		return &ContractError{bp, fmt.Sprintf("unknown size %d", uint8(bp.Size))}
	}
	if bp.Condition == Execute && bp.Size != One {
		return &ContractError{bp, "execute breakpoints must have size 1"}
	}
	if bp.Address%uint64(n) != 0 {
		return &ContractError{bp, fmt.Sprintf("address not aligned to %d bytes", n)}
	}
	return nil
}
