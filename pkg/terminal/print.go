package terminal

import (
	"fmt"
	"io"

	"github.com/hwbp-go/hwbp/pkg/hwbp"
)

const (
	terminalHighlightEscapeCode string = "\033[%2dm"
	terminalResetEscapeCode     string = "\033[0m"

	ansiRed   = 31
	ansiGreen = 32
)

// Printer formats debug register contents.
type Printer struct {
	// Colors enables ANSI escape codes: enabled slots are green, triggered
	// slots red.
	Colors bool
	// Width is the number of hex digits printed for addresses.
	Width int
}

func (p *Printer) paint(color int, s string) string {
	if !p.Colors {
		return s
	}
	return fmt.Sprintf(terminalHighlightEscapeCode, color) + s + terminalResetEscapeCode
}

func (p *Printer) hex(v uint64) string {
	w := p.Width
	if w <= 0 {
		w = 16
	}
	return fmt.Sprintf("%#0*x", w, v)
}

// Breakpoint formats one slot.
func (p *Printer) Breakpoint(bp hwbp.HardwareBreakpoint, triggered bool) string {
	state := "disabled"
	if bp.Enabled {
		state = p.paint(ansiGreen, "enabled")
	}
	s := fmt.Sprintf("%d %-8s %s %-9s %d byte(s) %s", uint8(bp.Slot), "("+bp.Slot.String()+")", p.hex(bp.Address), bp.Condition, bp.Size.Bytes(), state)
	if !bp.Condition.Usable() {
		s += " [reserved condition]"
	}
	if triggered {
		s += " " + p.paint(ansiRed, "TRIGGERED")
		if !bp.Enabled {
			s += " (stale)"
		}
	}
	return s
}

// Breakpoints prints every slot of s.
func (p *Printer) Breakpoints(w io.Writer, s hwbp.Snapshot) {
	dr6 := hwbp.DR6(s.DR6)
	for _, bp := range hwbp.Breakpoints(s) {
		fmt.Fprintln(w, p.Breakpoint(bp, dr6.Triggered(bp.Slot)))
	}
}

// Registers prints the raw register values of s and the DR6 flags.
func (p *Printer) Registers(w io.Writer, s hwbp.Snapshot) {
	for i, v := range s.Addr {
		fmt.Fprintf(w, "DR%d = %s\n", i, p.hex(v))
	}
	dr6 := hwbp.DR6(s.DR6)
	fmt.Fprintf(w, "DR6 = %#016x", s.DR6)
	for _, flag := range []struct {
		set  bool
		name string
	}{
		{dr6.DebugRegisterAccess(), "BD"},
		{dr6.SingleStep(), "BS"},
		{dr6.TaskSwitch(), "BT"},
	} {
		if flag.set {
			fmt.Fprintf(w, " %s", flag.name)
		}
	}
	for _, slot := range dr6.TriggeredSlots() {
		fmt.Fprintf(w, " B%d", uint8(slot))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "DR7 = %#016x\n", s.DR7)
}
