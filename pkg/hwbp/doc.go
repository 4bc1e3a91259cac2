// Package hwbp models the x86 debug registers used for hardware
// breakpoints: the four address registers DR0-DR3, the status register DR6
// and the control register DR7, described in the Intel 64 and IA-32
// Architectures Software Developer's Manual, Vol. 3B, section 17.2.
//
// The package never touches a live thread. It operates on a register
// snapshot obtained by the caller (see package native for providers) and
// leaves every bit it does not model exactly as it found it.
//
// Encoding a breakpoint does not validate it. An enabled breakpoint must
// have an address aligned to its size and an Execute breakpoint must use
// Size One, otherwise the processor silently misinterprets it. Callers that
// want a check can use HardwareBreakpoint.Validate.
package hwbp
