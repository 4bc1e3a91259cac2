// Package insn checks hardware breakpoint addresses against machine code.
//
// An Execute breakpoint only fires if its address is the first byte of an
// instruction, which the debug registers can not verify. Given the code
// around the address, this package decodes it linearly and reports whether
// the address is an instruction boundary.
package insn

import (
	"errors"
	"fmt"

	"golang.org/x/arch/x86/x86asm"

	"github.com/hwbp-go/hwbp/pkg/hwbp"
)

// ErrOutOfRange is returned when the address is not inside the code.
var ErrOutOfRange = errors.New("address outside of the decoded code")

// Instruction is one decoded instruction.
type Instruction struct {
	Addr  uint64
	Bytes []byte
	Text  string
	// Bad is true for bytes that could not be decoded, they are skipped
	// one at a time.
	Bad bool
}

// NotBoundaryError is returned when an address points inside an
// instruction.
type NotBoundaryError struct {
	Addr uint64
	// Inst is the instruction containing Addr.
	Inst Instruction
}

func (err *NotBoundaryError) Error() string {
	return fmt.Sprintf("%#x is inside instruction %q at %#x", err.Addr, err.Inst.Text, err.Inst.Addr)
}

func noSymbols(uint64) (string, uint64) {
	return "", 0
}

// Decode disassembles code, which starts at base, in the given processor
// mode (16, 32 or 64).
func Decode(code []byte, base uint64, bits int) []Instruction {
	var r []Instruction
	for off := 0; off < len(code); {
		pc := base + uint64(off)
		inst, err := x86asm.Decode(code[off:], bits)
		if err != nil {
			r = append(r, Instruction{Addr: pc, Bytes: code[off : off+1], Text: "?", Bad: true})
			off++
			continue
		}
		r = append(r, Instruction{
			Addr:  pc,
			Bytes: code[off : off+inst.Len],
			Text:  x86asm.IntelSyntax(inst, pc, noSymbols),
		})
		off += inst.Len
	}
	return r
}

// CheckBoundary returns nil if addr is the first byte of an instruction
// of code, decoded linearly from base.
func CheckBoundary(code []byte, base, addr uint64, bits int) error {
	if addr < base || addr-base >= uint64(len(code)) {
		return ErrOutOfRange
	}
	for _, inst := range Decode(code, base, bits) {
		if inst.Addr == addr {
			return nil
		}
		if addr > inst.Addr && addr-inst.Addr < uint64(len(inst.Bytes)) {
			return &NotBoundaryError{Addr: addr, Inst: inst}
		}
	}
	return ErrOutOfRange
}

// CheckBreakpoint runs bp.Validate and, for Execute breakpoints, checks
// that the address is an instruction boundary of code. Eight byte
// breakpoints are rejected in 32-bit mode.
func CheckBreakpoint(bp hwbp.HardwareBreakpoint, code []byte, base uint64, bits int) error {
	if err := bp.Validate(); err != nil {
		return err
	}
	if bits != 64 && bp.Size == hwbp.Eight {
		return &hwbp.ContractError{Breakpoint: bp, Reason: "8 byte breakpoints require 64-bit mode"}
	}
	if bp.Condition != hwbp.Execute || len(code) == 0 {
		return nil
	}
	return CheckBoundary(code, base, bp.Address, bits)
}
