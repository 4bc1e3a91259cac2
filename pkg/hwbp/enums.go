package hwbp

import "fmt"

// NumSlots is the number of hardware breakpoints available to a thread.
const NumSlots = 4

// Slot selects one of the four hardware breakpoints of a thread, that is
// one of DR0-DR3 and the corresponding fields of DR6 and DR7.
type Slot uint8

const (
	First Slot = iota
	Second
	Third
	Fourth
)

// Slots lists every slot in the order they are scanned.
var Slots = [NumSlots]Slot{First, Second, Third, Fourth}

// SlotFromIndex returns the slot with ordinal idx.
func SlotFromIndex(idx int) (Slot, bool) {
	if idx < 0 || idx >= NumSlots {
		return 0, false
	}
	return Slot(idx), true
}

// Valid returns true if s is one of the four slots.
func (s Slot) Valid() bool {
	return s < NumSlots
}

func (s Slot) String() string {
	switch s {
	case First:
		return "first"
	case Second:
		return "second"
	case Third:
		return "third"
	case Fourth:
		return "fourth"
	}
	return fmt.Sprintf("Slot(%d)", uint8(s))
}

// Size is the width of the memory access a breakpoint triggers on.
//
// Do not convert a Size to an integer directly, neither its numeric value
// nor its ordering match the hardware encoding. Use Bits and Bytes.
type Size uint8

const (
	One Size = iota
	Two
	Four
	// Eight is only supported in 64-bit mode.
	Eight
)

// The LEN field encoding is not monotonic: 8 bytes is 0b10 and 4 bytes is
// 0b11.
var sizeBits = [...]uint8{
	One:   0b00,
	Two:   0b01,
	Four:  0b11,
	Eight: 0b10,
}

var sizeFromBits = [4]Size{
	0b00: One,
	0b01: Two,
	0b10: Eight,
	0b11: Four,
}

// Valid returns true if s is one of One, Two, Four and Eight.
func (s Size) Valid() bool {
	return int(s) < len(sizeBits)
}

// Bits returns the two bit LEN encoding of s used in DR7. Out of range
// sizes have no encoding and return 0.
func (s Size) Bits() uint8 {
	if int(s) >= len(sizeBits) {
		return 0
	}
	return sizeBits[s]
}

// SizeFromBits returns the Size encoded by the low two bits of bits.
func SizeFromBits(bits uint8) Size {
	return sizeFromBits[bits&0b11]
}

// Bytes returns the number of bytes covered by a breakpoint of size s.
func (s Size) Bytes() int {
	switch s {
	case One:
		return 1
	case Two:
		return 2
	case Four:
		return 4
	case Eight:
		return 8
	}
	return 0
}

// SizeFromBytes returns the Size covering n bytes.
func SizeFromBytes(n int) (Size, bool) {
	switch n {
	case 1:
		return One, true
	case 2:
		return Two, true
	case 4:
		return Four, true
	case 8:
		return Eight, true
	}
	return 0, false
}

func (s Size) String() string {
	switch s {
	case One, Two, Four, Eight:
		return fmt.Sprintf("%d", s.Bytes())
	}
	return fmt.Sprintf("Size(%d)", uint8(s))
}

// Condition is the kind of access a breakpoint triggers on. Its numeric
// value is the R/W field encoding of DR7.
type Condition uint8

const (
	// Execute triggers on instruction fetch. The address must be the first
	// byte of an instruction and the size must be One.
	Execute Condition = 0b00
	// Write triggers on data writes.
	Write Condition = 0b01
	// IOReadWrite is the architecturally reserved encoding 0b10. Its
	// meaning depends on CR4.DE and on the microarchitecture, it is carried
	// through unchanged but should not be used to arm a breakpoint.
	IOReadWrite Condition = 0b10
	// ReadWrite triggers on data reads and writes, but not on instruction
	// fetches. Some processors also trigger it on I/O reads.
	ReadWrite Condition = 0b11
)

// Valid returns true if c fits the two bit R/W field. The reserved
// encoding is valid, see Usable.
func (c Condition) Valid() bool {
	return c <= 0b11
}

// Bits returns the two bit R/W encoding of c used in DR7.
func (c Condition) Bits() uint8 {
	return uint8(c) & 0b11
}

// ConditionFromBits returns the Condition encoded by the low two bits of
// bits. Every pattern decodes, including the reserved one.
func ConditionFromBits(bits uint8) Condition {
	return Condition(bits & 0b11)
}

// Usable returns false for the reserved encoding.
func (c Condition) Usable() bool {
	return c == Execute || c == Write || c == ReadWrite
}

func (c Condition) String() string {
	switch c {
	case Execute:
		return "execute"
	case Write:
		return "write"
	case ReadWrite:
		return "readwrite"
	case IOReadWrite:
		return "io"
	}
	return fmt.Sprintf("Condition(%d)", uint8(c))
}

// ParseCondition parses the names of the usable conditions, as returned
// by Condition.String, plus the short forms "x", "w" and "rw". The
// reserved encoding can be decoded but not requested by name.
func ParseCondition(s string) (Condition, error) {
	switch s {
	case "execute", "exec", "x":
		return Execute, nil
	case "write", "w":
		return Write, nil
	case "readwrite", "rw":
		return ReadWrite, nil
	case "io":
		return 0, fmt.Errorf("breakpoint condition %q is reserved", s)
	}
	return 0, fmt.Errorf("unknown breakpoint condition %q", s)
}
