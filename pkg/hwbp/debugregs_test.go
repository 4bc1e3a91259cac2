package hwbp

import (
	"errors"
	"testing"
)

// noisySnapshot has every unmodeled bit of DR6 and DR7 set, plus
// distinctive values in the address registers.
func noisySnapshot() Snapshot {
	return Snapshot{
		Addr: [NumSlots]uint64{0x1000, 0x2000, 0x3000, 0x4000},
		DR6:  0xffff0ff0,
		DR7:  0xffffffff00000700,
	}
}

func slotMask(slot Slot) uint64 {
	return 1<<localEnableOffset(slot) | 0xf<<conditionOffset(slot)
}

func validBreakpoints(slot Slot) []HardwareBreakpoint {
	var r []HardwareBreakpoint
	for _, enabled := range []bool{false, true} {
		r = append(r, New(slot).WithCondition(Execute).WithAddress(0x401003).WithEnabled(enabled))
		for _, cond := range []Condition{Write, ReadWrite} {
			for _, sz := range []Size{One, Two, Four, Eight} {
				addr := uint64(0x7ffe0000 + 8*sz.Bytes())
				r = append(r, New(slot).WithCondition(cond).WithSize(sz).WithAddress(addr).WithEnabled(enabled))
			}
		}
	}
	return r
}

func TestRoundTrip(t *testing.T) {
	for _, base := range []Snapshot{{}, noisySnapshot()} {
		for _, slot := range Slots {
			for _, bp := range validBreakpoints(slot) {
				s, err := Encode(bp, base)
				if err != nil {
					t.Fatalf("Encode(%v): %v", bp, err)
				}
				if got := Decode(s, slot); got != bp {
					t.Errorf("round trip of %v through %#x returned %v", bp, base.DR7, got)
				}
			}
		}
	}
}

func TestEncodeNonInterference(t *testing.T) {
	base := noisySnapshot()
	// arm every slot so that the other slots have something to lose
	for _, slot := range Slots {
		var err error
		base, err = Encode(New(slot).WithAddress(base.Addr[slot]).WithCondition(Write).WithSize(Four).WithEnabled(true), base)
		if err != nil {
			t.Fatal(err)
		}
	}

	for _, slot := range Slots {
		for _, bp := range validBreakpoints(slot) {
			s, _ := Encode(bp, base)
			for _, other := range Slots {
				if other == slot {
					continue
				}
				if Decode(s, other) != Decode(base, other) {
					t.Errorf("encoding %v changed slot %v: %v -> %v", bp, other, Decode(base, other), Decode(s, other))
				}
				if s.Addr[other] != base.Addr[other] {
					t.Errorf("encoding %v changed DR%d", bp, other)
				}
			}
			if changed := (s.DR7 ^ base.DR7) &^ slotMask(slot); changed != 0 {
				t.Errorf("encoding %v changed DR7 bits %#x outside its slot", bp, changed)
			}
			if s.DR6 != base.DR6 {
				t.Errorf("encoding %v changed DR6 %#x -> %#x", bp, base.DR6, s.DR6)
			}
		}
	}
}

func TestSizeEncoding(t *testing.T) {
	for _, tc := range []struct {
		size Size
		bits uint8
	}{
		{One, 0b00},
		{Two, 0b01},
		{Four, 0b11},
		{Eight, 0b10},
	} {
		if got := tc.size.Bits(); got != tc.bits {
			t.Errorf("%v.Bits() = %#b, expected %#b", tc.size, got, tc.bits)
		}
		for _, slot := range Slots {
			s, _ := Encode(New(slot).WithSize(tc.size), Snapshot{})
			if got := uint8(s.DR7>>sizeOffset(slot)) & 0b11; got != tc.bits {
				t.Errorf("size %v in slot %v encoded as %#b, expected %#b", tc.size, slot, got, tc.bits)
			}
		}
	}
}

func TestConditionEncoding(t *testing.T) {
	for _, tc := range []struct {
		cond Condition
		bits uint64
	}{
		{Execute, 0b00},
		{Write, 0b01},
		{IOReadWrite, 0b10},
		{ReadWrite, 0b11},
	} {
		s, _ := Encode(New(Third).WithCondition(tc.cond), Snapshot{})
		if got := s.DR7 >> conditionOffset(Third) & 0b11; got != tc.bits {
			t.Errorf("condition %v encoded as %#b, expected %#b", tc.cond, got, tc.bits)
		}
	}
}

func TestReservedConditionPassthrough(t *testing.T) {
	// slot 1: R/W = 0b10, LEN = 0b11, enabled
	s := Snapshot{DR7: 0b10<<20 | 0b11<<22 | 1<<2}
	bp := Decode(s, Second)
	if bp.Condition != IOReadWrite || bp.Size != Four || !bp.Enabled {
		t.Fatalf("unexpected decoding %v", bp)
	}
	s2, err := Encode(bp, s)
	if err != nil {
		t.Fatal(err)
	}
	if s2 != s {
		t.Fatalf("reserved encoding not preserved: %#x -> %#x", s.DR7, s2.DR7)
	}
}

func TestDecodeTotal(t *testing.T) {
	for v := uint64(0); v < 1<<16; v++ {
		s := Snapshot{DR7: v<<16 | v&0xff}
		for _, slot := range Slots {
			bp := Decode(s, slot)
			if bp.Size.Bytes() == 0 {
				t.Fatalf("DR7 %#x slot %v decoded to unknown size %d", s.DR7, slot, bp.Size)
			}
			s2, _ := Encode(bp, s)
			if s2 != s {
				t.Fatalf("DR7 %#x slot %v does not survive a decode/encode cycle: %#x", s.DR7, slot, s2.DR7)
			}
		}
	}
}

func TestStatus(t *testing.T) {
	s := Snapshot{DR6: 0xffff0ff0 | 0b0101}
	expected := [NumSlots]bool{true, false, true, false}
	for _, slot := range Slots {
		if got := Status(s, slot); got != expected[slot] {
			t.Errorf("Status(%v) = %v, expected %v", slot, got, expected[slot])
		}
	}
	if Status(s, Slot(7)) {
		t.Errorf("invalid slot reported as triggered")
	}
}

func TestClearStatus(t *testing.T) {
	for _, dr6 := range []uint64{0xf, 0xffff0fff, 0x4001, 0xffffffffffffffff} {
		s := ClearStatus(Snapshot{DR6: dr6, DR7: 0x55})
		if s.DR6 != dr6&^0xf {
			t.Errorf("ClearStatus(%#x) = %#x", dr6, s.DR6)
		}
		if s.DR7 != 0x55 {
			t.Errorf("ClearStatus changed DR7")
		}
	}
}

func TestRearmKeepsSlotEnabled(t *testing.T) {
	s, _ := Encode(New(Second).WithAddress(0x1000).WithCondition(Write).WithSize(Eight).WithEnabled(true), noisySnapshot())

	drs := s.DebugRegisters()
	before := drs.DR7()
	if err := drs.SetBreakpoint(New(Second).WithAddress(0x2002).WithCondition(ReadWrite).WithSize(Two).WithEnabled(true)); err != nil {
		t.Fatal(err)
	}
	after := drs.DR7()

	if !before.Enabled(Second) || !after.Enabled(Second) {
		t.Fatalf("slot not enabled across re-arm: %#x -> %#x", before, after)
	}
	if changed := uint64(before ^ after); changed == 0 || changed&^(0xf<<conditionOffset(Second)) != 0 {
		t.Fatalf("re-arm changed DR7 bits %#x, expected only R/W1 and LEN1", changed)
	}
	if bp := drs.Breakpoint(Second); bp.Condition != ReadWrite || bp.Size != Two || bp.Address != 0x2002 {
		t.Fatalf("re-armed breakpoint decoded as %v", bp)
	}
}

func TestDisarm(t *testing.T) {
	s, _ := Encode(New(Fourth).WithAddress(0x1000).WithCondition(Write).WithEnabled(true), Snapshot{})
	if _, ok := UnusedSlot(s); !ok {
		t.Fatal("expected unused slots")
	}
	s, _ = Encode(Decode(s, Fourth).WithEnabled(false), s)
	if Decode(s, Fourth).Enabled {
		t.Fatal("slot still enabled")
	}
	if s.DR7&(1<<localEnableOffset(Fourth)) != 0 {
		t.Fatalf("enable bit still set in %#x", s.DR7)
	}
}

func TestDirty(t *testing.T) {
	var s Snapshot
	drs := s.DebugRegisters()
	bp := New(First).WithAddress(0x1000).WithCondition(Write).WithEnabled(true)
	drs.SetBreakpoint(bp)
	if !drs.Dirty {
		t.Fatal("expected registers to be dirty after arming a breakpoint")
	}

	drs = s.DebugRegisters()
	drs.SetBreakpoint(bp)
	drs.ClearStatus()
	if drs.Dirty {
		t.Fatal("rewriting the same breakpoint marked registers dirty")
	}
	s.DR6 = 1
	drs.ClearStatus()
	if !drs.Dirty || s.DR6 != 0 {
		t.Fatalf("ClearStatus: dirty %v DR6 %#x", drs.Dirty, s.DR6)
	}
}

func TestInvalidSlot(t *testing.T) {
	s := noisySnapshot()
	s2, err := Encode(New(Slot(4)).WithEnabled(true), s)
	if !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
	if s2 != s {
		t.Fatal("failed encode modified the snapshot")
	}
	if bp := Decode(s, Slot(9)); bp.Enabled {
		t.Fatalf("invalid slot decoded as enabled: %v", bp)
	}
}

func TestInvalidEncoding(t *testing.T) {
	s := noisySnapshot()
	for _, bp := range []HardwareBreakpoint{
		New(First).WithAddress(0x1000).WithSize(Size(9)).WithEnabled(true),
		New(Second).WithAddress(0x1000).WithCondition(Condition(7)).WithEnabled(true),
	} {
		s2, err := Encode(bp, s)
		if !errors.Is(err, ErrInvalidEncoding) {
			t.Fatalf("Encode(%v): expected ErrInvalidEncoding, got %v", bp, err)
		}
		if s2 != s {
			t.Fatalf("Encode(%v) modified the snapshot", bp)
		}
	}
}

func TestSnapshotView(t *testing.T) {
	regs := make([]uint64, 8)
	drs := NewDebugRegisters(&regs[0], &regs[1], &regs[2], &regs[3], &regs[6], &regs[7])
	drs.SetBreakpoint(New(Third).WithAddress(0xc000).WithCondition(Write).WithSize(Eight).WithEnabled(true))
	if regs[2] != 0xc000 {
		t.Fatalf("DR2 = %#x", regs[2])
	}
	if regs[4] != 0 || regs[5] != 0 {
		t.Fatal("DR4/DR5 written")
	}
	s := drs.Snapshot()
	if s.Addr[2] != 0xc000 || s.DR7 != regs[7] {
		t.Fatalf("snapshot mismatch %#v", s)
	}
}
