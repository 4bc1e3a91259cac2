package hwbp

import (
	"errors"
	"testing"
)

func armed(slots ...Slot) Snapshot {
	var s Snapshot
	for _, slot := range slots {
		s, _ = Encode(New(slot).WithAddress(0x1000*uint64(slot+1)).WithCondition(Write).WithSize(Four).WithEnabled(true), s)
	}
	return s
}

func TestUnusedSlot(t *testing.T) {
	for _, tc := range []struct {
		armed []Slot
		slot  Slot
		ok    bool
	}{
		{nil, First, true},
		{[]Slot{First}, Second, true},
		{[]Slot{First, Third}, Second, true},
		{[]Slot{First, Second, Third}, Fourth, true},
		{[]Slot{Second, Third, Fourth}, First, true},
		{[]Slot{First, Second, Third, Fourth}, 0, false},
	} {
		slot, ok := UnusedSlot(armed(tc.armed...))
		if ok != tc.ok || (ok && slot != tc.slot) {
			t.Errorf("armed %v: got (%v, %v) expected (%v, %v)", tc.armed, slot, ok, tc.slot, tc.ok)
		}
	}
}

func TestUnusedSlotIgnoresGlobalEnable(t *testing.T) {
	// G0 set, L0 clear
	s := Snapshot{DR7: 1 << 1}
	slot, ok := UnusedSlot(s)
	if !ok || slot != First {
		t.Fatalf("got (%v, %v)", slot, ok)
	}
	if !DR7(s.DR7).GlobalEnabled(First) {
		t.Fatal("global enable not reported")
	}
}

func TestSetUnused(t *testing.T) {
	s := armed(First, Third)
	drs := s.DebugRegisters()
	bp, err := drs.SetUnused(New(Fourth).WithAddress(0x8000).WithCondition(ReadWrite).WithSize(Eight).WithEnabled(true))
	if err != nil {
		t.Fatal(err)
	}
	if bp.Slot != Second || drs.Breakpoint(Second) != bp {
		t.Fatalf("breakpoint stored as %v, slot 2 is %v", bp, drs.Breakpoint(Second))
	}
	if _, err := drs.SetUnused(New(First).WithEnabled(true)); err != nil {
		t.Fatal(err)
	}
	before := drs.Snapshot()
	if _, err := drs.SetUnused(New(First).WithEnabled(true)); !errors.Is(err, ErrExhausted) {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
	if drs.Snapshot() != before {
		t.Fatal("exhausted SetUnused modified registers")
	}
}

func TestBreakpointByStatus(t *testing.T) {
	s := armed(First, Second, Third, Fourth)

	bp, ok := BreakpointByStatus(s, 0b0100)
	if !ok || bp != Decode(s, Third) {
		t.Fatalf("DR6 0b0100: got (%v, %v)", bp, ok)
	}

	bp, ok = BreakpointByStatus(s, 0xffff0ff0|0b1010)
	if !ok || bp.Slot != Second {
		t.Fatalf("DR6 0b1010: got (%v, %v)", bp, ok)
	}

	if bp, ok := BreakpointByStatus(s, 0xffff4ff0); ok {
		t.Fatalf("single step DR6 resolved to %v", bp)
	}
}

func TestBreakpointByStatusUsesParameter(t *testing.T) {
	s := armed(First, Second)
	s.DR6 = 0b0001
	bp, ok := BreakpointByStatus(s, 0b0010)
	if !ok || bp.Slot != Second {
		t.Fatalf("got (%v, %v)", bp, ok)
	}
}

func TestBreakpoints(t *testing.T) {
	s := armed(Second, Fourth)
	bps := Breakpoints(s)
	for i, bp := range bps {
		if bp.Slot != Slot(i) {
			t.Errorf("breakpoint %d has slot %v", i, bp.Slot)
		}
		if expected := i == 1 || i == 3; bp.Enabled != expected {
			t.Errorf("breakpoint %d enabled %v", i, bp.Enabled)
		}
	}
}

func TestBreakpointsByAddress(t *testing.T) {
	var s Snapshot
	s, _ = Encode(New(First).WithAddress(0x1000).WithSize(Eight).WithCondition(Write).WithEnabled(true), s)
	s, _ = Encode(New(Second).WithAddress(0x1004).WithSize(Four).WithCondition(Write), s)
	s, _ = Encode(New(Third).WithAddress(0x2000).WithSize(One), s)
	s, _ = Encode(New(Fourth).WithAddress(0x3000).WithSize(One), s)

	for _, tc := range []struct {
		addr  uint64
		slots []Slot
	}{
		{0x0fff, nil},
		{0x1000, []Slot{First}},
		{0x1005, []Slot{First, Second}},
		{0x1007, []Slot{First, Second}},
		{0x1008, nil},
		{0x2000, []Slot{Third}},
		{0x2001, nil},
	} {
		bps := s.DebugRegisters().BreakpointsByAddress(tc.addr)
		if len(bps) != len(tc.slots) {
			t.Errorf("%#x: got %v expected slots %v", tc.addr, bps, tc.slots)
			continue
		}
		for i := range bps {
			if bps[i].Slot != tc.slots[i] {
				t.Errorf("%#x: got %v expected slots %v", tc.addr, bps, tc.slots)
			}
		}
	}
}

func TestClearBreakpoint(t *testing.T) {
	s := Snapshot{
		Addr: [NumSlots]uint64{1, 2, 3, 4},
		DR6:  0xffff0ff3,
		DR7:  0xffffffffffffffff,
	}
	drs := s.DebugRegisters()
	if err := drs.ClearBreakpoint(Second); err != nil {
		t.Fatal(err)
	}
	if !drs.Dirty {
		t.Fatal("expected dirty registers")
	}
	if s.Addr != [NumSlots]uint64{1, 0, 3, 4} {
		t.Fatalf("address registers: %v", s.Addr)
	}
	// L1, G1 and R/W1, LEN1 are zeroed
	if s.DR7 != 0xffffffffff0ffff3 {
		t.Fatalf("DR7 = %#x", s.DR7)
	}
	if s.DR6 != 0xffff0ff3 {
		t.Fatalf("DR6 modified: %#x", s.DR6)
	}
	if slot, ok := UnusedSlot(s); !ok || slot != Second {
		t.Fatalf("unused slot %v %v", slot, ok)
	}

	drs = s.DebugRegisters()
	if err := drs.ClearBreakpoint(Second); err != nil || drs.Dirty {
		t.Fatalf("clearing twice: dirty %v err %v", drs.Dirty, err)
	}
	if err := drs.ClearBreakpoint(Slot(4)); !errors.Is(err, ErrInvalidSlot) {
		t.Fatalf("expected ErrInvalidSlot, got %v", err)
	}
}

func TestClearAll(t *testing.T) {
	s := Snapshot{
		Addr: [NumSlots]uint64{1, 2, 3, 4},
		DR6:  0xffff0ff3,
		DR7:  0xffffffffffffffff,
	}
	drs := s.DebugRegisters()
	drs.ClearAll()
	if !drs.Dirty {
		t.Fatal("expected dirty registers")
	}
	if s.Addr != [NumSlots]uint64{} {
		t.Fatalf("address registers not cleared: %v", s.Addr)
	}
	if s.DR7 != 0xffffffff0000ff00 {
		t.Fatalf("DR7 = %#x", s.DR7)
	}
	if s.DR6 != 0xffff0ff3 {
		t.Fatalf("DR6 modified: %#x", s.DR6)
	}
	if _, ok := UnusedSlot(s); !ok {
		t.Fatal("no unused slot after ClearAll")
	}
}
