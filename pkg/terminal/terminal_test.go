package terminal

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"github.com/hwbp-go/hwbp/pkg/config"
	"github.com/hwbp-go/hwbp/pkg/hwbp"
	"github.com/hwbp-go/hwbp/pkg/native"
)

func TestUseColors(t *testing.T) {
	on, off := true, false
	if !UseColors(&config.Config{Color: &on}) {
		t.Error("explicit color setting ignored")
	}
	if UseColors(&config.Config{Color: &off}) {
		t.Error("explicit color setting ignored")
	}

	old := os.Getenv("TERM")
	defer os.Setenv("TERM", old)
	os.Setenv("TERM", "dumb")
	if UseColors(&config.Config{}) {
		t.Error("colors enabled on a dumb terminal")
	}
}

func TestNewDefaults(t *testing.T) {
	off := false
	term := New(&native.Memory{}, &config.Config{Color: &off}, new(bytes.Buffer))
	if term.prompt != "(hwbp) " {
		t.Errorf("wrong default prompt %q", term.prompt)
	}
	term = New(&native.Memory{}, &config.Config{Color: &off, Prompt: "> "}, new(bytes.Buffer))
	if term.prompt != "> " {
		t.Errorf("configured prompt ignored: %q", term.prompt)
	}
}

func TestPrinterBreakpoint(t *testing.T) {
	p := &Printer{Width: 8}
	bp := hwbp.New(hwbp.Third).WithAddress(0x2000).WithSize(hwbp.Two).WithCondition(hwbp.Write)

	tests := []struct {
		bp        hwbp.HardwareBreakpoint
		triggered bool
		want      string
	}{
		{bp, false, "2 (third)  0x00002000 write     2 byte(s) disabled"},
		{bp.WithEnabled(true), false, "2 (third)  0x00002000 write     2 byte(s) enabled"},
		{bp.WithEnabled(true), true, "2 (third)  0x00002000 write     2 byte(s) enabled TRIGGERED"},
		{bp, true, "2 (third)  0x00002000 write     2 byte(s) disabled TRIGGERED (stale)"},
		{bp.WithCondition(hwbp.IOReadWrite), false, "2 (third)  0x00002000 io        2 byte(s) disabled [reserved condition]"},
	}
	for _, tc := range tests {
		if got := p.Breakpoint(tc.bp, tc.triggered); got != tc.want {
			t.Errorf("got %q, want %q", got, tc.want)
		}
	}
}

func TestPrinterColors(t *testing.T) {
	p := &Printer{Colors: true}
	got := p.Breakpoint(hwbp.New(hwbp.First).WithEnabled(true), true)
	if !strings.Contains(got, "\033[32menabled\033[0m") || !strings.Contains(got, "\033[31mTRIGGERED\033[0m") {
		t.Fatalf("missing escape codes in %q", got)
	}
}
