package cmds

import (
	"bytes"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hwbp-go/hwbp/pkg/config"
	"github.com/hwbp-go/hwbp/pkg/hwbp"
	"github.com/hwbp-go/hwbp/pkg/insn"
)

func runHwbp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	confPath := filepath.Join(t.TempDir(), "config.yml")
	if err := os.WriteFile(confPath, []byte("color: false\n"), 0644); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	root := New()
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(append([]string{"--config", confPath}, args...))
	err := root.Execute()
	return out.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := runHwbp(t, args...)
	if err != nil {
		t.Fatalf("hwbp %s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestDecode(t *testing.T) {
	out := mustRun(t, "decode", "--dr0", "0x1000", "--dr7", "0x1", "--dr6", "0x1")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != hwbp.NumSlots {
		t.Fatalf("expected %d lines, got %q", hwbp.NumSlots, out)
	}
	if !strings.HasPrefix(lines[0], "0 (first)") || !strings.Contains(lines[0], "0x0000000000001000") || !strings.Contains(lines[0], "enabled TRIGGERED") {
		t.Fatalf("unexpected first slot %q", lines[0])
	}
	for _, l := range lines[1:] {
		if !strings.Contains(l, "disabled") {
			t.Fatalf("unexpected slot %q", l)
		}
	}
}

func TestEncode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regs.yml")
	out := mustRun(t, "encode", "--slot", "1", "--addr", "0x2000", "--size", "4", "--cond", "w", "-o", path)
	for _, tgt := range []string{"DR1 = 0x0000000000002000", "DR7 = 0x0000000000d00004"} {
		if !strings.Contains(out, tgt) {
			t.Fatalf("output %q does not contain %q", out, tgt)
		}
	}

	s, err := config.LoadSnapshot(path)
	if err != nil {
		t.Fatal(err)
	}
	want := hwbp.HardwareBreakpoint{Slot: hwbp.Second, Address: 0x2000, Size: hwbp.Four, Condition: hwbp.Write, Enabled: true}
	if got := hwbp.Decode(s, hwbp.Second); got != want {
		t.Fatalf("got %v, want %v", got, want)
	}

	// flags override the snapshot file
	out = mustRun(t, "encode", "--snapshot", path, "--dr7", "0x300", "--slot", "0", "--addr", "0x10")
	if !strings.Contains(out, "DR1 = 0x0000000000002000") || !strings.Contains(out, "DR7 = 0x0000000000030301") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestEncodeErrors(t *testing.T) {
	_, err := runHwbp(t, "encode", "--slot", "1", "--addr", "0x2001", "--size", "4", "--check")
	var cerr *hwbp.ContractError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected a contract error, got %v", err)
	}
	if _, err := runHwbp(t, "encode", "--slot", "1", "--addr", "0x2001", "--size", "4"); err != nil {
		t.Fatalf("unchecked encode failed: %v", err)
	}
	if _, err := runHwbp(t, "encode", "--slot", "4"); err == nil {
		t.Fatal("invalid slot accepted")
	}
	if _, err := runHwbp(t, "encode", "--size", "3"); err == nil {
		t.Fatal("invalid size accepted")
	}
	if _, err := runHwbp(t, "encode", "--cond", "sideways"); err == nil {
		t.Fatal("invalid condition accepted")
	}
}

func TestUnused(t *testing.T) {
	if out := mustRun(t, "unused", "--dr7", "0x5"); out != "2 (third)\n" {
		t.Fatalf("unexpected output %q", out)
	}
	// global enable bits do not count as used
	if out := mustRun(t, "unused", "--dr7", "0xaa"); out != "0 (first)\n" {
		t.Fatalf("unexpected output %q", out)
	}
	if _, err := runHwbp(t, "unused", "--dr7", "0x55"); err != hwbp.ErrExhausted {
		t.Fatalf("expected ErrExhausted, got %v", err)
	}
}

func TestStatus(t *testing.T) {
	out := mustRun(t, "status", "--dr1", "0x10", "--dr7", "0x4", "--trap-dr6", "0xffff0ff6")
	if !strings.HasPrefix(out, "1 (second)") {
		t.Fatalf("unexpected output %q", out)
	}
	out = mustRun(t, "status", "--dr6", "0x8")
	if !strings.HasPrefix(out, "3 (fourth)") || !strings.Contains(out, "(stale)") {
		t.Fatalf("unexpected output %q", out)
	}
	out = mustRun(t, "status", "--dr6", "0x4000")
	if !strings.Contains(out, "no breakpoint triggered") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestClearStatus(t *testing.T) {
	out := mustRun(t, "clear-status", "--dr6", "0xffff0ff5")
	if !strings.Contains(out, "DR6 = 0x00000000ffff0ff0") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestClear(t *testing.T) {
	out := mustRun(t, "clear", "--dr0", "0x1000", "--dr7", "0xffffffffffffffff")
	if !strings.Contains(out, "DR0 = 0x0000000000000000") || !strings.Contains(out, "DR7 = 0xffffffff0000ff00") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestCheckExec(t *testing.T) {
	const code = "55 48 89 e5 b8 2a 00 00 00 5d c3"
	out := mustRun(t, "check-exec", "--code", code, "--base", "0x401000", "--addr", "0x401004")
	if !strings.HasPrefix(out, "0x401004: mov") {
		t.Fatalf("unexpected output %q", out)
	}
	_, err := runHwbp(t, "check-exec", "--code", code, "--base", "0x401000", "--addr", "0x401005")
	var nbe *insn.NotBoundaryError
	if !errors.As(err, &nbe) {
		t.Fatalf("expected NotBoundaryError, got %v", err)
	}
}

func TestThreadRequiresTid(t *testing.T) {
	_, err := runHwbp(t, "thread", "list")
	if err == nil || !strings.Contains(err.Error(), "--tid") {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestVersion(t *testing.T) {
	out := mustRun(t, "version")
	if !strings.HasPrefix(out, "hwbp\nVersion: ") {
		t.Fatalf("unexpected output %q", out)
	}
}
