package native

import (
	"runtime"
	"syscall"
	"unsafe"

	sys "golang.org/x/sys/unix"

	"github.com/hwbp-go/hwbp/pkg/hwbp"
	"github.com/hwbp-go/hwbp/pkg/logflags"
)

const debugRegUserOffset = 848 // offset of debug registers in the user struct, see source/arch/x86/kernel/ptrace.c

// PtraceThread accesses the debug registers of a thread traced by the
// calling OS thread through PTRACE_PEEKUSR and PTRACE_POKEUSR.
//
// Ptrace requests are only accepted from the tracer thread: the goroutine
// using a PtraceThread must stay locked to the OS thread that attached.
type PtraceThread struct {
	ID       int
	attached bool
}

// NewPtraceThread returns a PtraceThread for a thread already traced by
// the current OS thread.
func NewPtraceThread(tid int) *PtraceThread {
	return &PtraceThread{ID: tid}
}

// Attach locks the calling goroutine to its OS thread, attaches to thread
// tid and waits for it to stop. Detach undoes both.
func Attach(tid int) (*PtraceThread, error) {
	runtime.LockOSThread()
	if err := sys.PtraceAttach(tid); err != nil {
		runtime.UnlockOSThread()
		return nil, &AccessError{Op: "attach", TID: tid, Err: err}
	}
	var status sys.WaitStatus
	if _, err := sys.Wait4(tid, &status, sys.WALL, nil); err != nil {
		sys.PtraceDetach(tid)
		runtime.UnlockOSThread()
		return nil, &AccessError{Op: "attach", TID: tid, Err: err}
	}
	logflags.NativeLogger().Debugf("attached to thread %d (status %#x)", tid, uint32(status))
	return &PtraceThread{ID: tid, attached: true}, nil
}

// Detach resumes the thread if it was attached by Attach.
func (t *PtraceThread) Detach() error {
	if !t.attached {
		return nil
	}
	t.attached = false
	defer runtime.UnlockOSThread()
	if err := sys.PtraceDetach(t.ID); err != nil {
		return &AccessError{Op: "detach", TID: t.ID, Err: err}
	}
	return nil
}

func (t *PtraceThread) WithDebugRegisters(f func(*hwbp.DebugRegisters) error) error {
	debugregs := make([]uint64, 8)

	for i := range debugregs {
		if i == 4 || i == 5 {
			// Linux will return EIO for DR4 and DR5
			continue
		}
		_, _, errno := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_PEEKUSR, uintptr(t.ID), uintptr(debugRegUserOffset+uintptr(i)*unsafe.Sizeof(debugregs[0])), uintptr(unsafe.Pointer(&debugregs[i])), 0, 0)
		if errno != syscall.Errno(0) {
			return &AccessError{Op: "fetch", TID: t.ID, Err: errno}
		}
	}

	drs := hwbp.NewDebugRegisters(&debugregs[0], &debugregs[1], &debugregs[2], &debugregs[3], &debugregs[6], &debugregs[7])
	logflags.NativeLogger().Debugf("fetched debug registers of %d: DR6 %#x DR7 %#x", t.ID, debugregs[6], debugregs[7])

	if err := f(drs); err != nil {
		return err
	}
	if !drs.Dirty {
		return nil
	}

	// DR7 goes last: the kernel validates it against the address registers
	// already installed.
	for _, i := range []int{0, 1, 2, 3, 6, 7} {
		_, _, errno := sys.Syscall6(sys.SYS_PTRACE, sys.PTRACE_POKEUSR, uintptr(t.ID), uintptr(debugRegUserOffset+uintptr(i)*unsafe.Sizeof(debugregs[0])), uintptr(debugregs[i]), 0, 0)
		if errno != syscall.Errno(0) {
			return &AccessError{Op: "apply", TID: t.ID, Err: errno}
		}
	}
	logflags.NativeLogger().Debugf("applied debug registers of %d: DR6 %#x DR7 %#x", t.ID, debugregs[6], debugregs[7])
	return nil
}

// Open attaches to thread tid. The returned function detaches.
func Open(tid int) (Thread, func() error, error) {
	t, err := Attach(tid)
	if err != nil {
		return nil, nil, err
	}
	return t, t.Detach, nil
}
