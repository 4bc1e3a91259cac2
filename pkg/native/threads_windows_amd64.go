package native

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/hwbp-go/hwbp/pkg/hwbp"
	"github.com/hwbp-go/hwbp/pkg/logflags"
)

const (
	_CONTEXT_AMD64           = 0x100000
	_CONTEXT_DEBUG_REGISTERS = _CONTEXT_AMD64 | 0x10

	_THREAD_SUSPEND_RESUME = 0x0002
	_THREAD_GET_CONTEXT    = 0x0008
	_THREAD_SET_CONTEXT    = 0x0010
)

var (
	modkernel32 = windows.NewLazySystemDLL("kernel32.dll")

	procGetThreadContext = modkernel32.NewProc("GetThreadContext")
	procSetThreadContext = modkernel32.NewProc("SetThreadContext")
	procOpenThread       = modkernel32.NewProc("OpenThread")
	procSuspendThread    = modkernel32.NewProc("SuspendThread")
	procResumeThread     = modkernel32.NewProc("ResumeThread")
)

// amd64CONTEXT is the _CONTEXT structure of windows/amd64 up to the debug
// registers. The rest of the structure is not accessed.
type amd64CONTEXT struct {
	P1Home uint64
	P2Home uint64
	P3Home uint64
	P4Home uint64
	P5Home uint64
	P6Home uint64

	ContextFlags uint32
	MxCsr        uint32

	SegCs  uint16
	SegDs  uint16
	SegEs  uint16
	SegFs  uint16
	SegGs  uint16
	SegSs  uint16
	EFlags uint32

	Dr0 uint64
	Dr1 uint64
	Dr2 uint64
	Dr3 uint64
	Dr6 uint64
	Dr7 uint64

	rest [1112]byte
}

// newAMD64CONTEXT allocates a CONTEXT structure aligned to 16 bytes, as
// required by GetThreadContext.
func newAMD64CONTEXT() *amd64CONTEXT {
	var c *amd64CONTEXT
	buf := make([]byte, unsafe.Sizeof(*c)+15)
	return (*amd64CONTEXT)(unsafe.Pointer((uintptr(unsafe.Pointer(&buf[15]))) &^ 15))
}

// WinThread accesses the debug registers of a thread through
// GetThreadContext and SetThreadContext. Threads other than the calling
// one are suspended for the duration of WithDebugRegisters.
type WinThread struct {
	ID     uint32
	Handle windows.Handle
	own    bool
}

// CurrentThread returns the calling thread. The goroutine must be locked
// to its OS thread for the registers to stay meaningful.
func CurrentThread() *WinThread {
	return &WinThread{ID: windows.GetCurrentThreadId(), Handle: windows.CurrentThread()}
}

// OpenThread opens thread tid with the access rights needed to read and
// write its context.
func OpenThread(tid uint32) (*WinThread, error) {
	h, _, err := procOpenThread.Call(_THREAD_SUSPEND_RESUME|_THREAD_GET_CONTEXT|_THREAD_SET_CONTEXT, 0, uintptr(tid))
	if h == 0 {
		return nil, &AccessError{Op: "attach", TID: int(tid), Err: err}
	}
	return &WinThread{ID: tid, Handle: windows.Handle(h), own: true}, nil
}

// Close releases the handle opened by OpenThread.
func (t *WinThread) Close() error {
	if !t.own {
		return nil
	}
	t.own = false
	return windows.CloseHandle(t.Handle)
}

func (t *WinThread) current() bool {
	return t.ID == windows.GetCurrentThreadId()
}

func (t *WinThread) WithDebugRegisters(f func(*hwbp.DebugRegisters) error) error {
	if !t.current() {
		if r, _, err := procSuspendThread.Call(uintptr(t.Handle)); r == 0xffffffff {
			return &AccessError{Op: "fetch", TID: int(t.ID), Err: err}
		}
		defer procResumeThread.Call(uintptr(t.Handle))
	}

	context := newAMD64CONTEXT()
	context.ContextFlags = _CONTEXT_DEBUG_REGISTERS

	if r, _, err := procGetThreadContext.Call(uintptr(t.Handle), uintptr(unsafe.Pointer(context))); r == 0 {
		return &AccessError{Op: "fetch", TID: int(t.ID), Err: err}
	}

	drs := hwbp.NewDebugRegisters(&context.Dr0, &context.Dr1, &context.Dr2, &context.Dr3, &context.Dr6, &context.Dr7)
	logflags.NativeLogger().Debugf("fetched debug registers of %d: DR6 %#x DR7 %#x", t.ID, context.Dr6, context.Dr7)

	if err := f(drs); err != nil {
		return err
	}
	if !drs.Dirty {
		return nil
	}

	if r, _, err := procSetThreadContext.Call(uintptr(t.Handle), uintptr(unsafe.Pointer(context))); r == 0 {
		return &AccessError{Op: "apply", TID: int(t.ID), Err: err}
	}
	logflags.NativeLogger().Debugf("applied debug registers of %d: DR6 %#x DR7 %#x", t.ID, context.Dr6, context.Dr7)
	return nil
}

// Open opens thread tid. The returned function closes its handle.
func Open(tid int) (Thread, func() error, error) {
	t, err := OpenThread(uint32(tid))
	if err != nil {
		return nil, nil, err
	}
	return t, t.Close, nil
}
