//go:build !(linux && amd64) && !(windows && amd64)
// +build !linux !amd64
// +build !windows !amd64

package native

// Open always fails with ErrNotSupported.
func Open(tid int) (Thread, func() error, error) {
	return nil, nil, &AccessError{Op: "fetch", TID: tid, Err: ErrNotSupported}
}
