package native

import "github.com/hwbp-go/hwbp/pkg/hwbp"

// Memory is a Thread backed by a snapshot held in memory. FetchErr and
// ApplyErr, when set, make the corresponding step fail the way a real
// provider would.
type Memory struct {
	Snapshot hwbp.Snapshot
	FetchErr error
	ApplyErr error
	// Applies counts the number of times the snapshot was committed.
	Applies int
}

func (m *Memory) WithDebugRegisters(f func(*hwbp.DebugRegisters) error) error {
	if m.FetchErr != nil {
		return &AccessError{Op: "fetch", Err: m.FetchErr}
	}
	s := m.Snapshot
	drs := s.DebugRegisters()
	if err := f(drs); err != nil {
		return err
	}
	if !drs.Dirty {
		return nil
	}
	if m.ApplyErr != nil {
		return &AccessError{Op: "apply", Err: m.ApplyErr}
	}
	m.Snapshot = s
	m.Applies++
	return nil
}
