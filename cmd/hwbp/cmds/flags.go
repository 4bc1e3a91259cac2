package cmds

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/hwbp-go/hwbp/pkg/config"
	"github.com/hwbp-go/hwbp/pkg/hwbp"
)

// registerValue is a 64 bit register value accepted in any base
// understood by strconv (0x1000, 4096, 0o10000).
type registerValue uint64

func (v *registerValue) String() string { return fmt.Sprintf("%#x", uint64(*v)) }

func (v *registerValue) Set(s string) error {
	n, err := config.ParseRegister(s)
	if err != nil {
		return err
	}
	*v = registerValue(n)
	return nil
}

func (v *registerValue) Type() string { return "register" }

// sizeValue is a breakpoint length in bytes.
type sizeValue hwbp.Size

func (v *sizeValue) String() string { return fmt.Sprint(hwbp.Size(*v).Bytes()) }

func (v *sizeValue) Set(s string) error {
	var n int
	if _, err := fmt.Sscan(s, &n); err != nil {
		return fmt.Errorf("invalid size %q", s)
	}
	sz, ok := hwbp.SizeFromBytes(n)
	if !ok {
		return fmt.Errorf("invalid size %q, must be 1, 2, 4 or 8", s)
	}
	*v = sizeValue(sz)
	return nil
}

func (v *sizeValue) Type() string { return "bytes" }

// conditionValue is a breakpoint condition.
type conditionValue hwbp.Condition

func (v *conditionValue) String() string { return hwbp.Condition(*v).String() }

func (v *conditionValue) Set(s string) error {
	c, err := hwbp.ParseCondition(s)
	if err != nil {
		return err
	}
	*v = conditionValue(c)
	return nil
}

func (v *conditionValue) Type() string { return "condition" }

// registerFlags holds the debug register values given on the command line.
type registerFlags struct {
	addr     [hwbp.NumSlots]registerValue
	dr6, dr7 registerValue
	snapshot string
	output   string
}

func (rf *registerFlags) register(fs *pflag.FlagSet) {
	*rf = registerFlags{}
	for i := range rf.addr {
		fs.Var(&rf.addr[i], fmt.Sprintf("dr%d", i), fmt.Sprintf("Value of DR%d.", i))
	}
	fs.Var(&rf.dr6, "dr6", "Value of DR6.")
	fs.Var(&rf.dr7, "dr7", "Value of DR7.")
	fs.StringVar(&rf.snapshot, "snapshot", "", "Read the debug registers from a YAML file. Register flags override its values.")
	fs.StringVarP(&rf.output, "output", "o", "", "Write the resulting debug registers to a YAML file.")
}

// load returns the registers selected by the snapshot file and the
// register flags that were explicitly set.
func (rf *registerFlags) load(fs *pflag.FlagSet) (hwbp.Snapshot, error) {
	var s hwbp.Snapshot
	if rf.snapshot != "" {
		var err error
		s, err = config.LoadSnapshot(rf.snapshot)
		if err != nil {
			return s, err
		}
	}
	for i := range rf.addr {
		if fs.Changed(fmt.Sprintf("dr%d", i)) {
			s.Addr[i] = uint64(rf.addr[i])
		}
	}
	if fs.Changed("dr6") {
		s.DR6 = uint64(rf.dr6)
	}
	if fs.Changed("dr7") {
		s.DR7 = uint64(rf.dr7)
	}
	return s, nil
}

// save writes s to the output file, if one was requested.
func (rf *registerFlags) save(s hwbp.Snapshot) error {
	if rf.output == "" {
		return nil
	}
	return config.SaveSnapshot(rf.output, s)
}
