// Package cmds implements the hwbp command line.
package cmds

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"

	"github.com/hwbp-go/hwbp/pkg/config"
	"github.com/hwbp-go/hwbp/pkg/hwbp"
	"github.com/hwbp-go/hwbp/pkg/insn"
	"github.com/hwbp-go/hwbp/pkg/logflags"
	"github.com/hwbp-go/hwbp/pkg/native"
	"github.com/hwbp-go/hwbp/pkg/terminal"
	"github.com/hwbp-go/hwbp/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configFile overrides the default configuration file.
	configFile string

	regs registerFlags

	// flags of individual commands
	slot     int
	addr     registerValue
	size     sizeValue
	cond     conditionValue
	disable  bool
	checkBp  bool
	trapDR6  registerValue
	tid      int
	codeHex  string
	codeBase registerValue
	bits     int
	verbose  bool

	conf   *config.Config
	stdout io.Writer
)

const hwbpCommandLongDesc = `hwbp reads and writes the x86 debug registers that drive hardware breakpoints.

Register values are given with --dr0..--dr3, --dr6 and --dr7, or read from a
YAML snapshot with --snapshot. The decode, encode, status and clear-status
commands work on those values without touching any thread. The thread
commands read and write the debug registers of a live thread.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand := &cobra.Command{
		Use:   "hwbp",
		Short: "hwbp is a tool for x86 hardware breakpoints.",
		Long:  hwbpCommandLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := logflags.Setup(log, logOutput, logDest); err != nil {
				return err
			}
			if configFile != "" {
				var err error
				conf, err = config.LoadConfigFrom(configFile)
				if err != nil {
					return err
				}
			} else {
				conf = config.LoadConfig()
			}
			stdout = cmd.OutOrStdout()
			if f, ok := stdout.(*os.File); ok && f == os.Stdout && terminal.UseColors(conf) {
				stdout = colorable.NewColorableStdout()
			}
			if logflags.CLI() {
				logflags.CLILogger().Debugf("running %s %q", cmd.CommandPath(), args)
			}
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			logflags.Close()
		},
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'hwbp help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'hwbp help log').")
	rootCommand.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file, defaults to $HOME/.hwbp/config.yml.")
	regs.register(rootCommand.PersistentFlags())

	slot, addr, size, cond = 0, 0, sizeValue(hwbp.One), conditionValue(hwbp.ReadWrite)
	disable, checkBp, trapDR6 = false, false, 0
	tid, codeHex, codeBase, bits, verbose = 0, "", 0, 0, false

	// 'decode' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "decode",
		Short: "Prints the four hardware breakpoints.",
		Long: `Prints the four hardware breakpoints encoded in the debug registers.

Slots whose status bit is set in DR6 are marked as triggered.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := regs.load(cmd.Flags())
			if err != nil {
				return err
			}
			printer().Breakpoints(stdout, s)
			return nil
		},
	})

	// 'encode' subcommand.
	encodeCommand := &cobra.Command{
		Use:   "encode",
		Short: "Stores a hardware breakpoint into the debug registers.",
		Long: `Stores a hardware breakpoint into the debug registers and prints the result.

Only the address register and the DR7 fields of the selected slot change.
The breakpoint is not checked against the processor's rules unless --check
is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := regs.load(cmd.Flags())
			if err != nil {
				return err
			}
			bp, err := breakpointFromFlags()
			if err != nil {
				return err
			}
			if checkBp {
				if err := bp.Validate(); err != nil {
					return err
				}
			}
			s, err = hwbp.Encode(bp, s)
			if err != nil {
				return err
			}
			printer().Registers(stdout, s)
			return regs.save(s)
		},
	}
	addBreakpointFlags(encodeCommand)
	encodeCommand.Flags().BoolVar(&checkBp, "check", false, "Refuse breakpoints the processor would not honor.")
	rootCommand.AddCommand(encodeCommand)

	// 'unused' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "unused",
		Short: "Prints the first slot that is not enabled.",
		Long: `Prints the first slot that is not enabled.

Exits with status 1 if all four slots are in use.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := regs.load(cmd.Flags())
			if err != nil {
				return err
			}
			free, ok := hwbp.UnusedSlot(s)
			if !ok {
				return hwbp.ErrExhausted
			}
			fmt.Fprintf(stdout, "%d (%s)\n", uint8(free), free)
			return nil
		},
	})

	// 'status' subcommand.
	statusCommand := &cobra.Command{
		Use:   "status",
		Short: "Resolves the breakpoint that caused a trap.",
		Long: `Resolves the breakpoint that caused a trap from the status bits of DR6.

When more than one status bit is set the lowest slot wins. --trap-dr6 gives
the DR6 value captured at the trap, defaulting to --dr6.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := regs.load(cmd.Flags())
			if err != nil {
				return err
			}
			dr6 := s.DR6
			if cmd.Flags().Changed("trap-dr6") {
				dr6 = uint64(trapDR6)
			}
			bp, ok := hwbp.BreakpointByStatus(s, dr6)
			if !ok {
				fmt.Fprintf(stdout, "no breakpoint triggered (DR6 %#x)\n", dr6)
				return nil
			}
			fmt.Fprintln(stdout, printer().Breakpoint(bp, true))
			return nil
		},
	}
	statusCommand.Flags().Var(&trapDR6, "trap-dr6", "DR6 value captured at the trap.")
	rootCommand.AddCommand(statusCommand)

	// 'clear-status' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "clear-status",
		Short: "Clears the status bits B0-B3 of DR6.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := regs.load(cmd.Flags())
			if err != nil {
				return err
			}
			s = hwbp.ClearStatus(s)
			printer().Registers(stdout, s)
			return regs.save(s)
		},
	})

	// 'clear' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Disables every hardware breakpoint and zeroes DR0-DR3.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := regs.load(cmd.Flags())
			if err != nil {
				return err
			}
			s.DebugRegisters().ClearAll()
			printer().Registers(stdout, s)
			return regs.save(s)
		},
	})

	// 'check-exec' subcommand.
	checkCommand := &cobra.Command{
		Use:   "check-exec",
		Short: "Checks that an execute breakpoint address starts an instruction.",
		Long: `Decodes the machine code given with --code, loaded at --base, and checks
that --addr is the address of the first byte of an instruction. An execute
breakpoint on any other address never triggers.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			code, err := hex.DecodeString(strings.Join(strings.Fields(codeHex), ""))
			if err != nil {
				return fmt.Errorf("invalid code bytes: %v", err)
			}
			if len(code) == 0 {
				return errors.New("you must provide the code with --code")
			}
			mode := bits
			if mode == 0 {
				mode = conf.GetBits()
			}
			bp := hwbp.New(hwbp.First).WithAddress(uint64(addr)).WithCondition(hwbp.Execute).WithEnabled(true)
			if err := insn.CheckBreakpoint(bp, code, uint64(codeBase), mode); err != nil {
				return err
			}
			for _, inst := range insn.Decode(code, uint64(codeBase), mode) {
				if inst.Addr == uint64(addr) {
					fmt.Fprintf(stdout, "%#x: %s\n", inst.Addr, inst.Text)
				}
			}
			return nil
		},
	}
	checkCommand.Flags().StringVar(&codeHex, "code", "", "Machine code as hex bytes.")
	checkCommand.Flags().Var(&codeBase, "base", "Address of the first byte of --code.")
	checkCommand.Flags().Var(&addr, "addr", "Breakpoint address.")
	checkCommand.Flags().IntVar(&bits, "bits", 0, "Processor mode, 32 or 64. Defaults to the configured mode.")
	rootCommand.AddCommand(checkCommand)

	rootCommand.AddCommand(threadCommand())

	// 'repl' subcommand.
	rootCommand.AddCommand(&cobra.Command{
		Use:   "repl",
		Short: "Starts an interactive terminal over the debug registers.",
		Long: `Starts an interactive terminal over an in-memory copy of the debug
registers, initialized from the register flags or --snapshot.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := regs.load(cmd.Flags())
			if err != nil {
				return err
			}
			term := terminal.New(&native.Memory{Snapshot: s}, conf, nil)
			status, err := term.Run()
			if err != nil {
				return err
			}
			if status != 0 {
				return fmt.Errorf("terminal exited with status %d", status)
			}
			return nil
		},
	})

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hwbp\n%s\n", version.HwbpVersion)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	native		Log every read and write of thread debug registers
	cli		Log command line invocations
	repl		Log commands executed by the interactive terminal

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.

`,
	})

	rootCommand.SilenceUsage = true
	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

func addBreakpointFlags(cmd *cobra.Command) {
	cmd.Flags().IntVar(&slot, "slot", 0, "Slot of the breakpoint, 0-3.")
	cmd.Flags().Var(&addr, "addr", "Address of the breakpoint.")
	cmd.Flags().Var(&size, "size", "Length of the watched range: 1, 2, 4 or 8.")
	cmd.Flags().Var(&cond, "cond", "Condition: execute (x), write (w) or readwrite (rw).")
	cmd.Flags().BoolVar(&disable, "disable", false, "Store the breakpoint disabled.")
}

func breakpointFromFlags() (hwbp.HardwareBreakpoint, error) {
	s, ok := hwbp.SlotFromIndex(slot)
	if !ok {
		return hwbp.HardwareBreakpoint{}, fmt.Errorf("invalid slot %d, must be 0-3", slot)
	}
	return hwbp.New(s).
		WithAddress(uint64(addr)).
		WithSize(hwbp.Size(size)).
		WithCondition(hwbp.Condition(cond)).
		WithEnabled(!disable), nil
}

func printer() *terminal.Printer {
	return &terminal.Printer{Colors: terminal.UseColors(conf), Width: conf.GetHexWidth()}
}

func threadCommand() *cobra.Command {
	threadCmd := &cobra.Command{
		Use:   "thread",
		Short: "Reads and writes the debug registers of a live thread.",
		Long: `Reads and writes the debug registers of a live thread.

On linux the thread is attached with ptrace for the duration of the command,
on windows it is suspended while its context is read and written.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Root().PersistentPreRunE(cmd, args); err != nil {
				return err
			}
			if tid <= 0 {
				return errors.New("you must provide a thread id with --tid")
			}
			return nil
		},
	}
	threadCmd.PersistentFlags().IntVar(&tid, "tid", 0, "Thread id.")

	withThread := func(fn func(t native.Thread) error) error {
		t, closer, err := native.Open(tid)
		if err != nil {
			return err
		}
		err = fn(t)
		if cerr := closer(); err == nil {
			err = cerr
		}
		return err
	}

	threadCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Prints the hardware breakpoints of the thread.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withThread(func(t native.Thread) error {
				var s hwbp.Snapshot
				err := t.WithDebugRegisters(func(drs *hwbp.DebugRegisters) error {
					s = drs.Snapshot()
					return nil
				})
				if err != nil {
					return err
				}
				printer().Breakpoints(stdout, s)
				return nil
			})
		},
	})

	setCommand := &cobra.Command{
		Use:   "set",
		Short: "Arms or disables a hardware breakpoint on the thread.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			bp, err := breakpointFromFlags()
			if err != nil {
				return err
			}
			if err := bp.Validate(); err != nil {
				return err
			}
			return withThread(func(t native.Thread) error {
				if disable {
					bp, err = native.Disable(t, bp)
				} else {
					bp, err = native.Enable(t, bp)
				}
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, printer().Breakpoint(bp, false))
				return nil
			})
		},
	}
	addBreakpointFlags(setCommand)
	threadCmd.AddCommand(setCommand)

	threadCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Disables every hardware breakpoint of the thread.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withThread(native.Clear)
		},
	})

	threadCmd.AddCommand(&cobra.Command{
		Use:   "trapped",
		Short: "Resolves and acknowledges the breakpoint that stopped the thread.",
		Long: `Captures DR6, clears its status bits and prints the breakpoint that
caused the last trap of the thread.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withThread(func(t native.Thread) error {
				bp, dr6, ok, err := native.Trapped(t)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintf(stdout, "no breakpoint triggered (DR6 %#x)\n", uint64(dr6))
					return nil
				}
				fmt.Fprintln(stdout, printer().Breakpoint(bp, true))
				return nil
			})
		},
	})

	return threadCmd
}
