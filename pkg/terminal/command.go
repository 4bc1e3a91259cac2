// Package terminal implements an interactive workbench over the debug
// registers of a thread.
package terminal

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"
	"github.com/derekparker/trie"

	"github.com/hwbp-go/hwbp/pkg/config"
	"github.com/hwbp-go/hwbp/pkg/hwbp"
	"github.com/hwbp-go/hwbp/pkg/insn"
	"github.com/hwbp-go/hwbp/pkg/native"
)

type cmdfunc func(t *Term, args []string) error

type command struct {
	aliases        []string
	builtinAliases []string
	group          commandGroup
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands of the interactive terminal.
type Commands struct {
	cmds  []command
	names *trie.Trie
}

// byFirstAlias will sort by the first
// alias of a command.
type byFirstAlias []command

func (a byFirstAlias) Len() int           { return len(a) }
func (a byFirstAlias) Swap(i, j int)      { a[i], a[j] = a[j], a[i] }
func (a byFirstAlias) Less(i, j int) bool { return a[i].aliases[0] < a[j].aliases[0] }

// DebugCommands returns a Commands struct with default commands defined.
func DebugCommands() *Commands {
	c := &Commands{}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"list", "ls"}, cmdFn: listBreakpoints, group: dataCmds, helpMsg: `Prints all four hardware breakpoints.

	list

Slots whose status bit is set in DR6 are marked TRIGGERED. A triggered slot
that is not enabled is a stale status bit left over from an earlier trap.`},
		{aliases: []string{"regs"}, cmdFn: regs, group: dataCmds, helpMsg: `Prints the raw debug registers.

	regs`},
		{aliases: []string{"set"}, cmdFn: setBreakpoint, group: breakCmds, helpMsg: `Arms a hardware breakpoint.

	set <slot> <address> [size] [condition]

Slot is 0-3 or first, second, third, fourth. Size is 1, 2, 4 or 8 bytes
(default 1). Condition is execute (x), write (w) or readwrite (rw), the
default is readwrite. A breakpoint that the processor would not honor is
set anyway, with a warning.`},
		{aliases: []string{"add"}, cmdFn: addBreakpoint, group: breakCmds, helpMsg: `Arms a hardware breakpoint in the first unused slot.

	add <address> [size] [condition]`},
		{aliases: []string{"disable"}, cmdFn: disableBreakpoint, group: breakCmds, helpMsg: `Disables a hardware breakpoint, keeping its address and condition.

	disable <slot>`},
		{aliases: []string{"unused"}, cmdFn: unused, group: breakCmds, helpMsg: `Prints the first unused slot.

	unused`},
		{aliases: []string{"status"}, cmdFn: status, group: statusCmds, helpMsg: `Resolves the breakpoint that caused a trap.

	status [dr6]

Without an argument the current value of DR6 is used. DR6 is not modified.`},
		{aliases: []string{"trap"}, cmdFn: trap, group: statusCmds, helpMsg: `Simulates a trap by setting the status bit of a slot in DR6.

	trap <slot>

Only available on in-memory snapshots.`},
		{aliases: []string{"trapped"}, cmdFn: trapped, group: statusCmds, helpMsg: `Captures DR6, clears its status bits and resolves the triggered breakpoint.

	trapped`},
		{aliases: []string{"clearstatus"}, cmdFn: clearStatus, group: statusCmds, helpMsg: `Clears the status bits B0-B3 of DR6.

	clearstatus`},
		{aliases: []string{"clear"}, cmdFn: clearAll, group: breakCmds, helpMsg: `Clears hardware breakpoints.

	clear [<slot>]

Without arguments every breakpoint is disabled and DR0-DR3 are zeroed.
With a slot only that breakpoint is cleared: its address register, both
enable bits, its condition and its size.`},
		{aliases: []string{"at"}, cmdFn: at, group: dataCmds, helpMsg: `Prints the breakpoints whose range covers an address, enabled or not.

	at <address>`},
		{aliases: []string{"check"}, cmdFn: check, group: dataCmds, helpMsg: `Checks that an address is the first byte of an instruction.

	check <address> <base> <hex bytes>

The hex bytes are the code starting at base, decoded in the processor mode
set by the "bits" configuration option.`},
		{aliases: []string{"load"}, cmdFn: load, helpMsg: `Replaces the in-memory snapshot with the contents of a YAML file.

	load <file>`},
		{aliases: []string{"save"}, cmdFn: save, helpMsg: `Writes the debug registers to a YAML file.

	save <file>`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: `Exit the terminal.

	exit`},
	}

	sort.Sort(byFirstAlias(c.cmds))
	c.buildTrie()
	return c
}

func (c *Commands) buildTrie() {
	c.names = trie.New()
	for i := range c.cmds {
		for _, alias := range c.cmds[i].aliases {
			c.names.Add(alias, i)
		}
	}
}

// Complete returns the command names and aliases starting with prefix.
func (c *Commands) Complete(prefix string) []string {
	if strings.ContainsAny(prefix, " \t") {
		return nil
	}
	r := c.names.PrefixSearch(prefix)
	sort.Strings(r)
	return r
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}
	return noCmdAvailable
}

// Call takes a command line and executes it.
func (c *Commands) Call(cmdstr string, t *Term) error {
	cmdstr = strings.TrimSpace(cmdstr)
	if cmdstr == "" {
		return nil
	}
	v, err := argv.Argv(cmdstr,
		func(s string) (string, error) {
			return "", fmt.Errorf("backtick not supported in '%s'", s)
		},
		nil)
	if err != nil {
		return err
	}
	if len(v) != 1 {
		return fmt.Errorf("illegal command line '%s'", cmdstr)
	}
	if len(v[0]) == 0 {
		return nil
	}
	return c.Find(v[0][0])(t, v[0][1:])
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
	c.buildTrie()
}

var errNoCmd = errors.New("command not available")

func noCmdAvailable(t *Term, args []string) error {
	return errNoCmd
}

func exitCommand(t *Term, args []string) error {
	return ErrExit
}

func (c *Commands) help(t *Term, args []string) error {
	if len(args) > 0 {
		for _, cmd := range c.cmds {
			if cmd.match(args[0]) {
				fmt.Fprintln(t.stdout, cmd.helpMsg)
				return nil
			}
		}
		return errNoCmd
	}

	fmt.Fprintln(t.stdout, "The following commands are available:")
	for _, cgd := range commandGroupDescriptions {
		fmt.Fprintf(t.stdout, "\n%s:\n", cgd.description)
		w := new(tabwriter.Writer)
		w.Init(t.stdout, 0, 8, 0, '-', 0)
		for _, cmd := range c.cmds {
			if cmd.group != cgd.group {
				continue
			}
			h := cmd.helpMsg
			if idx := strings.Index(h, "\n"); idx >= 0 {
				h = h[:idx]
			}
			if len(cmd.aliases) > 1 {
				fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
			} else {
				fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
			}
		}
		if err := w.Flush(); err != nil {
			return err
		}
	}
	fmt.Fprintln(t.stdout)
	fmt.Fprintln(t.stdout, "Type help followed by a command for full documentation.")
	return nil
}

func (t *Term) printer() *Printer {
	return &Printer{Colors: t.colors, Width: t.conf.GetHexWidth()}
}

func (t *Term) snapshot() (hwbp.Snapshot, error) {
	var s hwbp.Snapshot
	err := t.thread.WithDebugRegisters(func(drs *hwbp.DebugRegisters) error {
		s = drs.Snapshot()
		return nil
	})
	return s, err
}

func (t *Term) memory() (*native.Memory, error) {
	m, ok := t.thread.(*native.Memory)
	if !ok {
		return nil, errors.New("only available on in-memory snapshots")
	}
	return m, nil
}

func parseSlot(s string) (hwbp.Slot, error) {
	for _, slot := range hwbp.Slots {
		if s == slot.String() {
			return slot, nil
		}
	}
	n, err := strconv.Atoi(s)
	if err == nil {
		if slot, ok := hwbp.SlotFromIndex(n); ok {
			return slot, nil
		}
	}
	return 0, fmt.Errorf("invalid slot %q, must be 0-3", s)
}

func parseAddress(s string) (uint64, error) {
	v, err := config.ParseRegister(s)
	if err != nil {
		return 0, fmt.Errorf("invalid address %q", s)
	}
	return v, nil
}

func parseSize(s string) (hwbp.Size, error) {
	n, err := strconv.Atoi(s)
	if err == nil {
		if sz, ok := hwbp.SizeFromBytes(n); ok {
			return sz, nil
		}
	}
	return 0, fmt.Errorf("invalid size %q, must be 1, 2, 4 or 8", s)
}

// parseBreakpoint parses "<address> [size] [condition]".
func parseBreakpoint(args []string) (hwbp.HardwareBreakpoint, error) {
	bp := hwbp.New(hwbp.First)
	if len(args) < 1 || len(args) > 3 {
		return bp, errors.New("wrong number of arguments")
	}
	var err error
	bp.Address, err = parseAddress(args[0])
	if err != nil {
		return bp, err
	}
	if len(args) > 1 {
		bp.Size, err = parseSize(args[1])
		if err != nil {
			return bp, err
		}
	}
	if len(args) > 2 {
		bp.Condition, err = hwbp.ParseCondition(args[2])
		if err != nil {
			return bp, err
		}
	}
	return bp, nil
}

func listBreakpoints(t *Term, args []string) error {
	s, err := t.snapshot()
	if err != nil {
		return err
	}
	t.printer().Breakpoints(t.stdout, s)
	return nil
}

func regs(t *Term, args []string) error {
	s, err := t.snapshot()
	if err != nil {
		return err
	}
	t.printer().Registers(t.stdout, s)
	return nil
}

func (t *Term) enable(bp hwbp.HardwareBreakpoint) error {
	if err := bp.WithEnabled(true).Validate(); err != nil {
		fmt.Fprintf(t.stdout, "warning: %v\n", err)
	} else if bp.Size == hwbp.Eight && t.conf.GetBits() != 64 {
		fmt.Fprintln(t.stdout, "warning: 8 byte breakpoints require 64-bit mode")
	}
	bp, err := native.Enable(t.thread, bp)
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, t.printer().Breakpoint(bp, false))
	return nil
}

func setBreakpoint(t *Term, args []string) error {
	if len(args) < 2 {
		return errors.New("not enough arguments")
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	bp, err := parseBreakpoint(args[1:])
	if err != nil {
		return err
	}
	return t.enable(bp.WithSlot(slot))
}

func addBreakpoint(t *Term, args []string) error {
	bp, err := parseBreakpoint(args)
	if err != nil {
		return err
	}
	free, ok, err := native.Unused(t.thread)
	if err != nil {
		return err
	}
	if !ok {
		return hwbp.ErrExhausted
	}
	return t.enable(bp.WithSlot(free.Slot))
}

func disableBreakpoint(t *Term, args []string) error {
	if len(args) != 1 {
		return errors.New("wrong number of arguments")
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	s, err := t.snapshot()
	if err != nil {
		return err
	}
	bp, err := native.Disable(t.thread, hwbp.Decode(s, slot))
	if err != nil {
		return err
	}
	fmt.Fprintln(t.stdout, t.printer().Breakpoint(bp, false))
	return nil
}

func unused(t *Term, args []string) error {
	bp, ok, err := native.Unused(t.thread)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintln(t.stdout, "all hardware breakpoints in use")
		return nil
	}
	fmt.Fprintf(t.stdout, "%d (%s)\n", uint8(bp.Slot), bp.Slot)
	return nil
}

func status(t *Term, args []string) error {
	s, err := t.snapshot()
	if err != nil {
		return err
	}
	dr6 := s.DR6
	if len(args) > 0 {
		dr6, err = config.ParseRegister(args[0])
		if err != nil {
			return fmt.Errorf("invalid DR6 value %q", args[0])
		}
	}
	bp, ok := hwbp.BreakpointByStatus(s, dr6)
	if !ok {
		fmt.Fprintf(t.stdout, "no breakpoint triggered (DR6 %#x)\n", dr6)
		return nil
	}
	fmt.Fprintln(t.stdout, t.printer().Breakpoint(bp, true))
	return nil
}

func trap(t *Term, args []string) error {
	if len(args) != 1 {
		return errors.New("wrong number of arguments")
	}
	m, err := t.memory()
	if err != nil {
		return err
	}
	slot, err := parseSlot(args[0])
	if err != nil {
		return err
	}
	m.Snapshot.DR6 |= 1 << uint(slot)
	return nil
}

func trapped(t *Term, args []string) error {
	bp, dr6, ok, err := native.Trapped(t.thread)
	if err != nil {
		return err
	}
	if !ok {
		fmt.Fprintf(t.stdout, "no breakpoint triggered (DR6 %#x)\n", uint64(dr6))
		return nil
	}
	fmt.Fprintln(t.stdout, t.printer().Breakpoint(bp, true))
	return nil
}

func clearStatus(t *Term, args []string) error {
	return t.thread.WithDebugRegisters(func(drs *hwbp.DebugRegisters) error {
		drs.ClearStatus()
		return nil
	})
}

func clearAll(t *Term, args []string) error {
	switch len(args) {
	case 0:
		return native.Clear(t.thread)
	case 1:
		slot, err := parseSlot(args[0])
		if err != nil {
			return err
		}
		return native.ClearSlot(t.thread, slot)
	}
	return errors.New("wrong number of arguments")
}

func at(t *Term, args []string) error {
	if len(args) != 1 {
		return errors.New("wrong number of arguments")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	s, err := t.snapshot()
	if err != nil {
		return err
	}
	bps := s.DebugRegisters().BreakpointsByAddress(addr)
	if len(bps) == 0 {
		fmt.Fprintf(t.stdout, "no breakpoint covers %#x\n", addr)
		return nil
	}
	for _, bp := range bps {
		fmt.Fprintln(t.stdout, t.printer().Breakpoint(bp, hwbp.DR6(s.DR6).Triggered(bp.Slot)))
	}
	return nil
}

func check(t *Term, args []string) error {
	if len(args) < 3 {
		return errors.New("not enough arguments")
	}
	addr, err := parseAddress(args[0])
	if err != nil {
		return err
	}
	base, err := parseAddress(args[1])
	if err != nil {
		return err
	}
	code, err := hex.DecodeString(strings.Join(args[2:], ""))
	if err != nil {
		return fmt.Errorf("invalid code bytes: %v", err)
	}
	if err := insn.CheckBoundary(code, base, addr, t.conf.GetBits()); err != nil {
		return err
	}
	fmt.Fprintf(t.stdout, "%#x is an instruction boundary\n", addr)
	return nil
}

func load(t *Term, args []string) error {
	if len(args) != 1 {
		return errors.New("wrong number of arguments")
	}
	m, err := t.memory()
	if err != nil {
		return err
	}
	s, err := config.LoadSnapshot(args[0])
	if err != nil {
		return err
	}
	m.Snapshot = s
	return nil
}

func save(t *Term, args []string) error {
	if len(args) != 1 {
		return errors.New("wrong number of arguments")
	}
	s, err := t.snapshot()
	if err != nil {
		return err
	}
	return config.SaveSnapshot(args[0], s)
}
