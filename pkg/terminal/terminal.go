package terminal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-delve/liner"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"

	"github.com/hwbp-go/hwbp/pkg/config"
	"github.com/hwbp-go/hwbp/pkg/logflags"
	"github.com/hwbp-go/hwbp/pkg/native"
)

const historyFile string = ".hwbp_history"

// ErrExit is returned by the exit command.
var ErrExit = errors.New("exit requested")

// Term is an interactive workbench over the debug registers of one thread.
type Term struct {
	thread native.Thread
	conf   *config.Config
	prompt string
	line   *liner.State
	cmds   *Commands
	stdout io.Writer
	colors bool
}

// New returns a new Term operating on thread. If stdout is nil the
// terminal writes to standard output, through a colorable writer when
// colors are enabled.
func New(thread native.Thread, conf *config.Config, stdout io.Writer) *Term {
	if conf == nil {
		conf = &config.Config{}
	}
	cmds := DebugCommands()
	if conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}

	colors := UseColors(conf)
	if stdout == nil {
		if colors {
			stdout = colorable.NewColorableStdout()
		} else {
			stdout = os.Stdout
		}
	}

	prompt := conf.Prompt
	if prompt == "" {
		prompt = "(hwbp) "
	}

	return &Term{
		thread: thread,
		conf:   conf,
		prompt: prompt,
		cmds:   cmds,
		stdout: stdout,
		colors: colors,
	}
}

// UseColors returns the color setting of conf, defaulting to whether
// standard output is a terminal.
func UseColors(conf *config.Config) bool {
	if conf != nil && conf.Color != nil {
		return *conf.Color
	}
	if strings.ToLower(os.Getenv("TERM")) == "dumb" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	if t.line != nil {
		t.line.Close()
		t.line = nil
	}
}

// Exec runs one command line.
func (t *Term) Exec(cmdstr string) error {
	if logflags.REPL() {
		logflags.REPLLogger().Debugf("exec %q", cmdstr)
	}
	return t.cmds.Call(cmdstr, t)
}

// Run reads and executes commands until exit or end of input.
func (t *Term) Run() (int, error) {
	t.line = liner.NewLiner()
	defer t.Close()

	t.line.SetCtrlCAborts(true)
	t.line.SetCompleter(func(line string) []string {
		return t.cmds.Complete(strings.ToLower(line))
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err == nil {
		if f, err := os.Open(fullHistoryFile); err == nil {
			t.line.ReadHistory(f)
			f.Close()
		}
	}
	fmt.Fprintln(t.stdout, "Type 'help' for list of commands.")

	defer func() {
		if f, err := os.Create(fullHistoryFile); err == nil {
			t.line.WriteHistory(f)
			f.Close()
		}
	}()

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == liner.ErrPromptAborted {
				continue
			}
			if err == io.EOF {
				fmt.Fprintln(t.stdout, "exit")
				return 0, nil
			}
			return 1, fmt.Errorf("prompt for input failed: %v", err)
		}

		if err := t.Exec(cmdstr); err != nil {
			if err == ErrExit {
				return 0, nil
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}

	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}

	return l, nil
}
