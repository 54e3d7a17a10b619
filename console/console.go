// Package console is a minimal host for the RCON plugin: a cobra command tree
// plus a cvar store, driven by a single goroutine that consumes a WorkQueue.
package console

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alexj212/rconkit"
	"github.com/alexj212/rconkit/cvar"
	"github.com/alexj212/rconkit/parser"
	"github.com/kballard/go-shellquote"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Console executes host commands. Execute must only be called on the host
// context, i.e. from work run by Queue.
type Console struct {
	AppName string
	Vars    *cvar.Store
	Queue   *rconkit.WorkQueue
	Audit   *LogManager
	DataDir string

	rootInit []func(*cobra.Command)
	log      *zap.SugaredLogger
	printer  *Printer

	outMu sync.Mutex
	out   io.Writer
}

// New creates a console with the built-in commands registered.
func New(appName string, vars *cvar.Store, queue *rconkit.WorkQueue, dataDir string, log *zap.SugaredLogger) *Console {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	c := &Console{
		AppName: appName,
		Vars:    vars,
		Queue:   queue,
		Audit:   NewLogManager(""),
		DataDir: dataDir,
		log:     log,
		printer: NewPrinter(os.Stdout),
		out:     os.Stdout,
	}
	c.AddCommands(AddBuiltinCmds(c))
	return c
}

// SetOutput redirects command output.
func (c *Console) SetOutput(w io.Writer) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	c.out = w
	c.printer = NewPrinter(w)
}

// Printer returns the styled writer for console output.
func (c *Console) Printer() *Printer {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	return c.printer
}

// AddCommands registers a command customizer function.
func (c *Console) AddCommands(cmds func(*cobra.Command)) {
	c.rootInit = append(c.rootInit, cmds)
}

// RootCmd builds a fresh root command with every registered subcommand.
func (c *Console) RootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "",
		Short:         c.AppName + " console",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	for _, init := range c.rootInit {
		init(rootCmd)
	}
	return rootCmd
}

// Execute runs every statement of input and returns the combined output.
// Statements are separated by newlines or ';'. $name references to cvars are
// expanded first. A statement naming a cvar reads it, or sets it when a value
// follows.
func (c *Console) Execute(input string) (string, error) {
	return c.execute(input, false)
}

// execute runs input. For rcon lines the words are taken from the RCON
// tokenizer as is, with no cvar expansion, so the command that runs is the one
// the allow-list checked.
func (c *Console) execute(input string, rcon bool) (string, error) {
	msg, err := parser.Parse(input)
	if err != nil {
		return "", fmt.Errorf("invalid command syntax: %w", err)
	}

	var output bytes.Buffer
	for _, stmt := range msg {
		if strings.HasPrefix(stmt.Raw, "#") {
			continue
		}

		var args []string
		if rcon {
			args = stmt.Tokens()
		} else {
			args, err = shellquote.Split(expandCvars(stmt.Raw, c.Vars))
			if err != nil {
				return output.String(), fmt.Errorf("invalid command syntax: %w", err)
			}
		}
		if len(args) == 0 || args[0] == "" {
			continue
		}

		if c.Vars.Has(args[0]) {
			output.WriteString(c.cvarCommand(args[0], args[1:]))
			continue
		}

		rootCmd := c.RootCmd()
		rootCmd.SetArgs(args)
		rootCmd.SetOut(&output)
		rootCmd.SetErr(&output)
		if err := rootCmd.Execute(); err != nil {
			return output.String(), err
		}
	}
	return output.String(), nil
}

func (c *Console) cvarCommand(name string, args []string) string {
	if len(args) == 0 {
		v, _ := c.Vars.Lookup(name)
		return fmt.Sprintf("%s = %q (default %q)\n", name, v.Value(), v.Default)
	}
	value := strings.Join(args, " ")
	c.Vars.Set(name, value)
	return fmt.Sprintf("%s = %q\n", name, value)
}

// ExecuteCommand runs a line handed over by the RCON dispatcher. When log is
// set, the command and its outcome go to the logger and the audit trail.
func (c *Console) ExecuteCommand(line string, log bool) {
	start := time.Now()
	output, err := c.execute(line, true)
	c.print(output, err)

	if !log {
		return
	}
	entry := AuditLog{
		Timestamp: start,
		Source:    "rcon",
		Command:   line,
		Output:    output,
		Duration:  time.Since(start),
		Success:   err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if logErr := c.Audit.Log(entry); logErr != nil {
		c.log.Warnw("audit write failed", "error", logErr)
	}
	c.log.Infow("executed rcon command", "command", line, "success", err == nil, "duration", entry.Duration)
}

// Submit queues a console line for execution on the host context.
func (c *Console) Submit(line string) error {
	return c.Queue.Submit(func() {
		output, err := c.Execute(line)
		c.print(output, err)
	})
}

// GenerateDump writes the dump artifact for the RCON broadcaster.
func (c *Console) GenerateDump(scope, format string) error {
	_, err := c.Execute(shellquote.Join(dumpCommand, scope, format))
	return err
}

// Run drives the host context until ctx is done.
func (c *Console) Run(ctx context.Context) error {
	return c.Queue.Run(ctx)
}

func (c *Console) print(output string, err error) {
	c.outMu.Lock()
	defer c.outMu.Unlock()
	if output != "" {
		fmt.Fprint(c.out, output)
		if !strings.HasSuffix(output, "\n") {
			fmt.Fprintln(c.out)
		}
	}
	if err != nil {
		fmt.Fprintln(c.out, c.printer.ErrorString("Error: %v", err))
	}
}

var _ rconkit.Executor = (*Console)(nil)
var _ rconkit.DumpGenerator = (*Console)(nil)
