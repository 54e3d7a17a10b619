package console

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/alexj212/rconkit"
	"github.com/alexj212/rconkit/cvar"
	"github.com/spf13/cobra"
)

const (
	dumpCommand = "invent_dump_better"
	secretMask  = "********"
)

type dumpRow struct {
	Name        string `json:"name"`
	Value       string `json:"value"`
	Default     string `json:"default"`
	Description string `json:"description,omitempty"`
}

// AddBuiltinCmds adds the host's own commands: echo, cvars, audit and the
// data dump generator.
func AddBuiltinCmds(c *Console) func(cmd *cobra.Command) {
	return func(rootCmd *cobra.Command) {

		echoCmd := &cobra.Command{
			Use:                "echo [text...]",
			Short:              "Prints its arguments",
			DisableFlagParsing: true,
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Println(strings.Join(args, " "))
			},
		}

		cvarsCmd := &cobra.Command{
			Use:   "cvars [prefix]",
			Short: "Lists console variables",
			Args:  cobra.MaximumNArgs(1),
			Run: func(cmd *cobra.Command, args []string) {
				prefix := ""
				if len(args) == 1 {
					prefix = args[0]
				}
				for _, row := range dumpRows(c.Vars, prefix) {
					cmd.Printf("%-24s %-16q %s\n", row.Name, row.Value, row.Description)
				}
			},
		}

		resetCmd := &cobra.Command{
			Use:   "reset <cvar>",
			Short: "Restores a console variable to its default",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				if !c.Vars.Has(args[0]) {
					return fmt.Errorf("unknown cvar: %s", args[0])
				}
				c.Vars.Reset(args[0])
				cmd.Printf("%s = %q\n", args[0], c.Vars.GetString(args[0]))
				return nil
			},
		}

		dumpCmd := &cobra.Command{
			Use:   dumpCommand + " <scope> <csv|json>",
			Short: "Writes the console variable table to the data directory",
			Long: `Writes the console variable table to <data dir>/inventory.<format>.
Scope "all" selects every variable; any other scope is a name prefix.`,
			Args: cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				path, err := writeDump(c.Vars, c.DataDir, args[0], args[1])
				if err != nil {
					return err
				}
				cmd.Printf("Wrote %s\n", path)
				return nil
			},
		}

		rootCmd.AddCommand(echoCmd, cvarsCmd, resetCmd, dumpCmd, auditCmd(c))
	}
}

func auditCmd(c *Console) *cobra.Command {
	auditCmd := &cobra.Command{
		Use:   "audit",
		Short: "Shows the audit trail of logged rcon commands",
	}

	showCmd := &cobra.Command{
		Use:   "show [n]",
		Short: "Show the last n entries (default 20)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n := 20
			if len(args) == 1 {
				v, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("invalid count: %s", args[0])
				}
				n = v
			}
			printAudit(cmd, c, c.Audit.GetRecentLogs(n))
			return nil
		},
	}

	failedCmd := &cobra.Command{
		Use:   "failed",
		Short: "Show failed commands",
		Run: func(cmd *cobra.Command, args []string) {
			printAudit(cmd, c, c.Audit.GetFailedLogs())
		},
	}

	searchCmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Show commands containing text",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			printAudit(cmd, c, c.Audit.SearchLogs(args[0]))
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear the in-memory audit trail",
		Run: func(cmd *cobra.Command, args []string) {
			c.Audit.Clear()
			cmd.Println(c.Printer().SuccessString("Audit trail cleared"))
		},
	}

	auditCmd.AddCommand(showCmd, failedCmd, searchCmd, clearCmd)
	return auditCmd
}

func printAudit(cmd *cobra.Command, c *Console, logs []AuditLog) {
	if len(logs) == 0 {
		cmd.Println("No entries")
		return
	}
	p := c.Printer()
	for _, l := range logs {
		status := p.SuccessString("ok")
		if !l.Success {
			status = p.ErrorString("fail")
		}
		cmd.Printf("%s %-4s %-6s %s\n", l.Timestamp.Format("2006-01-02 15:04:05"), status, l.Source, l.Command)
		if l.Error != "" {
			cmd.Printf("    %s\n", p.WarningString(l.Error))
		}
	}
}

func dumpRows(vars *cvar.Store, prefix string) []dumpRow {
	var rows []dumpRow
	vars.ForEach(func(v *cvar.CVar) bool {
		if prefix == "" || strings.HasPrefix(v.Name, prefix) {
			value := v.Value()
			if strings.Contains(v.Name, "password") {
				value = secretMask
			}
			rows = append(rows, dumpRow{
				Name:        v.Name,
				Value:       value,
				Default:     v.Default,
				Description: v.Description,
			})
		}
		return false
	})
	return rows
}

// writeDump renders the variables selected by scope into dataDir and returns
// the written path.
func writeDump(vars *cvar.Store, dataDir, scope, format string) (string, error) {
	format = rconkit.NormalizeDumpFormat(format)
	prefix := scope
	if strings.EqualFold(scope, "all") {
		prefix = ""
	}
	rows := dumpRows(vars, prefix)

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	path := filepath.Join(dataDir, rconkit.DumpFileName(format))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create dump file: %w", err)
	}
	defer f.Close()

	switch format {
	case "json":
		if rows == nil {
			rows = []dumpRow{}
		}
		if err := json.NewEncoder(f).Encode(rows); err != nil {
			return "", fmt.Errorf("failed to write dump: %w", err)
		}
	default:
		w := csv.NewWriter(f)
		w.Write([]string{"name", "value", "default", "description"})
		for _, r := range rows {
			w.Write([]string{r.Name, r.Value, r.Default, r.Description})
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return "", fmt.Errorf("failed to write dump: %w", err)
		}
	}
	return path, nil
}
