package rconkit

import (
	"time"

	"github.com/spf13/cobra"
)

// AddRconCommands registers the RCON admin commands. They run on the host
// context, like every other console command.
func AddRconCommands(p *Plugin) func(cmd *cobra.Command) {
	return func(rootCmd *cobra.Command) {

		refreshCmd := &cobra.Command{
			Use:   "rcon_refresh_allowed",
			Short: "Refreshes the list of allowed rcon commands",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				if err := p.RefreshAllowed(); err != nil {
					cmd.PrintErrf("Refresh: %v\n", err)
				}
				cmd.Printf("Loaded %d allow-list patterns from %s\n", p.AllowList.Len(), p.AllowListPath())
			},
		}

		testCmd := &cobra.Command{
			Use:                "rcon_test_allowed <command>",
			Short:              "Tests if the given input is accepted by rcon",
			Args:               cobra.MinimumNArgs(1),
			DisableFlagParsing: true,
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Printf("Is allowed: %t\n", p.TestAllowed(args[0]))
			},
		}

		disconnectCmd := &cobra.Command{
			Use:   "rcon_disconnect",
			Short: "Disconnects all rcon connections",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				n := p.DisconnectAll()
				cmd.Printf("Closed %d websocket connection(s)\n", n)
			},
		}

		sendbackCmd := &cobra.Command{
			Use:                "sendback [text...]",
			Short:              "Sends text to all connected clients",
			Long:               `Sends text to all connected clients. Usage: sendback abc def ghi "hij klm"`,
			DisableFlagParsing: true,
			Run: func(cmd *cobra.Command, args []string) {
				p.SendBack(args)
			},
		}

		inventoryCmd := &cobra.Command{
			Use:   "ws_inventory <scope> <csv|json>",
			Short: "Sends inventory dump to all connected clients",
			Long:  "Sends inventory dump to all connected clients. Usage: ws_inventory [all] (csv|json)",
			Args:  cobra.ExactArgs(2),
			Run: func(cmd *cobra.Command, args []string) {
				cmd.Println("Sending inventory")
				if err := p.SendInventory(args[0], args[1]); err != nil {
					cmd.PrintErrf("Inventory dump: %v\n", err)
				}
			},
		}

		statusCmd := &cobra.Command{
			Use:   "rcon_status",
			Short: "Shows the rcon server state",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				st := p.Status()
				cmd.Printf("Transport     : %s\n", st.Transport)
				cmd.Printf("State         : %s\n", st.State)
				if st.Addr != "" {
					cmd.Printf("Address       : %s\n", st.Addr)
					cmd.Printf("Uptime        : %s\n", st.Uptime.Truncate(time.Second))
				}
				cmd.Printf("Connections   : %d (%d authenticated)\n", st.Connections, st.Authenticated)
				cmd.Printf("Allow-list    : %d pattern(s)\n", st.Patterns)
				cmd.Printf("Reject policy : %s\n", st.RejectPolicy)
				cmd.Printf("Timeout       : %d\n", st.Timeout)
			},
		}

		rootCmd.AddCommand(refreshCmd, testCmd, disconnectCmd, sendbackCmd, inventoryCmd, statusCmd)
	}
}
