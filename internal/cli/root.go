package cli

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root arena command.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "arena",
		Short: "Realtime battle room server",
		Long: `Arena runs the realtime room/presence/broadcast server for agent battles.
Agents and spectators connect over WebSocket, join battle rooms, and receive
broadcast state updates, coordinated across instances via Redis.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newKeygenCmd(),
	)

	return root
}
