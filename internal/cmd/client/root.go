package client

import (
	"github.com/spf13/cobra"
)

// NewRoot constructs a root Cobra command for the queue client.
// It registers the queue, session and workorders command groups.
func NewRoot(baseURL BaseURLFunc) *cobra.Command {
	root := &cobra.Command{
		Use:   "walkin",
		Short: "Walk-in queue client commands",
	}
	root.AddCommand(NewQueueCommand(baseURL))
	root.AddCommand(NewSessionCommand(baseURL))
	root.AddCommand(NewWorkOrdersCommand(baseURL))
	return root
}
