package client

import (
	"net/http"

	"github.com/spf13/cobra"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

// NewSessionCommand constructs the `session` command group.
func NewSessionCommand(baseURL BaseURLFunc) *cobra.Command {
	sessionCmd := &cobra.Command{Use: "session", Short: "Queue session operations"}
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create a single-ticket session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			user, _ := cmd.Flags().GetString("user")
			var s queue.Session
			if _, err := call(cmd.Context(), baseURL, http.MethodPost, "/v1/queue/sessions", map[string]string{"userId": user}, &s); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), s)
		},
	}
	createCmd.Flags().String("user", "", "Optional user id")
	sessionCmd.AddCommand(createCmd)
	return sessionCmd
}
