package client

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/workorder"
)

// NewWorkOrdersCommand constructs the `workorders` command group.
func NewWorkOrdersCommand(baseURL BaseURLFunc) *cobra.Command {
	woCmd := &cobra.Command{Use: "workorders", Short: "Work-order outbox operations"}

	pullCmd := &cobra.Command{
		Use:   "pull",
		Short: "Lease pending work orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			consumer, _ := cmd.Flags().GetString("consumer")
			count, _ := cmd.Flags().GetInt("count")
			var out struct {
				Deliveries []workorder.Delivery `json:"deliveries"`
			}
			body := map[string]any{"consumer": consumer, "count": count}
			if _, err := call(cmd.Context(), baseURL, http.MethodPost, "/v1/workorders/dequeue", body, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out.Deliveries)
		},
	}
	pullCmd.Flags().String("consumer", "", "Consumer name (defaults to the token subject)")
	pullCmd.Flags().Int("count", 1, "Maximum orders to lease")

	completeCmd := &cobra.Command{
		Use:   "complete",
		Short: "Acknowledge processed work orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			seqs, _ := cmd.Flags().GetUintSlice("seq")
			if len(seqs) == 0 {
				return errors.New("at least one --seq is required")
			}
			out := make([]uint64, len(seqs))
			for i, s := range seqs {
				out[i] = uint64(s)
			}
			if _, err := call(cmd.Context(), baseURL, http.MethodPost, "/v1/workorders/complete", map[string]any{"seqs": out}, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "completed %d\n", len(out))
			return nil
		},
	}
	completeCmd.Flags().UintSlice("seq", nil, "Sequence to complete (repeatable)")

	woCmd.AddCommand(pullCmd, completeCmd)
	return woCmd
}
