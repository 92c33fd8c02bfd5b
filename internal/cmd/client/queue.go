package client

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nduplat/motorcycle-service-app-sub002/internal/queue"
)

// NewQueueCommand constructs the `queue` command group and subcommands.
func NewQueueCommand(baseURL BaseURLFunc) *cobra.Command {
	queueCmd := &cobra.Command{Use: "queue", Short: "Walk-in queue operations"}
	queueCmd.AddCommand(
		newQueueJoinCommand(baseURL),
		newQueueGetCommand(baseURL),
		newQueueTicketCommand(baseURL),
		newQueueActiveCommand(baseURL),
		newQueueWatchCommand(baseURL),
		newQueueCallNextCommand(baseURL),
		newQueueStatusCommand(baseURL),
		newQueueRequeueCommand(baseURL),
		newQueueEventsCommand(baseURL),
	)
	return queueCmd
}

func newQueueJoinCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "join",
		Short: "Join the queue and print the ticket",
		RunE: func(cmd *cobra.Command, _ []string) error {
			customer, _ := cmd.Flags().GetString("customer")
			service, _ := cmd.Flags().GetString("service")
			plate, _ := cmd.Flags().GetString("plate")
			moto, _ := cmd.Flags().GetString("motorcycle")
			notes, _ := cmd.Flags().GetString("notes")
			session, _ := cmd.Flags().GetString("session")
			mileage, _ := cmd.Flags().GetFloat64("mileage")
			req := queue.JoinData{
				CustomerID:   customer,
				ServiceType:  queue.ServiceType(service),
				MotorcycleID: moto,
				Plate:        plate,
				Notes:        notes,
				SessionID:    session,
			}
			if cmd.Flags().Changed("mileage") {
				req.MileageKm = &mileage
			}
			var out struct {
				ID               string `json:"id"`
				Position         int64  `json:"position"`
				VerificationCode string `json:"verificationCode"`
			}
			if _, err := call(cmd.Context(), baseURL, http.MethodPost, "/v1/queue/entries", req, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("customer", "", "Customer id")
	cmd.Flags().String("service", string(queue.ServiceInquiry), "Service type: appointment|direct_work_order|inquiry")
	cmd.Flags().String("plate", "", "Motorcycle plate")
	cmd.Flags().String("motorcycle", "", "Motorcycle id")
	cmd.Flags().Float64("mileage", 0, "Mileage in km")
	cmd.Flags().String("notes", "", "Free-form notes")
	cmd.Flags().String("session", "", "Queue session id")
	return cmd
}

func newQueueGetCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Show a queue entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			var e queue.Entry
			if _, err := call(cmd.Context(), baseURL, http.MethodGet, "/v1/queue/entries?id="+url.QueryEscape(id), nil, &e); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), e)
		},
	}
	cmd.Flags().String("id", "", "Entry id")
	return cmd
}

func newQueueTicketCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ticket",
		Short: "Download a ticket as PDF or QR PNG",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			format, _ := cmd.Flags().GetString("format")
			out, _ := cmd.Flags().GetString("out")
			if id == "" {
				return fmt.Errorf("--id is required")
			}
			if format != "pdf" && format != "png" {
				return fmt.Errorf("unknown format %q (pdf|png)", format)
			}
			path := "/v1/queue/ticket." + format + "?id=" + url.QueryEscape(id)
			if out == "-" {
				return download(cmd.Context(), baseURL, path, cmd.OutOrStdout())
			}
			if out == "" {
				out = "ticket-" + id + "." + format
			}
			f, err := os.Create(out)
			if err != nil {
				return err
			}
			if err := download(cmd.Context(), baseURL, path, f); err != nil {
				_ = f.Close()
				_ = os.Remove(out)
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
			return nil
		},
	}
	cmd.Flags().String("id", "", "Entry id")
	cmd.Flags().String("format", "pdf", "pdf or png")
	cmd.Flags().String("out", "", "Output file, - for stdout (default ticket-<id>.<format>)")
	return cmd
}

func newQueueActiveCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "active",
		Short: "List waiting and called entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			path := "/v1/queue/active"
			if filter != "" {
				path += "?filter=" + url.QueryEscape(filter)
			}
			var out struct {
				Entries []queue.Entry `json:"entries"`
			}
			if _, err := call(cmd.Context(), baseURL, http.MethodGet, path, nil, &out); err != nil {
				return err
			}
			w := cmd.OutOrStdout()
			for _, e := range out.Entries {
				fmt.Fprintf(w, "%4d  %-9s  %-17s  %s  %s\n", e.Position, e.Status, e.ServiceType, e.ID, e.CustomerID)
			}
			return nil
		},
	}
	cmd.Flags().String("filter", "", "CEL filter (server-side)")
	return cmd
}

func newQueueWatchCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Stream active-list snapshots as JSON lines",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter, _ := cmd.Flags().GetString("filter")
			limit, _ := cmd.Flags().GetInt("limit")
			target := baseURL() + "/v1/queue/active/watch"
			if filter != "" {
				target += "?filter=" + url.QueryEscape(filter)
			}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodGet, target, nil)
			if err != nil {
				return err
			}
			req.Header.Set("Accept", "text/event-stream")
			// No client timeout: the stream is long-lived.
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return &apiError{Status: resp.StatusCode}
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			sc := bufio.NewScanner(resp.Body)
			sc.Buffer(make([]byte, 0, 64*1024), 4<<20)
			n := 0
			for sc.Scan() {
				line := sc.Text()
				if !strings.HasPrefix(line, "data: ") {
					continue
				}
				var entries []queue.Entry
				if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &entries); err != nil {
					return fmt.Errorf("decode snapshot: %w", err)
				}
				if err := enc.Encode(entries); err != nil {
					return err
				}
				n++
				if limit > 0 && n >= limit {
					return nil
				}
			}
			if cmd.Context().Err() != nil {
				return nil
			}
			return sc.Err()
		},
	}
	cmd.Flags().String("filter", "", "CEL filter (server-side)")
	cmd.Flags().Int("limit", 0, "Stop after N snapshots (0 = infinite)")
	return cmd
}

func newQueueCallNextCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "call-next",
		Short: "Call the next waiting customer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			tech, _ := cmd.Flags().GetString("technician")
			var e queue.Entry
			status, err := call(cmd.Context(), baseURL, http.MethodPost, "/v1/queue/call-next", map[string]string{"technicianId": tech}, &e)
			if err != nil {
				return err
			}
			if status == http.StatusNoContent {
				fmt.Fprintln(cmd.OutOrStdout(), "queue is empty")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), e)
		},
	}
	cmd.Flags().String("technician", "", "Technician id (defaults to the token subject)")
	return cmd
}

func newQueueStatusCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Change the status of an entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			st, _ := cmd.Flags().GetString("status")
			tech, _ := cmd.Flags().GetString("technician")
			body := map[string]string{"id": id, "status": st, "technicianId": tech}
			if _, err := call(cmd.Context(), baseURL, http.MethodPost, "/v1/queue/status", body, nil); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s -> %s\n", id, st)
			return nil
		},
	}
	cmd.Flags().String("id", "", "Entry id")
	cmd.Flags().String("status", "", "Target status: called|served|expired|cancelled")
	cmd.Flags().String("technician", "", "Technician id (required for called)")
	return cmd
}

func newQueueRequeueCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "requeue",
		Short: "Re-admit an expired or cancelled entry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, _ := cmd.Flags().GetString("id")
			var out struct {
				ID string `json:"id"`
			}
			if _, err := call(cmd.Context(), baseURL, http.MethodPost, "/v1/queue/requeue", map[string]string{"id": id}, &out); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().String("id", "", "Entry id")
	return cmd
}

func newQueueEventsCommand(baseURL BaseURLFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print journaled queue events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			after, _ := cmd.Flags().GetUint64("after")
			limit, _ := cmd.Flags().GetInt("limit")
			follow, _ := cmd.Flags().GetBool("follow")
			w := cmd.OutOrStdout()
			for {
				q := url.Values{}
				q.Set("after", strconv.FormatUint(after, 10))
				if limit > 0 {
					q.Set("limit", strconv.Itoa(limit))
				}
				if follow {
					q.Set("waitMs", "25000")
				}
				var page struct {
					Events []struct {
						Seq   uint64      `json:"seq"`
						Event queue.Event `json:"event"`
					} `json:"events"`
					Next uint64 `json:"next"`
				}
				if _, err := call(cmd.Context(), baseURL, http.MethodGet, "/v1/queue/events?"+q.Encode(), nil, &page); err != nil {
					return err
				}
				for _, it := range page.Events {
					ev := it.Event
					fmt.Fprintf(w, "%6d  %s  %-22s  %s  %s\n", it.Seq, ev.OccurredAt.Format("15:04:05"), ev.Type, ev.Entry.ID, ev.Entry.Status)
				}
				after = page.Next
				if !follow || cmd.Context().Err() != nil {
					return nil
				}
			}
		},
	}
	cmd.Flags().Uint64("after", 0, "Only events after this sequence")
	cmd.Flags().Int("limit", 0, "Page size")
	cmd.Flags().Bool("follow", false, "Keep polling for new events")
	return cmd
}
