package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

// NewPendingCommand creates the pending command group
func NewPendingCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List work waiting on a human",
	}
	cmd.AddCommand(newPendingChangesCommand())
	cmd.AddCommand(newPendingJobsCommand())
	return cmd
}

func newPendingChangesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "changes",
		Short: "List filament changes waiting for confirmation",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(apiAddress)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var rows []struct {
				ID          string    `json:"id"`
				PrinterID   int       `json:"printer_id"`
				NewFilament string    `json:"new_filament"`
				CreatedAt   time.Time `json:"created_at"`
				Sent        bool      `json:"sent"`
			}
			if err := client.Get(ctx, "/pending_filament_changes", &rows); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRINTER\tNEW FILAMENT\tPARKED\tAGE")
			for _, r := range rows {
				fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\n",
					r.ID, r.PrinterID, r.NewFilament, r.Sent,
					time.Since(r.CreatedAt).Round(time.Second))
			}
			return w.Flush()
		},
	}
}

func newPendingJobsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "jobs",
		Short: "List print jobs waiting for an outcome verdict",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(apiAddress)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var rows []struct {
				ID          string  `json:"id"`
				PrinterID   int     `json:"printer_id"`
				Filament    *string `json:"filament"`
				WeightGrams float64 `json:"weight_grams"`
			}
			if err := client.Get(ctx, "/print_jobs_pending_for_confirmation", &rows); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tPRINTER\tFILAMENT\tWEIGHT")
			for _, r := range rows {
				filament := "-"
				if r.Filament != nil {
					filament = *r.Filament
				}
				fmt.Fprintf(w, "%s\t%d\t%s\t%.0fg\n", r.ID, r.PrinterID, filament, r.WeightGrams)
			}
			return w.Flush()
		},
	}
}
