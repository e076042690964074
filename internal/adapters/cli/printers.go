package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

type printerRow struct {
	ID              int     `json:"id"`
	Name            string  `json:"name"`
	Disabled        bool    `json:"disabled"`
	Locked          bool    `json:"locked"`
	ConnectionError bool    `json:"connection_error"`
	Ready           bool    `json:"ready"`
	Printing        bool    `json:"printing"`
	Paused          bool    `json:"paused"`
	AwaitingHuman   bool    `json:"awaiting_human"`
	LoadedFilament  *string `json:"loaded_filament"`
	JobFileName     string  `json:"job_file_name"`
	TimeLeftSeconds int64   `json:"time_left_seconds"`
	QueueDepth      int     `json:"queue_depth"`
}

// NewPrintersCommand creates the printers listing command
func NewPrintersCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "printers",
		Short: "List fleet printers and their live status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(apiAddress)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var rows []printerRow
			if err := client.Get(ctx, "/printers", &rows); err != nil {
				return err
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tSTATE\tFILAMENT\tJOB\tLEFT\tQUEUE")
			for _, r := range rows {
				filament := "-"
				if r.LoadedFilament != nil {
					filament = *r.LoadedFilament
				}
				job := r.JobFileName
				if job == "" {
					job = "-"
				}
				left := "-"
				if r.TimeLeftSeconds > 0 {
					left = (time.Duration(r.TimeLeftSeconds) * time.Second).String()
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\n",
					r.ID, r.Name, printerState(r), filament, job, left, r.QueueDepth)
			}
			return w.Flush()
		},
	}
}

func printerState(r printerRow) string {
	switch {
	case r.Disabled:
		return "disabled"
	case r.ConnectionError:
		return "offline"
	case r.Locked:
		return "locked"
	case r.AwaitingHuman:
		return "awaiting-human"
	case r.Printing:
		return "printing"
	case r.Paused:
		return "paused"
	case r.Ready:
		return "ready"
	default:
		return "busy"
	}
}
