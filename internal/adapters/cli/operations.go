package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewConfirmCommand creates the confirm command group
func NewConfirmCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Confirm human-gated operations",
	}
	cmd.AddCommand(newConfirmChangeCommand())
	cmd.AddCommand(newConfirmJobCommand())
	return cmd
}

func newConfirmChangeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "change <change-id>",
		Short: "Confirm a completed filament swap",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(apiAddress)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := client.Post(ctx, "/operations/confirm_filament_change/"+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Println("✓ Filament change confirmed")
			return nil
		},
	}
}

func newConfirmJobCommand() *cobra.Command {
	var success, failed bool
	cmd := &cobra.Command{
		Use:   "job <job-id>",
		Short: "Record the verdict on a finished print",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if success == failed {
				return fmt.Errorf("exactly one of --success or --failed is required")
			}
			client := NewDaemonClient(apiAddress)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			body := map[string]bool{"success": success}
			if err := client.Post(ctx, "/operations/confirm_job_result/"+args[0], body, nil); err != nil {
				return err
			}
			fmt.Println("✓ Print job confirmed")
			return nil
		},
	}
	cmd.Flags().BoolVar(&success, "success", false, "The print came out good")
	cmd.Flags().BoolVar(&failed, "failed", false, "The print failed")
	return cmd
}

// NewPrinterCommand creates the printer operations command group
func NewPrinterCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "printer",
		Short: "Operate on a single printer",
	}
	cmd.AddCommand(newPrinterOpCommand("cancel", "Cancel the printer's active task",
		"/operations/cancel_active_task/", "✓ Active task cancelled"))
	cmd.AddCommand(newPrinterOpCommand("reset", "Force-clear the printer's controller state",
		"/operations/reset_printer/", "✓ Printer reset"))
	cmd.AddCommand(newPrinterOpCommand("toggle", "Enable or disable the printer for scheduling",
		"/operations/toggle_printer_en_dis/", "✓ Printer toggled"))
	return cmd
}

func newPrinterOpCommand(use, short, path, okMsg string) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <printer-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(apiAddress)
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			if err := client.Post(ctx, path+args[0], nil, nil); err != nil {
				return err
			}
			fmt.Println(okMsg)
			return nil
		},
	}
}
