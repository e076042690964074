package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// NewHealthCommand creates the health command
func NewHealthCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check daemon health status",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewDaemonClient(apiAddress)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			var health struct {
				Status string `json:"status"`
			}
			if err := client.Get(ctx, "/healthz", &health); err != nil {
				return fmt.Errorf("health check failed: %w", err)
			}
			fmt.Println("✓ Daemon is healthy")
			return nil
		},
	}
}
