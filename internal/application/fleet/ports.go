package fleet

import (
	"context"
	"io"

	"github.com/polyforge/printfarm-go/internal/domain/printing"
)

// DeviceClient is the printer-host surface a controller needs. The printhost
// adapter implements it; tests substitute an in-memory fake.
type DeviceClient interface {
	Ping(ctx context.Context) bool
	IssueCommands(ctx context.Context, lines []string) error
	UploadAndStart(ctx context.Context, file io.Reader, filename string) (string, error)
	FetchPrinterState(ctx context.Context) (printing.PrinterFlags, printing.Temperatures, error)
	FetchJobState(ctx context.Context) (printing.JobStatus, error)
	Cancel(ctx context.Context) error
}

// JobRecorder persists execution-side snapshots: device tasks, print jobs,
// and filament changes. The persistence job repository implements it; the
// in-memory domain objects stay authoritative.
type JobRecorder interface {
	SaveTask(ctx context.Context, t *printing.DeviceTask) error
	SaveJob(ctx context.Context, job *printing.PrintJob) error
	SaveChange(ctx context.Context, fc *printing.FilamentChange) error
}
