package rest

import (
	"time"

	"github.com/polyforge/printfarm-go/internal/application/fleet"
	"github.com/polyforge/printfarm-go/internal/domain/printing"
)

// printerView is the wire shape of one fleet printer.
type printerView struct {
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
	BedActual       float64 `json:"bed_actual"`
	ToolActual      float64 `json:"tool_actual"`
	JobFileName     string  `json:"job_file_name,omitempty"`
	TimeLeftSeconds int64   `json:"time_left_seconds"`
	QueueDepth      int     `json:"queue_depth"`
}

func newPrinterView(ctrl *fleet.Controller, now time.Time) printerView {
	printer := ctrl.Printer()
	status := ctrl.SnapshotStatus()
	v := printerView{
		ID:              printer.ID,
		Name:            printer.Name,
		Disabled:        printer.Disabled,
		Locked:          ctrl.Locked(),
		ConnectionError: status.ConnectionError,
		Ready:           status.Flags.Ready,
		Printing:        status.Flags.Printing,
		Paused:          status.Flags.Paused,
		AwaitingHuman:   ctrl.AwaitingHuman(),
		BedActual:       status.Temps.Bed,
		ToolActual:      status.Temps.Tool,
		JobFileName:     status.Job.FileName,
		TimeLeftSeconds: int64(ctrl.TimeLeft(now).Seconds()),
		QueueDepth:      len(ctrl.QueueSnapshot()),
	}
	if printer.Filament != nil {
		name := printer.Filament.Name
		v.LoadedFilament = &name
	}
	return v
}

// filamentChangeView is the wire shape of one pending spool swap.
type filamentChangeView struct {
	ID          string    `json:"id"`
	PrinterID   int       `json:"printer_id"`
	NewFilament string    `json:"new_filament"`
	CreatedAt   time.Time `json:"created_at"`
	Sent        bool      `json:"sent"`
}

func newFilamentChangeView(fc *printing.FilamentChange) filamentChangeView {
	return filamentChangeView{
		ID:          fc.ID.String(),
		PrinterID:   fc.Task.PrinterID,
		NewFilament: fc.NewFilament.Name,
		CreatedAt:   fc.Task.CreatedAt,
		Sent:        fc.Task.Sent(),
	}
}

// printJobView is the wire shape of one job awaiting outcome confirmation.
type printJobView struct {
	ID           string     `json:"id"`
	PrinterID    int        `json:"printer_id"`
	Filament     *string    `json:"filament"`
	WeightGrams  float64    `json:"weight_grams"`
	CreatedAt    time.Time  `json:"created_at"`
	EstimatedEnd *time.Time `json:"estimated_end,omitempty"`
}

func newPrintJobView(job *printing.PrintJob) printJobView {
	v := printJobView{
		ID:          job.ID.String(),
		PrinterID:   job.Task.PrinterID,
		WeightGrams: job.WeightG,
		CreatedAt:   job.CreatedAt,
	}
	if job.Filament != nil {
		name := job.Filament.Name
		v.Filament = &name
	}
	if !job.EstimatedEnd.IsZero() {
		est := job.EstimatedEnd
		v.EstimatedEnd = &est
	}
	return v
}
