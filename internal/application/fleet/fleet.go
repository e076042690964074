package fleet

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/polyforge/printfarm-go/internal/domain/inventory"
	"github.com/polyforge/printfarm-go/internal/domain/printing"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// Options tunes the fleet's periodic services.
type Options struct {
	PollPeriod     time.Duration
	DispatchPeriod time.Duration
	BeepThreshold  int
}

// Fleet owns every device controller plus the lookup registries the operator
// surface works against: pending filament changes and print jobs awaiting
// confirmation.
type Fleet struct {
	registry *StatusRegistry
	clock    shared.Clock
	log      *zap.SugaredLogger
	opts     Options
	recorder JobRecorder // set before services start, nil keeps runs in-memory

	mu          sync.Mutex
	controllers map[int]*Controller
	changes     map[uuid.UUID]*printing.FilamentChange
	jobs        map[uuid.UUID]*printing.PrintJob
}

// New builds an empty fleet.
func New(registry *StatusRegistry, clock shared.Clock, log *zap.SugaredLogger, opts Options) *Fleet {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if opts.PollPeriod == 0 {
		opts.PollPeriod = 2 * time.Second
	}
	if opts.DispatchPeriod == 0 {
		opts.DispatchPeriod = time.Second
	}
	return &Fleet{
		registry:    registry,
		clock:       clock,
		log:         log,
		opts:        opts,
		controllers: make(map[int]*Controller),
		changes:     make(map[uuid.UUID]*printing.FilamentChange),
		jobs:        make(map[uuid.UUID]*printing.PrintJob),
	}
}

// SetJobRecorder wires execution-side persistence. Must be called before the
// periodic services start.
func (f *Fleet) SetJobRecorder(r JobRecorder) {
	f.recorder = r
}

// snapshot writes an execution record when a recorder is wired. Failures are
// logged and swallowed; the rows are an audit trail, not the source of truth.
func (f *Fleet) snapshot(write func(ctx context.Context) error) {
	if f.recorder == nil {
		return
	}
	if err := write(context.Background()); err != nil {
		f.log.Warnw("execution snapshot failed", "error", err)
	}
}

// AddPrinter registers a printer and creates its controller.
func (f *Fleet) AddPrinter(printer *printing.Printer, client DeviceClient) *Controller {
	ctrl := NewController(printer, client, f.registry, f.clock, f.log)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.controllers[printer.ID] = ctrl
	return ctrl
}

// Controller returns the controller for a printer id.
func (f *Fleet) Controller(printerID int) (*Controller, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ctrl, ok := f.controllers[printerID]
	if !ok {
		return nil, fmt.Errorf("printer %d: %w", printerID, shared.ErrNotFound)
	}
	return ctrl, nil
}

// Controllers returns all controllers ordered by printer id.
func (f *Fleet) Controllers() []*Controller {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Controller, 0, len(f.controllers))
	for _, c := range f.controllers {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].printer.ID < out[j].printer.ID })
	return out
}

// EnabledControllers returns the controllers of printers not disabled by the
// operator, ordered by printer id.
func (f *Fleet) EnabledControllers() []*Controller {
	var out []*Controller
	for _, c := range f.Controllers() {
		if !c.printer.Disabled {
			out = append(out, c)
		}
	}
	return out
}

// LoadedFilament returns the filament currently loaded in a printer.
func (f *Fleet) LoadedFilament(printerID int) *inventory.Filament {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ctrl, ok := f.controllers[printerID]; ok {
		return ctrl.printer.Filament
	}
	return nil
}

// RegisterChange tracks a filament change for operator lookup and snapshots
// it with its task.
func (f *Fleet) RegisterChange(fc *printing.FilamentChange) {
	f.mu.Lock()
	f.changes[fc.ID] = fc
	f.mu.Unlock()
	f.snapshot(func(ctx context.Context) error {
		if err := f.recorder.SaveTask(ctx, fc.Task); err != nil {
			return err
		}
		return f.recorder.SaveChange(ctx, fc)
	})
}

// RegisterJob tracks a print job for operator lookup and snapshots it with
// its task.
func (f *Fleet) RegisterJob(job *printing.PrintJob) {
	f.mu.Lock()
	f.jobs[job.ID] = job
	f.mu.Unlock()
	f.snapshot(func(ctx context.Context) error {
		if err := f.recorder.SaveTask(ctx, job.Task); err != nil {
			return err
		}
		return f.recorder.SaveJob(ctx, job)
	})
}

// PendingChanges lists unconfirmed filament changes.
func (f *Fleet) PendingChanges() []*printing.FilamentChange {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*printing.FilamentChange
	for _, fc := range f.changes {
		if !fc.Confirmed() && !fc.Task.Cancelled() {
			out = append(out, fc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Task.CreatedAt.Before(out[j].Task.CreatedAt) })
	return out
}

// JobsAwaitingConfirmation lists print jobs in awaiting-bed-removal.
func (f *Fleet) JobsAwaitingConfirmation() []*printing.PrintJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*printing.PrintJob
	for _, job := range f.jobs {
		if job.AwaitingBedRemoval() {
			out = append(out, job)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// ConfirmFilamentChange flips the change confirmed and commits the printer's
// loaded filament in the same critical section.
func (f *Fleet) ConfirmFilamentChange(id uuid.UUID) error {
	f.mu.Lock()
	fc, ok := f.changes[id]
	if !ok {
		f.mu.Unlock()
		return fmt.Errorf("filament change %s: %w", id, shared.ErrNotFound)
	}
	if fc.Task.Cancelled() {
		f.mu.Unlock()
		return fmt.Errorf("filament change %s was cancelled", id)
	}
	fc.Confirm(f.clock.Now())
	if ctrl, ok := f.controllers[fc.Task.PrinterID]; ok {
		ctrl.printer.Filament = fc.NewFilament
	}
	f.mu.Unlock()
	f.snapshot(func(ctx context.Context) error { return f.recorder.SaveChange(ctx, fc) })
	f.log.Infow("filament change confirmed", "change", id, "filament", fc.NewFilament.Name)
	return nil
}

// ConfirmJobResult records the human verdict on a finished print and, on
// success, consumes the quoted weight from the spool stock.
func (f *Fleet) ConfirmJobResult(id uuid.UUID, success bool) error {
	f.mu.Lock()
	job, ok := f.jobs[id]
	f.mu.Unlock()
	if !ok {
		return fmt.Errorf("print job %s: %w", id, shared.ErrNotFound)
	}
	job.Confirm(success, f.clock.Now())
	if success && job.Filament != nil && job.WeightG > 0 {
		job.Filament.ConsumeStock(job.WeightG)
	}
	f.snapshot(func(ctx context.Context) error { return f.recorder.SaveJob(ctx, job) })
	f.log.Infow("print job confirmed", "job", id, "success", success)
	return nil
}

// CancelActiveTask aborts the active task on a printer, notifying the remote.
func (f *Fleet) CancelActiveTask(ctx context.Context, printerID int) error {
	ctrl, err := f.Controller(printerID)
	if err != nil {
		return err
	}
	task := ctrl.ActiveTask()
	ctrl.CancelActive(ctx, true)
	if task != nil {
		f.snapshot(func(ctx context.Context) error {
			if err := f.recorder.SaveTask(ctx, task); err != nil {
				return err
			}
			if task.Job != nil {
				return f.recorder.SaveJob(ctx, task.Job)
			}
			return nil
		})
	}
	return nil
}

// ResetPrinter force-clears a controller's slot and status.
func (f *Fleet) ResetPrinter(printerID int) error {
	ctrl, err := f.Controller(printerID)
	if err != nil {
		return err
	}
	ctrl.Reset()
	return nil
}

// TogglePrinter flips the disabled flag and returns the new value.
func (f *Fleet) TogglePrinter(printerID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ctrl, ok := f.controllers[printerID]
	if !ok {
		return false, fmt.Errorf("printer %d: %w", printerID, shared.ErrNotFound)
	}
	ctrl.printer.Disabled = !ctrl.printer.Disabled
	return ctrl.printer.Disabled, nil
}

// RunStatusPollers launches one poll loop per controller and blocks until
// the context is cancelled. Controllers added later are not picked up; the
// daemon builds the fleet before starting services.
func (f *Fleet) RunStatusPollers(ctx context.Context) {
	var wg sync.WaitGroup
	for _, ctrl := range f.Controllers() {
		wg.Add(1)
		go func(c *Controller) {
			defer wg.Done()
			ticker := time.NewTicker(f.opts.PollPeriod)
			defer ticker.Stop()
			c.RefreshStatus(ctx)
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					c.RefreshStatus(ctx)
				}
			}
		}(ctrl)
	}
	wg.Wait()
}

// RunDispatchLoop ticks every controller's active-task state machine until
// the context is cancelled.
func (f *Fleet) RunDispatchLoop(ctx context.Context) {
	ticker := time.NewTicker(f.opts.DispatchPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			f.TickAll(ctx)
		}
	}
}

// TickAll runs one dispatch tick across the fleet.
func (f *Fleet) TickAll(ctx context.Context) {
	for _, ctrl := range f.Controllers() {
		ctrl.DispatchTick(ctx, f.opts.BeepThreshold)
	}
}
