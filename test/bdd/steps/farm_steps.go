package steps

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cucumber/godog"
	"go.uber.org/zap"

	"github.com/polyforge/printfarm-go/internal/application/dispatch"
	"github.com/polyforge/printfarm-go/internal/application/fleet"
	"github.com/polyforge/printfarm-go/internal/application/orders"
	schedsvc "github.com/polyforge/printfarm-go/internal/application/scheduling"
	"github.com/polyforge/printfarm-go/internal/application/slicing"
	"github.com/polyforge/printfarm-go/internal/domain/inventory"
	"github.com/polyforge/printfarm-go/internal/domain/order"
	"github.com/polyforge/printfarm-go/internal/domain/printing"
	"github.com/polyforge/printfarm-go/internal/domain/scheduling"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// scriptedDevice is an in-memory printer host. An upload flips its reported
// job to the uploaded file and the printing flag on, the way a real host
// starts the job it just received.
type scriptedDevice struct {
	mu          sync.Mutex
	flags       printing.PrinterFlags
	job         printing.JobStatus
	cancels     int
	commandLogs [][]string
}

func newScriptedDevice() *scriptedDevice {
	return &scriptedDevice{flags: printing.PrinterFlags{Operational: true, Ready: true}}
}

func (d *scriptedDevice) Ping(ctx context.Context) bool { return true }

func (d *scriptedDevice) IssueCommands(ctx context.Context, lines []string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.commandLogs = append(d.commandLogs, lines)
	return nil
}

func (d *scriptedDevice) UploadAndStart(ctx context.Context, file io.Reader, filename string) (string, error) {
	if _, err := io.ReadAll(file); err != nil {
		return "", err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.job = printing.JobStatus{FileName: filename}
	d.flags.Printing = true
	d.flags.Ready = false
	return filename, nil
}

func (d *scriptedDevice) FetchPrinterState(ctx context.Context) (printing.PrinterFlags, printing.Temperatures, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flags, printing.Temperatures{}, nil
}

func (d *scriptedDevice) FetchJobState(ctx context.Context) (printing.JobStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.job, nil
}

func (d *scriptedDevice) Cancel(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancels++
	return nil
}

type nullSlicer struct{}

func (nullSlicer) Submit(req slicing.Request) (slicing.Job, error) {
	return slicing.NewStubJob(time.Hour), nil
}

// memoryScheduleRepo records persisted runs for assertions.
type memoryScheduleRepo struct {
	mu    sync.Mutex
	saved []*scheduling.Schedule
}

func (r *memoryScheduleRepo) SaveSchedule(ctx context.Context, s *scheduling.Schedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.saved = append(r.saved, s)
	return nil
}

func (r *memoryScheduleRepo) last() *scheduling.Schedule {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.saved) == 0 {
		return nil
	}
	return r.saved[len(r.saved)-1]
}

// FarmContext holds the wiring for one scenario: an in-memory fleet with
// scripted printer hosts, the intake store, and the scheduler chain.
type FarmContext struct {
	dir      string
	clock    *shared.MockClock
	registry *fleet.StatusRegistry
	fleet    *fleet.Fleet
	store    *orders.Store
	repo     *memoryScheduleRepo
	zones    []scheduling.ForbiddenZone

	devices  map[string]*scriptedDevice
	printers map[string]*printing.Printer
	pieces   map[string]*order.Piece

	last     *scheduling.Schedule
	printerN int
	spoolN   int
	orderN   int
}

func InitializeFarmScenario(sc *godog.ScenarioContext) {
	fc := &FarmContext{}

	sc.Before(func(ctx context.Context, s *godog.Scenario) (context.Context, error) {
		dir, err := os.MkdirTemp("", "farm-bdd-")
		if err != nil {
			return ctx, err
		}
		log := zap.NewNop().Sugar()
		fc.dir = dir
		fc.clock = shared.NewMockClock(time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC))
		fc.registry = fleet.NewStatusRegistry(time.Minute)
		// The fleet keeps the real clock so task runners suspend properly.
		fc.fleet = fleet.New(fc.registry, shared.NewRealClock(), log, fleet.Options{})
		fc.store = orders.NewStore(nullSlicer{}, log)
		fc.repo = &memoryScheduleRepo{}
		fc.zones = nil
		fc.devices = map[string]*scriptedDevice{}
		fc.printers = map[string]*printing.Printer{}
		fc.pieces = map[string]*order.Piece{}
		fc.last = nil
		fc.printerN = 0
		fc.spoolN = 0
		fc.orderN = 0
		return ctx, nil
	})
	sc.After(func(ctx context.Context, s *godog.Scenario, err error) (context.Context, error) {
		os.RemoveAll(fc.dir)
		return ctx, nil
	})

	sc.Step(`^a printer "([^"]*)" with spool "([^"]*)" loaded$`, fc.aPrinterWithSpool)
	sc.Step(`^an unreachable printer "([^"]*)"$`, fc.anUnreachablePrinter)
	sc.Step(`^a spool "([^"]*)" in stock$`, fc.aSpoolInStock)
	sc.Step(`^a daily forbidden zone from hour (\d+) lasting (\d+) hours$`, fc.aForbiddenZone)
	sc.Step(`^a program piece "([^"]*)" requiring color "([^"]*)" with build time (\d+) seconds due in (\d+) hours$`, fc.aProgramPiece)
	sc.Step(`^a program piece "([^"]*)" requiring color "([^"]*)" with (\d+) copies and build time (\d+) seconds due in (\d+) hours$`, fc.aProgramPieceWithCopies)
	sc.Step(`^the scheduler runs$`, fc.theSchedulerRuns)
	sc.Step(`^the schedule status is "([^"]*)"$`, fc.theScheduleStatusIs)
	sc.Step(`^printer "([^"]*)" has a queued print task for piece "([^"]*)"$`, fc.printerHasQueuedTaskForPiece)
	sc.Step(`^printer "([^"]*)" has (\d+) queued tasks$`, fc.printerHasQueuedTasks)
	sc.Step(`^every printer has exactly (\d+) queued tasks$`, fc.everyPrinterHasQueuedTasks)
	sc.Step(`^piece "([^"]*)" has (\d+) pending copies$`, fc.pieceHasPendingCopies)
	sc.Step(`^piece "([^"]*)" has (\d+) queued copies$`, fc.pieceHasQueuedCopies)
	sc.Step(`^no filament change is pending$`, fc.noFilamentChangePending)
	sc.Step(`^(\d+) filament changes are pending$`, fc.filamentChangesPending)
	sc.Step(`^the print task on "([^"]*)" depends on a filament change$`, fc.printTaskDependsOnChange)
	sc.Step(`^every schedule entry ends within (\d+) seconds$`, fc.entriesEndWithin)
	sc.Step(`^all schedule entries target printer "([^"]*)"$`, fc.entriesTargetPrinter)
	sc.Step(`^no device tasks were queued$`, fc.noDeviceTasksQueued)
	sc.Step(`^the last run was persisted with status "([^"]*)"$`, fc.lastRunPersistedWithStatus)
	sc.Step(`^printer "([^"]*)" has started its queued task$`, fc.printerHasStartedTask)
	sc.Step(`^the operator cancels the active task on "([^"]*)"$`, fc.operatorCancelsActive)
	sc.Step(`^printer "([^"]*)" has an empty active slot$`, fc.printerHasEmptySlot)
	sc.Step(`^the remote job on "([^"]*)" was aborted$`, fc.remoteJobAborted)
}

func (fc *FarmContext) newSpool(desc string) (*inventory.Filament, error) {
	var color, material string
	if _, err := fmt.Sscanf(desc, "%s %s", &color, &material); err != nil {
		return nil, fmt.Errorf("spool %q must read like 'blue PLA': %w", desc, err)
	}
	fc.spoolN++
	return &inventory.Filament{
		ID:         fc.spoolN,
		Name:       desc,
		Color:      color,
		Material:   material,
		BedTemp:    60,
		NozzleTemp: 210,
		StockGrams: 1000,
	}, nil
}

func (fc *FarmContext) addPrinter(name string, spool *inventory.Filament, online bool) {
	fc.printerN++
	p := &printing.Printer{
		ID:       fc.printerN,
		Name:     name,
		Profile:  &inventory.PrinterProfile{ID: 1, Name: "default", Bed: inventory.BedShape{X: 250, Y: 250, Z: 250}},
		Filament: spool,
	}
	device := newScriptedDevice()
	fc.fleet.AddPrinter(p, device)
	fc.devices[name] = device
	fc.printers[name] = p
	if online {
		fc.registry.Put(p.ID, printing.Status{
			Flags:     printing.PrinterFlags{Operational: true, Ready: true},
			UpdatedAt: fc.clock.Now(),
		})
	} else {
		fc.registry.Put(p.ID, printing.Status{ConnectionError: true, UpdatedAt: fc.clock.Now()})
	}
}

func (fc *FarmContext) aPrinterWithSpool(name, spoolDesc string) error {
	spool, err := fc.newSpool(spoolDesc)
	if err != nil {
		return err
	}
	fc.store.AddFilament(spool)
	fc.addPrinter(name, spool, true)
	return nil
}

func (fc *FarmContext) anUnreachablePrinter(name string) error {
	fc.addPrinter(name, nil, false)
	return nil
}

func (fc *FarmContext) aSpoolInStock(desc string) error {
	spool, err := fc.newSpool(desc)
	if err != nil {
		return err
	}
	fc.store.AddFilament(spool)
	return nil
}

func (fc *FarmContext) aForbiddenZone(startHour, durationHours int) error {
	fc.zones = append(fc.zones, scheduling.ForbiddenZone{
		StartHour:     float64(startHour),
		DurationHours: float64(durationHours),
	})
	return nil
}

func (fc *FarmContext) aProgramPiece(name, color string, buildSeconds, dueHours int) error {
	return fc.aProgramPieceWithCopies(name, color, 1, buildSeconds, dueHours)
}

// aProgramPieceWithCopies writes a real program file whose slicer footer
// carries the wanted estimate, so the piece is quoted through the normal
// parse path.
func (fc *FarmContext) aProgramPieceWithCopies(name, color string, copies, buildSeconds, dueHours int) error {
	path := filepath.Join(fc.dir, name+".gcode")
	program := fmt.Sprintf(
		"G28\nG1 X10 Y10\n; estimated printing time (normal mode) = %dh %dm %ds\n; filament used [g] = 10.0\n",
		buildSeconds/3600, buildSeconds%3600/60, buildSeconds%60,
	)
	if err := os.WriteFile(path, []byte(program), 0o644); err != nil {
		return err
	}

	fc.orderN++
	parent := &order.Order{
		ID:      fc.orderN,
		Client:  "bdd",
		Number:  fmt.Sprintf("ORD-%d", fc.orderN),
		DueDate: fc.clock.Now().Add(time.Duration(dueHours) * time.Hour),
	}
	piece, err := fc.store.CreatePiece(parent, copies, 1.0, []string{color}, nil, nil, path)
	if err != nil {
		return err
	}

	// The program quote parses in the background.
	deadline := time.Now().Add(2 * time.Second)
	for !piece.QuoteReady() {
		if err := piece.Quote.Err(); err != nil {
			return err
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("piece %q quote never became ready", name)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := piece.BuildTime(); got != time.Duration(buildSeconds)*time.Second {
		return fmt.Errorf("piece %q quoted %s, want %ds", name, got, buildSeconds)
	}

	fc.pieces[name] = piece
	return nil
}

func (fc *FarmContext) theSchedulerRuns() error {
	log := zap.NewNop().Sugar()
	dispatcher := dispatch.New(fc.fleet, nullSlicer{}, fc.store, fc.clock, log)
	svc := schedsvc.New(fc.fleet, fc.store, dispatcher, fc.repo, nil, fc.clock, log, schedsvc.Options{
		Zones:    fc.zones,
		Location: time.UTC,
	})
	if err := svc.Tick(context.Background()); err != nil {
		return err
	}
	fc.last = svc.LastSchedule()
	if fc.last == nil {
		return fmt.Errorf("scheduler tick produced no schedule")
	}
	return nil
}

func (fc *FarmContext) theScheduleStatusIs(status string) error {
	if fc.last == nil {
		return fmt.Errorf("no schedule was produced")
	}
	if string(fc.last.Status) != status {
		return fmt.Errorf("schedule status is %s, want %s", fc.last.Status, status)
	}
	return nil
}

func (fc *FarmContext) controller(name string) (*fleet.Controller, error) {
	p, ok := fc.printers[name]
	if !ok {
		return nil, fmt.Errorf("unknown printer %q", name)
	}
	return fc.fleet.Controller(p.ID)
}

func (fc *FarmContext) printerHasQueuedTaskForPiece(printerName, pieceName string) error {
	ctrl, err := fc.controller(printerName)
	if err != nil {
		return err
	}
	piece, ok := fc.pieces[pieceName]
	if !ok {
		return fmt.Errorf("unknown piece %q", pieceName)
	}
	for _, task := range ctrl.QueueSnapshot() {
		if task.Kind == printing.TaskProgram && task.ProgramPath == piece.ProgramPath {
			return nil
		}
	}
	return fmt.Errorf("printer %q has no queued program task for piece %q", printerName, pieceName)
}

func (fc *FarmContext) printerHasQueuedTasks(printerName string, n int) error {
	ctrl, err := fc.controller(printerName)
	if err != nil {
		return err
	}
	if got := len(ctrl.QueueSnapshot()); got != n {
		return fmt.Errorf("printer %q has %d queued tasks, want %d", printerName, got, n)
	}
	return nil
}

func (fc *FarmContext) everyPrinterHasQueuedTasks(n int) error {
	for name := range fc.printers {
		if err := fc.printerHasQueuedTasks(name, n); err != nil {
			return err
		}
	}
	return nil
}

func (fc *FarmContext) pieceHasPendingCopies(name string, n int) error {
	piece, ok := fc.pieces[name]
	if !ok {
		return fmt.Errorf("unknown piece %q", name)
	}
	if got := piece.Pending(); got != n {
		return fmt.Errorf("piece %q has %d pending copies, want %d", name, got, n)
	}
	return nil
}

func (fc *FarmContext) pieceHasQueuedCopies(name string, n int) error {
	piece, ok := fc.pieces[name]
	if !ok {
		return fmt.Errorf("unknown piece %q", name)
	}
	if got := piece.Queued(); got != n {
		return fmt.Errorf("piece %q has %d queued copies, want %d", name, got, n)
	}
	return nil
}

func (fc *FarmContext) noFilamentChangePending() error {
	return fc.filamentChangesPending(0)
}

func (fc *FarmContext) filamentChangesPending(n int) error {
	if got := len(fc.fleet.PendingChanges()); got != n {
		return fmt.Errorf("%d filament changes pending, want %d", got, n)
	}
	return nil
}

func (fc *FarmContext) printTaskDependsOnChange(printerName string) error {
	ctrl, err := fc.controller(printerName)
	if err != nil {
		return err
	}
	for _, task := range ctrl.QueueSnapshot() {
		if task.Kind != printing.TaskProgram && task.Kind != printing.TaskSliceProgram {
			continue
		}
		if task.Dependency == nil {
			return fmt.Errorf("print task on %q has no dependency", printerName)
		}
		if task.Dependency.Kind != printing.TaskFilamentChange {
			return fmt.Errorf("print task on %q depends on %s, want a filament change", printerName, task.Dependency.Kind)
		}
		return nil
	}
	return fmt.Errorf("printer %q has no queued print task", printerName)
}

func (fc *FarmContext) entriesEndWithin(seconds int) error {
	if fc.last == nil {
		return fmt.Errorf("no schedule was produced")
	}
	limit := fc.clock.Now().Add(time.Duration(seconds) * time.Second)
	for _, e := range fc.last.Entries {
		if e.End.After(limit) {
			return fmt.Errorf("entry on printer %d ends at %s, after %s", e.PrinterID, e.End, limit)
		}
	}
	return nil
}

func (fc *FarmContext) entriesTargetPrinter(name string) error {
	if fc.last == nil {
		return fmt.Errorf("no schedule was produced")
	}
	p, ok := fc.printers[name]
	if !ok {
		return fmt.Errorf("unknown printer %q", name)
	}
	if len(fc.last.Entries) == 0 {
		return fmt.Errorf("schedule has no entries")
	}
	for _, e := range fc.last.Entries {
		if e.PrinterID != p.ID {
			return fmt.Errorf("entry targets printer %d, want %d", e.PrinterID, p.ID)
		}
	}
	return nil
}

func (fc *FarmContext) noDeviceTasksQueued() error {
	for _, ctrl := range fc.fleet.Controllers() {
		if n := len(ctrl.QueueSnapshot()); n != 0 {
			return fmt.Errorf("printer %q has %d queued tasks, want none", ctrl.Printer().Name, n)
		}
		if ctrl.ActiveTask() != nil {
			return fmt.Errorf("printer %q has an active task, want none", ctrl.Printer().Name)
		}
	}
	return nil
}

func (fc *FarmContext) lastRunPersistedWithStatus(status string) error {
	last := fc.repo.last()
	if last == nil {
		return fmt.Errorf("no schedule was persisted")
	}
	if string(last.Status) != status {
		return fmt.Errorf("persisted status is %s, want %s", last.Status, status)
	}
	return nil
}

// printerHasStartedTask ticks the controller so it claims its queued task,
// then waits for the runner to upload the program to the scripted host.
func (fc *FarmContext) printerHasStartedTask(name string) error {
	ctrl, err := fc.controller(name)
	if err != nil {
		return err
	}
	ctrl.DispatchTick(context.Background(), 0)

	deadline := time.Now().Add(5 * time.Second)
	for {
		task := ctrl.ActiveTask()
		if task != nil && task.Sent() {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("printer %q never started its task", name)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func (fc *FarmContext) operatorCancelsActive(name string) error {
	p, ok := fc.printers[name]
	if !ok {
		return fmt.Errorf("unknown printer %q", name)
	}
	if err := fc.fleet.CancelActiveTask(context.Background(), p.ID); err != nil {
		return err
	}
	ctrl, err := fc.controller(name)
	if err != nil {
		return err
	}
	ctrl.WaitIdle()
	return nil
}

func (fc *FarmContext) printerHasEmptySlot(name string) error {
	ctrl, err := fc.controller(name)
	if err != nil {
		return err
	}
	if task := ctrl.ActiveTask(); task != nil {
		return fmt.Errorf("printer %q still holds task %s", name, task.ID)
	}
	return nil
}

func (fc *FarmContext) remoteJobAborted(name string) error {
	device, ok := fc.devices[name]
	if !ok {
		return fmt.Errorf("unknown printer %q", name)
	}
	device.mu.Lock()
	defer device.mu.Unlock()
	if device.cancels == 0 {
		return fmt.Errorf("host of %q never saw a cancel", name)
	}
	return nil
}
