// Package dispatch bridges a fresh schedule and the fleet: it launches the
// due-now entries as device tasks, reshuffling assignments where a swap
// avoids a filament change and wiring change dependencies where it cannot.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/polyforge/printfarm-go/internal/application/fleet"
	"github.com/polyforge/printfarm-go/internal/application/slicing"
	"github.com/polyforge/printfarm-go/internal/domain/inventory"
	"github.com/polyforge/printfarm-go/internal/domain/order"
	"github.com/polyforge/printfarm-go/internal/domain/printing"
	"github.com/polyforge/printfarm-go/internal/domain/scheduling"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// Stock supplies the dispatcher's filament and profile lookups.
type Stock interface {
	Available() []*inventory.Filament
	MaterialProfile(material string) *inventory.MaterialProfile
}

// Dispatcher materializes due schedule entries into device tasks.
type Dispatcher struct {
	fleet  *fleet.Fleet
	slicer slicing.Service
	stock  Stock
	clock  shared.Clock
	log    *zap.SugaredLogger
}

// New wires the dispatcher.
func New(fl *fleet.Fleet, slicer slicing.Service, stock Stock, clock shared.Clock, log *zap.SugaredLogger) *Dispatcher {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	return &Dispatcher{fleet: fl, slicer: slicer, stock: stock, clock: clock, log: log}
}

// Dispatch launches every entry of an OPTIMAL schedule whose start has
// arrived and which places a piece. Entries targeting unreachable printers
// are ignored; a piece with no compatible filament is skipped until the next
// cycle.
func (d *Dispatcher) Dispatch(ctx context.Context, schedule *scheduling.Schedule, pieces map[int]*order.Piece) error {
	if schedule.Status != scheduling.StatusOptimal {
		return nil
	}
	now := d.clock.Now()

	var due []*scheduling.ScheduleEntry
	for _, e := range schedule.Entries {
		if e.PieceID == 0 || e.Start.After(now) {
			continue
		}
		ctrl, err := d.fleet.Controller(e.PrinterID)
		if err != nil || !ctrl.PrinterReady() {
			continue
		}
		due = append(due, e)
	}
	if len(due) == 0 {
		return nil
	}

	// One due entry per printer; the solver's disjunctive constraint makes
	// anything else a bug.
	printers := lo.Uniq(lo.Map(due, func(e *scheduling.ScheduleEntry, _ int) int { return e.PrinterID }))
	if len(printers) != len(due) {
		return fmt.Errorf("dispatch invariant violated: %d due entries on %d printers", len(due), len(printers))
	}

	d.reshuffle(due, pieces)

	var errs error
	for _, e := range due {
		if err := d.launch(ctx, schedule, e, pieces[e.PieceID], now); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("piece %d on printer %d: %w", e.PieceID, e.PrinterID, err))
		}
	}
	return errs
}

// reshuffle applies the filament-avoidance swap heuristic over the due set:
// when a piece's requirement matches the spool already loaded in another due
// printer, and that printer's current piece does not match its spool, the
// two entries trade printers, provided both pieces still fit where they
// land. First improving swap wins per entry.
//
// The check is deliberately one-sided (only the target's spool mismatch is
// tested), mirroring the behavior the farm has run with.
func (d *Dispatcher) reshuffle(due []*scheduling.ScheduleEntry, pieces map[int]*order.Piece) {
	for i := range due {
		for j := range due {
			if i == j {
				continue
			}
			e, other := due[i], due[j]
			pe, po := pieces[e.PieceID], pieces[other.PieceID]
			if pe == nil || po == nil {
				continue
			}
			ctrlE, errE := d.fleet.Controller(e.PrinterID)
			ctrlO, errO := d.fleet.Controller(other.PrinterID)
			if errE != nil || errO != nil {
				continue
			}
			target := ctrlO.Printer()
			if !target.LoadedMatches(pe.Colors, pe.Materials) {
				continue
			}
			if target.LoadedMatches(po.Colors, po.Materials) {
				// Target already holds the right spool for its own piece.
				continue
			}
			if !pe.CompatibleWith(target) || !po.CompatibleWith(ctrlE.Printer()) {
				continue
			}
			e.PrinterID, other.PrinterID = other.PrinterID, e.PrinterID
			d.log.Debugw("swapped due entries to avoid filament change",
				"piece_a", pe.ID, "piece_b", po.ID)
			break
		}
	}
}

// launch enqueues the device tasks for one due entry: the print task itself
// and, when the chosen spool is not loaded, the filament change it depends on.
func (d *Dispatcher) launch(ctx context.Context, schedule *scheduling.Schedule, entry *scheduling.ScheduleEntry, piece *order.Piece, now time.Time) error {
	if piece == nil {
		return fmt.Errorf("schedule entry references unknown piece %d", entry.PieceID)
	}
	ctrl, err := d.fleet.Controller(entry.PrinterID)
	if err != nil {
		return err
	}
	printer := ctrl.Printer()

	loaded := d.fleet.LoadedFilament(printer.ID)
	chosen := loaded
	if chosen == nil || !chosen.Matches(piece.Colors, piece.Materials) {
		chosen = piece.SelectFilament(d.stock.Available())
	}
	if chosen == nil {
		d.log.Warnw("no compatible filament, skipping piece this cycle", "piece", piece.ID)
		return nil
	}

	var task *printing.DeviceTask
	if piece.Geometry != nil {
		cfg := &inventory.SliceConfiguration{
			PrinterProfile:   printer.Profile,
			MaterialProfile:  d.stock.MaterialProfile(chosen.Material),
			AutoPrintProfile: piece.PrintSettings == nil,
			AutoSupport:      true,
		}
		sliceJob, err := d.slicer.Submit(slicing.Request{
			GeometryPath: piece.Geometry.FilePath,
			Scale:        piece.Scale,
			Config:       cfg,
			SaveProgram:  true,
		})
		if err != nil {
			return fmt.Errorf("submit slice job: %w", err)
		}
		task = printing.NewSliceProgramTask(printer.ID, sliceJob, now)
	} else {
		task = printing.NewProgramTask(printer.ID, piece.ProgramPath, now)
	}

	var change *printing.FilamentChange
	if loaded == nil || loaded.ID != chosen.ID {
		change = printing.NewFilamentChange(printer.ID, loaded, chosen, now)
		task.Dependency = change.Task
		if err := printing.ValidateChain([]*printing.DeviceTask{change.Task, task}); err != nil {
			return err
		}
	}

	if change != nil {
		ctrl.Enqueue(change.Task)
		d.fleet.RegisterChange(change)
	}
	ctrl.Enqueue(task)

	job := printing.NewPrintJob(task, chosen, now, piece.BuildTime())
	job.WeightG = piece.Weight()
	piece.AddUnit(job)
	d.fleet.RegisterJob(job)
	schedule.RecordLaunched(task.ID)

	d.log.Infow("piece launched",
		"piece", piece.ID,
		"printer", printer.Name,
		"task", task.ID,
		"filament_change", change != nil)
	return nil
}
