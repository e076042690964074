// Package scheduling runs the periodic optimizer pass: snapshot the pending
// work and the fleet, solve, persist the schedule, and hand the due entries
// to the dispatcher.
package scheduling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/polyforge/printfarm-go/internal/application/fleet"
	"github.com/polyforge/printfarm-go/internal/domain/order"
	"github.com/polyforge/printfarm-go/internal/domain/scheduling"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// PieceSource supplies the pieces the scheduler may place.
type PieceSource interface {
	Placeable() []*order.Piece
}

// Launcher consumes a finished schedule. Implemented by dispatch.Dispatcher.
type Launcher interface {
	Dispatch(ctx context.Context, schedule *scheduling.Schedule, pieces map[int]*order.Piece) error
}

// Repository persists schedules. Optional; a nil repository keeps runs
// in-memory only.
type Repository interface {
	SaveSchedule(ctx context.Context, schedule *scheduling.Schedule) error
}

// SolveObserver receives the outcome of each optimizer run. Optional.
type SolveObserver interface {
	ObserveSolve(status scheduling.SolverStatus, elapsed time.Duration)
}

// Options tunes the scheduler service.
type Options struct {
	Period   time.Duration
	Zones    []scheduling.ForbiddenZone
	Location *time.Location
	NodeCap  int
}

// Service owns the scheduler→dispatcher chain. One chain runs at a time:
// a tick that fires while the previous chain is still working is coalesced
// away rather than queued.
type Service struct {
	fleet    *fleet.Fleet
	pieces   PieceSource
	launcher Launcher
	repo     Repository
	observer SolveObserver
	clock    shared.Clock
	log      *zap.SugaredLogger
	opts     Options
	solver   *scheduling.Solver

	mu   sync.Mutex
	last *scheduling.Schedule
}

// New wires the scheduler service.
func New(fl *fleet.Fleet, pieces PieceSource, launcher Launcher, repo Repository, observer SolveObserver, clock shared.Clock, log *zap.SugaredLogger, opts Options) *Service {
	if clock == nil {
		clock = shared.NewRealClock()
	}
	if opts.Period == 0 {
		opts.Period = 10 * time.Second
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	return &Service{
		fleet:    fl,
		pieces:   pieces,
		launcher: launcher,
		repo:     repo,
		observer: observer,
		clock:    clock,
		log:      log,
		opts:     opts,
		solver:   &scheduling.Solver{NodeCap: opts.NodeCap},
	}
}

// Run ticks the service until the context is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.opts.Period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Tick(ctx); err != nil {
				s.log.Errorw("scheduler tick failed", "error", err)
			}
		}
	}
}

// LastSchedule returns the most recent run, nil before the first.
func (s *Service) LastSchedule() *scheduling.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Tick runs one scheduler pass. Skips silently when the previous chain has
// not finished or when there is nothing to place.
func (s *Service) Tick(ctx context.Context) error {
	if last := s.LastSchedule(); last != nil && !last.Ready() {
		s.log.Debugw("previous schedule chain still running, tick coalesced")
		return nil
	}

	now := s.clock.Now()
	machines := s.schedulableControllers()
	placeable := s.pieces.Placeable()

	specs, pieceByID, sumProcessing := s.buildSpecs(now, machines, placeable)
	if !hasPending(specs) {
		return nil
	}

	// The horizon is the sum of all processing times: the tightest bound
	// under which every task could still be packed back to back.
	horizon := sumProcessing
	allowed := scheduling.AllowedWindows(now, s.opts.Location, s.opts.Zones, horizon)

	started := time.Now()
	sol := s.solver.Solve(specs, len(machines), allowed)
	if s.observer != nil {
		s.observer.ObserveSolve(sol.Status, time.Since(started))
	}

	schedule := scheduling.NewSchedule(now, sol.Status)
	if sol.Status == scheduling.StatusOptimal {
		for _, a := range sol.Assignment {
			schedule.Entries = append(schedule.Entries, &scheduling.ScheduleEntry{
				PrinterID:    machines[a.Machine].Printer().ID,
				PieceID:      a.Task.PieceID,
				DeviceTaskID: a.Task.DeviceTask,
				Start:        now.Add(time.Duration(a.Start) * time.Second),
				End:          now.Add(time.Duration(a.End) * time.Second),
				Deadline:     now.Add(time.Duration(a.Task.Deadline) * time.Second),
			})
		}
	}
	s.mu.Lock()
	s.last = schedule
	s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.SaveSchedule(ctx, schedule); err != nil {
			s.log.Errorw("schedule persist failed", "schedule", schedule.ID, "error", err)
		}
	}

	s.log.Infow("schedule solved",
		"schedule", schedule.ID,
		"status", sol.Status,
		"entries", len(schedule.Entries),
		"machines", len(machines),
		"makespan_s", sol.Makespan)

	var err error
	if sol.Status == scheduling.StatusOptimal {
		err = s.launcher.Dispatch(ctx, schedule, pieceByID)
	}
	schedule.MarkFinished(s.clock.Now())
	if err != nil {
		return fmt.Errorf("dispatch schedule %s: %w", schedule.ID, err)
	}
	return nil
}

// schedulableControllers returns the machines the solver may use: enabled,
// reachable, and not locked by the operator. Busy printers stay in; their
// in-flight task enters the model pinned.
func (s *Service) schedulableControllers() []*fleet.Controller {
	var out []*fleet.Controller
	for _, c := range s.fleet.EnabledControllers() {
		if c.Locked() {
			continue
		}
		if c.SnapshotStatus().ConnectionError {
			continue
		}
		out = append(out, c)
	}
	return out
}

// buildSpecs assembles the solver input: one pinned spec per in-flight device
// task and one pending spec per queued copy of each placeable piece.
func (s *Service) buildSpecs(now time.Time, machines []*fleet.Controller, placeable []*order.Piece) ([]scheduling.TaskSpec, map[int]*order.Piece, int64) {
	var specs []scheduling.TaskSpec
	var sum int64

	for idx, ctrl := range machines {
		task := ctrl.ActiveTask()
		if task == nil || task.Terminal() {
			continue
		}
		left := int64(ctrl.TimeLeft(now).Seconds())
		if left < 1 {
			left = 1
		}
		specs = append(specs, scheduling.TaskSpec{
			ID:         "active-" + task.ID.String(),
			DeviceTask: task.ID.String(),
			Processing: left,
			Deadline:   left,
			Machines:   []int{idx},
			Pinned:     true,
		})
		sum += left
	}

	pieceByID := make(map[int]*order.Piece, len(placeable))
	for _, piece := range placeable {
		pieceByID[piece.ID] = piece

		var compat []int
		for idx, ctrl := range machines {
			if piece.CompatibleWith(ctrl.Printer()) {
				compat = append(compat, idx)
			}
		}

		processing := int64(piece.BuildTime().Seconds())
		if processing < 1 {
			processing = 1
		}
		deadline := int64(piece.DeadlineFromNow(now).Seconds())
		for copyN := 0; copyN < piece.Queued(); copyN++ {
			specs = append(specs, scheduling.TaskSpec{
				ID:         fmt.Sprintf("piece-%d-%d", piece.ID, copyN),
				PieceID:    piece.ID,
				Processing: processing,
				Deadline:   deadline,
				Machines:   compat,
			})
			sum += processing
		}
	}
	return specs, pieceByID, sum
}

func hasPending(specs []scheduling.TaskSpec) bool {
	for _, t := range specs {
		if !t.Pinned {
			return true
		}
	}
	return false
}
