package dispatch

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/polyforge/printfarm-go/internal/application/fleet"
	"github.com/polyforge/printfarm-go/internal/application/slicing"
	"github.com/polyforge/printfarm-go/internal/domain/inventory"
	"github.com/polyforge/printfarm-go/internal/domain/order"
	"github.com/polyforge/printfarm-go/internal/domain/printing"
	"github.com/polyforge/printfarm-go/internal/domain/scheduling"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

var testEpoch = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

type nullDevice struct{}

func (nullDevice) Ping(ctx context.Context) bool                             { return true }
func (nullDevice) IssueCommands(ctx context.Context, lines []string) error   { return nil }
func (nullDevice) Cancel(ctx context.Context) error                          { return nil }
func (nullDevice) UploadAndStart(ctx context.Context, file io.Reader, filename string) (string, error) {
	return filename, nil
}
func (nullDevice) FetchPrinterState(ctx context.Context) (printing.PrinterFlags, printing.Temperatures, error) {
	return printing.PrinterFlags{}, printing.Temperatures{}, nil
}
func (nullDevice) FetchJobState(ctx context.Context) (printing.JobStatus, error) {
	return printing.JobStatus{}, nil
}

type fakeStock struct {
	filaments []*inventory.Filament
	profiles  map[string]*inventory.MaterialProfile
}

func (s *fakeStock) Available() []*inventory.Filament { return s.filaments }

func (s *fakeStock) MaterialProfile(material string) *inventory.MaterialProfile {
	return s.profiles[material]
}

type stubSlicer struct {
	job      *slicing.StubJob
	requests []slicing.Request
}

func (s *stubSlicer) Submit(req slicing.Request) (slicing.Job, error) {
	s.requests = append(s.requests, req)
	return s.job, nil
}

type fixedQuote struct {
	build  time.Duration
	weight float64
}

func (q fixedQuote) Ready() bool              { return true }
func (q fixedQuote) Err() error               { return nil }
func (q fixedQuote) BuildTime() time.Duration { return q.build }
func (q fixedQuote) Weight() float64          { return q.weight }

type farm struct {
	fleet    *fleet.Fleet
	registry *fleet.StatusRegistry
	clock    *shared.MockClock
	slicer   *stubSlicer
	stock    *fakeStock
	dsp      *Dispatcher
}

func newFarm(t *testing.T) *farm {
	t.Helper()
	clock := shared.NewMockClock(testEpoch)
	registry := fleet.NewStatusRegistry(time.Minute)
	fl := fleet.New(registry, clock, zap.NewNop().Sugar(), fleet.Options{})
	slicer := &stubSlicer{job: slicing.NewStubJob(time.Hour)}
	stock := &fakeStock{profiles: map[string]*inventory.MaterialProfile{}}
	return &farm{
		fleet:    fl,
		registry: registry,
		clock:    clock,
		slicer:   slicer,
		stock:    stock,
		dsp:      New(fl, slicer, stock, clock, zap.NewNop().Sugar()),
	}
}

func (f *farm) addPrinter(id int, loaded *inventory.Filament) *printing.Printer {
	p := &printing.Printer{
		ID:       id,
		Name:     "printer",
		Profile:  &inventory.PrinterProfile{ID: 1, Bed: inventory.BedShape{X: 250, Y: 250, Z: 250}},
		Filament: loaded,
	}
	f.fleet.AddPrinter(p, nullDevice{})
	f.registry.Put(id, printing.Status{
		Flags:     printing.PrinterFlags{Operational: true, Ready: true},
		UpdatedAt: testEpoch,
	})
	return p
}

func programPiece(id int, colors, materials []string) *order.Piece {
	parent := &order.Order{ID: 1, Client: "acme", Number: "ORD-1", DueDate: testEpoch.Add(48 * time.Hour)}
	p, err := order.NewPiece(parent, 1, 1.0, colors, materials, nil, "/programs/piece.gcode")
	if err != nil {
		panic(err)
	}
	p.ID = id
	p.Quote = fixedQuote{build: time.Hour, weight: 25}
	return p
}

func dueEntry(printerID, pieceID int) *scheduling.ScheduleEntry {
	return &scheduling.ScheduleEntry{
		PrinterID: printerID,
		PieceID:   pieceID,
		Start:     testEpoch,
		End:       testEpoch.Add(time.Hour),
		Deadline:  testEpoch.Add(48 * time.Hour),
	}
}

func TestDispatchLaunchesDueProgramPiece(t *testing.T) {
	f := newFarm(t)
	spool := &inventory.Filament{ID: 1, Color: "blue", Material: "PLA"}
	f.addPrinter(1, spool)
	piece := programPiece(10, []string{"blue"}, []string{"PLA"})

	sched := scheduling.NewSchedule(testEpoch, scheduling.StatusOptimal)
	sched.Entries = []*scheduling.ScheduleEntry{dueEntry(1, 10)}

	err := f.dsp.Dispatch(context.Background(), sched, map[int]*order.Piece{10: piece})

	require.NoError(t, err)
	ctrl, _ := f.fleet.Controller(1)
	queue := ctrl.QueueSnapshot()
	require.Len(t, queue, 1)
	assert.Equal(t, printing.TaskProgram, queue[0].Kind)
	assert.Nil(t, queue[0].Dependency, "loaded spool matches, no filament change")
	assert.Equal(t, 1, piece.Pending())
	assert.Len(t, sched.LaunchedTasks(), 1)
	require.Len(t, f.fleet.PendingChanges(), 0)
	require.NotNil(t, queue[0].Job)
	assert.Equal(t, 25.0, queue[0].Job.WeightG)
}

func TestDispatchIgnoresNonOptimalSchedule(t *testing.T) {
	f := newFarm(t)
	f.addPrinter(1, nil)
	piece := programPiece(10, nil, nil)

	sched := scheduling.NewSchedule(testEpoch, scheduling.StatusInfeasible)
	sched.Entries = []*scheduling.ScheduleEntry{dueEntry(1, 10)}

	require.NoError(t, f.dsp.Dispatch(context.Background(), sched, map[int]*order.Piece{10: piece}))

	ctrl, _ := f.fleet.Controller(1)
	assert.Empty(t, ctrl.QueueSnapshot())
	assert.Empty(t, sched.LaunchedTasks())
}

func TestDispatchSkipsFutureEntries(t *testing.T) {
	f := newFarm(t)
	f.addPrinter(1, &inventory.Filament{ID: 1, Color: "blue", Material: "PLA"})
	piece := programPiece(10, nil, nil)

	entry := dueEntry(1, 10)
	entry.Start = testEpoch.Add(2 * time.Hour)
	sched := scheduling.NewSchedule(testEpoch, scheduling.StatusOptimal)
	sched.Entries = []*scheduling.ScheduleEntry{entry}

	require.NoError(t, f.dsp.Dispatch(context.Background(), sched, map[int]*order.Piece{10: piece}))

	ctrl, _ := f.fleet.Controller(1)
	assert.Empty(t, ctrl.QueueSnapshot())
}

func TestDispatchSkipsUnreachablePrinter(t *testing.T) {
	f := newFarm(t)
	f.addPrinter(1, &inventory.Filament{ID: 1, Color: "blue", Material: "PLA"})
	// Status cache never saw this printer: it reads as a connection error.
	f.registry.Clear(1)
	piece := programPiece(10, nil, nil)

	sched := scheduling.NewSchedule(testEpoch, scheduling.StatusOptimal)
	sched.Entries = []*scheduling.ScheduleEntry{dueEntry(1, 10)}

	require.NoError(t, f.dsp.Dispatch(context.Background(), sched, map[int]*order.Piece{10: piece}))

	ctrl, _ := f.fleet.Controller(1)
	assert.Empty(t, ctrl.QueueSnapshot())
}

func TestDispatchWiresFilamentChangeDependency(t *testing.T) {
	f := newFarm(t)
	loaded := &inventory.Filament{ID: 1, Color: "red", Material: "PLA"}
	wanted := &inventory.Filament{ID: 2, Color: "blue", Material: "PLA"}
	f.addPrinter(1, loaded)
	f.stock.filaments = []*inventory.Filament{wanted}
	piece := programPiece(10, []string{"blue"}, nil)

	sched := scheduling.NewSchedule(testEpoch, scheduling.StatusOptimal)
	sched.Entries = []*scheduling.ScheduleEntry{dueEntry(1, 10)}

	require.NoError(t, f.dsp.Dispatch(context.Background(), sched, map[int]*order.Piece{10: piece}))

	ctrl, _ := f.fleet.Controller(1)
	queue := ctrl.QueueSnapshot()
	require.Len(t, queue, 2)
	// The warm-up change goes first; the print task depends on it.
	assert.Equal(t, printing.TaskFilamentChange, queue[0].Kind)
	assert.Equal(t, printing.TaskProgram, queue[1].Kind)
	assert.Same(t, queue[0], queue[1].Dependency)

	changes := f.fleet.PendingChanges()
	require.Len(t, changes, 1)
	assert.Equal(t, wanted, changes[0].NewFilament)
}

func TestDispatchSkipsPieceWithoutFilament(t *testing.T) {
	f := newFarm(t)
	f.addPrinter(1, nil)
	piece := programPiece(10, []string{"gold"}, nil)

	sched := scheduling.NewSchedule(testEpoch, scheduling.StatusOptimal)
	sched.Entries = []*scheduling.ScheduleEntry{dueEntry(1, 10)}

	require.NoError(t, f.dsp.Dispatch(context.Background(), sched, map[int]*order.Piece{10: piece}))

	ctrl, _ := f.fleet.Controller(1)
	assert.Empty(t, ctrl.QueueSnapshot())
	assert.Equal(t, 1, piece.Queued(), "the copy stays queued for the next cycle")
	assert.Empty(t, sched.LaunchedTasks())
}

func TestDispatchRejectsTwoEntriesOnOnePrinter(t *testing.T) {
	f := newFarm(t)
	f.addPrinter(1, &inventory.Filament{ID: 1, Color: "blue", Material: "PLA"})
	a := programPiece(10, nil, nil)
	b := programPiece(11, nil, nil)

	sched := scheduling.NewSchedule(testEpoch, scheduling.StatusOptimal)
	sched.Entries = []*scheduling.ScheduleEntry{dueEntry(1, 10), dueEntry(1, 11)}

	err := f.dsp.Dispatch(context.Background(), sched, map[int]*order.Piece{10: a, 11: b})

	assert.Error(t, err)
}

func TestReshuffleSwapAvoidsBothFilamentChanges(t *testing.T) {
	f := newFarm(t)
	red := &inventory.Filament{ID: 1, Color: "red", Material: "PLA"}
	blue := &inventory.Filament{ID: 2, Color: "blue", Material: "PLA"}
	f.addPrinter(1, red)
	f.addPrinter(2, blue)
	f.stock.filaments = []*inventory.Filament{red, blue}

	// The solver placed the blue piece on the red printer and vice versa.
	wantsBlue := programPiece(10, []string{"blue"}, nil)
	wantsRed := programPiece(11, []string{"red"}, nil)
	sched := scheduling.NewSchedule(testEpoch, scheduling.StatusOptimal)
	sched.Entries = []*scheduling.ScheduleEntry{dueEntry(1, 10), dueEntry(2, 11)}

	err := f.dsp.Dispatch(context.Background(), sched, map[int]*order.Piece{10: wantsBlue, 11: wantsRed})

	require.NoError(t, err)
	assert.Empty(t, f.fleet.PendingChanges(), "the swap makes both spools match")

	ctrl1, _ := f.fleet.Controller(1)
	ctrl2, _ := f.fleet.Controller(2)
	require.Len(t, ctrl1.QueueSnapshot(), 1)
	require.Len(t, ctrl2.QueueSnapshot(), 1)
	assert.Equal(t, "/programs/piece.gcode", ctrl2.QueueSnapshot()[0].ProgramPath)
}

func TestReshuffleLeavesSatisfiedEntriesAlone(t *testing.T) {
	f := newFarm(t)
	red := &inventory.Filament{ID: 1, Color: "red", Material: "PLA"}
	blue := &inventory.Filament{ID: 2, Color: "blue", Material: "PLA"}
	f.addPrinter(1, red)
	f.addPrinter(2, blue)

	// Both entries already sit on a matching spool; no swap may happen.
	wantsRed := programPiece(10, []string{"red"}, nil)
	wantsBlue := programPiece(11, []string{"blue"}, nil)
	sched := scheduling.NewSchedule(testEpoch, scheduling.StatusOptimal)
	sched.Entries = []*scheduling.ScheduleEntry{dueEntry(1, 10), dueEntry(2, 11)}

	require.NoError(t, f.dsp.Dispatch(context.Background(), sched, map[int]*order.Piece{10: wantsRed, 11: wantsBlue}))

	assert.Empty(t, f.fleet.PendingChanges())
	assert.Equal(t, 1, sched.Entries[0].PrinterID)
	assert.Equal(t, 2, sched.Entries[1].PrinterID)
}

func TestDispatchGeometryPieceGoesThroughSlicer(t *testing.T) {
	f := newFarm(t)
	spool := &inventory.Filament{ID: 1, Color: "blue", Material: "PLA"}
	f.addPrinter(1, spool)
	f.stock.profiles["PLA"] = &inventory.MaterialProfile{ID: 1, Material: "PLA"}

	parent := &order.Order{ID: 1, DueDate: testEpoch.Add(48 * time.Hour)}
	piece, err := order.NewPiece(parent, 1, 1.0, nil, nil, &order.GeometryModel{ID: 5, FilePath: "/models/bracket.stl", SizeX: 50, SizeY: 50, SizeZ: 50}, "")
	require.NoError(t, err)
	piece.ID = 10
	piece.Quote = fixedQuote{build: time.Hour, weight: 12}

	sched := scheduling.NewSchedule(testEpoch, scheduling.StatusOptimal)
	sched.Entries = []*scheduling.ScheduleEntry{dueEntry(1, 10)}

	require.NoError(t, f.dsp.Dispatch(context.Background(), sched, map[int]*order.Piece{10: piece}))

	ctrl, _ := f.fleet.Controller(1)
	queue := ctrl.QueueSnapshot()
	require.Len(t, queue, 1)
	assert.Equal(t, printing.TaskSliceProgram, queue[0].Kind)

	require.Len(t, f.slicer.requests, 1)
	req := f.slicer.requests[0]
	assert.Equal(t, "/models/bracket.stl", req.GeometryPath)
	assert.True(t, req.Config.AutoPrintProfile, "no pinned settings, the slicer picks the print profile")
	assert.True(t, req.SaveProgram)
	assert.Equal(t, "PLA", req.Config.MaterialProfile.Material)
}
