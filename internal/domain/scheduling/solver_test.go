package scheduling

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wholeHorizon(h int64) []Window {
	return []Window{{Lo: 0, Hi: h}}
}

func TestSolveSingleTask(t *testing.T) {
	s := &Solver{}
	tasks := []TaskSpec{
		{ID: "a", PieceID: 1, Processing: 3600, Deadline: 2 * 86400, Machines: []int{0}},
	}

	sol := s.Solve(tasks, 1, wholeHorizon(3600))

	require.Equal(t, StatusOptimal, sol.Status)
	require.Len(t, sol.Assignment, 1)
	assert.Equal(t, int64(0), sol.Assignment[0].Start)
	assert.Equal(t, int64(3600), sol.Assignment[0].End)
	assert.Equal(t, int64(3600), sol.Makespan)
}

func TestSolveSpreadsAcrossMachines(t *testing.T) {
	s := &Solver{}
	tasks := []TaskSpec{
		{ID: "a", PieceID: 1, Processing: 100, Deadline: 1000, Machines: []int{0, 1}},
		{ID: "b", PieceID: 2, Processing: 100, Deadline: 1000, Machines: []int{0, 1}},
	}

	sol := s.Solve(tasks, 2, wholeHorizon(1000))

	require.Equal(t, StatusOptimal, sol.Status)
	// Two machines, equal tasks: optimal makespan runs them in parallel.
	assert.Equal(t, int64(100), sol.Makespan)
	machines := map[int]bool{}
	for _, a := range sol.Assignment {
		machines[a.Machine] = true
	}
	assert.Len(t, machines, 2)
}

func TestSolvePerMachineIntervalsDisjoint(t *testing.T) {
	s := &Solver{}
	tasks := []TaskSpec{
		{ID: "a", PieceID: 1, Processing: 300, Deadline: 5000, Machines: []int{0}},
		{ID: "b", PieceID: 2, Processing: 400, Deadline: 5000, Machines: []int{0}},
		{ID: "c", PieceID: 3, Processing: 500, Deadline: 5000, Machines: []int{0}},
	}

	sol := s.Solve(tasks, 1, wholeHorizon(5000))

	require.Equal(t, StatusOptimal, sol.Status)
	require.Len(t, sol.Assignment, 3)
	for i, a := range sol.Assignment {
		for j, b := range sol.Assignment {
			if i == j {
				continue
			}
			overlap := a.Start < b.End && b.Start < a.End
			assert.False(t, overlap, "intervals %s and %s overlap", a.Task.ID, b.Task.ID)
		}
	}
}

func TestSolveHonorsDeadline(t *testing.T) {
	s := &Solver{}
	tasks := []TaskSpec{
		{ID: "a", PieceID: 1, Processing: 600, Deadline: 1000, Machines: []int{0}},
		{ID: "b", PieceID: 2, Processing: 600, Deadline: 1000, Machines: []int{0}},
	}

	// Two 600 s tasks cannot both end by 1000 on one machine.
	sol := s.Solve(tasks, 1, wholeHorizon(2000))

	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestSolveIntervalNeverStraddlesWindows(t *testing.T) {
	s := &Solver{}
	// One 30 min task; allowed spans leave a 10 min slot then a later one.
	allowed := []Window{{Lo: 0, Hi: 600}, {Lo: 4000, Hi: 8000}}
	tasks := []TaskSpec{
		{ID: "a", PieceID: 1, Processing: 1800, Deadline: 8000, Machines: []int{0}},
	}

	sol := s.Solve(tasks, 1, allowed)

	require.Equal(t, StatusOptimal, sol.Status)
	a := sol.Assignment[0]
	assert.Equal(t, int64(4000), a.Start)
	inOne := false
	for _, w := range allowed {
		if w.Contains(a.Start, a.End) {
			inOne = true
		}
	}
	assert.True(t, inOne, "placed interval must sit inside a single allowed window")
}

func TestSolveFitsBeforeForbiddenZone(t *testing.T) {
	s := &Solver{}
	// An hour of open floor before the nightly zone; the 30 min task starts
	// immediately, not after the zone.
	allowed := []Window{{Lo: 0, Hi: 3600}, {Lo: 3600 + 8*3600, Hi: 12 * 3600}}
	tasks := []TaskSpec{
		{ID: "a", PieceID: 1, Processing: 1800, Deadline: 2 * 86400, Machines: []int{0}},
	}

	sol := s.Solve(tasks, 1, allowed)

	require.Equal(t, StatusOptimal, sol.Status)
	assert.Equal(t, int64(0), sol.Assignment[0].Start)
	assert.Equal(t, int64(1800), sol.Assignment[0].End)
}

func TestSolveBackfillsEarlierWindowBehindTightTask(t *testing.T) {
	s := &Solver{}
	// The tight-deadline task only fits the later window; the looser one must
	// backfill the short window in front of it on the same machine.
	allowed := []Window{{Lo: 0, Hi: 2}, {Lo: 4, Hi: 9}}
	tasks := []TaskSpec{
		{ID: "tight", PieceID: 1, Processing: 5, Deadline: 9, Machines: []int{0}},
		{ID: "loose", PieceID: 2, Processing: 2, Deadline: 13, Machines: []int{0}},
		{ID: "side", PieceID: 3, Processing: 2, Deadline: 20, Machines: []int{1}},
	}

	sol := s.Solve(tasks, 2, allowed)

	require.Equal(t, StatusOptimal, sol.Status)
	require.Len(t, sol.Assignment, 3)
	byID := map[string]Assignment{}
	for _, a := range sol.Assignment {
		byID[a.Task.ID] = a
	}
	assert.Equal(t, int64(4), byID["tight"].Start)
	assert.Equal(t, int64(9), byID["tight"].End)
	assert.Equal(t, int64(0), byID["loose"].Start)
	assert.Equal(t, int64(2), byID["loose"].End)
	assert.Equal(t, int64(9), sol.Makespan)
}

func TestSolvePinnedOccupiesMachineHead(t *testing.T) {
	s := &Solver{}
	tasks := []TaskSpec{
		{ID: "active", DeviceTask: "t1", Processing: 1000, Deadline: 1000, Machines: []int{0}, Pinned: true},
		{ID: "a", PieceID: 1, Processing: 500, Deadline: 5000, Machines: []int{0}},
	}

	sol := s.Solve(tasks, 1, wholeHorizon(5000))

	require.Equal(t, StatusOptimal, sol.Status)
	require.Len(t, sol.Assignment, 2)
	byID := map[string]Assignment{}
	for _, a := range sol.Assignment {
		byID[a.Task.ID] = a
	}
	assert.Equal(t, int64(0), byID["active"].Start)
	assert.Equal(t, int64(1000), byID["active"].End)
	assert.GreaterOrEqual(t, byID["a"].Start, int64(1000))
}

func TestSolveTwoPinnedOnOneMachineInvalid(t *testing.T) {
	s := &Solver{}
	tasks := []TaskSpec{
		{ID: "x", DeviceTask: "t1", Processing: 100, Deadline: 100, Machines: []int{0}, Pinned: true},
		{ID: "y", DeviceTask: "t2", Processing: 100, Deadline: 100, Machines: []int{0}, Pinned: true},
	}

	sol := s.Solve(tasks, 1, wholeHorizon(1000))

	assert.Equal(t, StatusInvalid, sol.Status)
}

func TestSolveNoCompatibleMachineInfeasible(t *testing.T) {
	s := &Solver{}
	tasks := []TaskSpec{
		{ID: "a", PieceID: 1, Processing: 100, Deadline: 1000, Machines: nil},
	}

	sol := s.Solve(tasks, 1, wholeHorizon(1000))

	assert.Equal(t, StatusInfeasible, sol.Status)
}

func TestSolveRejectsNonPositiveProcessing(t *testing.T) {
	s := &Solver{}
	tasks := []TaskSpec{
		{ID: "a", PieceID: 1, Processing: 0, Deadline: 1000, Machines: []int{0}},
	}

	sol := s.Solve(tasks, 1, wholeHorizon(1000))

	assert.Equal(t, StatusInvalid, sol.Status)
}

func TestSolveNodeCapReportsUnknown(t *testing.T) {
	s := &Solver{NodeCap: 1}
	// Enough branching that a single node cannot find an incumbent.
	tasks := []TaskSpec{
		{ID: "a", PieceID: 1, Processing: 100, Deadline: 100, Machines: []int{0, 1}},
		{ID: "b", PieceID: 2, Processing: 100, Deadline: 100, Machines: []int{0, 1}},
		{ID: "c", PieceID: 3, Processing: 100, Deadline: 100, Machines: []int{0, 1}},
	}

	sol := s.Solve(tasks, 2, wholeHorizon(10000))

	assert.Equal(t, StatusUnknown, sol.Status)
}
