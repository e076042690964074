package scheduling

import (
	"sort"
)

// defaultNodeCap bounds the branch-and-bound search. Fleet sizes here are
// tens of machines and at most a few hundred pending copies, so the cap is
// generous; hitting it without an incumbent reports UNKNOWN.
const defaultNodeCap = 2_000_000

// Solver assigns tasks to machines over integer-second intervals, minimizing
// makespan under four constraint families: each task placed exactly once on a
// compatible machine, per-machine intervals disjoint, every end before its
// deadline, and every placed interval inside one allowed window.
//
// In-flight tasks arrive pinned: their machine is fixed and their interval
// starts at zero, occupying the head of that machine's timeline.
type Solver struct {
	// NodeCap overrides the search budget when positive.
	NodeCap int
}

// Solve runs the optimizer. The allowed windows must cover [0, horizon] as
// produced by AllowedWindows; pinned tasks are exempt from window and
// compatibility checks since they already occupy their machine.
func (s *Solver) Solve(tasks []TaskSpec, machineCount int, allowed []Window) Solution {
	if machineCount < 0 {
		return Solution{Status: StatusInvalid}
	}

	var pinned, pending []TaskSpec
	for _, t := range tasks {
		if t.Processing <= 0 || t.Deadline <= 0 {
			return Solution{Status: StatusInvalid}
		}
		if t.Pinned {
			if len(t.Machines) != 1 || t.Machines[0] < 0 || t.Machines[0] >= machineCount {
				return Solution{Status: StatusInvalid}
			}
			pinned = append(pinned, t)
			continue
		}
		for _, m := range t.Machines {
			if m < 0 || m >= machineCount {
				return Solution{Status: StatusInvalid}
			}
		}
		pending = append(pending, t)
	}

	// A pending task with no compatible machine can never be placed.
	for _, t := range pending {
		if len(t.Machines) == 0 {
			return Solution{Status: StatusInfeasible}
		}
	}

	avail := make([]int64, machineCount)
	fixed := make([]Assignment, 0, len(pinned))
	base := int64(0)
	for _, t := range pinned {
		m := t.Machines[0]
		if avail[m] != 0 {
			// Two in-flight tasks on one machine violates the single
			// active-slot invariant upstream.
			return Solution{Status: StatusInvalid}
		}
		avail[m] = t.Processing
		fixed = append(fixed, Assignment{Task: t, Machine: m, Start: 0, End: t.Processing})
		if t.Processing > base {
			base = t.Processing
		}
	}

	if len(pending) == 0 {
		return Solution{Status: StatusOptimal, Makespan: base, Assignment: fixed}
	}

	// Earliest-deadline-first task order; the search branches on the
	// (machine, window) pair per task.
	order := make([]TaskSpec, len(pending))
	copy(order, pending)
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].Deadline != order[j].Deadline {
			return order[i].Deadline < order[j].Deadline
		}
		return order[i].Processing > order[j].Processing
	})

	budget := s.NodeCap
	if budget <= 0 {
		budget = defaultNodeCap
	}
	st := &searchState{
		order:    order,
		allowed:  allowed,
		nodesMax: budget,
		bestMake: int64(1) << 62,
	}
	// One frontier per (machine, window): the next free second inside that
	// window. Pinned work pushes the frontiers of the windows it overlaps.
	st.frontier = make([][]int64, machineCount)
	for m := range st.frontier {
		st.frontier[m] = make([]int64, len(allowed))
		for w, win := range allowed {
			st.frontier[m][w] = win.Lo
			if avail[m] > win.Lo {
				st.frontier[m][w] = avail[m]
			}
		}
	}
	st.current = make([]Assignment, 0, len(order))
	st.dfs(0, base)

	if st.best == nil {
		if st.nodes >= st.nodesMax {
			return Solution{Status: StatusUnknown}
		}
		return Solution{Status: StatusInfeasible}
	}
	return Solution{
		Status:     StatusOptimal,
		Makespan:   st.bestMake,
		Assignment: append(fixed, st.best...),
	}
}

type searchState struct {
	order    []TaskSpec
	allowed  []Window
	frontier [][]int64 // per machine, per window: next free second
	current  []Assignment
	best     []Assignment
	bestMake int64
	nodes    int
	nodesMax int
}

// dfs branches each task over every (machine, window) pair, packing it at
// that window's frontier. Within one window on one machine tasks run back to
// back in deadline order, and any feasible schedule can be reordered that way
// and left-shifted without missing a deadline or raising the makespan, so
// the search is exhaustive over the model. A task placed in a later window
// leaves earlier windows open for the tasks after it.
func (st *searchState) dfs(idx int, makespan int64) {
	if makespan >= st.bestMake {
		return
	}
	if idx == len(st.order) {
		st.bestMake = makespan
		st.best = make([]Assignment, len(st.current))
		copy(st.best, st.current)
		return
	}
	if st.nodes >= st.nodesMax {
		return
	}

	t := st.order[idx]
	for _, m := range t.Machines {
		for w, win := range st.allowed {
			if win.Lo+t.Processing > t.Deadline {
				// Windows are sorted; every later one starts later still.
				break
			}
			st.nodes++
			start := st.frontier[m][w]
			end := start + t.Processing
			if end > win.Hi || end > t.Deadline {
				continue
			}

			st.frontier[m][w] = end
			st.current = append(st.current, Assignment{Task: t, Machine: m, Start: start, End: end})

			next := makespan
			if end > next {
				next = end
			}
			st.dfs(idx+1, next)

			st.current = st.current[:len(st.current)-1]
			st.frontier[m][w] = start
		}
	}
}
