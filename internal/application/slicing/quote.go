package slicing

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/polyforge/printfarm-go/pkg/gcode"
)

// ProgramQuote quotes a ready-made print program by parsing the slicer
// comments at its tail. Pieces created with a program instead of a geometry
// model get one of these as their quote handle.
type ProgramQuote struct {
	path string

	mu        sync.Mutex
	ready     bool
	err       error
	buildTime time.Duration
	weight    float64
}

// NewProgramQuote starts parsing the program in the background and returns
// the handle immediately, mirroring the asynchronous slice-quote flow.
func NewProgramQuote(path string) *ProgramQuote {
	q := &ProgramQuote{path: path}
	go q.parse()
	return q
}

func (q *ProgramQuote) parse() {
	file, err := os.Open(q.path)
	if err != nil {
		q.fail(fmt.Errorf("open program: %w", err))
		return
	}
	defer file.Close()

	est, err := gcode.ParseEstimates(file)
	if err != nil {
		q.fail(fmt.Errorf("quote program %s: %w", q.path, err))
		return
	}
	q.mu.Lock()
	q.buildTime = est.BuildTime
	q.weight = est.WeightG
	q.ready = true
	q.mu.Unlock()
}

func (q *ProgramQuote) fail(err error) {
	q.mu.Lock()
	q.err = err
	q.mu.Unlock()
}

func (q *ProgramQuote) Ready() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready
}

func (q *ProgramQuote) Err() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.err
}

func (q *ProgramQuote) BuildTime() time.Duration {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.buildTime
}

func (q *ProgramQuote) Weight() float64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.weight
}

// ProgramPath returns the quoted program file.
func (q *ProgramQuote) ProgramPath() string {
	return q.path
}

// EstimatedBuildTime equals the parsed build time; a parse quote has no
// intermediate estimate phase.
func (q *ProgramQuote) EstimatedBuildTime() time.Duration {
	return q.BuildTime()
}

var _ Job = (*ProgramQuote)(nil)
