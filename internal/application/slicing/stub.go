package slicing

import (
	"sync"
	"time"
)

// StubJob is a controllable slice job handle for tests and for wiring dry
// runs without a slicer daemon.
type StubJob struct {
	mu       sync.Mutex
	ready    bool
	err      error
	build    time.Duration
	estimate time.Duration
	weight   float64
	program  string
}

// NewStubJob returns a handle that is not ready yet.
func NewStubJob(estimate time.Duration) *StubJob {
	return &StubJob{estimate: estimate}
}

// Finish marks the job ready with the given results.
func (s *StubJob) Finish(buildTime time.Duration, weight float64, programPath string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.build = buildTime
	s.weight = weight
	s.program = programPath
	s.ready = true
}

// FailWith marks the job terminally failed.
func (s *StubJob) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

func (s *StubJob) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

func (s *StubJob) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *StubJob) BuildTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.build
}

func (s *StubJob) Weight() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.weight
}

func (s *StubJob) ProgramPath() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.program
}

func (s *StubJob) EstimatedBuildTime() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.build > 0 {
		return s.build
	}
	return s.estimate
}

var _ Job = (*StubJob)(nil)
