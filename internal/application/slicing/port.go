// Package slicing wraps the external slicing/quoting service behind a small
// submit/ready/result contract. The farm core never sees meshes or slicer
// internals, only job handles.
package slicing

import (
	"time"

	"github.com/polyforge/printfarm-go/internal/domain/inventory"
)

// Request describes one slice job submission.
type Request struct {
	GeometryPath string
	Scale        float64
	Config       *inventory.SliceConfiguration
	SaveProgram  bool
}

// Job is the handle returned for a submitted slice or quote job. It satisfies
// both the device task's SliceJob contract and the piece's Quote contract.
type Job interface {
	Ready() bool
	Err() error
	BuildTime() time.Duration
	Weight() float64
	ProgramPath() string
	EstimatedBuildTime() time.Duration
}

// Service submits geometry to the slicer.
type Service interface {
	Submit(req Request) (Job, error)
}
