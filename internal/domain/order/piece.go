package order

import (
	"sync"
	"time"

	"github.com/polyforge/printfarm-go/internal/domain/inventory"
	"github.com/polyforge/printfarm-go/internal/domain/printing"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// Quote is the handle a piece holds on its build-time and weight estimation.
// For geometry pieces this is the quoting slice job; for ready programs it is
// the program-file parse quoter.
type Quote interface {
	Ready() bool
	Err() error
	BuildTime() time.Duration
	Weight() float64
}

// Piece is one orderable item. It expands to Copies physical prints, each
// tracked by a UnitPiece created when a print job is launched for it.
//
// A piece carries exactly one of a geometry model or a ready print program;
// NewPiece enforces the invariant.
type Piece struct {
	ID            int
	Order         *Order
	Copies        int
	Scale         float64
	Colors        []string
	Materials     []string
	Geometry      *GeometryModel
	ProgramPath   string
	PrintSettings *inventory.PrinterProfile // pins the piece to one printer profile when set
	Quote         Quote
	Cancelled     bool

	mu    sync.Mutex
	units []*UnitPiece
}

// UnitPiece records one physical print attempt of one copy of its piece.
type UnitPiece struct {
	Piece *Piece
	Job   *printing.PrintJob
}

// NewPiece validates the intake invariant and builds the piece. The quote
// handle is attached by the intake pipeline once the external job is queued.
func NewPiece(parent *Order, copies int, scale float64, colors, materials []string, geometry *GeometryModel, programPath string) (*Piece, error) {
	if (geometry == nil) == (programPath == "") {
		return nil, shared.ErrInvalidPiece
	}
	if copies < 1 {
		copies = 1
	}
	return &Piece{
		Order:       parent,
		Copies:      copies,
		Scale:       scale,
		Colors:      colors,
		Materials:   materials,
		Geometry:    geometry,
		ProgramPath: programPath,
	}, nil
}

// AddUnit links a freshly launched print job to this piece.
func (p *Piece) AddUnit(job *printing.PrintJob) *UnitPiece {
	p.mu.Lock()
	defer p.mu.Unlock()
	job.PieceID = p.ID
	unit := &UnitPiece{Piece: p, Job: job}
	p.units = append(p.units, unit)
	return unit
}

// Units returns a snapshot of the piece's unit pieces.
func (p *Piece) Units() []*UnitPiece {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*UnitPiece, len(p.units))
	copy(out, p.units)
	return out
}

// Completed counts copies with a human-confirmed successful job.
func (p *Piece) Completed() int {
	n := 0
	for _, u := range p.Units() {
		if s := u.Job.Success(); s != nil && *s {
			n++
		}
	}
	return n
}

// Pending counts copies whose job still occupies a printer or a bed.
func (p *Piece) Pending() int {
	n := 0
	for _, u := range p.Units() {
		if u.Job.Pending() {
			n++
		}
	}
	return n
}

// Queued counts copies not yet launched. Failed attempts return here, so the
// conservation law Completed+Pending+Queued == Copies holds at all times.
func (p *Piece) Queued() int {
	return p.Copies - p.Completed() - p.Pending()
}

// QuoteReady reports whether the external estimation finished.
func (p *Piece) QuoteReady() bool {
	return p.Quote != nil && p.Quote.Ready()
}

// BuildTime returns the quoted build time; only defined when QuoteReady.
func (p *Piece) BuildTime() time.Duration {
	return p.Quote.BuildTime()
}

// Weight returns the quoted filament weight in grams; only defined when
// QuoteReady.
func (p *Piece) Weight() float64 {
	return p.Quote.Weight()
}

// Placeable reports whether the scheduler may place copies of this piece.
func (p *Piece) Placeable() bool {
	return p.QuoteReady() && !p.Cancelled && p.Queued() > 0
}

// DeadlineFromNow returns the time remaining until the parent order's due
// date, clamped to at least one second so the solver never sees a
// non-positive deadline.
func (p *Piece) DeadlineFromNow(now time.Time) time.Duration {
	d := p.Order.DueDate.Sub(now)
	if d < time.Second {
		return time.Second
	}
	return d
}

// SelectFilament returns the first candidate matching the piece's color and
// material sets, or nil when none does.
func (p *Piece) SelectFilament(candidates []*inventory.Filament) *inventory.Filament {
	for _, f := range candidates {
		if f != nil && f.Matches(p.Colors, p.Materials) {
			return f
		}
	}
	return nil
}

// CompatibleWith reports whether one copy of this piece can run on the given
// printer: the geometry must fit the bed and pinned print settings must match
// the printer's profile.
func (p *Piece) CompatibleWith(printer *printing.Printer) bool {
	if p.Geometry != nil && !p.Geometry.FitsOn(printer.Profile.Bed) {
		return false
	}
	if p.PrintSettings != nil && p.PrintSettings.ID != printer.Profile.ID {
		return false
	}
	return true
}
