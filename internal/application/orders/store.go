// Package orders is the intake side of the farm: it owns the live Piece
// population and the filament stock the dispatcher selects from.
package orders

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/polyforge/printfarm-go/internal/application/slicing"
	"github.com/polyforge/printfarm-go/internal/domain/inventory"
	"github.com/polyforge/printfarm-go/internal/domain/order"
)

// Store holds the live order/piece population. Storefront ingestion lands
// here; the scheduler snapshots placeable pieces from here.
type Store struct {
	slicer slicing.Service
	log    *zap.SugaredLogger

	mu       sync.Mutex
	nextID   int
	pieces   map[int]*order.Piece
	stock    []*inventory.Filament
	profiles map[string]*inventory.MaterialProfile // material name -> profile
	quoting  *inventory.SliceConfiguration
}

// NewStore builds an empty intake store. The slicer is used to quote
// geometry pieces at creation.
func NewStore(slicer slicing.Service, log *zap.SugaredLogger) *Store {
	return &Store{
		slicer:   slicer,
		log:      log,
		nextID:   1,
		pieces:   make(map[int]*order.Piece),
		profiles: make(map[string]*inventory.MaterialProfile),
	}
}

// AddFilament registers a spool in stock.
func (s *Store) AddFilament(f *inventory.Filament) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stock = append(s.stock, f)
}

// AddMaterialProfile registers the slicer profile for a material family.
func (s *Store) AddMaterialProfile(p *inventory.MaterialProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[p.Material] = p
}

// SetQuotingProfile flags the configuration used for quoting. Only one
// configuration in the population carries the flag; the previous holder is
// cleared.
func (s *Store) SetQuotingProfile(cfg *inventory.SliceConfiguration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quoting != nil {
		s.quoting.QuotingProfile = false
	}
	cfg.QuotingProfile = true
	s.quoting = cfg
}

// QuotingProfile returns the flagged configuration, nil when none is set.
func (s *Store) QuotingProfile() *inventory.SliceConfiguration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.quoting
}

// CreatePiece validates and registers a piece, attaching its quote handle:
// geometry pieces are submitted to the slicer's quoting profile, ready
// programs are parse-quoted from their slicer comments.
func (s *Store) CreatePiece(parent *order.Order, copies int, scale float64, colors, materials []string, geometry *order.GeometryModel, programPath string) (*order.Piece, error) {
	piece, err := order.NewPiece(parent, copies, scale, colors, materials, geometry, programPath)
	if err != nil {
		return nil, err
	}

	if geometry != nil {
		quote, err := s.slicer.Submit(slicing.Request{
			GeometryPath: geometry.FilePath,
			Scale:        scale,
			Config:       s.QuotingProfile(),
			SaveProgram:  false,
		})
		if err != nil {
			return nil, fmt.Errorf("submit quote slice job: %w", err)
		}
		piece.Quote = quote
	} else {
		piece.Quote = slicing.NewProgramQuote(programPath)
	}

	s.mu.Lock()
	piece.ID = s.nextID
	s.nextID++
	s.pieces[piece.ID] = piece
	s.mu.Unlock()

	s.log.Infow("piece created", "piece", piece.ID, "copies", piece.Copies, "geometry", geometry != nil)
	return piece, nil
}

// Restore registers pieces recovered from persistence, keeping their ids and
// re-attaching quotes: program pieces re-parse their file, geometry pieces are
// re-submitted against the quoting profile.
func (s *Store) Restore(pieces []*order.Piece) error {
	for _, piece := range pieces {
		if piece.Geometry != nil {
			quote, err := s.slicer.Submit(slicing.Request{
				GeometryPath: piece.Geometry.FilePath,
				Scale:        piece.Scale,
				Config:       s.QuotingProfile(),
				SaveProgram:  false,
			})
			if err != nil {
				return fmt.Errorf("re-quote piece %d: %w", piece.ID, err)
			}
			piece.Quote = quote
		} else {
			piece.Quote = slicing.NewProgramQuote(piece.ProgramPath)
		}

		s.mu.Lock()
		s.pieces[piece.ID] = piece
		if piece.ID >= s.nextID {
			s.nextID = piece.ID + 1
		}
		s.mu.Unlock()
	}
	return nil
}

// AttachQuote overrides a piece's quote handle. Used by tests and by
// re-quoting flows.
func (s *Store) AttachQuote(pieceID int, quote order.Quote) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	piece, ok := s.pieces[pieceID]
	if !ok {
		return fmt.Errorf("piece %d not found", pieceID)
	}
	piece.Quote = quote
	return nil
}

// Piece returns one piece by id.
func (s *Store) Piece(id int) (*order.Piece, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pieces[id]
	return p, ok
}

// Pieces returns the whole population ordered by id.
func (s *Store) Pieces() []*order.Piece {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*order.Piece, 0, len(s.pieces))
	for _, p := range s.pieces {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Placeable returns the pieces the scheduler may place.
func (s *Store) Placeable() []*order.Piece {
	var out []*order.Piece
	for _, p := range s.Pieces() {
		if p.Placeable() {
			out = append(out, p)
		}
	}
	return out
}

// Available returns the filament stock with material left on the spool.
func (s *Store) Available() []*inventory.Filament {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*inventory.Filament
	for _, f := range s.stock {
		if f.StockGrams > 0 {
			out = append(out, f)
		}
	}
	return out
}

// MaterialProfile returns the slicer profile for a material, nil if unknown.
func (s *Store) MaterialProfile(material string) *inventory.MaterialProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.profiles[material]
}
