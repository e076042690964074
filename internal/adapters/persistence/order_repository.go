package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/polyforge/printfarm-go/internal/domain/order"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// GormOrderRepository implements order and piece persistence using GORM
type GormOrderRepository struct {
	db *gorm.DB
}

// NewGormOrderRepository creates a new GORM order repository
func NewGormOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// SaveOrder upserts an order
func (r *GormOrderRepository) SaveOrder(ctx context.Context, o *order.Order) error {
	model := &OrderModel{
		ID:       o.ID,
		Client:   o.Client,
		Number:   o.Number,
		DueDate:  o.DueDate,
		Priority: o.Priority,
	}
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save order: %w", result.Error)
	}
	o.ID = model.ID
	return nil
}

// FindOrder retrieves an order by ID
func (r *GormOrderRepository) FindOrder(ctx context.Context, id int) (*order.Order, error) {
	var model OrderModel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find order: %w", result.Error)
	}
	return orderToDomain(&model), nil
}

// SavePiece upserts a piece row, including the latest quote figures when the
// piece's quote has landed.
func (r *GormOrderRepository) SavePiece(ctx context.Context, p *order.Piece) error {
	model, err := pieceToModel(p)
	if err != nil {
		return err
	}
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save piece: %w", result.Error)
	}
	p.ID = model.ID
	return nil
}

// ListPieces retrieves every piece with order and geometry preloaded
func (r *GormOrderRepository) ListPieces(ctx context.Context) ([]*order.Piece, error) {
	var models []PieceModel
	result := r.db.WithContext(ctx).
		Preload("Order").Preload("Geometry").Preload("PrintSettings").
		Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list pieces: %w", result.Error)
	}
	out := make([]*order.Piece, 0, len(models))
	for i := range models {
		p, err := pieceToDomain(&models[i])
		if err != nil {
			continue // Skip rows violating the geometry/program invariant
		}
		out = append(out, p)
	}
	return out, nil
}

// MarkPieceCancelled persists a piece cancellation
func (r *GormOrderRepository) MarkPieceCancelled(ctx context.Context, pieceID int) error {
	result := r.db.WithContext(ctx).Model(&PieceModel{}).
		Where("id = ?", pieceID).
		Update("cancelled", true)
	if result.Error != nil {
		return fmt.Errorf("failed to cancel piece: %w", result.Error)
	}
	return nil
}

func orderToDomain(model *OrderModel) *order.Order {
	return &order.Order{
		ID:       model.ID,
		Client:   model.Client,
		Number:   model.Number,
		DueDate:  model.DueDate,
		Priority: model.Priority,
	}
}

func pieceToModel(p *order.Piece) (*PieceModel, error) {
	colors, err := json.Marshal(p.Colors)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal colors: %w", err)
	}
	materials, err := json.Marshal(p.Materials)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal materials: %w", err)
	}
	model := &PieceModel{
		ID:          p.ID,
		Copies:      p.Copies,
		Scale:       p.Scale,
		Colors:      string(colors),
		Materials:   string(materials),
		ProgramPath: p.ProgramPath,
		Cancelled:   p.Cancelled,
	}
	if p.Order != nil {
		model.OrderID = p.Order.ID
	}
	if p.Geometry != nil {
		id := p.Geometry.ID
		model.GeometryID = &id
	}
	if p.PrintSettings != nil {
		id := p.PrintSettings.ID
		model.PrintSettingsID = &id
	}
	if p.QuoteReady() {
		bt := int64(p.BuildTime().Seconds())
		w := p.Weight()
		model.BuildTimeS = &bt
		model.WeightG = &w
	}
	return model, nil
}

func pieceToDomain(model *PieceModel) (*order.Piece, error) {
	var colors, materials []string
	if model.Colors != "" {
		_ = json.Unmarshal([]byte(model.Colors), &colors)
	}
	if model.Materials != "" {
		_ = json.Unmarshal([]byte(model.Materials), &materials)
	}

	var geometry *order.GeometryModel
	if model.Geometry != nil {
		geometry = &order.GeometryModel{
			ID:       model.Geometry.ID,
			Name:     model.Geometry.Name,
			FilePath: model.Geometry.FilePath,
			SizeX:    model.Geometry.SizeX,
			SizeY:    model.Geometry.SizeY,
			SizeZ:    model.Geometry.SizeZ,
		}
	}

	var parent *order.Order
	if model.Order != nil {
		parent = orderToDomain(model.Order)
	}

	piece, err := order.NewPiece(parent, model.Copies, model.Scale, colors, materials, geometry, model.ProgramPath)
	if err != nil {
		return nil, err
	}
	piece.ID = model.ID
	piece.Cancelled = model.Cancelled
	if model.PrintSettings != nil {
		piece.PrintSettings = profileToDomain(model.PrintSettings)
	}
	return piece, nil
}

// SaveGeometry upserts a geometry row
func (r *GormOrderRepository) SaveGeometry(ctx context.Context, g *order.GeometryModel) error {
	model := &GeometryModel{
		ID:       g.ID,
		Name:     g.Name,
		FilePath: g.FilePath,
		SizeX:    g.SizeX,
		SizeY:    g.SizeY,
		SizeZ:    g.SizeZ,
	}
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save geometry: %w", result.Error)
	}
	g.ID = model.ID
	return nil
}
