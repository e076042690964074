package persistence

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/polyforge/printfarm-go/internal/domain/inventory"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// GormFilamentRepository implements filament stock persistence using GORM
type GormFilamentRepository struct {
	db *gorm.DB
}

// NewGormFilamentRepository creates a new GORM filament repository
func NewGormFilamentRepository(db *gorm.DB) *GormFilamentRepository {
	return &GormFilamentRepository{db: db}
}

// FindByID retrieves a filament by ID
func (r *GormFilamentRepository) FindByID(ctx context.Context, id int) (*inventory.Filament, error) {
	var model FilamentModel
	result := r.db.WithContext(ctx).Where("id = ?", id).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("filament %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find filament: %w", result.Error)
	}
	return filamentToDomain(&model), nil
}

// ListAll retrieves every filament in stock order
func (r *GormFilamentRepository) ListAll(ctx context.Context) ([]*inventory.Filament, error) {
	var models []FilamentModel
	result := r.db.WithContext(ctx).Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list filaments: %w", result.Error)
	}
	out := make([]*inventory.Filament, 0, len(models))
	for i := range models {
		out = append(out, filamentToDomain(&models[i]))
	}
	return out, nil
}

// Save upserts a filament
func (r *GormFilamentRepository) Save(ctx context.Context, f *inventory.Filament) error {
	model := filamentToModel(f)
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save filament: %w", result.Error)
	}
	f.ID = model.ID
	return nil
}

// UpdateStock persists the spool's current stock level
func (r *GormFilamentRepository) UpdateStock(ctx context.Context, f *inventory.Filament) error {
	result := r.db.WithContext(ctx).Model(&FilamentModel{}).
		Where("id = ?", f.ID).
		Update("stock_grams", f.StockGrams)
	if result.Error != nil {
		return fmt.Errorf("failed to update filament stock: %w", result.Error)
	}
	return nil
}

func filamentToDomain(model *FilamentModel) *inventory.Filament {
	return &inventory.Filament{
		ID:         model.ID,
		Name:       model.Name,
		SKU:        model.SKU,
		Brand:      model.Brand,
		Color:      model.Color,
		Material:   model.Material,
		BedTemp:    model.BedTemp,
		NozzleTemp: model.NozzleTemp,
		PricePerKg: model.PricePerKg,
		Density:    model.Density,
		StockGrams: model.StockGrams,
	}
}

func filamentToModel(f *inventory.Filament) *FilamentModel {
	return &FilamentModel{
		ID:         f.ID,
		Name:       f.Name,
		SKU:        f.SKU,
		Brand:      f.Brand,
		Color:      f.Color,
		Material:   f.Material,
		BedTemp:    f.BedTemp,
		NozzleTemp: f.NozzleTemp,
		PricePerKg: f.PricePerKg,
		Density:    f.Density,
		StockGrams: f.StockGrams,
	}
}
