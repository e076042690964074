package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/polyforge/printfarm-go/internal/domain/inventory"
	"github.com/polyforge/printfarm-go/internal/domain/printing"
	"github.com/polyforge/printfarm-go/internal/domain/shared"
)

// GormPrinterRepository implements printer and profile persistence using GORM
type GormPrinterRepository struct {
	db *gorm.DB
}

// NewGormPrinterRepository creates a new GORM printer repository
func NewGormPrinterRepository(db *gorm.DB) *GormPrinterRepository {
	return &GormPrinterRepository{db: db}
}

// FindByID retrieves a printer with its profile and loaded filament
func (r *GormPrinterRepository) FindByID(ctx context.Context, id int) (*printing.Printer, error) {
	var model PrinterModel
	result := r.db.WithContext(ctx).
		Preload("Profile").Preload("Filament").
		Where("id = ?", id).First(&model)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("printer %d: %w", id, shared.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to find printer: %w", result.Error)
	}
	return printerToDomain(&model)
}

// ListAll retrieves every printer with profile and filament preloaded
func (r *GormPrinterRepository) ListAll(ctx context.Context) ([]*printing.Printer, error) {
	var models []PrinterModel
	result := r.db.WithContext(ctx).
		Preload("Profile").Preload("Filament").
		Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list printers: %w", result.Error)
	}
	out := make([]*printing.Printer, 0, len(models))
	for i := range models {
		p, err := printerToDomain(&models[i])
		if err != nil {
			continue // Skip printers with a broken profile row
		}
		out = append(out, p)
	}
	return out, nil
}

// Save upserts a printer row. Profile and filament rows are referenced, not
// written through.
func (r *GormPrinterRepository) Save(ctx context.Context, p *printing.Printer) error {
	model := &PrinterModel{
		ID:       p.ID,
		Name:     p.Name,
		Endpoint: p.Endpoint,
		APIKey:   p.APIKey,
		Disabled: p.Disabled,
	}
	if p.Profile != nil {
		model.ProfileID = p.Profile.ID
	}
	if p.Filament != nil {
		id := p.Filament.ID
		model.FilamentID = &id
	}
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save printer: %w", result.Error)
	}
	p.ID = model.ID
	return nil
}

// UpdateLoadedFilament persists the spool currently loaded in the printer
func (r *GormPrinterRepository) UpdateLoadedFilament(ctx context.Context, printerID int, filament *inventory.Filament) error {
	var filamentID *int
	if filament != nil {
		id := filament.ID
		filamentID = &id
	}
	result := r.db.WithContext(ctx).Model(&PrinterModel{}).
		Where("id = ?", printerID).
		Update("filament_id", filamentID)
	if result.Error != nil {
		return fmt.Errorf("failed to update loaded filament: %w", result.Error)
	}
	return nil
}

// UpdateDisabled persists the operator's enable/disable toggle
func (r *GormPrinterRepository) UpdateDisabled(ctx context.Context, printerID int, disabled bool) error {
	result := r.db.WithContext(ctx).Model(&PrinterModel{}).
		Where("id = ?", printerID).
		Update("disabled", disabled)
	if result.Error != nil {
		return fmt.Errorf("failed to update printer disabled flag: %w", result.Error)
	}
	return nil
}

func printerToDomain(model *PrinterModel) (*printing.Printer, error) {
	if model.Profile == nil {
		return nil, fmt.Errorf("printer %d has no profile", model.ID)
	}
	p := &printing.Printer{
		ID:       model.ID,
		Name:     model.Name,
		Profile:  profileToDomain(model.Profile),
		Endpoint: model.Endpoint,
		APIKey:   model.APIKey,
		Disabled: model.Disabled,
	}
	if model.Filament != nil {
		p.Filament = filamentToDomain(model.Filament)
	}
	return p, nil
}

func profileToDomain(model *PrinterProfileModel) *inventory.PrinterProfile {
	var cfg map[string]string
	if model.Config != "" {
		if err := json.Unmarshal([]byte(model.Config), &cfg); err != nil {
			cfg = nil
		}
	}
	return &inventory.PrinterProfile{
		ID:             model.ID,
		Name:           model.Name,
		PrinterModel:   model.PrinterModel,
		NozzleDiameter: model.NozzleDiameter,
		Bed:            inventory.BedShape{X: model.BedX, Y: model.BedY, Z: model.BedZ},
		BaseQuality:    model.BaseQuality,
		Config:         cfg,
	}
}

// SaveProfile upserts a printer profile
func (r *GormPrinterRepository) SaveProfile(ctx context.Context, p *inventory.PrinterProfile) error {
	cfgJSON := ""
	if p.Config != nil {
		bytes, err := json.Marshal(p.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal profile config: %w", err)
		}
		cfgJSON = string(bytes)
	}
	model := &PrinterProfileModel{
		ID:             p.ID,
		Name:           p.Name,
		PrinterModel:   p.PrinterModel,
		NozzleDiameter: p.NozzleDiameter,
		BedX:           p.Bed.X,
		BedY:           p.Bed.Y,
		BedZ:           p.Bed.Z,
		BaseQuality:    p.BaseQuality,
		Config:         cfgJSON,
	}
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save printer profile: %w", result.Error)
	}
	p.ID = model.ID
	return nil
}

// ListMaterialProfiles retrieves every material profile
func (r *GormPrinterRepository) ListMaterialProfiles(ctx context.Context) ([]*inventory.MaterialProfile, error) {
	var models []MaterialProfileModel
	result := r.db.WithContext(ctx).Order("id").Find(&models)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list material profiles: %w", result.Error)
	}
	out := make([]*inventory.MaterialProfile, 0, len(models))
	for i := range models {
		m := &models[i]
		var cfg map[string]string
		if m.Config != "" {
			if err := json.Unmarshal([]byte(m.Config), &cfg); err != nil {
				cfg = nil
			}
		}
		out = append(out, &inventory.MaterialProfile{
			ID:       m.ID,
			Name:     m.Name,
			Material: m.Material,
			Config:   cfg,
		})
	}
	return out, nil
}
