package persistence

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/gorm"

	"github.com/polyforge/printfarm-go/internal/domain/printing"
)

// GormJobRepository persists the execution-side records: device tasks, print
// jobs, and filament changes. Domain objects stay authoritative in memory;
// rows are audit snapshots written at the state transitions that matter.
type GormJobRepository struct {
	db *gorm.DB
}

// NewGormJobRepository creates a new GORM job repository
func NewGormJobRepository(db *gorm.DB) *GormJobRepository {
	return &GormJobRepository{db: db}
}

// SaveTask upserts a device task snapshot
func (r *GormJobRepository) SaveTask(ctx context.Context, t *printing.DeviceTask) error {
	commands, err := json.Marshal(t.Commands)
	if err != nil {
		return fmt.Errorf("failed to marshal commands: %w", err)
	}
	model := &DeviceTaskModel{
		ID:          t.ID.String(),
		PrinterID:   t.PrinterID,
		Kind:        string(t.Kind),
		State:       string(t.State()),
		ProgramPath: t.ProgramPath,
		Commands:    string(commands),
		Failure:     t.Failure(),
		CreatedAt:   t.CreatedAt,
	}
	if t.Dependency != nil {
		dep := t.Dependency.ID.String()
		model.DependencyID = &dep
	}
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save device task: %w", result.Error)
	}
	return nil
}

// SaveJob upserts a print job snapshot
func (r *GormJobRepository) SaveJob(ctx context.Context, job *printing.PrintJob) error {
	model := &PrintJobModel{
		ID:        job.ID.String(),
		PieceID:   job.PieceID,
		TaskID:    job.Task.ID.String(),
		WeightG:   job.WeightG,
		Success:   job.Success(),
		CreatedAt: job.CreatedAt,
		EndedAt:   job.EndTime(),
	}
	if job.Filament != nil {
		id := job.Filament.ID
		model.FilamentID = &id
	}
	if !job.EstimatedEnd.IsZero() {
		est := job.EstimatedEnd
		model.EstimatedEnd = &est
	}
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save print job: %w", result.Error)
	}
	return nil
}

// SaveChange upserts a filament change snapshot
func (r *GormJobRepository) SaveChange(ctx context.Context, fc *printing.FilamentChange) error {
	model := &FilamentChangeModel{
		ID:            fc.ID.String(),
		TaskID:        fc.Task.ID.String(),
		NewFilamentID: fc.NewFilament.ID,
		Confirmed:     fc.Confirmed(),
		ConfirmedAt:   fc.ConfirmedAt(),
	}
	result := r.db.WithContext(ctx).Save(model)
	if result.Error != nil {
		return fmt.Errorf("failed to save filament change: %w", result.Error)
	}
	return nil
}

// CountJobsByOutcome returns (confirmed successes, confirmed failures)
func (r *GormJobRepository) CountJobsByOutcome(ctx context.Context) (int64, int64, error) {
	var ok, failed int64
	if err := r.db.WithContext(ctx).Model(&PrintJobModel{}).Where("success = ?", true).Count(&ok).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count successful jobs: %w", err)
	}
	if err := r.db.WithContext(ctx).Model(&PrintJobModel{}).Where("success = ?", false).Count(&failed).Error; err != nil {
		return 0, 0, fmt.Errorf("failed to count failed jobs: %w", err)
	}
	return ok, failed, nil
}
