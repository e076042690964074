package persistence

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/polyforge/printfarm-go/internal/domain/scheduling"
)

// GormScheduleRepository persists optimizer runs and their entries
type GormScheduleRepository struct {
	db *gorm.DB
}

// NewGormScheduleRepository creates a new GORM schedule repository
func NewGormScheduleRepository(db *gorm.DB) *GormScheduleRepository {
	return &GormScheduleRepository{db: db}
}

// SaveSchedule writes one optimizer run with all its entries in a transaction
func (r *GormScheduleRepository) SaveSchedule(ctx context.Context, s *scheduling.Schedule) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		model := &ScheduleModel{
			ID:         s.ID.String(),
			CreatedAt:  s.CreatedAt,
			Status:     string(s.Status),
			FinishedAt: s.FinishedAt(),
		}
		if err := tx.Save(model).Error; err != nil {
			return fmt.Errorf("failed to save schedule: %w", err)
		}
		for _, e := range s.Entries {
			row := &ScheduleEntryModel{
				ScheduleID:   s.ID.String(),
				PrinterID:    e.PrinterID,
				PieceID:      e.PieceID,
				DeviceTaskID: e.DeviceTaskID,
				Start:        e.Start,
				End:          e.End,
				Deadline:     e.Deadline,
			}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("failed to save schedule entry: %w", err)
			}
		}
		return nil
	})
}

// MarkFinished stamps the run's chain completion time
func (r *GormScheduleRepository) MarkFinished(ctx context.Context, s *scheduling.Schedule) error {
	result := r.db.WithContext(ctx).Model(&ScheduleModel{}).
		Where("id = ?", s.ID.String()).
		Update("finished_at", s.FinishedAt())
	if result.Error != nil {
		return fmt.Errorf("failed to mark schedule finished: %w", result.Error)
	}
	return nil
}

// CountByStatus returns the number of persisted runs per solver status
func (r *GormScheduleRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		N      int64
	}
	var rows []row
	result := r.db.WithContext(ctx).Model(&ScheduleModel{}).
		Select("status, count(*) as n").
		Group("status").
		Scan(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to count schedules: %w", result.Error)
	}
	out := make(map[string]int64, len(rows))
	for _, r := range rows {
		out[r.Status] = r.N
	}
	return out, nil
}
