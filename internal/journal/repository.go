package journal

import (
	"context"

	"gorm.io/gorm"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

var _ Repository = (*GormRepository)(nil)

type GormRepository struct {
	db *gorm.DB
}

func NewGormRepository(db *gorm.DB) *GormRepository {
	return &GormRepository{db: db}
}

func (r *GormRepository) Create(ctx context.Context, rec *DeliveryRecord) error {
	model := deliveryRecordToModel(rec)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return err
	}
	if rec != nil {
		*rec = *deliveryRecordFromModel(model)
	}
	return nil
}

func (r *GormRepository) ListRecent(ctx context.Context, limit int) ([]DeliveryRecord, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	var models []DeliveryRecordModel
	err := r.db.WithContext(ctx).
		Order("recorded_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}

	records := make([]DeliveryRecord, 0, len(models))
	for i := range models {
		records = append(records, *deliveryRecordFromModel(&models[i]))
	}

	return records, nil
}
