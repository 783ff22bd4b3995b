package repo

import (
	"context"

	"MsgVault/model"

	"gorm.io/gorm"
)

type TransferLogRepo struct {
	db *gorm.DB
}

func NewTransferLogRepo(db *gorm.DB) *TransferLogRepo {
	return &TransferLogRepo{db: db}
}

func (r *TransferLogRepo) Create(ctx context.Context, log *model.TransferLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *TransferLogRepo) Save(ctx context.Context, log *model.TransferLog) error {
	return r.db.WithContext(ctx).Save(log).Error
}

func (r *TransferLogRepo) Get(ctx context.Context, id string) (*model.TransferLog, error) {
	var log model.TransferLog
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&log).Error; err != nil {
		return nil, err
	}
	return &log, nil
}

// ListByOwner returns the most recent transfers first.
func (r *TransferLogRepo) ListByOwner(ctx context.Context, ownerID uint64, transferType string, limit int) ([]model.TransferLog, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	q := r.db.WithContext(ctx).Where("owner_id = ?", ownerID)
	if transferType != "" {
		q = q.Where("type = ?", transferType)
	}
	var logs []model.TransferLog
	err := q.Order("created_at DESC").Limit(limit).Find(&logs).Error
	return logs, err
}
