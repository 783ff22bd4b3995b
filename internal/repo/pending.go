package repo

import (
	"context"
	"errors"

	"MsgVault/model"

	"gorm.io/gorm"
)

var ErrPendingClaimed = errors.New("pending upload already resolved")

type PendingRepo struct {
	db *gorm.DB
}

func NewPendingRepo(db *gorm.DB) *PendingRepo {
	return &PendingRepo{db: db}
}

func (r *PendingRepo) Create(ctx context.Context, p *model.PendingUpload) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PendingRepo) GetOwned(ctx context.Context, ownerID uint64, id string) (*model.PendingUpload, error) {
	var p model.PendingUpload
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Claim atomically moves a pending upload to resolved. Only one caller wins.
func (r *PendingRepo) Claim(ctx context.Context, ownerID uint64, id string) (*model.PendingUpload, error) {
	res := r.db.WithContext(ctx).Model(&model.PendingUpload{}).
		Where("id = ? AND owner_id = ? AND status = ?", id, ownerID, model.PendingStatusPending).
		Update("status", model.PendingStatusResolved)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := r.GetOwned(ctx, ownerID, id); err != nil {
			return nil, err
		}
		return nil, ErrPendingClaimed
	}
	return r.GetOwned(ctx, ownerID, id)
}

// Release puts a claimed upload back to pending, used when resolution failed early.
func (r *PendingRepo) Release(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&model.PendingUpload{}).
		Where("id = ? AND status = ?", id, model.PendingStatusResolved).
		Update("status", model.PendingStatusPending).Error
}

func (r *PendingRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.PendingUpload{}).Error
}
