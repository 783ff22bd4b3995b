package repo

import (
	"context"

	"MsgVault/model"

	"gorm.io/gorm"
)

type SettingsRepo struct {
	db *gorm.DB
}

func NewSettingsRepo(db *gorm.DB) *SettingsRepo {
	return &SettingsRepo{db: db}
}

// Get returns gorm.ErrRecordNotFound when the owner never saved settings.
func (r *SettingsRepo) Get(ctx context.Context, ownerID uint64) (*model.UserSettings, error) {
	var s model.UserSettings
	if err := r.db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SettingsRepo) Save(ctx context.Context, s *model.UserSettings) error {
	return r.db.WithContext(ctx).Save(s).Error
}
