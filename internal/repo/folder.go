package repo

import (
	"context"

	"MsgVault/model"

	"gorm.io/gorm"
)

type FolderRepo struct {
	db *gorm.DB
}

func NewFolderRepo(db *gorm.DB) *FolderRepo {
	return &FolderRepo{db: db}
}

func (r *FolderRepo) Create(ctx context.Context, f *model.Folder) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *FolderRepo) GetOwned(ctx context.Context, ownerID, id uint64) (*model.Folder, error) {
	var f model.Folder
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// BindContainer records the backend container of a folder if none is bound yet.
// It reports false when another request bound one first.
func (r *FolderRepo) BindContainer(ctx context.Context, id uint64, containerID string) (bool, error) {
	res := r.db.WithContext(ctx).Model(&model.Folder{}).
		Where("id = ? AND (container_id = '' OR container_id IS NULL)", id).
		Update("container_id", containerID)
	return res.RowsAffected == 1, res.Error
}

func (r *FolderRepo) ListByOwner(ctx context.Context, ownerID uint64) ([]model.Folder, error) {
	var folders []model.Folder
	err := r.db.WithContext(ctx).
		Where("owner_id = ?", ownerID).
		Order("name ASC").
		Find(&folders).Error
	return folders, err
}

func (r *FolderRepo) Rename(ctx context.Context, ownerID, id uint64, name string) error {
	res := r.db.WithContext(ctx).Model(&model.Folder{}).
		Where("id = ? AND owner_id = ?", id, ownerID).
		Update("name", name)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
