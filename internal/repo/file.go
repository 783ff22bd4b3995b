package repo

import (
	"context"
	"errors"
	"time"

	"MsgVault/model"

	"gorm.io/gorm"
)

var ErrIllegalTransition = errors.New("illegal status transition")

type FileRepo struct {
	db *gorm.DB
}

func NewFileRepo(db *gorm.DB) *FileRepo {
	return &FileRepo{db: db}
}

func (r *FileRepo) Create(ctx context.Context, f *model.File) error {
	return r.db.WithContext(ctx).Create(f).Error
}

func (r *FileRepo) Get(ctx context.Context, id string) (*model.File, error) {
	var f model.File
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

// GetOwned returns gorm.ErrRecordNotFound for files of other owners.
func (r *FileRepo) GetOwned(ctx context.Context, ownerID uint64, id string) (*model.File, error) {
	var f model.File
	err := r.db.WithContext(ctx).
		Where("id = ? AND owner_id = ?", id, ownerID).
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// FindDuplicate looks up a non-failed file with the same owner, folder, name and size.
func (r *FileRepo) FindDuplicate(ctx context.Context, ownerID, folderID uint64, name string, size int64) (*model.File, error) {
	var f model.File
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND folder_id = ? AND name = ? AND size = ? AND status <> ?",
			ownerID, folderID, name, size, model.FileStatusFailed).
		Order("created_at ASC").
		First(&f).Error
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// NameTaken reports whether a non-failed file already uses name in the folder.
func (r *FileRepo) NameTaken(ctx context.Context, ownerID, folderID uint64, name string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.File{}).
		Where("owner_id = ? AND folder_id = ? AND name = ? AND status <> ?",
			ownerID, folderID, name, model.FileStatusFailed).
		Count(&count).Error
	return count > 0, err
}

// Transition moves a file from one status to another, applying extra column updates.
// It fails with ErrIllegalTransition when the file is not in status from.
func (r *FileRepo) Transition(ctx context.Context, id, from, to string, fields map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrIllegalTransition
	}
	return nil
}

// Delete removes the file row and its chunk rows.
func (r *FileRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("file_id = ?", id).Delete(&model.Chunk{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&model.File{}).Error
	})
}

// DeleteFailed removes a failed or half-created file and its chunk rows. Files in any
// other status are left alone.
func (r *FileRepo) DeleteFailed(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var live int64
		if err := tx.Model(&model.File{}).
			Where("id = ? AND status <> ?", id, model.FileStatusFailed).
			Count(&live).Error; err != nil {
			return err
		}
		if live > 0 {
			return nil
		}
		if err := tx.Where("id = ?", id).Delete(&model.File{}).Error; err != nil {
			return err
		}
		return tx.Where("file_id = ?", id).Delete(&model.Chunk{}).Error
	})
}

func (r *FileRepo) SetShare(ctx context.Context, id, token string, expiresAt time.Time) error {
	return r.db.WithContext(ctx).Model(&model.File{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"share_token": token, "share_expires_at": expiresAt}).Error
}

// ClearShare drops a share token, returning how many files were affected.
func (r *FileRepo) ClearShare(ctx context.Context, token string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&model.File{}).
		Where("share_token = ?", token).
		Updates(map[string]interface{}{"share_token": nil, "share_expires_at": nil})
	return res.RowsAffected, res.Error
}

func (r *FileRepo) GetByShareToken(ctx context.Context, token string) (*model.File, error) {
	var f model.File
	if err := r.db.WithContext(ctx).Where("share_token = ?", token).First(&f).Error; err != nil {
		return nil, err
	}
	return &f, nil
}

func (r *FileRepo) ListByFolder(ctx context.Context, ownerID, folderID uint64) ([]model.File, error) {
	var files []model.File
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND folder_id = ?", ownerID, folderID).
		Order("name ASC").
		Find(&files).Error
	return files, err
}
