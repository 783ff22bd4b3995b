package repo

import (
	"context"

	"MsgVault/model"

	"gorm.io/gorm"
)

type ChunkRepo struct {
	db *gorm.DB
}

func NewChunkRepo(db *gorm.DB) *ChunkRepo {
	return &ChunkRepo{db: db}
}

func (r *ChunkRepo) Create(ctx context.Context, c *model.Chunk) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// ListByFile returns chunks in ascending index order.
func (r *ChunkRepo) ListByFile(ctx context.Context, fileID string) ([]model.Chunk, error) {
	var chunks []model.Chunk
	err := r.db.WithContext(ctx).
		Where("file_id = ?", fileID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

func (r *ChunkRepo) DeleteByFile(ctx context.Context, fileID string) error {
	return r.db.WithContext(ctx).Where("file_id = ?", fileID).Delete(&model.Chunk{}).Error
}
