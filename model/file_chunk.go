package model

import "time"

// Chunk is one uploaded slice of a File, stored as a single backend message attachment.
type Chunk struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	FileID string `gorm:"column:file_id;size:64;not null;uniqueIndex:idx_file_chunk" json:"file_id"`

	ChunkIndex int   `gorm:"column:chunk_index;not null;uniqueIndex:idx_file_chunk" json:"chunk_index"`
	Size       int64 `gorm:"column:size;not null" json:"size"`

	MessageID    string `gorm:"column:message_id;size:64;not null" json:"message_id"`
	AttachmentID string `gorm:"column:attachment_id;size:64" json:"attachment_id"`
	URL          string `gorm:"column:url;size:1024;not null" json:"url"`
	Checksum     string `gorm:"column:checksum;size:64" json:"checksum,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name.
func (Chunk) TableName() string {
	return "file_chunk"
}
