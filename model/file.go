package model

import "time"

const (
	FileStatusPending    = "pending"
	FileStatusInProgress = "in_progress"
	FileStatusCompleted  = "completed"
	FileStatusFailed     = "failed"
)

// File is one stored file. Its ID is the backend post id holding the chunk messages.
type File struct {
	ID string `gorm:"primaryKey;size:64" json:"id"`

	OwnerID  uint64 `gorm:"column:owner_id;not null;index:idx_file_lookup,priority:1" json:"owner_id"`
	FolderID uint64 `gorm:"column:folder_id;not null;index:idx_file_lookup,priority:2" json:"folder_id"`

	Name         string `gorm:"column:name;size:255;not null;index:idx_file_lookup,priority:3" json:"name"`
	OriginalName string `gorm:"column:original_name;size:255;not null" json:"original_name"`
	Size         int64  `gorm:"column:size;not null" json:"size"`
	MimeType     string `gorm:"column:mime_type;size:128;not null;default:'application/octet-stream'" json:"mime_type"`

	ContainerID string `gorm:"column:container_id;size:64" json:"container_id"`
	Status      string `gorm:"column:status;size:16;not null;index" json:"status"`
	Starred     bool   `gorm:"column:starred;not null;default:false" json:"starred"`
	ContentHash string `gorm:"column:content_hash;size:64" json:"content_hash,omitempty"`

	ShareToken     *string    `gorm:"column:share_token;size:64;uniqueIndex" json:"share_token,omitempty"`
	ShareExpiresAt *time.Time `gorm:"column:share_expires_at" json:"share_expires_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (File) TableName() string {
	return "file"
}
