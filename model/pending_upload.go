package model

import "time"

const (
	PendingStatusPending  = "pending"
	PendingStatusResolved = "resolved"
)

// PendingUpload is an upload suspended on a name/size conflict. Its bytes live in the
// staging store under StagingKey until a resolution arrives.
type PendingUpload struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	OwnerID  uint64 `gorm:"column:owner_id;not null;index" json:"owner_id"`
	FolderID uint64 `gorm:"column:folder_id;not null" json:"folder_id"`

	Name     string `gorm:"column:name;size:255;not null" json:"name"`
	Size     int64  `gorm:"column:size;not null" json:"size"`
	MimeType string `gorm:"column:mime_type;size:128" json:"mime_type"`

	StagingKey     string `gorm:"column:staging_key;size:512;not null" json:"-"`
	ExistingFileID string `gorm:"column:existing_file_id;size:64;not null" json:"existing_file_id"`
	TransferID     string `gorm:"column:transfer_id;size:36;not null" json:"transfer_id"`

	Status string `gorm:"column:status;size:16;not null;default:'pending'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (PendingUpload) TableName() string {
	return "pending_upload"
}
