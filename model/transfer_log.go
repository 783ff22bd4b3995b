package model

import "time"

const (
	TransferUpload      = "upload"
	TransferDownload    = "download"
	TransferDelete      = "delete"
	TransferShareCreate = "share_create"
	TransferShareAccess = "share_access"
)

const (
	TransferStatusPending    = "pending"
	TransferStatusInProgress = "in_progress"
	TransferStatusCompleted  = "completed"
	TransferStatusFailed     = "failed"
	TransferStatusCancelled  = "cancelled"
)

// TransferLog is the persisted history row of one logical transfer.
type TransferLog struct {
	ID string `gorm:"primaryKey;size:36" json:"id"`

	OwnerID uint64 `gorm:"column:owner_id;index;not null" json:"owner_id"`
	FileID  string `gorm:"column:file_id;size:64;index" json:"file_id"`

	Type   string `gorm:"column:type;size:32;not null" json:"type"`
	Status string `gorm:"column:status;size:32;index;not null" json:"status"`

	FileName         string   `gorm:"column:file_name;size:255;not null" json:"file_name"`
	FileSize         int64    `gorm:"column:file_size;not null" json:"file_size"`
	BytesTransferred int64    `gorm:"column:bytes_transferred;not null;default:0" json:"bytes_transferred"`
	Progress         int      `gorm:"column:progress;not null;default:0" json:"progress"`
	Speed            float64  `gorm:"column:speed;not null;default:0" json:"speed"`
	ETA              *float64 `gorm:"column:eta" json:"eta,omitempty"`
	ErrorMsg         string   `gorm:"column:error_msg;type:text" json:"error_msg,omitempty"`

	StartedAt   *time.Time `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time `gorm:"column:completed_at" json:"completed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (TransferLog) TableName() string {
	return "transfer_log"
}

// Terminal reports whether the transfer can no longer change status.
func (t *TransferLog) Terminal() bool {
	switch t.Status {
	case TransferStatusCompleted, TransferStatusFailed, TransferStatusCancelled:
		return true
	}
	return false
}
