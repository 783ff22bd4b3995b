package model

import "time"

// UserSettings is maintained by the settings service; transfers only read it.
type UserSettings struct {
	OwnerID uint64 `gorm:"primaryKey;autoIncrement:false" json:"owner_id"`

	ChunkSize          int64 `gorm:"column:chunk_size;not null" json:"chunk_size"`
	DuplicateDetection bool  `gorm:"column:duplicate_detection;not null" json:"duplicate_detection"`
	RetryAttempts      int   `gorm:"column:retry_attempts;not null;default:0" json:"retry_attempts"`
	TimeoutSeconds     int   `gorm:"column:timeout_seconds;not null;default:0" json:"timeout_seconds"`

	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (UserSettings) TableName() string {
	return "user_settings"
}
