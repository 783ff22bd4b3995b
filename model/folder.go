package model

import "time"

// Folder maps a logical folder onto a backend container. ContainerID stays empty until
// the first upload into the folder creates the container.
type Folder struct {
	ID uint64 `gorm:"primaryKey" json:"id"`

	OwnerID     uint64 `gorm:"column:owner_id;not null;index" json:"owner_id"`
	Name        string `gorm:"column:name;size:100;not null" json:"name"`
	ContainerID string `gorm:"column:container_id;size:64" json:"container_id,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name.
func (Folder) TableName() string {
	return "folder"
}
