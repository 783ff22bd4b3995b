package dto

type ResolveRequest struct {
	Action string `json:"action" binding:"required"`
}

type CreateShareRequest struct {
	ExpireHours int `json:"expire_hours" binding:"gte=0"`
}

type FolderRequest struct {
	Name string `json:"name" binding:"required"`
}

// SettingsRequest is also the settings response body. Zero values select defaults.
type SettingsRequest struct {
	ChunkSize          int64 `json:"chunk_size" binding:"gte=0"`
	DuplicateDetection bool  `json:"duplicate_detection"`
	RetryAttempts      int   `json:"retry_attempts" binding:"gte=0"`
	TimeoutSeconds     int   `json:"timeout_seconds" binding:"gte=0"`
}
