package config

import (
	"sync"
	"time"
)

// TransferConfig holds transfer defaults. Per-owner values in user_settings override
// everything except HardCapBytes, which is imposed by the backend.
type TransferConfig struct {
	HardCapBytes         int64           `json:"hard_cap_bytes"`         // backend attachment ceiling
	DefaultChunkSize     int64           `json:"default_chunk_size"`     // used when an owner has no settings row
	DuplicateDetection   bool            `json:"duplicate_detection"`    // default for owners without settings
	RetryAttempts        int             `json:"retry_attempts"`         // extra attempts per chunk
	ChunkTimeout         time.Duration   `json:"chunk_timeout"`          // per backend call
	RetryDelays          []time.Duration `json:"retry_delays"`           // backoff between chunk attempts
	MaxConcurrentUploads int             `json:"max_concurrent_uploads"` // transfer start gate
	SettingsCacheTTL     time.Duration   `json:"settings_cache_ttl"`
	ShareDefaultTTL      time.Duration   `json:"share_default_ttl"`
}

var TransferConfigInstance *TransferConfig
var transferConfigOnce sync.Once

// InitTransferConfig initializes transfer defaults from the environment.
func InitTransferConfig() {
	transferConfigOnce.Do(func() {
		TransferConfigInstance = &TransferConfig{
			HardCapBytes:         getEnvInt64("BACKEND_MAX_ATTACHMENT_BYTES", 25*1024*1024),
			DefaultChunkSize:     getEnvInt64("DEFAULT_CHUNK_SIZE", 8*1024*1024),
			DuplicateDetection:   getEnvBool("DUPLICATE_DETECTION", true),
			RetryAttempts:        getEnvInt("CHUNK_RETRY_ATTEMPTS", 3),
			ChunkTimeout:         getEnvDuration("CHUNK_TIMEOUT", 2*time.Minute),
			RetryDelays:          getEnvDurationList("CHUNK_RETRY_DELAYS", []time.Duration{time.Second, 3 * time.Second, 10 * time.Second}),
			MaxConcurrentUploads: getEnvInt("MAX_CONCURRENT_UPLOADS", 3),
			SettingsCacheTTL:     getEnvDuration("SETTINGS_CACHE_TTL", 5*time.Minute),
			ShareDefaultTTL:      getEnvDuration("SHARE_DEFAULT_TTL", 7*24*time.Hour),
		}
	})
}
