package service

import (
	"context"
	"errors"
	"time"

	"MsgVault/config"
	"MsgVault/model"
	"MsgVault/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Settings are the per-owner transfer settings after defaults are applied.
type Settings struct {
	ChunkSize          int64         `json:"chunk_size"`
	DuplicateDetection bool          `json:"duplicate_detection"`
	RetryAttempts      int           `json:"retry_attempts"`
	Timeout            time.Duration `json:"timeout"`
}

// SettingsSource reads persisted owner settings.
type SettingsSource interface {
	Get(ctx context.Context, ownerID uint64) (*model.UserSettings, error)
}

// SettingsProvider serves owner settings through a read-through cache.
type SettingsProvider struct {
	source   SettingsSource
	cache    utils.Cache
	defaults *config.TransferConfig
}

func NewSettingsProvider(source SettingsSource, cache utils.Cache, defaults *config.TransferConfig) *SettingsProvider {
	return &SettingsProvider{source: source, cache: cache, defaults: defaults}
}

func (p *SettingsProvider) Settings(ctx context.Context, ownerID uint64) (Settings, error) {
	key := utils.BuildCacheKey(utils.CacheKeyUserSettings, ownerID)
	var cached Settings
	if p.cache != nil {
		err := p.cache.Get(ctx, key, &cached)
		if err == nil {
			return cached, nil
		}
		if !errors.Is(err, utils.ErrCacheMiss) {
			logrus.WithField("owner_id", ownerID).WithError(err).Warn("settings cache read failed")
		}
	}

	s := p.fromDefaults()
	row, err := p.source.Get(ctx, ownerID)
	switch {
	case err == nil:
		if row.ChunkSize > 0 {
			s.ChunkSize = row.ChunkSize
		}
		s.DuplicateDetection = row.DuplicateDetection
		if row.RetryAttempts >= 0 {
			s.RetryAttempts = row.RetryAttempts
		}
		if row.TimeoutSeconds > 0 {
			s.Timeout = time.Duration(row.TimeoutSeconds) * time.Second
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return Settings{}, err
	}

	if p.cache != nil {
		if err := p.cache.Set(ctx, key, s, p.defaults.SettingsCacheTTL); err != nil {
			logrus.WithField("owner_id", ownerID).WithError(err).Warn("settings cache write failed")
		}
	}
	return s, nil
}

// Invalidate drops the cached settings of an owner.
func (p *SettingsProvider) Invalidate(ctx context.Context, ownerID uint64) error {
	if p.cache == nil {
		return nil
	}
	return p.cache.Delete(ctx, utils.BuildCacheKey(utils.CacheKeyUserSettings, ownerID))
}

func (p *SettingsProvider) fromDefaults() Settings {
	return Settings{
		ChunkSize:          p.defaults.DefaultChunkSize,
		DuplicateDetection: p.defaults.DuplicateDetection,
		RetryAttempts:      p.defaults.RetryAttempts,
		Timeout:            p.defaults.ChunkTimeout,
	}
}

// SettingsStore persists owner settings.
type SettingsStore interface {
	SettingsSource
	Save(ctx context.Context, s *model.UserSettings) error
}

// Update stores new owner settings and drops the cached copy. Zero values fall back
// to the defaults on read.
func (p *SettingsProvider) Update(ctx context.Context, ownerID uint64, s Settings) (Settings, error) {
	store, ok := p.source.(SettingsStore)
	if !ok {
		return Settings{}, errors.New("settings source is read-only")
	}
	if s.ChunkSize < 0 || s.RetryAttempts < 0 || s.Timeout < 0 {
		return Settings{}, errors.New("settings values must not be negative")
	}
	row := &model.UserSettings{
		OwnerID:            ownerID,
		ChunkSize:          s.ChunkSize,
		DuplicateDetection: s.DuplicateDetection,
		RetryAttempts:      s.RetryAttempts,
		TimeoutSeconds:     int(s.Timeout / time.Second),
	}
	if err := store.Save(ctx, row); err != nil {
		return Settings{}, err
	}
	if err := p.Invalidate(ctx, ownerID); err != nil {
		logrus.WithField("owner_id", ownerID).WithError(err).Warn("settings cache invalidate failed")
	}
	return p.Settings(ctx, ownerID)
}
