package service

import (
	"context"
	"errors"
	"time"

	"MsgVault/internal/transfer"
	"MsgVault/model"
	"MsgVault/utils"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ShareExpiryScheduler arranges an out-of-band revocation of a share token.
type ShareExpiryScheduler interface {
	Schedule(ctx context.Context, token string, ttl time.Duration) error
}

type Sharer struct {
	d Deps
}

func NewSharer(d Deps) *Sharer {
	d.withDefaults()
	return &Sharer{d: d}
}

// Create issues a fresh public token for a completed file, replacing any earlier one.
func (s *Sharer) Create(ctx context.Context, ownerID uint64, fileID string, ttl time.Duration) (*model.File, error) {
	file, err := s.d.Files.GetOwned(ctx, ownerID, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	if file.Status != model.FileStatusCompleted {
		return nil, ErrFileNotReady
	}
	if ttl <= 0 {
		ttl = s.d.Config.ShareDefaultTTL
	}

	token := utils.GetToken()
	expiresAt := time.Now().Add(ttl)
	if err := s.d.Files.SetShare(ctx, file.ID, token, expiresAt); err != nil {
		return nil, err
	}
	if s.d.ShareExpiry != nil {
		if err := s.d.ShareExpiry.Schedule(ctx, token, ttl); err != nil {
			logrus.WithField("file_id", file.ID).WithError(err).Warn("schedule share expiry failed")
		}
	}
	file.ShareToken = &token
	file.ShareExpiresAt = &expiresAt

	if _, err := s.d.Telemetry.Record(ctx, transfer.Start{
		OwnerID:  ownerID,
		FileID:   file.ID,
		Type:     model.TransferShareCreate,
		FileName: file.Name,
	}, nil); err != nil {
		logrus.WithField("file_id", file.ID).WithError(err).Warn("record share failed")
	}
	return file, nil
}

// Revoke drops the share token of a file. Revoking an unshared file is a no-op.
func (s *Sharer) Revoke(ctx context.Context, ownerID uint64, fileID string) error {
	file, err := s.d.Files.GetOwned(ctx, ownerID, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrFileNotFound
	}
	if err != nil {
		return err
	}
	if file.ShareToken == nil {
		return nil
	}
	_, err = s.d.Files.ClearShare(ctx, *file.ShareToken)
	return err
}
