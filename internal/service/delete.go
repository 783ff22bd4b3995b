package service

import (
	"context"
	"errors"

	"MsgVault/internal/transfer"
	"MsgVault/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

type Deleter struct {
	d Deps
}

func NewDeleter(d Deps) *Deleter {
	d.withDefaults()
	return &Deleter{d: d}
}

// Delete removes the backend post and then the metadata of a file. Files still
// uploading are refused.
func (x *Deleter) Delete(ctx context.Context, ownerID uint64, fileID string) (*model.TransferLog, error) {
	file, err := x.d.Files.GetOwned(ctx, ownerID, fileID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFileNotFound
	}
	if err != nil {
		return nil, err
	}
	if file.Status == model.FileStatusInProgress || file.Status == model.FileStatusPending {
		return nil, ErrFileBusy
	}
	if !x.d.Backend.Ready() {
		return nil, ErrBackendUnavailable
	}

	start := transfer.Start{
		OwnerID:  ownerID,
		FileID:   file.ID,
		Type:     model.TransferDelete,
		FileName: file.Name,
		FileSize: file.Size,
	}
	if err := x.d.Backend.DeletePost(ctx, file.ID); err != nil {
		ioErr := &TransferIOError{Op: "delete post", FileID: file.ID, ChunkIndex: -1, Err: err}
		if _, recErr := x.d.Telemetry.Record(ctx, start, ioErr); recErr != nil {
			logrus.WithField("file_id", file.ID).WithError(recErr).Warn("record delete failed")
		}
		return nil, ioErr
	}
	if err := x.d.Files.Delete(context.WithoutCancel(ctx), file.ID); err != nil {
		return nil, err
	}
	log, err := x.d.Telemetry.Record(ctx, start, nil)
	if err != nil {
		logrus.WithField("file_id", file.ID).WithError(err).Warn("record delete failed")
	}
	logrus.WithFields(logrus.Fields{
		"owner_id": ownerID,
		"file_id":  file.ID,
	}).Info("file deleted")
	return log, nil
}
