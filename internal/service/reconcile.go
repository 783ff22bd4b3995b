package service

import (
	"context"
	"errors"
	"fmt"

	"MsgVault/internal/backend"
	"MsgVault/internal/repo"
	"MsgVault/model"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Reconciler removes what a failed upload left behind.
type Reconciler struct {
	backend backend.Backend
	files   *repo.FileRepo
}

func NewReconciler(b backend.Backend, files *repo.FileRepo) *Reconciler {
	return &Reconciler{backend: b, files: files}
}

// Reconcile deletes the orphaned post, then the failed file row and its chunks. It is
// safe to repeat.
func (r *Reconciler) Reconcile(ctx context.Context, o Orphan) error {
	if !r.backend.Ready() {
		return ErrBackendUnavailable
	}
	if o.FileID != "" {
		file, err := r.files.Get(ctx, o.FileID)
		switch {
		case err == nil && file.Status == model.FileStatusCompleted:
			logrus.WithField("file_id", o.FileID).Warn("orphan report for a completed file ignored")
			return nil
		case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
	}
	if o.PostID != "" {
		if err := r.backend.DeletePost(ctx, o.PostID); err != nil {
			return fmt.Errorf("delete orphan post %s: %w", o.PostID, err)
		}
	}
	if o.FileID != "" {
		if err := r.files.DeleteFailed(ctx, o.FileID); err != nil {
			return fmt.Errorf("delete failed file %s: %w", o.FileID, err)
		}
	}
	logrus.WithFields(logrus.Fields{
		"owner_id": o.OwnerID,
		"file_id":  o.FileID,
		"post_id":  o.PostID,
	}).Info("orphan reconciled")
	return nil
}
