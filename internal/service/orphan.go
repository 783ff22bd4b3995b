package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Orphan describes backend resources left behind by a failed upload.
type Orphan struct {
	OwnerID        uint64    `json:"owner_id"`
	FileID         string    `json:"file_id"`
	PostID         string    `json:"post_id"`
	ContainerID    string    `json:"container_id"`
	ChunksUploaded int       `json:"chunks_uploaded"`
	Reason         string    `json:"reason"`
	DetectedAt     time.Time `json:"detected_at"`
}

// OrphanReporter hands orphans to background reconciliation.
type OrphanReporter interface {
	ReportOrphan(ctx context.Context, o Orphan) error
}

// LogOrphanReporter only logs; cleanup is left to an operator.
type LogOrphanReporter struct{}

func (LogOrphanReporter) ReportOrphan(_ context.Context, o Orphan) error {
	logrus.WithFields(logrus.Fields{
		"owner_id":        o.OwnerID,
		"file_id":         o.FileID,
		"post_id":         o.PostID,
		"chunks_uploaded": o.ChunksUploaded,
	}).Warn("orphaned backend post needs manual cleanup")
	return nil
}
