// Package task carries orphan reports from the upload path to the reconciliation queue.
package task

import (
	"context"
	"encoding/json"

	"MsgVault/internal/service"

	"github.com/sirupsen/logrus"
)

// OrphanMessage is the payload consumed by the reconcile worker.
type OrphanMessage struct {
	Orphan  service.Orphan `json:"orphan"`
	Attempt int            `json:"attempt"`
}

// TaskPublisher enqueues a message body onto the task queue.
type TaskPublisher interface {
	PublishTask(ctx context.Context, body []byte) error
}

// QueueOrphanReporter publishes orphans for background cleanup. When the broker is
// unreachable the orphan is still logged so an operator can act on it.
type QueueOrphanReporter struct {
	publisher TaskPublisher
	fallback  service.OrphanReporter
}

func NewQueueOrphanReporter(publisher TaskPublisher) *QueueOrphanReporter {
	return &QueueOrphanReporter{publisher: publisher, fallback: service.LogOrphanReporter{}}
}

func (r *QueueOrphanReporter) ReportOrphan(ctx context.Context, o service.Orphan) error {
	body, err := json.Marshal(OrphanMessage{Orphan: o})
	if err != nil {
		return err
	}
	if err := r.publisher.PublishTask(ctx, body); err != nil {
		logrus.WithField("file_id", o.FileID).WithError(err).Error("publish orphan failed")
		return r.fallback.ReportOrphan(ctx, o)
	}
	logrus.WithFields(logrus.Fields{
		"file_id": o.FileID,
		"post_id": o.PostID,
	}).Info("orphan queued for reconciliation")
	return nil
}

// DecodeOrphanMessage parses a queue body.
func DecodeOrphanMessage(body []byte) (OrphanMessage, error) {
	var msg OrphanMessage
	err := json.Unmarshal(body, &msg)
	return msg, err
}
