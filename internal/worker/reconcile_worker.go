// Package worker consumes orphan reports and reconciles them against the backend.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"MsgVault/config"
	"MsgVault/internal/backend"
	"MsgVault/internal/mq"
	"MsgVault/internal/service"
	"MsgVault/internal/task"
	"MsgVault/utils"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

type dlqMessage struct {
	Orphan   service.Orphan `json:"orphan"`
	Attempt  int            `json:"attempt"`
	Error    string         `json:"error"`
	FailedAt time.Time      `json:"failed_at"`
}

// Reconciler cleans up one orphan.
type Reconciler interface {
	Reconcile(ctx context.Context, o service.Orphan) error
}

// RetryPublisher is the retry and dead-letter side of the queue client.
type RetryPublisher interface {
	PublishRetry(ctx context.Context, body []byte, delay time.Duration) error
	PublishDLQ(ctx context.Context, body []byte) error
}

type Options struct {
	Concurrency int
	Rate        float64
	Burst       int
	RetryMax    int
	RetryDelays []time.Duration
	AlertEmail  string
}

// OptionsFromConfig reads worker settings from AppConfig.
func OptionsFromConfig() Options {
	return Options{
		Concurrency: config.AppConfig.ReconcileConcurrency,
		Rate:        config.AppConfig.ReconcileRate,
		Burst:       config.AppConfig.ReconcileBurst,
		RetryMax:    config.AppConfig.ReconcileRetryMax,
		RetryDelays: config.AppConfig.ReconcileRetryDelays,
		AlertEmail:  config.AppConfig.AlertEmail,
	}
}

type ReconcileWorker struct {
	rec     Reconciler
	pub     RetryPublisher
	opts    Options
	limiter *rate.Limiter
	alert   func(to, subject, body string) error
}

func NewReconcileWorker(rec Reconciler, pub RetryPublisher, opts Options) *ReconcileWorker {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	var limiter *rate.Limiter
	if opts.Rate <= 0 {
		limiter = rate.NewLimiter(rate.Inf, burst)
	} else {
		limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return &ReconcileWorker{
		rec:     rec,
		pub:     pub,
		opts:    opts,
		limiter: limiter,
		alert:   utils.SendAlertMail,
	}
}

// RunReconcileWorker consumes the orphan queue until ctx is done.
func RunReconcileWorker(ctx context.Context, client *mq.Client, rec Reconciler, opts Options, prefetch int) error {
	if err := client.DeclareTopology(); err != nil {
		return err
	}
	if prefetch <= 0 {
		prefetch = 1
	}
	if err := client.Channel.Qos(prefetch, 0, false); err != nil {
		return err
	}
	deliveries, err := client.Channel.Consume(mq.QueueTasks, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	return NewReconcileWorker(rec, client, opts).Run(ctx, deliveries)
}

// Run handles deliveries with at most Concurrency in flight.
func (w *ReconcileWorker) Run(ctx context.Context, deliveries <-chan amqp.Delivery) error {
	sem := make(chan struct{}, w.opts.Concurrency)
	for {
		select {
		case <-ctx.Done():
			return nil
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("reconcile worker: delivery channel closed")
			}
			sem <- struct{}{}
			go func(d amqp.Delivery) {
				defer func() { <-sem }()
				w.handle(ctx, d)
			}(delivery)
		}
	}
}

func (w *ReconcileWorker) handle(ctx context.Context, delivery amqp.Delivery) {
	msg, err := task.DecodeOrphanMessage(delivery.Body)
	if err != nil {
		logrus.WithError(err).Warn("reconcile worker: invalid message")
		_ = delivery.Ack(false)
		return
	}
	entry := logrus.WithFields(logrus.Fields{
		"file_id": msg.Orphan.FileID,
		"post_id": msg.Orphan.PostID,
		"attempt": msg.Attempt,
	})

	if err := w.limiter.Wait(ctx); err != nil {
		_ = delivery.Nack(false, true)
		return
	}

	if err := w.rec.Reconcile(ctx, msg.Orphan); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			_ = delivery.Nack(false, true)
			return
		}
		entry.WithError(err).Warn("reconcile failed")
		if shouldRetry(err) {
			err = w.scheduleRetry(ctx, msg, err)
		} else {
			err = w.deadLetter(ctx, msg, err)
		}
		if err != nil {
			entry.WithError(err).Error("reconcile worker: requeue failed")
			_ = delivery.Nack(false, true)
			return
		}
	}
	_ = delivery.Ack(false)
}

func shouldRetry(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, service.ErrBackendUnavailable) {
		return true
	}
	return backend.Retryable(err)
}

func (w *ReconcileWorker) scheduleRetry(ctx context.Context, msg task.OrphanMessage, procErr error) error {
	maxRetry := max(w.opts.RetryMax, 0)
	nextAttempt := msg.Attempt + 1
	if maxRetry == 0 || nextAttempt > maxRetry {
		return w.deadLetter(ctx, msg, procErr)
	}
	delay := utils.PickRetryDelay(nextAttempt, w.opts.RetryDelays)
	msg.Attempt = nextAttempt
	body, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"file_id": msg.Orphan.FileID,
		"attempt": nextAttempt,
		"delay":   delay,
	}).Info("reconcile retry scheduled")
	return w.pub.PublishRetry(ctx, body, delay)
}

func (w *ReconcileWorker) deadLetter(ctx context.Context, msg task.OrphanMessage, procErr error) error {
	failedAt := time.Now()
	body, err := json.Marshal(dlqMessage{
		Orphan:   msg.Orphan,
		Attempt:  msg.Attempt,
		Error:    procErr.Error(),
		FailedAt: failedAt,
	})
	if err != nil {
		return err
	}
	if err := w.pub.PublishDLQ(ctx, body); err != nil {
		logrus.WithField("file_id", msg.Orphan.FileID).WithError(err).Error("dlq publish failed")
	}
	if w.opts.AlertEmail != "" {
		subject := fmt.Sprintf("MsgVault: orphan %s needs manual cleanup", msg.Orphan.PostID)
		text := fmt.Sprintf("post: %s\nfile: %s\nowner: %d\nchunks uploaded: %d\nattempts: %d\nerror: %s\n",
			msg.Orphan.PostID, msg.Orphan.FileID, msg.Orphan.OwnerID, msg.Orphan.ChunksUploaded, msg.Attempt, procErr)
		if err := w.alert(w.opts.AlertEmail, subject, text); err != nil {
			logrus.WithField("file_id", msg.Orphan.FileID).WithError(err).Warn("send orphan alert failed")
		}
	}
	return nil
}
