// Package transfer aggregates chunk events into per-transfer progress, persists it onto
// transfer_log rows and emits typed events for delivery to the owning user.
package transfer

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"MsgVault/model"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	EventCreated  = "transfer_created"
	EventProgress = "transfer_progress"
)

const defaultEventBuffer = 256

var (
	ErrUnknownTransfer = errors.New("unknown transfer")
	ErrFinalized       = errors.New("transfer already finalized")
)

// Event carries a full TransferLog snapshot to the owner's subscription.
type Event struct {
	Type     string            `json:"type"`
	OwnerID  uint64            `json:"owner_id"`
	Transfer model.TransferLog `json:"transfer"`
}

// LogStore persists transfer_log rows.
type LogStore interface {
	Create(ctx context.Context, log *model.TransferLog) error
	Save(ctx context.Context, log *model.TransferLog) error
	Get(ctx context.Context, id string) (*model.TransferLog, error)
}

// TimeProvider abstracts time for deterministic tests.
type TimeProvider interface {
	Now() time.Time
}

type systemTime struct{}

func (systemTime) Now() time.Time { return time.Now() }

// Start describes a transfer being opened.
type Start struct {
	ID          string // reuse a queued transfer when set
	OwnerID     uint64
	FileID      string
	Type        string
	FileName    string
	FileSize    int64
	ChunksTotal int
}

// Snapshot is the in-memory view of an active transfer.
type Snapshot struct {
	TransferID       string    `json:"transfer_id"`
	OwnerID          uint64    `json:"owner_id"`
	FileID           string    `json:"file_id"`
	Type             string    `json:"type"`
	FileName         string    `json:"file_name"`
	ChunksTotal      int       `json:"chunks_total"`
	ChunksCompleted  int       `json:"chunks_completed"`
	BytesTransferred int64     `json:"bytes_transferred"`
	FileSize         int64     `json:"file_size"`
	Progress         int       `json:"progress"`
	Speed            float64   `json:"speed"`
	ETA              *float64  `json:"eta,omitempty"`
	StartTime        time.Time `json:"start_time"`
	LastUpdateTime   time.Time `json:"last_update_time"`
}

type aggregate struct {
	mu              sync.Mutex
	log             model.TransferLog
	chunksTotal     int
	chunksCompleted int
	startTime       time.Time
	lastUpdateTime  time.Time
	done            bool
}

// Tracker owns the active-transfer aggregates.
type Tracker struct {
	store  LogStore
	clock  TimeProvider
	events chan Event

	mu     sync.Mutex
	active map[string]*aggregate
}

type Option func(*Tracker)

// WithTimeProvider replaces the wall clock.
func WithTimeProvider(tp TimeProvider) Option {
	return func(t *Tracker) { t.clock = tp }
}

// WithEventBuffer sets the capacity of the outbound event channel.
func WithEventBuffer(n int) Option {
	return func(t *Tracker) {
		if n > 0 {
			t.events = make(chan Event, n)
		}
	}
}

func NewTracker(store LogStore, opts ...Option) *Tracker {
	t := &Tracker{
		store:  store,
		clock:  systemTime{},
		events: make(chan Event, defaultEventBuffer),
		active: make(map[string]*aggregate),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Events is consumed by a Broadcaster.
func (t *Tracker) Events() <-chan Event {
	return t.events
}

// Queue persists a pending transfer that has not started moving bytes yet.
func (t *Tracker) Queue(ctx context.Context, s Start) (*model.TransferLog, error) {
	log := t.newLog(s, model.TransferStatusPending)
	if err := t.store.Create(ctx, &log); err != nil {
		return nil, fmt.Errorf("queue transfer: %w", err)
	}
	t.emit(EventCreated, log)
	return &log, nil
}

// Begin opens an active transfer. A transfer with zero chunks completes immediately.
func (t *Tracker) Begin(ctx context.Context, s Start) (*model.TransferLog, error) {
	now := t.clock.Now()
	var log model.TransferLog
	eventType := EventCreated

	if s.ID != "" {
		existing, err := t.store.Get(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("begin transfer %s: %w", s.ID, err)
		}
		if existing.Terminal() {
			return nil, ErrFinalized
		}
		log = *existing
		log.FileID = s.FileID
		log.FileName = s.FileName
		log.FileSize = s.FileSize
		log.Status = model.TransferStatusInProgress
		log.StartedAt = &now
		if err := t.store.Save(ctx, &log); err != nil {
			return nil, fmt.Errorf("begin transfer %s: %w", s.ID, err)
		}
		eventType = EventProgress
	} else {
		log = t.newLog(s, model.TransferStatusInProgress)
		log.StartedAt = &now
		if err := t.store.Create(ctx, &log); err != nil {
			return nil, fmt.Errorf("begin transfer: %w", err)
		}
	}
	t.emit(eventType, log)

	agg := &aggregate{
		log:            log,
		chunksTotal:    s.ChunksTotal,
		startTime:      now,
		lastUpdateTime: now,
	}
	if s.ChunksTotal <= 0 {
		agg.mu.Lock()
		defer agg.mu.Unlock()
		if err := t.complete(ctx, agg); err != nil {
			return nil, err
		}
		return snapshotLog(agg.log), nil
	}

	t.mu.Lock()
	t.active[log.ID] = agg
	t.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"transfer_id": log.ID,
		"type":        log.Type,
		"file_id":     log.FileID,
		"chunks":      s.ChunksTotal,
	}).Debug("transfer started")
	return snapshotLog(log), nil
}

// ChunkDone applies one completed chunk. The last chunk completes the transfer.
func (t *Tracker) ChunkDone(ctx context.Context, transferID string, size int64) (*model.TransferLog, error) {
	agg, ok := t.lookup(transferID)
	if !ok {
		return nil, ErrUnknownTransfer
	}
	agg.mu.Lock()
	defer agg.mu.Unlock()
	if agg.done {
		return nil, ErrFinalized
	}

	now := t.clock.Now()
	agg.chunksCompleted++
	agg.log.BytesTransferred += size
	agg.lastUpdateTime = now

	if agg.chunksCompleted >= agg.chunksTotal {
		if err := t.complete(ctx, agg); err != nil {
			return nil, err
		}
		return snapshotLog(agg.log), nil
	}

	agg.log.Speed = speed(agg.log.BytesTransferred, now.Sub(agg.startTime))
	agg.log.ETA = eta(agg.log.FileSize, agg.log.BytesTransferred, agg.log.Speed)
	if p := progress(agg.log.BytesTransferred, agg.log.FileSize); p > agg.log.Progress {
		agg.log.Progress = p
	}
	if err := t.store.Save(context.WithoutCancel(ctx), &agg.log); err != nil {
		return nil, fmt.Errorf("save transfer progress: %w", err)
	}
	t.emit(EventProgress, agg.log)
	return snapshotLog(agg.log), nil
}

// Fail finalizes a transfer as failed, or cancelled when cause is a context
// cancellation. Queued transfers that never became active are finalized from storage.
func (t *Tracker) Fail(ctx context.Context, transferID string, cause error) (*model.TransferLog, error) {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return t.end(ctx, transferID, failureStatus(cause), msg)
}

// Cancel finalizes a transfer as cancelled with a reason.
func (t *Tracker) Cancel(ctx context.Context, transferID, reason string) (*model.TransferLog, error) {
	return t.end(ctx, transferID, model.TransferStatusCancelled, reason)
}

func (t *Tracker) end(ctx context.Context, transferID, status, msg string) (*model.TransferLog, error) {
	ctx = context.WithoutCancel(ctx)
	if agg, ok := t.lookup(transferID); ok {
		agg.mu.Lock()
		defer agg.mu.Unlock()
		if agg.done {
			return nil, ErrFinalized
		}
		if err := t.finish(ctx, agg, status, msg); err != nil {
			return nil, err
		}
		return snapshotLog(agg.log), nil
	}

	existing, err := t.store.Get(ctx, transferID)
	if err != nil {
		return nil, fmt.Errorf("end transfer %s: %w", transferID, err)
	}
	if existing.Terminal() {
		return nil, ErrFinalized
	}
	agg := &aggregate{log: *existing}
	if err := t.finish(ctx, agg, status, msg); err != nil {
		return nil, err
	}
	return snapshotLog(agg.log), nil
}

// Record persists a one-shot transfer that is already finished.
func (t *Tracker) Record(ctx context.Context, s Start, cause error) (*model.TransferLog, error) {
	now := t.clock.Now()
	log := t.newLog(s, model.TransferStatusCompleted)
	log.StartedAt = &now
	log.CompletedAt = &now
	if cause != nil {
		log.Status = failureStatus(cause)
		log.ErrorMsg = cause.Error()
	} else {
		log.BytesTransferred = s.FileSize
		log.Progress = 100
	}
	if err := t.store.Create(context.WithoutCancel(ctx), &log); err != nil {
		return nil, fmt.Errorf("record transfer: %w", err)
	}
	t.emit(EventCreated, log)
	return &log, nil
}

// Active lists in-flight transfers of one owner.
func (t *Tracker) Active(ownerID uint64) []Snapshot {
	return t.collect(func(log *model.TransferLog) bool { return log.OwnerID == ownerID })
}

// ActiveByFile returns the in-flight transfers touching fileID.
func (t *Tracker) ActiveByFile(fileID string) []Snapshot {
	return t.collect(func(log *model.TransferLog) bool { return log.FileID == fileID })
}

// collect never holds the map lock while taking an aggregate lock.
func (t *Tracker) collect(match func(*model.TransferLog) bool) []Snapshot {
	t.mu.Lock()
	aggs := make([]*aggregate, 0, len(t.active))
	for _, agg := range t.active {
		aggs = append(aggs, agg)
	}
	t.mu.Unlock()

	out := make([]Snapshot, 0, len(aggs))
	for _, agg := range aggs {
		agg.mu.Lock()
		if !agg.done && match(&agg.log) {
			out = append(out, agg.snapshot())
		}
		agg.mu.Unlock()
	}
	return out
}

func (t *Tracker) complete(ctx context.Context, agg *aggregate) error {
	now := t.clock.Now()
	zero := 0.0
	agg.log.Status = model.TransferStatusCompleted
	agg.log.Progress = 100
	agg.log.BytesTransferred = agg.log.FileSize
	agg.log.Speed = speed(agg.log.FileSize, now.Sub(agg.startTime))
	agg.log.ETA = &zero
	agg.log.CompletedAt = &now
	agg.done = true
	t.evict(agg.log.ID)
	if err := t.store.Save(context.WithoutCancel(ctx), &agg.log); err != nil {
		return fmt.Errorf("save completed transfer: %w", err)
	}
	t.emit(EventProgress, agg.log)
	logrus.WithFields(logrus.Fields{
		"transfer_id": agg.log.ID,
		"type":        agg.log.Type,
		"file_id":     agg.log.FileID,
		"bytes":       agg.log.FileSize,
	}).Info("transfer completed")
	return nil
}

func (t *Tracker) finish(ctx context.Context, agg *aggregate, status, msg string) error {
	now := t.clock.Now()
	agg.log.Status = status
	agg.log.ErrorMsg = msg
	agg.log.ETA = nil
	agg.log.CompletedAt = &now
	agg.done = true
	t.evict(agg.log.ID)
	if err := t.store.Save(ctx, &agg.log); err != nil {
		return fmt.Errorf("save failed transfer: %w", err)
	}
	t.emit(EventProgress, agg.log)
	logrus.WithFields(logrus.Fields{
		"transfer_id": agg.log.ID,
		"type":        agg.log.Type,
		"file_id":     agg.log.FileID,
		"status":      agg.log.Status,
		"bytes":       agg.log.BytesTransferred,
		"reason":      msg,
	}).Warn("transfer finished without completing")
	return nil
}

func (t *Tracker) newLog(s Start, status string) model.TransferLog {
	id := s.ID
	if id == "" {
		id = uuid.NewString()
	}
	return model.TransferLog{
		ID:       id,
		OwnerID:  s.OwnerID,
		FileID:   s.FileID,
		Type:     s.Type,
		Status:   status,
		FileName: s.FileName,
		FileSize: s.FileSize,
	}
}

func (t *Tracker) lookup(id string) (*aggregate, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	agg, ok := t.active[id]
	return agg, ok
}

func (t *Tracker) evict(id string) {
	t.mu.Lock()
	delete(t.active, id)
	t.mu.Unlock()
}

func (t *Tracker) emit(eventType string, log model.TransferLog) {
	ev := Event{Type: eventType, OwnerID: log.OwnerID, Transfer: *snapshotLog(log)}
	select {
	case t.events <- ev:
	default:
		logrus.WithFields(logrus.Fields{
			"transfer_id": log.ID,
			"event":       eventType,
		}).Warn("transfer event dropped, broadcaster is behind")
	}
}

func (a *aggregate) snapshot() Snapshot {
	s := Snapshot{
		TransferID:       a.log.ID,
		OwnerID:          a.log.OwnerID,
		FileID:           a.log.FileID,
		Type:             a.log.Type,
		FileName:         a.log.FileName,
		ChunksTotal:      a.chunksTotal,
		ChunksCompleted:  a.chunksCompleted,
		BytesTransferred: a.log.BytesTransferred,
		FileSize:         a.log.FileSize,
		Progress:         a.log.Progress,
		Speed:            a.log.Speed,
		StartTime:        a.startTime,
		LastUpdateTime:   a.lastUpdateTime,
	}
	if a.log.ETA != nil {
		v := *a.log.ETA
		s.ETA = &v
	}
	return s
}

func snapshotLog(log model.TransferLog) *model.TransferLog {
	out := log
	if log.ETA != nil {
		v := *log.ETA
		out.ETA = &v
	}
	return &out
}

func failureStatus(cause error) string {
	if errors.Is(cause, context.Canceled) {
		return model.TransferStatusCancelled
	}
	return model.TransferStatusFailed
}

// progress never reports 100 before completion.
func progress(done, total int64) int {
	if total <= 0 {
		return 0
	}
	p := int(math.Round(float64(done) / float64(total) * 100))
	if p > 99 {
		p = 99
	}
	if p < 0 {
		p = 0
	}
	return p
}

func speed(bytes int64, elapsed time.Duration) float64 {
	secs := elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(bytes) / secs
}

func eta(total, done int64, bytesPerSec float64) *float64 {
	if bytesPerSec <= 0 {
		return nil
	}
	v := float64(total-done) / bytesPerSec
	return &v
}
