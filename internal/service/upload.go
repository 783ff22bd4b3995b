package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"MsgVault/internal/backend"
	"MsgVault/internal/chunk"
	"MsgVault/internal/repo"
	"MsgVault/internal/storage"
	"MsgVault/internal/transfer"
	"MsgVault/model"
	"MsgVault/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

// UploadRequest is one file to store.
type UploadRequest struct {
	OwnerID  uint64
	FolderID uint64
	Name     string
	Size     int64
	MimeType string
	Body     io.Reader
}

// UploadResult is either a stored File or a Conflict awaiting resolution.
type UploadResult struct {
	File     *model.File          `json:"file,omitempty"`
	Transfer *model.TransferLog   `json:"transfer,omitempty"`
	Conflict *Conflict            `json:"conflict,omitempty"`
	Pending  *model.PendingUpload `json:"pending,omitempty"`
}

// Uploader is the upload orchestrator.
type Uploader struct {
	d        Deps
	resolver *ConflictResolver
	sem      chan struct{}
}

func NewUploader(d Deps) *Uploader {
	d.withDefaults()
	limit := d.Config.MaxConcurrentUploads
	if limit <= 0 {
		limit = 1
	}
	return &Uploader{
		d:        d,
		resolver: NewConflictResolver(d.Files),
		sem:      make(chan struct{}, limit),
	}
}

type uploadJob struct {
	ownerID      uint64
	folder       *model.Folder
	name         string
	originalName string
	mimeType     string
	size         int64
	body         io.Reader
	settings     Settings
	plan         chunk.Plan
	transferID   string
}

// Upload stores req, or suspends it as a PendingUpload when it collides with an
// existing file and duplicate detection is on.
func (u *Uploader) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	if !u.d.Backend.Ready() {
		return nil, ErrBackendUnavailable
	}
	name := utils.SanitizeFileName(req.Name)
	if name == "" {
		return nil, ErrInvalidName
	}
	folder, err := u.d.Folders.GetOwned(ctx, req.OwnerID, req.FolderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	settings, err := u.d.Settings.Settings(ctx, req.OwnerID)
	if err != nil {
		return nil, err
	}
	plan, err := chunk.NewPlan(req.Size, settings.ChunkSize, u.d.Config.HardCapBytes)
	if err != nil {
		return nil, err
	}

	// The slot is taken before the name lock so the lock is never held while
	// waiting for another upload to finish.
	slot, err := u.acquireSlot(ctx)
	if err != nil {
		return nil, err
	}
	defer slot()

	body := bufio.NewReaderSize(req.Body, sniffLen)
	head, _ := body.Peek(int(min(req.Size, sniffLen)))
	job := uploadJob{
		ownerID:      req.OwnerID,
		folder:       folder,
		name:         name,
		originalName: name,
		mimeType:     DetectMimeType(req.MimeType, name, head),
		size:         req.Size,
		body:         body,
		settings:     settings,
		plan:         plan,
	}

	release, err := u.d.Locker.Acquire(ctx, nameLockKey(req.OwnerID, folder.ID, name))
	if err != nil {
		return nil, err
	}
	unlock := onceFunc(release)
	defer unlock()

	conflict, err := u.resolver.Detect(ctx, Candidate{
		OwnerID:  req.OwnerID,
		FolderID: folder.ID,
		Name:     name,
		Size:     req.Size,
		MimeType: job.mimeType,
	}, settings.DuplicateDetection)
	if err != nil {
		return nil, err
	}
	if conflict != nil {
		unlock()
		slot()
		return u.suspend(ctx, job, conflict)
	}
	return u.run(ctx, job, unlock)
}

// Resolve applies the caller's decision to a suspended upload. A pending upload can
// be resolved once. When the resolution fails before the upload starts the claim is
// released so the caller can try again.
func (u *Uploader) Resolve(ctx context.Context, ownerID uint64, pendingID string, action Resolution) (*UploadResult, error) {
	if _, err := ParseResolution(string(action)); err != nil {
		return nil, err
	}
	if action != ResolutionKeep && !u.d.Backend.Ready() {
		return nil, ErrBackendUnavailable
	}
	p, err := u.d.Pending.Claim(ctx, ownerID, pendingID)
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return nil, ErrPendingNotFound
	case errors.Is(err, repo.ErrPendingClaimed):
		return nil, ErrPendingResolved
	case err != nil:
		return nil, err
	}
	committed := false
	defer func() {
		if committed {
			u.discardPending(ctx, p)
			return
		}
		if err := u.d.Pending.Release(context.WithoutCancel(ctx), p.ID); err != nil {
			logrus.WithField("pending_id", p.ID).WithError(err).Warn("release pending upload failed")
		}
	}()

	entry := logrus.WithFields(logrus.Fields{
		"owner_id":   ownerID,
		"pending_id": p.ID,
		"action":     action,
	})

	if action == ResolutionKeep {
		committed = true
		log, cancelErr := u.d.Telemetry.Cancel(ctx, p.TransferID, "existing file kept")
		if cancelErr != nil {
			entry.WithError(cancelErr).Warn("cancel queued transfer failed")
		}
		existing, err := u.d.Files.GetOwned(ctx, ownerID, p.ExistingFileID)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFileNotFound
		}
		if err != nil {
			return nil, err
		}
		entry.Info("conflict resolved, existing file kept")
		return &UploadResult{File: existing, Transfer: log}, nil
	}

	folder, err := u.d.Folders.GetOwned(ctx, ownerID, p.FolderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	settings, err := u.d.Settings.Settings(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	plan, err := chunk.NewPlan(p.Size, settings.ChunkSize, u.d.Config.HardCapBytes)
	if err != nil {
		return nil, err
	}
	rc, _, err := u.d.Staging.GetObject(ctx, u.d.StagingBucket, p.StagingKey)
	if err != nil {
		return nil, fmt.Errorf("read staged upload: %w", err)
	}
	defer rc.Close()

	job := uploadJob{
		ownerID:      ownerID,
		folder:       folder,
		name:         p.Name,
		originalName: p.Name,
		mimeType:     p.MimeType,
		size:         p.Size,
		body:         rc,
		settings:     settings,
		plan:         plan,
		transferID:   p.TransferID,
	}

	slot, err := u.acquireSlot(ctx)
	if err != nil {
		return nil, err
	}
	defer slot()

	release, err := u.d.Locker.Acquire(ctx, nameLockKey(ownerID, folder.ID, p.Name))
	if err != nil {
		return nil, err
	}
	unlock := onceFunc(release)
	defer unlock()

	switch action {
	case ResolutionReplace:
		existing, err := u.d.Files.GetOwned(ctx, ownerID, p.ExistingFileID)
		switch {
		case err == nil:
			if existing.Status == model.FileStatusInProgress {
				return nil, ErrFileBusy
			}
			if err := u.replaceExisting(ctx, existing); err != nil {
				return nil, err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
		default:
			return nil, err
		}
	case ResolutionRename:
		unlock()
		renamed, err := u.lockAvailableName(ctx, ownerID, folder.ID, p.Name)
		if err != nil {
			return nil, err
		}
		job.name = renamed.name
		unlock = renamed.unlock
		defer unlock()
	}

	committed = true
	entry.WithField("name", job.name).Info("conflict resolved, uploading")
	return u.run(ctx, job, unlock)
}

type lockedName struct {
	name   string
	unlock func()
}

// lockAvailableName picks a free variant and holds its name lock. A variant taken
// between the lookup and the lock is skipped.
func (u *Uploader) lockAvailableName(ctx context.Context, ownerID, folderID uint64, name string) (*lockedName, error) {
	for attempt := 0; attempt < maxRenameAttempts; attempt++ {
		candidate, err := u.resolver.AvailableName(ctx, ownerID, folderID, name)
		if err != nil {
			return nil, err
		}
		release, err := u.d.Locker.Acquire(ctx, nameLockKey(ownerID, folderID, candidate))
		if err != nil {
			return nil, err
		}
		taken, err := u.d.Files.NameTaken(ctx, ownerID, folderID, candidate)
		if err != nil {
			release()
			return nil, err
		}
		if !taken {
			return &lockedName{name: candidate, unlock: onceFunc(release)}, nil
		}
		release()
	}
	return nil, fmt.Errorf("no free name for %q", name)
}

func (u *Uploader) suspend(ctx context.Context, job uploadJob, conflict *Conflict) (*UploadResult, error) {
	if u.d.Staging == nil {
		return nil, errors.New("no staging store configured for conflict suspension")
	}
	pendingID := uuid.NewString()
	key := fmt.Sprintf("pending/%d/%s", job.ownerID, pendingID)
	err := u.d.Staging.PutObject(ctx, u.d.StagingBucket, key, job.body, job.size, storage.PutOptions{
		ContentType: job.mimeType,
		Metadata:    map[string]string{"name": job.name, "owner": strconv.FormatUint(job.ownerID, 10)},
	})
	if err != nil {
		return nil, fmt.Errorf("stage upload: %w", err)
	}

	log, err := u.d.Telemetry.Queue(ctx, transfer.Start{
		OwnerID:  job.ownerID,
		Type:     model.TransferUpload,
		FileName: job.name,
		FileSize: job.size,
	})
	if err != nil {
		_ = u.d.Staging.RemoveObject(context.WithoutCancel(ctx), u.d.StagingBucket, key)
		return nil, err
	}

	pending := &model.PendingUpload{
		ID:             pendingID,
		OwnerID:        job.ownerID,
		FolderID:       job.folder.ID,
		Name:           job.name,
		Size:           job.size,
		MimeType:       job.mimeType,
		StagingKey:     key,
		ExistingFileID: conflict.Existing.ID,
		TransferID:     log.ID,
		Status:         model.PendingStatusPending,
	}
	if err := u.d.Pending.Create(ctx, pending); err != nil {
		u.failQueued(ctx, log.ID, err)
		_ = u.d.Staging.RemoveObject(context.WithoutCancel(ctx), u.d.StagingBucket, key)
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"owner_id":      job.ownerID,
		"pending_id":    pendingID,
		"existing_file": conflict.Existing.ID,
		"name":          job.name,
		"size":          job.size,
	}).Info("upload suspended on conflict")
	return &UploadResult{Conflict: conflict, Pending: pending, Transfer: log}, nil
}

// acquireSlot waits for one of the max_concurrent_uploads slots.
func (u *Uploader) acquireSlot(ctx context.Context) (func(), error) {
	select {
	case u.sem <- struct{}{}:
		return onceFunc(func() { <-u.sem }), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// run moves the job through pending -> in_progress -> completed|failed. The caller
// holds an upload slot; unlock is called once the File row exists.
func (u *Uploader) run(ctx context.Context, job uploadJob, unlock func()) (*UploadResult, error) {
	if !u.d.Backend.Ready() {
		unlock()
		u.failStart(ctx, job, "", ErrBackendUnavailable)
		return nil, ErrBackendUnavailable
	}

	containerID, err := u.ensureContainer(ctx, job.folder)
	if err != nil {
		unlock()
		ioErr := &TransferIOError{Op: "create container", ChunkIndex: -1, Err: err}
		u.failStart(ctx, job, "", ioErr)
		return nil, ioErr
	}
	postID, err := u.d.Backend.CreatePost(ctx, containerID, job.name, postBody(job))
	if err != nil {
		unlock()
		ioErr := &TransferIOError{Op: "create post", ChunkIndex: -1, Err: err}
		u.failStart(ctx, job, "", ioErr)
		return nil, ioErr
	}

	file := &model.File{
		ID:           postID,
		OwnerID:      job.ownerID,
		FolderID:     job.folder.ID,
		Name:         job.name,
		OriginalName: job.originalName,
		Size:         job.size,
		MimeType:     job.mimeType,
		ContainerID:  containerID,
		Status:       model.FileStatusInProgress,
	}
	if err := u.d.Files.Create(ctx, file); err != nil {
		unlock()
		u.failStart(ctx, job, postID, err)
		u.reportOrphan(ctx, file, 0, err)
		return nil, err
	}
	unlock()

	log, err := u.d.Telemetry.Begin(ctx, transfer.Start{
		ID:          job.transferID,
		OwnerID:     job.ownerID,
		FileID:      postID,
		Type:        model.TransferUpload,
		FileName:    job.name,
		FileSize:    job.size,
		ChunksTotal: job.plan.Count,
	})
	if err != nil {
		u.markFailed(ctx, file.ID)
		u.reportOrphan(ctx, file, 0, err)
		return nil, err
	}

	if job.plan.Count == 0 {
		if err := u.d.Files.Transition(ctx, file.ID, model.FileStatusInProgress, model.FileStatusCompleted,
			map[string]interface{}{"content_hash": checksum(nil)}); err != nil {
			return nil, err
		}
		file, err = u.d.Files.Get(ctx, file.ID)
		if err != nil {
			return nil, err
		}
		return &UploadResult{File: file, Transfer: log}, nil
	}

	final, uploaded, err := u.uploadChunks(ctx, job, file, log)
	if err != nil {
		u.markFailed(ctx, file.ID)
		if _, failErr := u.d.Telemetry.Fail(ctx, log.ID, err); failErr != nil {
			logrus.WithField("transfer_id", log.ID).WithError(failErr).Warn("mark transfer failed")
		}
		u.reportOrphan(ctx, file, uploaded, err)
		return nil, err
	}

	file, err = u.d.Files.Get(ctx, file.ID)
	if err != nil {
		return nil, err
	}
	return &UploadResult{File: file, Transfer: final}, nil
}

// uploadChunks streams the plan sequentially. It returns the number of chunks that
// were stored before any failure.
func (u *Uploader) uploadChunks(ctx context.Context, job uploadJob, file *model.File, log *model.TransferLog) (*model.TransferLog, int, error) {
	hasher, err := blake2b.New256(nil)
	if err != nil {
		return nil, 0, err
	}
	buf := make([]byte, min(job.plan.ChunkSize, job.size))
	uploaded := 0
	final := log

	for r := range job.plan.Ranges() {
		if err := ctx.Err(); err != nil {
			return nil, uploaded, err
		}
		data := buf[:r.Size()]
		if _, err := io.ReadFull(job.body, data); err != nil {
			return nil, uploaded, &TransferIOError{Op: "read source", FileID: file.ID, ChunkIndex: r.Index, Err: err}
		}
		hasher.Write(data)

		label := fmt.Sprintf("%s.part%d", file.ID, r.Index)
		res, err := u.uploadWithRetry(ctx, job.settings, file.ID, r.Index, data, label)
		if err != nil {
			return nil, uploaded, err
		}
		row := &model.Chunk{
			FileID:       file.ID,
			ChunkIndex:   r.Index,
			Size:         r.Size(),
			MessageID:    res.MessageID,
			AttachmentID: res.AttachmentID,
			URL:          res.URL,
			Checksum:     checksum(data),
		}
		if err := u.d.Chunks.Create(context.WithoutCancel(ctx), row); err != nil {
			return nil, uploaded, err
		}
		uploaded++

		if r.Index == job.plan.Count-1 {
			sum := hasher.Sum(nil)
			if err := u.d.Files.Transition(context.WithoutCancel(ctx), file.ID, model.FileStatusInProgress, model.FileStatusCompleted,
				map[string]interface{}{"content_hash": fmt.Sprintf("%x", sum)}); err != nil {
				return nil, uploaded, err
			}
		}
		next, err := u.d.Telemetry.ChunkDone(ctx, log.ID, r.Size())
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"transfer_id": log.ID,
				"chunk":       r.Index,
			}).WithError(err).Warn("record chunk progress failed")
			continue
		}
		final = next
	}
	return final, uploaded, nil
}

func (u *Uploader) uploadWithRetry(ctx context.Context, s Settings, fileID string, index int, data []byte, label string) (backend.UploadResult, error) {
	attempts := max(s.RetryAttempts, 0)
	for attempt := 0; ; attempt++ {
		callCtx, cancel := ctx, context.CancelFunc(func() {})
		if s.Timeout > 0 {
			callCtx, cancel = context.WithTimeout(ctx, s.Timeout)
		}
		res, err := u.d.Backend.UploadChunk(callCtx, fileID, data, label)
		cancel()
		if err == nil {
			return res, nil
		}
		if ctx.Err() != nil {
			return backend.UploadResult{}, ctx.Err()
		}
		if attempt >= attempts || !backend.Retryable(err) {
			return backend.UploadResult{}, &TransferIOError{Op: "upload chunk", FileID: fileID, ChunkIndex: index, Err: err}
		}
		delay := utils.PickRetryDelay(attempt+1, u.d.Config.RetryDelays)
		logrus.WithFields(logrus.Fields{
			"file_id": fileID,
			"chunk":   index,
			"attempt": attempt + 1,
			"delay":   delay,
		}).WithError(err).Warn("chunk upload failed, retrying")
		if err := utils.SleepContext(ctx, delay); err != nil {
			return backend.UploadResult{}, err
		}
	}
}

// ensureContainer creates the folder's backend container on first use.
func (u *Uploader) ensureContainer(ctx context.Context, folder *model.Folder) (string, error) {
	if folder.ContainerID != "" {
		return folder.ContainerID, nil
	}
	id, err := u.d.Backend.CreateContainer(ctx, u.d.RootContainerID, folder.Name)
	if err != nil {
		return "", err
	}
	bound, err := u.d.Folders.BindContainer(ctx, folder.ID, id)
	if err != nil {
		return "", err
	}
	if !bound {
		if err := u.d.Backend.DeleteContainer(ctx, id); err != nil {
			logrus.WithField("container_id", id).WithError(err).Warn("drop duplicate container failed")
		}
		fresh, err := u.d.Folders.GetOwned(ctx, folder.OwnerID, folder.ID)
		if err != nil {
			return "", err
		}
		folder.ContainerID = fresh.ContainerID
		return fresh.ContainerID, nil
	}
	folder.ContainerID = id
	return id, nil
}

// replaceExisting removes the file being replaced, backend post first.
func (u *Uploader) replaceExisting(ctx context.Context, existing *model.File) error {
	start := transfer.Start{
		OwnerID:  existing.OwnerID,
		FileID:   existing.ID,
		Type:     model.TransferDelete,
		FileName: existing.Name,
		FileSize: existing.Size,
	}
	if err := u.d.Backend.DeletePost(ctx, existing.ID); err != nil {
		ioErr := &TransferIOError{Op: "delete post", FileID: existing.ID, ChunkIndex: -1, Err: err}
		_, _ = u.d.Telemetry.Record(ctx, start, ioErr)
		return ioErr
	}
	if err := u.d.Files.Delete(ctx, existing.ID); err != nil {
		return err
	}
	_, _ = u.d.Telemetry.Record(ctx, start, nil)
	return nil
}

func (u *Uploader) markFailed(ctx context.Context, fileID string) {
	err := u.d.Files.Transition(context.WithoutCancel(ctx), fileID, model.FileStatusInProgress, model.FileStatusFailed, nil)
	if err != nil {
		logrus.WithField("file_id", fileID).WithError(err).Warn("mark file failed")
	}
}

// failStart finalizes a transfer that failed before its first chunk. A conflict
// resolution already has a queued row; a fresh upload gets a finished one.
func (u *Uploader) failStart(ctx context.Context, job uploadJob, fileID string, cause error) {
	if job.transferID != "" {
		u.failQueued(ctx, job.transferID, cause)
		return
	}
	_, err := u.d.Telemetry.Record(ctx, transfer.Start{
		OwnerID:  job.ownerID,
		FileID:   fileID,
		Type:     model.TransferUpload,
		FileName: job.name,
		FileSize: job.size,
	}, cause)
	if err != nil {
		logrus.WithField("name", job.name).WithError(err).Warn("record failed upload")
	}
}

func (u *Uploader) failQueued(ctx context.Context, transferID string, cause error) {
	if transferID == "" {
		return
	}
	if _, err := u.d.Telemetry.Fail(ctx, transferID, cause); err != nil && !errors.Is(err, transfer.ErrFinalized) {
		logrus.WithField("transfer_id", transferID).WithError(err).Warn("fail queued transfer")
	}
}

func (u *Uploader) reportOrphan(ctx context.Context, file *model.File, uploaded int, cause error) {
	o := Orphan{
		OwnerID:        file.OwnerID,
		FileID:         file.ID,
		PostID:         file.ID,
		ContainerID:    file.ContainerID,
		ChunksUploaded: uploaded,
		Reason:         cause.Error(),
		DetectedAt:     time.Now(),
	}
	logrus.WithFields(logrus.Fields{
		"owner_id":        o.OwnerID,
		"file_id":         o.FileID,
		"chunks_uploaded": uploaded,
	}).WithError(cause).Warn("upload failed, backend post left for reconciliation")
	if err := u.d.Orphans.ReportOrphan(context.WithoutCancel(ctx), o); err != nil {
		logrus.WithField("file_id", o.FileID).WithError(err).Error("report orphan failed")
	}
}

// discardPending drops the staged bytes and the pending row after a resolution.
func (u *Uploader) discardPending(ctx context.Context, p *model.PendingUpload) {
	ctx = context.WithoutCancel(ctx)
	if u.d.Staging != nil {
		if err := u.d.Staging.RemoveObject(ctx, u.d.StagingBucket, p.StagingKey); err != nil {
			logrus.WithField("pending_id", p.ID).WithError(err).Warn("remove staged upload failed")
		}
	}
	if err := u.d.Pending.Delete(ctx, p.ID); err != nil {
		logrus.WithField("pending_id", p.ID).WithError(err).Warn("delete pending upload failed")
	}
}

func postBody(job uploadJob) string {
	return fmt.Sprintf("name=%s\nsize=%d\nchunks=%d\nmime=%s", job.name, job.size, job.plan.Count, job.mimeType)
}

func onceFunc(f func()) func() {
	var once sync.Once
	return func() { once.Do(f) }
}
