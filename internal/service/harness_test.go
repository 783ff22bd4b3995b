package service

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"MsgVault/config"
	"MsgVault/internal/backend"
	"MsgVault/internal/repo"
	"MsgVault/internal/storage"
	"MsgVault/internal/transfer"
	"MsgVault/model"
	"MsgVault/utils"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testOwner uint64 = 1

type recordingOrphans struct {
	mu      sync.Mutex
	orphans []Orphan
}

func (r *recordingOrphans) ReportOrphan(_ context.Context, o Orphan) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orphans = append(r.orphans, o)
	return nil
}

func (r *recordingOrphans) all() []Orphan {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Orphan(nil), r.orphans...)
}

type harness struct {
	db       *gorm.DB
	backend  *backend.MemoryBackend
	staging  *storage.MemoryStore
	tracker  *transfer.Tracker
	files    *repo.FileRepo
	chunks   *repo.ChunkRepo
	logs     *repo.TransferLogRepo
	pending  *repo.PendingRepo
	settings *repo.SettingsRepo
	orphans  *recordingOrphans
	folders  *repo.FolderRepo
	folder   *model.Folder
	cfg      *config.TransferConfig
	deps     Deps

	uploader   *Uploader
	downloader *Downloader
	deleter    *Deleter
	sharer     *Sharer
}

func testTransferConfig() *config.TransferConfig {
	return &config.TransferConfig{
		HardCapBytes:         64,
		DefaultChunkSize:     16,
		DuplicateDetection:   true,
		RetryAttempts:        2,
		ChunkTimeout:         time.Second,
		RetryDelays:          []time.Duration{time.Millisecond},
		MaxConcurrentUploads: 2,
		SettingsCacheTTL:     time.Minute,
		ShareDefaultTTL:      time.Hour,
	}
}

func newHarness(t *testing.T, tune ...func(*config.TransferConfig)) *harness {
	t.Helper()
	ctx := context.Background()
	db, err := repo.OpenSQLite(fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	require.NoError(t, repo.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	cfg := testTransferConfig()
	for _, f := range tune {
		f(cfg)
	}

	h := &harness{
		db:       db,
		backend:  backend.NewMemoryBackend(),
		staging:  storage.NewMemoryStore(),
		files:    repo.NewFileRepo(db),
		chunks:   repo.NewChunkRepo(db),
		logs:     repo.NewTransferLogRepo(db),
		pending:  repo.NewPendingRepo(db),
		settings: repo.NewSettingsRepo(db),
		orphans:  &recordingOrphans{},
		cfg:      cfg,
	}
	require.NoError(t, h.backend.Connect(ctx))
	require.NoError(t, h.staging.EnsureBucket(ctx, "staging"))
	h.tracker = transfer.NewTracker(h.logs, transfer.WithEventBuffer(4096))

	h.folders = repo.NewFolderRepo(db)
	h.folder = &model.Folder{OwnerID: testOwner, Name: "docs"}
	require.NoError(t, h.folders.Create(ctx, h.folder))

	h.deps = Deps{
		Backend:         h.backend,
		Files:           h.files,
		Chunks:          h.chunks,
		Folders:         h.folders,
		Pending:         h.pending,
		Telemetry:       h.tracker,
		Settings:        NewSettingsProvider(h.settings, utils.NewMemoryCache(), cfg),
		Config:          cfg,
		RootContainerID: "root",
		Locker:          NewLocalLocker(),
		Staging:         h.staging,
		StagingBucket:   "staging",
		Orphans:         h.orphans,
	}
	h.build()
	return h
}

func (h *harness) build() {
	h.uploader = NewUploader(h.deps)
	h.downloader = NewDownloader(h.deps)
	h.deleter = NewDeleter(h.deps)
	h.sharer = NewSharer(h.deps)
}

func (h *harness) useLocker(l Locker) {
	h.deps.Locker = l
	h.build()
}

// expiringLocker drops a lock once its ttl passes, like a Redis key that was
// never refreshed.
type expiringLocker struct {
	mu   sync.Mutex
	ttl  time.Duration
	held map[string]time.Time
}

func newExpiringLocker(ttl time.Duration) *expiringLocker {
	return &expiringLocker{ttl: ttl, held: make(map[string]time.Time)}
}

func (l *expiringLocker) Acquire(ctx context.Context, key string) (func(), error) {
	for {
		l.mu.Lock()
		if exp, ok := l.held[key]; !ok || time.Now().After(exp) {
			deadline := time.Now().Add(l.ttl)
			l.held[key] = deadline
			l.mu.Unlock()
			return func() {
				l.mu.Lock()
				if l.held[key].Equal(deadline) {
					delete(l.held, key)
				}
				l.mu.Unlock()
			}, nil
		}
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Millisecond):
		}
	}
}

func (h *harness) upload(t *testing.T, name string, data []byte) *UploadResult {
	t.Helper()
	res, err := h.uploader.Upload(context.Background(), h.request(name, data))
	require.NoError(t, err)
	return res
}

func (h *harness) request(name string, data []byte) UploadRequest {
	return UploadRequest{
		OwnerID:  testOwner,
		FolderID: h.folder.ID,
		Name:     name,
		Size:     int64(len(data)),
		Body:     bytes.NewReader(data),
	}
}

func (h *harness) download(t *testing.T, fileID string) []byte {
	t.Helper()
	d, err := h.downloader.Open(context.Background(), testOwner, fileID)
	require.NoError(t, err)
	var buf bytes.Buffer
	n, err := d.WriteTo(context.Background(), &buf)
	require.NoError(t, err)
	require.Equal(t, d.Size(), n)
	return buf.Bytes()
}

func (h *harness) listFiles(t *testing.T) []model.File {
	t.Helper()
	files, err := h.files.ListByFolder(context.Background(), testOwner, h.folder.ID)
	require.NoError(t, err)
	return files
}

func (h *harness) events() []transfer.Event {
	var out []transfer.Event
	for {
		select {
		case ev := <-h.tracker.Events():
			out = append(out, ev)
		default:
			return out
		}
	}
}

func payload(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(i*7) + seed
	}
	return out
}
