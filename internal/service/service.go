// Package service holds the transfer core: conflict detection, the upload orchestrator,
// download reconstruction, deletion and sharing.
package service

import (
	"context"

	"MsgVault/config"
	"MsgVault/internal/backend"
	"MsgVault/internal/repo"
	"MsgVault/internal/storage"
	"MsgVault/internal/transfer"
	"MsgVault/model"
)

// Telemetry is the transfer manager the core reports to.
type Telemetry interface {
	Queue(ctx context.Context, s transfer.Start) (*model.TransferLog, error)
	Begin(ctx context.Context, s transfer.Start) (*model.TransferLog, error)
	ChunkDone(ctx context.Context, transferID string, size int64) (*model.TransferLog, error)
	Fail(ctx context.Context, transferID string, cause error) (*model.TransferLog, error)
	Cancel(ctx context.Context, transferID, reason string) (*model.TransferLog, error)
	Record(ctx context.Context, s transfer.Start, cause error) (*model.TransferLog, error)
}

// Deps wires the core services. Optional fields may be nil.
type Deps struct {
	Backend   backend.Backend
	Files     *repo.FileRepo
	Chunks    *repo.ChunkRepo
	Folders   *repo.FolderRepo
	Pending   *repo.PendingRepo
	Telemetry Telemetry
	Settings  *SettingsProvider
	Config    *config.TransferConfig

	// RootContainerID is the backend parent under which folder containers are created.
	RootContainerID string

	Locker        Locker
	Staging       storage.Store
	StagingBucket string
	Orphans       OrphanReporter
	ShareExpiry   ShareExpiryScheduler
}

func (d *Deps) withDefaults() {
	if d.Locker == nil {
		d.Locker = NewLocalLocker()
	}
	if d.Orphans == nil {
		d.Orphans = LogOrphanReporter{}
	}
	if d.Config == nil {
		config.InitTransferConfig()
		d.Config = config.TransferConfigInstance
	}
}
