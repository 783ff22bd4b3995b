package service

import (
	"context"
	"errors"

	"MsgVault/model"
	"MsgVault/utils"

	"gorm.io/gorm"
)

// Folders manages the logical folders that map onto backend containers.
type Folders struct {
	d Deps
}

func NewFolders(d Deps) *Folders {
	d.withDefaults()
	return &Folders{d: d}
}

// Create adds a folder. Its container is created by the first upload into it.
func (f *Folders) Create(ctx context.Context, ownerID uint64, name string) (*model.Folder, error) {
	name = utils.SanitizeFileName(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	folder := &model.Folder{OwnerID: ownerID, Name: name}
	if err := f.d.Folders.Create(ctx, folder); err != nil {
		return nil, err
	}
	return folder, nil
}

func (f *Folders) List(ctx context.Context, ownerID uint64) ([]model.Folder, error) {
	return f.d.Folders.ListByOwner(ctx, ownerID)
}

// Rename renames the folder and, when one is bound, its backend container.
func (f *Folders) Rename(ctx context.Context, ownerID, folderID uint64, name string) (*model.Folder, error) {
	name = utils.SanitizeFileName(name)
	if name == "" {
		return nil, ErrInvalidName
	}
	folder, err := f.d.Folders.GetOwned(ctx, ownerID, folderID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrFolderNotFound
	}
	if err != nil {
		return nil, err
	}
	if folder.ContainerID != "" {
		if !f.d.Backend.Ready() {
			return nil, ErrBackendUnavailable
		}
		if err := f.d.Backend.RenameContainer(ctx, folder.ContainerID, name); err != nil {
			return nil, &TransferIOError{Op: "rename container", ChunkIndex: -1, Err: err}
		}
	}
	if err := f.d.Folders.Rename(ctx, ownerID, folderID, name); err != nil {
		return nil, err
	}
	folder.Name = name
	return folder, nil
}

// Files lists the files of a folder.
func (f *Folders) Files(ctx context.Context, ownerID, folderID uint64) ([]model.File, error) {
	if _, err := f.d.Folders.GetOwned(ctx, ownerID, folderID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFolderNotFound
		}
		return nil, err
	}
	return f.d.Files.ListByFolder(ctx, ownerID, folderID)
}
