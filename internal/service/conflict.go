package service

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"MsgVault/model"

	"gorm.io/gorm"
)

const maxRenameAttempts = 1000

// Resolution is the caller's answer to a Conflict.
type Resolution string

const (
	ResolutionKeep    Resolution = "keep"
	ResolutionReplace Resolution = "replace"
	ResolutionRename  Resolution = "rename"
)

func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(strings.ToLower(strings.TrimSpace(s))); r {
	case ResolutionKeep, ResolutionReplace, ResolutionRename:
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidResolution, s)
}

// Candidate describes an upload before any backend resource exists for it.
type Candidate struct {
	OwnerID  uint64 `json:"owner_id"`
	FolderID uint64 `json:"folder_id"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

// Conflict is a detection outcome, not an error.
type Conflict struct {
	Existing  *model.File `json:"existing_file"`
	Candidate Candidate   `json:"uploaded_file"`
}

// FileLookup is the part of the file repository conflict detection needs.
type FileLookup interface {
	FindDuplicate(ctx context.Context, ownerID, folderID uint64, name string, size int64) (*model.File, error)
	NameTaken(ctx context.Context, ownerID, folderID uint64, name string) (bool, error)
}

type ConflictResolver struct {
	files FileLookup
}

func NewConflictResolver(files FileLookup) *ConflictResolver {
	return &ConflictResolver{files: files}
}

// Detect returns nil when the candidate can be uploaded as is.
func (r *ConflictResolver) Detect(ctx context.Context, c Candidate, enabled bool) (*Conflict, error) {
	if !enabled {
		return nil, nil
	}
	existing, err := r.files.FindDuplicate(ctx, c.OwnerID, c.FolderID, c.Name, c.Size)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &Conflict{Existing: existing, Candidate: c}, nil
}

// AvailableName returns the first free "base (n).ext" variant of name in the folder.
func (r *ConflictResolver) AvailableName(ctx context.Context, ownerID, folderID uint64, name string) (string, error) {
	base, ext := splitExt(name)
	for n := 1; n <= maxRenameAttempts; n++ {
		candidate := fmt.Sprintf("%s (%d)%s", base, n, ext)
		taken, err := r.files.NameTaken(ctx, ownerID, folderID, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %q after %d attempts", name, maxRenameAttempts)
}

// splitExt keeps dotfiles like ".env" whole.
func splitExt(name string) (string, string) {
	ext := path.Ext(name)
	if ext == name || ext == "" {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), ext
}
