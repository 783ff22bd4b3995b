package dto

import (
	"time"

	"MsgVault/internal/service"
	"MsgVault/model"
)

// FileResponse is returned for a stored file.
type FileResponse struct {
	File     *model.File        `json:"file"`
	Transfer *model.TransferLog `json:"transfer,omitempty"`
}

// ConflictResponse is the 409 body of an upload suspended on a duplicate.
type ConflictResponse struct {
	Code         int               `json:"code"`
	Msg          string            `json:"msg"`
	ExistingFile *model.File       `json:"existing_file"`
	UploadedFile service.Candidate `json:"uploaded_file"`
	PendingID    string            `json:"pending_id"`
	TransferID   string            `json:"transfer_id"`
}

type ShareResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
