// Package handler exposes the transfer core over HTTP.
package handler

import (
	"errors"
	"net/http"

	"MsgVault/internal/chunk"
	"MsgVault/internal/repo"
	"MsgVault/internal/service"
	"MsgVault/internal/transfer"
	"MsgVault/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// ActiveSource lists in-flight transfers of an owner.
type ActiveSource interface {
	Active(ownerID uint64) []transfer.Snapshot
}

// Handler carries the services behind the routes.
type Handler struct {
	Uploader   *service.Uploader
	Downloader *service.Downloader
	Deleter    *service.Deleter
	Sharer     *service.Sharer
	Folders    *service.Folders
	Settings   *service.SettingsProvider
	Logs       *repo.TransferLogRepo
	Active     ActiveSource
	Hub        *transfer.Hub
}

func statusFor(err error) int {
	var ioErr *service.TransferIOError
	switch {
	case errors.Is(err, service.ErrFileNotFound),
		errors.Is(err, service.ErrFolderNotFound),
		errors.Is(err, service.ErrPendingNotFound),
		errors.Is(err, service.ErrShareNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidResolution),
		errors.Is(err, service.ErrInvalidName),
		errors.Is(err, chunk.ErrConfiguration):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrPendingResolved),
		errors.Is(err, service.ErrFileBusy),
		errors.Is(err, service.ErrFileNotReady):
		return http.StatusConflict
	case errors.Is(err, service.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	case errors.As(err, &ioErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"path":   c.FullPath(),
			"status": status,
		}).WithError(err).Error("request failed")
	}
	utils.FailWithStatus(c, status, err)
}
