package handler

import (
	"net/http"
	"strconv"

	"MsgVault/internal/dto"
	"MsgVault/internal/service"
	"MsgVault/utils"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// UploadFile stores a multipart upload, or answers 409 when it collides with an
// existing file.
func (h *Handler) UploadFile(c *gin.Context) {
	folderID, err := strconv.ParseUint(c.PostForm("folder_id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "folder_id required"})
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file required"})
		return
	}
	src, err := fh.Open()
	if err != nil {
		writeError(c, err)
		return
	}
	defer src.Close()

	res, err := h.Uploader.Upload(c.Request.Context(), service.UploadRequest{
		OwnerID:  utils.OwnerID(c),
		FolderID: folderID,
		Name:     fh.Filename,
		Size:     fh.Size,
		MimeType: fh.Header.Get("Content-Type"),
		Body:     src,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Conflict != nil {
		c.JSON(http.StatusConflict, dto.ConflictResponse{
			Code:         -1,
			Msg:          "a file with the same name and size already exists",
			ExistingFile: res.Conflict.Existing,
			UploadedFile: res.Conflict.Candidate,
			PendingID:    res.Pending.ID,
			TransferID:   res.Pending.TransferID,
		})
		return
	}
	utils.SuccessWithStatus(c, http.StatusCreated, dto.FileResponse{File: res.File, Transfer: res.Transfer})
}

// ResolvePending applies keep, replace or rename to a suspended upload.
func (h *Handler) ResolvePending(c *gin.Context) {
	var req dto.ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	action, err := service.ParseResolution(req.Action)
	if err != nil {
		writeError(c, err)
		return
	}
	res, err := h.Uploader.Resolve(c.Request.Context(), utils.OwnerID(c), c.Param("pendingID"), action)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, dto.FileResponse{File: res.File, Transfer: res.Transfer})
}

// DownloadFile streams a completed file chunk by chunk.
func (h *Handler) DownloadFile(c *gin.Context) {
	d, err := h.Downloader.Open(c.Request.Context(), utils.OwnerID(c), c.Param("fileID"))
	if err != nil {
		writeError(c, err)
		return
	}
	stream(c, d)
}

// DeleteFile removes a file from the backend and then from the database.
func (h *Handler) DeleteFile(c *gin.Context) {
	log, err := h.Deleter.Delete(c.Request.Context(), utils.OwnerID(c), c.Param("fileID"))
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, gin.H{"transfer": log})
}

func stream(c *gin.Context, d *service.Download) {
	c.Header("Content-Type", d.File.MimeType)
	c.Header("Content-Length", strconv.FormatInt(d.Size(), 10))
	c.Header("Content-Disposition", d.ContentDisposition())
	c.Status(http.StatusOK)
	if _, err := d.WriteTo(c.Request.Context(), c.Writer); err != nil {
		logrus.WithFields(logrus.Fields{
			"file_id": d.File.ID,
		}).WithError(err).Warn("download aborted mid-stream")
		c.Abort()
	}
}
