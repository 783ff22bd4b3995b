package handler

import (
	"net/http"
	"strconv"
	"time"

	"MsgVault/internal/dto"
	"MsgVault/internal/service"
	"MsgVault/utils"

	"github.com/gin-gonic/gin"
)

func (h *Handler) CreateFolder(c *gin.Context) {
	var req dto.FolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	folder, err := h.Folders.Create(c.Request.Context(), utils.OwnerID(c), req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.SuccessWithStatus(c, http.StatusCreated, folder)
}

func (h *Handler) ListFolders(c *gin.Context) {
	folders, err := h.Folders.List(c.Request.Context(), utils.OwnerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, folders)
}

func (h *Handler) RenameFolder(c *gin.Context) {
	id, ok := folderID(c)
	if !ok {
		return
	}
	var req dto.FolderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	folder, err := h.Folders.Rename(c.Request.Context(), utils.OwnerID(c), id, req.Name)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, folder)
}

func (h *Handler) ListFolderFiles(c *gin.Context) {
	id, ok := folderID(c)
	if !ok {
		return
	}
	files, err := h.Folders.Files(c.Request.Context(), utils.OwnerID(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, files)
}

func (h *Handler) GetSettings(c *gin.Context) {
	s, err := h.Settings.Settings(c.Request.Context(), utils.OwnerID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, toSettingsDTO(s))
}

func (h *Handler) UpdateSettings(c *gin.Context) {
	var req dto.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	s, err := h.Settings.Update(c.Request.Context(), utils.OwnerID(c), service.Settings{
		ChunkSize:          req.ChunkSize,
		DuplicateDetection: req.DuplicateDetection,
		RetryAttempts:      req.RetryAttempts,
		Timeout:            time.Duration(req.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, toSettingsDTO(s))
}

func toSettingsDTO(s service.Settings) dto.SettingsRequest {
	return dto.SettingsRequest{
		ChunkSize:          s.ChunkSize,
		DuplicateDetection: s.DuplicateDetection,
		RetryAttempts:      s.RetryAttempts,
		TimeoutSeconds:     int(s.Timeout / time.Second),
	}
}

func folderID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("folderID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid folder id"})
		return 0, false
	}
	return id, true
}
