package handler

import (
	"net/http"
	"time"

	"MsgVault/internal/dto"
	"MsgVault/utils"

	"github.com/gin-gonic/gin"
)

// CreateShare issues a public link for a file.
func (h *Handler) CreateShare(c *gin.Context) {
	var req dto.CreateShareRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
			return
		}
	}
	ttl := time.Duration(req.ExpireHours) * time.Hour
	file, err := h.Sharer.Create(c.Request.Context(), utils.OwnerID(c), c.Param("fileID"), ttl)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, dto.ShareResponse{
		Token:     *file.ShareToken,
		ExpiresAt: *file.ShareExpiresAt,
	})
}

func (h *Handler) RevokeShare(c *gin.Context) {
	if err := h.Sharer.Revoke(c.Request.Context(), utils.OwnerID(c), c.Param("fileID")); err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, nil)
}

// ShareDownload streams a shared file without authentication.
func (h *Handler) ShareDownload(c *gin.Context) {
	d, err := h.Downloader.OpenShared(c.Request.Context(), c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	stream(c, d)
}
