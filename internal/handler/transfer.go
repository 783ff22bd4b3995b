package handler

import (
	"io"
	"net/http"
	"strconv"

	"MsgVault/utils"

	"github.com/gin-gonic/gin"
)

const defaultTransferLimit = 50

// ListTransfers returns recent transfer history, optionally filtered by type.
func (h *Handler) ListTransfers(c *gin.Context) {
	limit := defaultTransferLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, 200)
	}
	logs, err := h.Logs.ListByOwner(c.Request.Context(), utils.OwnerID(c), c.Query("type"), limit)
	if err != nil {
		writeError(c, err)
		return
	}
	utils.Success(c, logs)
}

func (h *Handler) ActiveTransfers(c *gin.Context) {
	utils.Success(c, h.Active.Active(utils.OwnerID(c)))
}

// TransferEvents streams the owner's transfer events as Server-Sent Events.
func (h *Handler) TransferEvents(c *gin.Context) {
	sub := h.Hub.Subscribe(utils.OwnerID(c))
	defer sub.Close()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.Header("Content-Type", "text/event-stream")
	c.Status(http.StatusOK)
	c.Writer.Flush()
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub.C:
			if !ok {
				return false
			}
			c.SSEvent(ev.Type, ev.Transfer)
			return true
		}
	})
}
