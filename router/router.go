package router

import (
	"MsgVault/internal/handler"
	"MsgVault/utils"

	"github.com/gin-gonic/gin"
)

// InitRouter builds API routes.
func InitRouter(h *handler.Handler) *gin.Engine {
	r := gin.Default()
	r.Use(utils.CORSMiddleware())

	api := r.Group("/api")
	{
		api.GET("/share/:token", h.ShareDownload)

		auth := api.Group("")
		auth.Use(utils.AuthMiddleware())

		files := auth.Group("/files")
		{
			files.POST("", h.UploadFile)
			files.POST("/pending/:pendingID/resolve", h.ResolvePending)
			files.GET("/:fileID/download", h.DownloadFile)
			files.DELETE("/:fileID", h.DeleteFile)
			files.POST("/:fileID/share", h.CreateShare)
			files.DELETE("/:fileID/share", h.RevokeShare)
		}

		folders := auth.Group("/folders")
		{
			folders.POST("", h.CreateFolder)
			folders.GET("", h.ListFolders)
			folders.PATCH("/:folderID", h.RenameFolder)
			folders.GET("/:folderID/files", h.ListFolderFiles)
		}

		transfers := auth.Group("/transfers")
		{
			transfers.GET("", h.ListTransfers)
			transfers.GET("/active", h.ActiveTransfers)
			transfers.GET("/events", h.TransferEvents)
		}

		auth.GET("/settings", h.GetSettings)
		auth.PUT("/settings", h.UpdateSettings)
	}
	return r
}
