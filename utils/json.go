package utils

import "github.com/gin-gonic/gin"

// Success writes a success JSON response.
func Success(c *gin.Context, data interface{}) {
	SuccessWithStatus(c, 200, data)
}

// SuccessWithStatus writes a success JSON response with a custom status.
func SuccessWithStatus(c *gin.Context, status int, data interface{}) {
	c.JSON(status, gin.H{
		"code": 0,
		"msg":  "ok",
		"data": data,
	})
}

// FailWithStatus writes an error JSON response with a custom status.
func FailWithStatus(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"code": -1,
		"msg":  err.Error(),
	})
}
