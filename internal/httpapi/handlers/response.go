package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/summarizer/internal/httpapi/middleware"
)

// fail writes the API's error shape: {"error": msg} plus the request id.
func fail(c *gin.Context, httpStatus int, msg string) {
	body := gin.H{"error": msg}
	if rid := c.GetString(middleware.RequestIDKey); rid != "" {
		body["request_id"] = rid
	}
	c.AbortWithStatusJSON(httpStatus, body)
}

// Fail is fail for handlers registered outside this package.
func Fail(c *gin.Context, httpStatus int, msg string) { fail(c, httpStatus, msg) }
