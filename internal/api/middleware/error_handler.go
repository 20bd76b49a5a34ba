// Package middleware provides HTTP middleware for the OAuth bridge.
//
// Import Path: oauthbridge.io/bridge/internal/api/middleware
package middleware

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "oauthbridge.io/bridge/internal/pkg/errors"
	"oauthbridge.io/bridge/internal/pkg/logger"
)

// ErrorHandler renders errors added via c.Error() as JSON.
// Handlers that already wrote a response (redirects) are left alone.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		rid := GetRequestID(c.Request.Context())

		var appErr *apperrors.AppError
		if errors.As(err, &appErr) {
			logger.Warn("Request error",
				zap.String("request_id", rid),
				zap.String("path", c.FullPath()),
				zap.String("code", appErr.Code),
				zap.Int("status", appErr.HTTPStatus),
				zap.Error(appErr.Err),
			)
			if !c.Writer.Written() {
				c.JSON(appErr.HTTPStatus, gin.H{
					"code":       appErr.Code,
					"message":    appErr.Message,
					"request_id": rid,
				})
			}
			return
		}

		logger.Error("Unhandled request error",
			zap.String("request_id", rid),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		if !c.Writer.Written() {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":       apperrors.CodeInternal,
				"message":    "An internal error occurred",
				"request_id": rid,
			})
		}
	}
}
