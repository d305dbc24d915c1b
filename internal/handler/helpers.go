package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/middleware"
	"github.com/xxxsen/chatctx/internal/pkg/errcode"
	"github.com/xxxsen/chatctx/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserIDKey)
}

func badRequest(c *gin.Context, message string) {
	response.Error(c, errcode.ErrInvalid, message)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	code, message := response.CodeOf(err)
	logger := logutil.GetLogger(c.Request.Context()).With(
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err),
	)
	switch code {
	case errcode.ErrInternal, errcode.ErrDependency, errcode.ErrAIUnavailable:
		logger.Error("request failed")
	default:
		logger.Debug("request rejected")
	}
	response.Error(c, code, message)
}
