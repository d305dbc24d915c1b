package middleware

import (
	"errors"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/chatctx/internal/pkg/errcode"
	"github.com/xxxsen/chatctx/internal/pkg/jwt"
	"github.com/xxxsen/chatctx/internal/pkg/response"
)

const ContextUserIDKey = "user_id"

// JWTAuth trusts the user id carried by a valid bearer token and stores it
// under ContextUserIDKey.
func JWTAuth(secret []byte) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			reject(c, "missing or malformed authorization")
			return
		}
		claims, err := jwt.ParseToken(token, secret)
		if err != nil {
			logutil.GetLogger(c.Request.Context()).Debug("token rejected",
				zap.String("request_id", c.GetString(ContextRequestIDKey)),
				zap.Error(err))
			if errors.Is(err, jwt.ErrTokenExpired) {
				reject(c, "token expired")
				return
			}
			reject(c, "invalid token")
			return
		}
		c.Set(ContextUserIDKey, claims.UserID)
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func reject(c *gin.Context, msg string) {
	response.Error(c, errcode.ErrUnauthorized, msg)
	c.Abort()
}
