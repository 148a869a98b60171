package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"resumecanvas/internal/auth"
)

// UserIDKey 是 AuthMiddleware 写入 gin 上下文的键。
const UserIDKey = "userID"

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌并将 userID 注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		parts := strings.Fields(c.GetHeader("Authorization"))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(parts[1])
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			abortUnauthorized(c)
			return
		}

		c.Set(UserIDKey, claims.UserID)
		c.Next()
	}
}

// UserID 返回 AuthMiddleware 注入的用户 ID。
func UserID(c *gin.Context) (uint, bool) {
	value, ok := c.Get(UserIDKey)
	if !ok {
		return 0, false
	}
	id, ok := value.(uint)
	return id, ok && id > 0
}
