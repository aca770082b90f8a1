package middleware

import (
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/d60-Lab/forumfeed/internal/api/handler"
	"github.com/d60-Lab/forumfeed/pkg/response"
)

// Auth 解析 Bearer token 并注入当前用户（账号体系在上游，这里只取 sub）
func Auth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		auth := c.GetHeader("Authorization")
		if !strings.HasPrefix(auth, "Bearer ") {
			response.Unauthorized(c, "missing bearer token")
			c.Abort()
			return
		}
		tokenStr := strings.TrimPrefix(auth, "Bearer ")

		token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			response.Unauthorized(c, "invalid token")
			c.Abort()
			return
		}

		sub, err := token.Claims.GetSubject()
		if err != nil {
			response.Unauthorized(c, "invalid token subject")
			c.Abort()
			return
		}
		userID, err := strconv.ParseInt(sub, 10, 64)
		if err != nil || userID < 1 {
			response.Unauthorized(c, "invalid token subject")
			c.Abort()
			return
		}

		handler.SetUserID(c, userID)
		c.Next()
	}
}
