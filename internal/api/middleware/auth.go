package middleware

import (
	"errors"
	"net/http"
	"strconv"

	"accounthub/internal/api/auth"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware 从 Cookie 中读取会话令牌，校验并解析为用户。
//
// 成功时把用户挂到请求上下文（"user" / "userID" / "role"），
// 令牌本身从不被改写。
func AuthMiddleware(codec *auth.Codec, users auth.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr, err := c.Cookie(auth.CookieName)
		if err != nil || tokenStr == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": auth.ErrNotAuthenticated.Error()})
			c.Abort()
			return
		}

		claims, err := codec.Verify(tokenStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
			c.Abort()
			return
		}

		uid, err := strconv.ParseUint(claims.Subject, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": auth.ErrInvalidToken.Error()})
			c.Abort()
			return
		}

		// 令牌签发后账户可能已被删除
		user, err := users.FindByID(c.Request.Context(), uint(uid))
		if err != nil {
			if errors.Is(err, auth.ErrUserNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "message": auth.ErrUserNotFound.Error()})
			} else {
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "query user failed"})
			}
			c.Abort()
			return
		}

		c.Set("user", user)
		c.Set("userID", int(user.ID))
		c.Set("role", user.Role)
		c.Next()
	}
}
