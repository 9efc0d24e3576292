package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gtasite/api/logger"
	"gtasite/api/utils"
)

// AuthRequired gates the admin stats/debug endpoints. Tokens are accepted
// either as the jwt_token cookie set by Login or as a Bearer header.
func AuthRequired(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie("jwt_token")
		if err != nil {
			tokenString = c.GetHeader("Authorization")
			if tokenString == "" {
				log.Warn("auth: no token in cookie or header", "path", c.FullPath())
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: No token provided"})
				return
			}
			tokenString = strings.TrimPrefix(tokenString, "Bearer ")
		}

		claims, err := utils.ValidateJWT(tokenString)
		if err != nil {
			log.Warn("auth: invalid token", "error", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid or expired token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_email", claims.Email)
		c.Next()
	}
}
