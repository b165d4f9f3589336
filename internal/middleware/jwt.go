package middleware

import (
	"net/http" // HTTP status codes
	"strings"  // String manipulation

	"ever_greater/internal/utils" // JWT utility functions

	"github.com/gin-gonic/gin" // Gin web framework
)

// SessionCookie is the cookie the browser client stores its token in
const SessionCookie = "session"

// JWTAuthMiddleware resolves the caller's identity from the session cookie or
// an Authorization header and stores the user ID in the request context.
// Requests with no resolvable identity are rejected with 401.
func JWTAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := "" // Token from cookie or header
		// The browser client sends the session cookie
		if cookie, err := c.Cookie(SessionCookie); err == nil && cookie != "" {
			tokenStr = cookie
		}
		// Non-browser callers may use a Bearer header instead
		if tokenStr == "" {
			authHeader := c.GetHeader("Authorization") // Get Authorization header
			if strings.HasPrefix(authHeader, "Bearer ") {
				tokenStr = strings.TrimPrefix(authHeader, "Bearer ") // Extract the token string
			}
		}
		// No credential at all
		if tokenStr == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		claims, err := utils.ParseJWT(tokenStr, secret) // Parse the session token
		if err != nil {
			// If parsing fails, abort with unauthorized status
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired session"})
			return
		}
		c.Set("userID", claims.UserID) // Store userID in context
		c.Next()                       // Proceed to the next handler
	}
}
