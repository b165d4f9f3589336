package api

import (
	"context"  // Context for Redis operations
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"regexp"   // Regular expressions
	"strings"  // String manipulation
	"time"     // Cache TTLs

	"ever_greater/internal/domain"     // Importing domain models
	"ever_greater/internal/ledger"     // The resource ledger
	"ever_greater/internal/middleware" // Session cookie name
	"ever_greater/internal/utils"      // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
	"golang.org/x/crypto/bcrypt"   // Password hashing
)

// Request and Response structs
type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`    // Email must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Request struct for login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`    // Email must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// sessionMaxAge is how long the session cookie lives, matching the token expiry
const sessionMaxAge = 24 * 60 * 60

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// isValidEmail checks the email has a plausible mailbox@host shape
func isValidEmail(email string) bool {
	return emailPattern.MatchString(email)
}

// isValidPassword checks if the password length is between 8 and 72 characters
func isValidPassword(password string) bool {
	return len(password) >= 8 && len(password) <= 72 // bcrypt rejects longer input
}

// setSessionCookie attaches the session token to the response
func setSessionCookie(c *gin.Context, token string, isProd bool) {
	// HttpOnly so scripts cannot read the token; Secure in production
	c.SetCookie(middleware.SessionCookie, token, sessionMaxAge, "/", "", isProd, true)
}

// RegisterHandler creates a new user with the default starting balances and
// opens a session for it.
func RegisterHandler(l ledger.Ledger, jwtSecret string, isProd bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Validate email and password
		if !isValidEmail(req.Email) {
			// If email is invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid email address"})
			return
		}
		// Validate password length
		if !isValidPassword(req.Password) {
			// If password is invalid, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Password must be 8-72 characters"})
			return
		}
		// Hash the password and create the user
		hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
		if err != nil {
			// If hashing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		// Create user with lowercase email to ensure uniqueness
		user, err := l.CreateUser(c.Request.Context(), strings.ToLower(req.Email), string(hash))
		if err != nil {
			// If creation fails (e.g., duplicate email), return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Email already registered"})
			return
		}
		// Open a session for the fresh user
		token, err := utils.GenerateJWT(user.ID, jwtSecret)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		setSessionCookie(c, token, isProd)
		// Return the created user
		c.JSON(http.StatusCreated, gin.H{"user": user, "token": token})
	}
}

// LoginHandler authenticates a user and opens a session
func LoginHandler(l ledger.Ledger, jwtSecret string, isProd bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Fetch user by email
		user, err := l.UserByEmail(c.Request.Context(), strings.ToLower(req.Email))
		if err != nil {
			// If user not found, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Compare provided password with stored hash
		if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
			return
		}
		// Generate session token
		token, err := utils.GenerateJWT(user.ID, jwtSecret)
		if err != nil {
			// If token generation fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate token"})
			return
		}
		setSessionCookie(c, token, isProd)
		// Return the user and token in the response
		c.JSON(http.StatusOK, gin.H{"user": user, "token": token})
	}
}

// LogoutHandler clears the session cookie
func LogoutHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Expire the cookie immediately
		c.SetCookie(middleware.SessionCookie, "", -1, "/", "", false, true)
		c.JSON(http.StatusOK, gin.H{"message": "Logged out"})
	}
}

// MeHandler returns the authenticated user's current fields
func MeHandler(l ledger.Ledger, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		ctx := context.Background()                   // Context for Redis operations
		cacheKey := utils.UserCacheKey(userID.(uint)) // Cache key for the user
		var user domain.User
		// Try the cache first
		if rdb != nil {
			if found, err := utils.GetCache(ctx, rdb, cacheKey, &user); err == nil && found {
				c.JSON(http.StatusOK, gin.H{"user": user, "cached": true})
				return
			}
		}
		// If not in cache, fetch from the ledger
		fresh, err := l.User(c.Request.Context(), userID.(uint))
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			logrus.WithFields(logrus.Fields{"user_id": userID, "error": err.Error()}).Error("User lookup failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load user"})
			return
		}
		if rdb != nil {
			_ = utils.SetCache(ctx, rdb, cacheKey, fresh, 60*time.Second) // Cache the user for 60 seconds
		}
		c.JSON(http.StatusOK, gin.H{"user": fresh, "cached": false})
	}
}
