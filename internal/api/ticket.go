package api

import (
	"context"  // Context for Redis operations
	"errors"   // Error inspection
	"net/http" // HTTP status codes
	"time"     // Cache TTLs

	"ever_greater/internal/domain"  // Importing domain models
	"ever_greater/internal/ledger"  // The resource ledger
	"ever_greater/internal/metrics" // Prometheus collectors
	"ever_greater/internal/push"    // Broadcast dispatcher
	"ever_greater/internal/utils"   // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// CountHandler returns the global ticket count. Public, cached briefly.
func CountHandler(l ledger.Ledger, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := context.Background() // Context for Redis operations
		// Try the cache first
		if rdb != nil {
			var cached int64
			if found, err := utils.GetCache(ctx, rdb, utils.CountCacheKey, &cached); err == nil && found {
				c.JSON(http.StatusOK, gin.H{"count": cached})
				return
			}
		}
		// If not in cache, read through the ledger
		count, err := l.GlobalCount(c.Request.Context())
		if err != nil {
			logrus.WithField("error", err.Error()).Error("Count read failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch ticket count"})
			return
		}
		if rdb != nil {
			// Short TTL: the count moves on every print and tick
			_ = utils.SetCache(ctx, rdb, utils.CountCacheKey, count, 2*time.Second)
		}
		c.JSON(http.StatusOK, gin.H{"count": count})
	}
}

// IncrementHandler prints one ticket for the authenticated user: one supply
// consumed, one money and one contributed ticket credited, global count up by
// one, all in a single ledger transaction. On success the new count is pushed
// to every channel and the user's new fields to the user's own channels.
func IncrementHandler(l ledger.Ledger, disp *push.Dispatcher, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		// Exactly one ledger operation; the guard lives inside it
		res, err := l.PrintTicket(c.Request.Context(), userID.(uint))
		if err != nil {
			// Guard failure: out of supplies, no counter change, no push
			if errors.Is(err, domain.ErrInsufficientResource) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Out of supplies"})
				return
			}
			if errors.Is(err, domain.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			// Infra failure: log with context, surface an opaque error
			logrus.WithFields(logrus.Fields{
				"user_id": userID,      // User ID
				"error":   err.Error(), // Error message
			}).Error("Print failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to increment ticket count"})
			return
		}
		metrics.TicketsPrinted.Inc()
		// Invalidate the cached count and user snapshot
		if rdb != nil {
			ctx := context.Background()
			_ = utils.DeleteCache(ctx, rdb, utils.CountCacheKey)
			_ = utils.DeleteCache(ctx, rdb, utils.UserCacheKey(userID.(uint)))
		}
		// Push the shared count to everyone and the private delta to the
		// user's own channels. Best-effort, unordered relative to this response.
		disp.BroadcastCount(res.Count)
		supplies, money := res.Supplies, res.Money
		disp.SendUserUpdate(userID.(uint), push.UserUpdate{Supplies: &supplies, Money: &money})
		// Return the new state
		c.JSON(http.StatusOK, gin.H{"count": res.Count, "supplies": res.Supplies, "money": res.Money})
	}
}
