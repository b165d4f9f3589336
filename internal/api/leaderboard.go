package api

import (
	"context"  // Context for Redis operations
	"net/http" // HTTP status codes
	"strconv"  // String conversion
	"time"     // Cache TTLs

	"ever_greater/internal/domain" // Importing domain models
	"ever_greater/internal/ledger" // The resource ledger
	"ever_greater/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// LeaderboardEntry is one public row of the contribution leaderboard
type LeaderboardEntry struct {
	Rank               int    `json:"rank"`                // 1-based rank on this page
	Email              string `json:"email"`               // User email
	TicketsContributed int64  `json:"tickets_contributed"` // Lifetime tickets printed
	Autoprinters       int64  `json:"autoprinters"`        // Passive printers owned
}

// LeaderboardHandler returns users ordered by lifetime contribution
func LeaderboardHandler(l ledger.Ledger, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		page := 1      // Default page
		pageSize := 20 // Default page size
		// If page exists in query
		if p := c.Query("page"); p != "" {
			// Convert page to integer
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v // Set page if valid
			}
		}
		// If page_size exists in query
		if ps := c.Query("page_size"); ps != "" {
			// Convert page_size to integer
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v // Set page size if valid
			}
		}
		offset := (page - 1) * pageSize                    // Calculate offset
		cacheKey := utils.LeaderboardCacheKey(page, pageSize) // Cache key for this page
		ctx := context.Background()                        // Context for Redis operations
		var cached struct {
			Entries    []LeaderboardEntry `json:"leaderboard"` // Page entries
			Page       int                `json:"page"`        // Current page
			PageSize   int                `json:"page_size"`   // Page size
			Total      int64              `json:"total"`       // Total users
			TotalPages int                `json:"total_pages"` // Total pages
		}
		// Try to get from cache
		if rdb != nil {
			if found, err := utils.GetCache(ctx, rdb, cacheKey, &cached); err == nil && found {
				c.JSON(http.StatusOK, gin.H{
					"leaderboard": cached.Entries,    // Cached entries
					"page":        cached.Page,       // Current page
					"page_size":   cached.PageSize,   // Page size
					"total":       cached.Total,      // Total users
					"total_pages": cached.TotalPages, // Total pages
					"cached":      true,
				})
				return
			}
		}
		// If not in cache, read the page through the ledger
		users, total, err := l.TopContributors(c.Request.Context(), pageSize, offset)
		if err != nil {
			logrus.WithField("error", err.Error()).Error("Leaderboard read failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch leaderboard"})
			return
		}
		entries := toEntries(users, offset)
		totalPages := (int(total) + pageSize - 1) / pageSize // Calculate total pages
		resp := gin.H{
			"leaderboard": entries,    // Page entries
			"page":        page,       // Current page
			"page_size":   pageSize,   // Page size
			"total":       total,      // Total users
			"total_pages": totalPages, // Total pages
			"cached":      false,      // Not from cache
		}
		if rdb != nil {
			// Cache the result for 30 seconds
			_ = utils.SetCache(ctx, rdb, cacheKey, resp, 30*time.Second)
		}
		c.JSON(http.StatusOK, resp) // Return the leaderboard page
	}
}

// toEntries maps user rows to public leaderboard entries with ranks
func toEntries(users []domain.User, offset int) []LeaderboardEntry {
	entries := make([]LeaderboardEntry, 0, len(users))
	for i, u := range users {
		entries = append(entries, LeaderboardEntry{
			Rank:               offset + i + 1,       // 1-based overall rank
			Email:              u.Email,              // Public identity
			TicketsContributed: u.TicketsContributed, // Lifetime tickets
			Autoprinters:       u.Autoprinters,       // Passive printers
		})
	}
	return entries
}
