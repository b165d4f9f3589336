package api

import (
	"context"  // Context for Redis operations
	"errors"   // Error inspection
	"net/http" // HTTP status codes

	"ever_greater/internal/domain" // Importing domain models
	"ever_greater/internal/ledger" // The resource ledger
	"ever_greater/internal/push"   // Broadcast dispatcher
	"ever_greater/internal/utils"  // Utility functions

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logging library
)

// BuyGoldRequest represents a gold purchase request
type BuyGoldRequest struct {
	Quantity int64 `json:"quantity" binding:"required"` // Units of gold requested
}

// maxGoldQuantity bounds a single purchase so the cost cannot overflow
const maxGoldQuantity = 1_000_000

// invalidateUser drops the user's cached snapshot after a mutation
func invalidateUser(rdb *redis.Client, userID uint) {
	if rdb != nil {
		_ = utils.DeleteCache(context.Background(), rdb, utils.UserCacheKey(userID))
	}
}

// BuySuppliesHandler sells one supplies pack for money
func BuySuppliesHandler(l ledger.Ledger, disp *push.Dispatcher, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		// One guarded ledger operation: debit and grant together or not at all
		user, err := l.SpendMoneyFor(c.Request.Context(), userID.(uint), "supplies",
			ledger.SuppliesPackCost, ledger.Grant{Supplies: ledger.SuppliesPackSize})
		if err != nil {
			// Guard failure: balance unchanged, surfaced verbatim
			if errors.Is(err, domain.ErrInsufficientResource) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient money"})
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
			}).Error("Supplies purchase failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to buy supplies"})
			return
		}
		invalidateUser(rdb, userID.(uint))
		// Push the changed fields to the user's other open channels
		money, supplies := user.Money, user.PrinterSupplies
		disp.SendUserUpdate(userID.(uint), push.UserUpdate{Money: &money, Supplies: &supplies})
		// Return the new balances
		c.JSON(http.StatusOK, gin.H{"money": user.Money, "printer_supplies": user.PrinterSupplies})
	}
}

// BuyGoldHandler sells gold for money at a flat unit cost
func BuyGoldHandler(l ledger.Ledger, disp *push.Dispatcher, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		var req BuyGoldRequest // Bind JSON request to struct
		// Validate before touching the ledger: quantity must be a positive integer
		if err := c.ShouldBindJSON(&req); err != nil || req.Quantity < 1 || req.Quantity > maxGoldQuantity {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid quantity. Must be a positive integer."})
			return
		}
		cost := req.Quantity * ledger.GoldUnitCost // Total money cost
		// One guarded ledger operation
		user, err := l.SpendMoneyFor(c.Request.Context(), userID.(uint), "gold",
			cost, ledger.Grant{Gold: req.Quantity})
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientResource) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient money"})
				return
			}
			if errors.Is(err, domain.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"user_id":  userID,       // User ID
				"quantity": req.Quantity, // Requested gold
				"error":    err.Error(),  // Error message
			}).Error("Gold purchase failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to buy gold"})
			return
		}
		invalidateUser(rdb, userID.(uint))
		money, gold := user.Money, user.Gold
		disp.SendUserUpdate(userID.(uint), push.UserUpdate{Money: &money, Gold: &gold})
		// Return the new balances
		c.JSON(http.StatusOK, gin.H{"money": user.Money, "gold": user.Gold})
	}
}

// BuyAutoprinterHandler sells the user's next autoprinter for gold. The cost
// grows with every unit owned.
func BuyAutoprinterHandler(l ledger.Ledger, disp *push.Dispatcher, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, exists := c.Get("userID") // Get userID from context
		// Check if userID exists in context
		if !exists {
			// If not, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Not authenticated"})
			return
		}
		// One guarded ledger operation; the cost is derived under a row lock
		user, err := l.BuyAutoprinter(c.Request.Context(), userID.(uint))
		if err != nil {
			if errors.Is(err, domain.ErrInsufficientResource) {
				c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient gold"})
				return
			}
			if errors.Is(err, domain.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
				return
			}
			logrus.WithFields(logrus.Fields{
				"user_id": userID,      // User ID
				"error":   err.Error(), // Error message
			}).Error("Autoprinter purchase failed")
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to buy autoprinter"})
			return
		}
		invalidateUser(rdb, userID.(uint))
		gold, autoprinters := user.Gold, user.Autoprinters
		disp.SendUserUpdate(userID.(uint), push.UserUpdate{Gold: &gold, Autoprinters: &autoprinters})
		// Return the new balances
		c.JSON(http.StatusOK, gin.H{"gold": user.Gold, "autoprinters": user.Autoprinters})
	}
}
