package utils

import (
	"context"       // Context for Redis operations
	"encoding/json" // JSON encoding/decoding
	"strconv"       // Integer to string conversion
	"time"          // Time durations

	"github.com/redis/go-redis/v9" // Redis client
)

// CountCacheKey caches the public global ticket count
const CountCacheKey = "count:global"

// UserCacheKey returns the cache key for a user's current fields
func UserCacheKey(userID uint) string {
	return "user:" + strconv.Itoa(int(userID))
}

// LeaderboardCacheKey returns the cache key for one leaderboard page
func LeaderboardCacheKey(page, pageSize int) string {
	return "leaderboard:page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
}

// GetCache retrieves a value from Redis and unmarshals it into dest
func GetCache(ctx context.Context, rdb *redis.Client, key string, dest any) (bool, error) {
	val, err := rdb.Get(ctx, key).Result() // Get value from Redis
	if err == redis.Nil {
		return false, nil // Key does not exist
	} else if err != nil {
		return false, err // Other Redis error
	}
	return true, json.Unmarshal([]byte(val), dest) // Unmarshal JSON into dest
}

// SetCache sets a value in Redis with a specified TTL
func SetCache(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value) // Marshal value to JSON
	if err != nil {
		return err // Return error if marshaling fails
	}
	return rdb.Set(ctx, key, b, ttl).Err() // Set value in Redis with TTL
}

// DeleteCache deletes a key from Redis
func DeleteCache(ctx context.Context, rdb *redis.Client, key string) error {
	return rdb.Del(ctx, key).Err() // Delete key from Redis
}
