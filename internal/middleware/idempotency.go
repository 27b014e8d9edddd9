package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const (
	correlationHeader = "X-Correlation-ID"
	replayHeader      = "X-Idempotent-Replay"

	markerPending = "pending"
	msgReplayed   = "This request has already been processed."
)

// Idempotency rejects a repeat of a mutating request carrying the same
// X-Correlation-ID and the same body within ttl. Only a marker holding the
// original status is kept in Redis; the response body never is, so a replay
// answers 409 and carries no credentials. Requests without the header pass
// through.
func Idempotency(redisClient *redis.Client, ttl time.Duration) fiber.Handler {
	return func(c *fiber.Ctx) error {
		// Only apply to mutating methods
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPatch && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		correlationID := c.Get(correlationHeader)
		if correlationID == "" {
			return c.Next()
		}

		key := idempotencyKey(c.Path(), correlationID, c.Body())

		// claim the key before running the handler so concurrent duplicates lose
		claimed, err := redisClient.SetNX(c.UserContext(), key, markerPending, ttl).Result()
		if err != nil {
			log.Printf("Warning: idempotency lookup failed: %v", err)
			return c.Next()
		}
		if !claimed {
			c.Set(replayHeader, "true")
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"message": msgReplayed,
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		if err := c.Next(); err != nil {
			release(ctx, redisClient, key)
			return err
		}

		status := c.Response().StatusCode()
		if status < 200 || status >= 300 {
			// failures may be retried with the same id
			release(ctx, redisClient, key)
			return nil
		}

		if err := redisClient.Set(ctx, key, strconv.Itoa(status), redis.KeepTTL).Err(); err != nil {
			log.Printf("Warning: failed to record idempotency marker: %v", err)
		}
		return nil
	}
}

// idempotencyKey binds the correlation id to the exact request body, so a
// reused id with a different payload is a different request
func idempotencyKey(path, correlationID string, body []byte) string {
	digest := sha256.Sum256(body)
	return fmt.Sprintf("idempotency:%s:%s:%s", path, correlationID, hex.EncodeToString(digest[:]))
}

func release(ctx context.Context, redisClient *redis.Client, key string) {
	if err := redisClient.Del(ctx, key).Err(); err != nil {
		log.Printf("Warning: failed to release idempotency key: %v", err)
	}
}
