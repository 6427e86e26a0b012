package middleware

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const pinAttemptsPrefix = "rl:pin:"

// PINAttempts rejects requests for an account once it has collected maxPerMin
// failed PIN checks within the current minute. Only responses with status 401
// count as failures. Without Redis the limiter is a no-op.
func PINAttempts(cache *redis.Client, maxPerMin int) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 5
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		subject := subjectAccount(c)
		if subject == "" {
			return c.Next()
		}
		key := pinAttemptsPrefix + subject

		failures, err := cache.Get(c.UserContext(), key).Int64()
		if err != nil && err != redis.Nil {
			return c.Next() // fail-open on cache errors
		}
		if failures >= int64(maxPerMin) {
			return fiber.NewError(http.StatusTooManyRequests, "too many PIN attempts, try again later")
		}

		err = c.Next()
		if statusOf(c, err) != http.StatusUnauthorized {
			return err
		}
		cnt, incrErr := cache.Incr(c.UserContext(), key).Result()
		if incrErr == nil && cnt == 1 {
			cache.Expire(c.UserContext(), key, time.Minute)
		}
		return err
	}
}

func statusOf(c *fiber.Ctx, err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return c.Response().StatusCode()
}
