package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const healthcheckTimeout = 2 * time.Second

// Healthcheck returns a readiness check that pings client. A check never
// waits longer than two seconds, whatever the caller's deadline.
func Healthcheck(client redis.UniversalClient) func(context.Context) error {
	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, healthcheckTimeout)
		defer cancel()

		if err := client.Ping(ctx).Err(); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
