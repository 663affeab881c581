// Package redis connects to the Redis server that holds the shared session
// slot when tabs run as separate processes.
//
// Connect parses Config.ConnectionURL and pings until the server answers,
// backing off between attempts; Healthcheck adapts a client to the
// readiness check signature used by httpserver.HealthCheckHandler.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer client.Close()
//	shared := storage.NewRedisShared(client, storage.DefaultRedisConfig())
//
// Failures wrap ErrEmptyURL, ErrInvalidURL, ErrNotReady or
// ErrHealthcheckFailed together with the go-redis error.
package redis
