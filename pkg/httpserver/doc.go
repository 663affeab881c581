// Package httpserver runs an http.Server with graceful shutdown, env-driven
// timeouts and a health-check handler.
//
// Run blocks until its context is cancelled or Shutdown is called. The
// server sets no write timeout so long-lived websocket connections survive;
// ReadHeaderTimeout still bounds slow handshakes.
//
//	srv := httpserver.NewFromConfig(cfg, httpserver.WithLogger(log))
//	r := chi.NewRouter()
//	r.Get("/healthz", httpserver.HealthCheckHandler(log))
//	r.Get("/readyz", httpserver.HealthCheckHandler(log, redis.Healthcheck(client)))
//	if err := srv.Run(ctx, r); err != nil {
//		log.Error("server stopped", logger.Error(err))
//	}
//
// Listen and serve failures are wrapped with ErrStart, shutdown failures
// with ErrShutdown.
package httpserver
