// Package config loads env-tagged configuration structs.
//
// Parsing is delegated to github.com/caarlos0/env/v11 and .env files are
// read with github.com/joho/godotenv. Every component in this module ships
// a Config struct with env and envDefault tags and a DefaultConfig
// constructor; binaries aggregate them:
//
//	type appConfig struct {
//		Logger   logger.Config
//		Redis    redis.Config
//		Livesync livesync.Config
//	}
//
//	var cfg appConfig
//	config.MustLoad(&cfg)
//
// Nested structs are parsed without a prefix, so each variable keeps the
// name its component declares (REALTIME_URL, SESSION_RETENTION, ...).
//
// Each type is parsed once per process and cached. Tests that change the
// environment call ResetCache or Reload.
package config
