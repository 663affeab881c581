package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var dotenv sync.Once

// Load parses the environment into v. Each configuration type is parsed
// once per process; later calls copy the cached value. A failed parse is
// not cached, so a fixed environment can be loaded again.
//
// The .env file in the working directory, if any, is read before the first
// parse without overriding variables already set.
//
//	var cfg livesync.Config
//	if err := config.Load(&cfg); err != nil {
//		return err
//	}
func Load[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	dotenv.Do(func() { _ = godotenv.Load() })

	t := typeOf[T]()
	e := lookup(t)
	e.once.Do(func() {
		var parsed T
		if err := env.Parse(&parsed); err != nil {
			e.err = errors.Join(ErrParsingConfig, err)
			return
		}
		e.value = parsed
	})
	if e.err != nil {
		cache.CompareAndDelete(t, e)
		return e.err
	}
	*v = e.value.(T)
	return nil
}

// MustLoad is Load that panics; for binaries that cannot start without config.
func MustLoad[T any](v *T) {
	if err := Load(v); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}

// Reload parses v again from the current environment and replaces the
// cached copy.
func Reload[T any](v *T) error {
	if v == nil {
		return ErrNilPointer
	}
	var parsed T
	if err := env.Parse(&parsed); err != nil {
		return errors.Join(ErrParsingConfig, err)
	}

	e := &entry{value: parsed}
	e.once.Do(func() {})
	cache.Store(typeOf[T](), e)
	*v = parsed
	return nil
}

// LoadEnv reads .env files into the process environment; later files win
// over earlier ones and over variables already set. Without arguments the
// .env in the working directory is read.
func LoadEnv(paths ...string) error {
	if err := godotenv.Overload(paths...); err != nil {
		return errors.Join(ErrEnvFile, err)
	}
	return nil
}

// MustLoadEnv is LoadEnv that panics.
func MustLoadEnv(paths ...string) {
	if err := LoadEnv(paths...); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
}
