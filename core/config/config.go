package config

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

var (
	dotenvOnce sync.Once

	cacheMu sync.RWMutex
	cache   = map[reflect.Type]any{}
)

// Load populates cfg from environment variables using `env` struct tags.
// A .env file in the working directory is loaded once per process before the
// first parse. Each configuration type is parsed only once; subsequent calls
// for the same type return the cached value.
func Load[T any](cfg *T) error {
	if cfg == nil {
		return fmt.Errorf("config: nil target")
	}

	// Missing .env is not an error; explicit environment always wins.
	dotenvOnce.Do(func() {
		_ = godotenv.Load()
	})

	typ := reflect.TypeOf(*cfg)

	cacheMu.RLock()
	cached, ok := cache[typ]
	cacheMu.RUnlock()
	if ok {
		*cfg = cached.(T)
		return nil
	}

	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", typ, err)
	}

	cacheMu.Lock()
	defer cacheMu.Unlock()
	if cached, ok := cache[typ]; ok {
		*cfg = cached.(T)
		return nil
	}
	cache[typ] = *cfg

	return nil
}

// MustLoad is Load that panics on failure, for use during startup.
func MustLoad[T any](cfg *T) {
	if err := Load(cfg); err != nil {
		panic(err)
	}
}
