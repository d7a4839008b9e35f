// Package config provides type-safe environment variable loading with caching
// using Go generics. Each configuration type is loaded once and cached for
// subsequent calls.
//
// The package automatically loads .env files on first use and uses the
// caarlos0/env library for parsing environment variables into struct fields.
//
//	type ACMEConfig struct {
//		Enabled      bool   `env:"ACME_ENABLED" envDefault:"false"`
//		DirectoryURL string `env:"ACME_DIRECTORY_URL,required"`
//	}
//
//	var cfg ACMEConfig
//	if err := config.Load(&cfg); err != nil {
//		log.Fatal(err)
//	}
//
// Different types are cached independently; loading the same type twice
// returns the first parsed value.
package config
