// Package config loads application configuration from environment variables.
//
// It wraps github.com/joho/godotenv and github.com/caarlos0/env/v11 to
// provide a small API that:
//
//   - Loads values from one or multiple .env files (falling back to the
//     default .env in the working directory).
//   - Parses the environment into any Go struct using `env` field tags.
//   - Caches each successfully loaded configuration type so it is parsed
//     only once per process.
//
// All component configurations in this repository (queue, redis, pg) are
// plain structs with env tags and load through this package.
package config
