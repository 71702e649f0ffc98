// Package bootstrap parses the embedder-facing process configuration:
// an optional .env file plus environment-variable-bound struct fields,
// grounded on the teacher's cmd/seed_supabase/main.go (godotenv.Load
// against a flag-selected .env path) and platform/bootstrap/foundation.go
// (a single typed Config struct handed to a constructor). Unlike the
// config store in internal/config, this layer is read once at process
// startup and never hot-reloaded.
package bootstrap

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Options is the runtime core embedder's process-level configuration.
// Every field is bindable from an environment variable, following the
// teacher's env-override-over-flag-default convention.
type Options struct {
	DataDir  string `env:"RUBIDIUM_DATA_DIR,default=./data"`
	Product  string `env:"RUBIDIUM_PRODUCT,default=rubidium"`
	LogLevel string `env:"RUBIDIUM_LOG_LEVEL,default=info"`

	MetricsAddr        string `env:"RUBIDIUM_METRICS_ADDR,default=:9090"`
	MaxConcurrentAsync int    `env:"RUBIDIUM_MAX_ASYNC,default=4"`
}

// Load reads envFile (if it exists; a missing file is not an error,
// matching godotenv's common "optional override" usage) into the
// process environment, then decodes Options from the environment via
// envdecode's struct-tag binding, applying each field's default when
// unset.
func Load(envFile string) (*Options, error) {
	if envFile != "" {
		if _, err := os.Stat(envFile); err == nil {
			if err := godotenv.Load(envFile); err != nil {
				return nil, fmt.Errorf("bootstrap: load env file %s: %w", envFile, err)
			}
		}
	}

	var opts Options
	if err := envdecode.Decode(&opts); err != nil {
		return nil, fmt.Errorf("bootstrap: decode options: %w", err)
	}
	return &opts, nil
}
