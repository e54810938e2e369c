// Package config loads service configuration from the process environment
// and provides the shared fatal-exit helper for command mains.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ParseEnv populates target's env-tagged fields from environment variables,
// applying envDefault values for unset ones.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
