// Package envutil reads tuning knobs from environment variables.
package envutil

import (
	"os"
	"strconv"

	"github.com/githubnext/gh-flowgen/pkg/logger"
)

// GetIntFromEnv returns the integer value of envVar clamped to
// [minValue, maxValue]. Unset, malformed or out of range values fall back to
// defaultValue. log may be nil.
func GetIntFromEnv(envVar string, defaultValue, minValue, maxValue int, log *logger.Logger) int {
	raw := os.Getenv(envVar)
	if raw == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		if log != nil {
			log.Printf("Ignoring %s=%q: not an integer", envVar, raw)
		}
		return defaultValue
	}
	if value < minValue || value > maxValue {
		if log != nil {
			log.Printf("Ignoring %s=%d: outside [%d, %d]", envVar, value, minValue, maxValue)
		}
		return defaultValue
	}

	if log != nil {
		log.Printf("Using %s=%d", envVar, value)
	}
	return value
}
