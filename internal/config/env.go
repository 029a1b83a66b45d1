package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Bool reads an environment variable and returns a boolean value.
// Only "true" or "false" (case-insensitive) are recognised; any other
// value results in the provided default.
func Bool(key string, defaultValue bool) bool {
	val := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch val {
	case "":
		return defaultValue
	case "true":
		return true
	case "false":
		return false
	default:
		return defaultValue
	}
}

// String returns the trimmed value of key, or defaultValue when unset.
func String(key, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// Int returns a positive integer from key. Unset, malformed or
// non-positive values fall back to defaultValue.
func Int(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 1 {
		return defaultValue
	}
	return n
}

// Float returns a positive float from key, falling back like Int.
func Float(key string, defaultValue float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f <= 0 {
		return defaultValue
	}
	return f
}

// Duration parses key with time.ParseDuration. A bare integer is read as
// milliseconds.
func Duration(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if ms, err := strconv.Atoi(value); err == nil {
		if ms < 0 {
			return defaultValue
		}
		return time.Duration(ms) * time.Millisecond
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return defaultValue
	}
	return d
}

// Count is like Int but accepts zero.
func Count(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return defaultValue
	}
	return n
}
