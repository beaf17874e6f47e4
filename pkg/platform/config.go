package platform

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// LoadDotEnv loads variables from .env style files into the process
// environment. Missing files are ignored; variables already set win.
func LoadDotEnv(paths ...string) {
	if len(paths) == 0 {
		_ = godotenv.Load()
		return
	}
	for _, p := range paths {
		_ = godotenv.Load(p)
	}
}

// GetEnvInt returns the integer value of key, or defaultVal when unset or malformed.
func GetEnvInt(key string, defaultVal int) int {
	if val, exists := os.LookupEnv(key); exists {
		if i, err := strconv.Atoi(strings.TrimSpace(val)); err == nil {
			return i
		}
	}
	return defaultVal
}

// GetEnvList splits a comma-separated variable, trimming blanks.
func GetEnvList(key string, defaultVal []string) []string {
	val, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
