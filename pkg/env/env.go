package env

import (
	"os"
	"strings"
)

// Prefix namespaces every portal variable.
const Prefix = "PORTAL_"

// Get returns PORTAL_<key>, then the bare key, then fallback.
func Get(key, fallback string) string {
	if !strings.HasPrefix(key, Prefix) {
		if val := strings.TrimSpace(os.Getenv(Prefix + key)); val != "" {
			return val
		}
	}
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}
