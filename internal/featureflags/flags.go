package featureflags

import (
	"os"
	"strings"
)

// Flags used by the lending service:
//
//	FLAG_OVERDUE_SWEEP       persist OVERDUE on a periodic sweep in
//	                         addition to query-time derivation
//	FLAG_INACTIVE_BORROWERS  allow inactive members to check out books

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
