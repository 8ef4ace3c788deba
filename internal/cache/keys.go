// Package cache: this file defines the key and pattern naming conventions
// the manager actually exercises. Keys use {prefix}:{identifier}; patterns
// use a trailing wildcard for DeletePattern-based bulk invalidation.
package cache

import "fmt"

const (
	PrefixSession = "session"
	PrefixLock    = "lock"
)

// SessionKey addresses a single cached session by id.
func SessionKey(sessionID string) string {
	return fmt.Sprintf("%s:%s", PrefixSession, sessionID)
}

// SessionPattern matches every cached session, for the bulk invalidation
// RestoreOnStartup runs before repopulating the cache after a restart.
func SessionPattern() string {
	return fmt.Sprintf("%s:*", PrefixSession)
}

// StartupRestoreLockKey guards RestoreOnStartup so only one instance in the
// fleet performs it per restart cycle.
func StartupRestoreLockKey() string {
	return fmt.Sprintf("%s:startup-restore", PrefixLock)
}
