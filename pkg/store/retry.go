// retry.go handles transient SQLite errors under concurrent access.
//
// In WAL mode, concurrent writers can hit SQLITE_BUSY, SQLITE_LOCKED, or
// IOERR_SHORT_READ. The busy_timeout pragma absorbs most SQLITE_BUSY at
// the connection level; the rest get a short application-level retry with
// exponential backoff and jitter. This is distinct from the Retrying
// wrapper in retrying.go, which retries whole Save calls against any
// backend on behalf of the coordinator.
package store

import (
	"math/rand"
	"strings"
	"time"
)

const (
	contentionRetries   = 3
	contentionBaseDelay = 50 * time.Millisecond
	contentionMaxDelay  = 500 * time.Millisecond
)

// isTransientSQLiteErr matches the error text modernc.org/sqlite produces
// for lock contention that a retry can resolve.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
		"(5)",   // SQLITE_BUSY code
		"(6)",   // SQLITE_LOCKED code
		"(522)", // SQLITE_IOERR_SHORT_READ code
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}

// withContentionRetry executes fn, retrying transient contention errors
// with exponential backoff plus jitter. Non-transient errors return
// immediately.
func withContentionRetry(fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= contentionRetries; attempt++ {
		lastErr = fn()
		if lastErr == nil || !isTransientSQLiteErr(lastErr) {
			return lastErr
		}
		if attempt < contentionRetries {
			delay := contentionBaseDelay << uint(attempt)
			if delay > contentionMaxDelay {
				delay = contentionMaxDelay
			}
			time.Sleep(delay + time.Duration(rand.Int63n(int64(contentionBaseDelay))))
		}
	}
	return lastErr
}
