package store

import (
	"context"
	"database/sql"
	"math/rand"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	maxRetries = 50
	baseDelay  = 10 * time.Millisecond
	maxDelay   = 25 * time.Millisecond
)

// isRetryableError checks if the error is a retryable SQLite lock error
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "database is locked") ||
		strings.Contains(errStr, "database table is locked") ||
		strings.Contains(errStr, "busy")
}

// backoff sleeps before the next attempt, or returns false if ctx ends first
func backoff(ctx context.Context, attempt int) bool {
	delay := time.Duration(attempt+1) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	// Add random jitter (up to 50% of delay)
	delay += time.Duration(rand.Int63n(int64(delay) / 2))

	t := time.NewTimer(delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// retryableExec executes a statement, retrying on lock conflicts
func retryableExec(ctx context.Context, log logrus.FieldLogger, db *sql.DB, query string, args ...interface{}) (sql.Result, error) {
	var result sql.Result
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		result, err = db.ExecContext(ctx, query, args...)
		if !isRetryableError(err) {
			return result, err
		}
		log.Warnf("[STORE]: SQLite retry attempt %d/%d for exec: %v", attempt+1, maxRetries, err)
		if attempt < maxRetries-1 && !backoff(ctx, attempt) {
			return result, ctx.Err()
		}
	}
	return result, err
}

// retryableQueryRowScan executes a QueryRow and Scan, retrying on lock conflicts
func retryableQueryRowScan(ctx context.Context, log logrus.FieldLogger, db *sql.DB, query string, args []interface{}, dest ...interface{}) error {
	var err error

	for attempt := 0; attempt < maxRetries; attempt++ {
		err = db.QueryRowContext(ctx, query, args...).Scan(dest...)
		if !isRetryableError(err) {
			return err
		}
		log.Warnf("[STORE]: SQLite retry attempt %d/%d for query: %v", attempt+1, maxRetries, err)
		if attempt < maxRetries-1 && !backoff(ctx, attempt) {
			return ctx.Err()
		}
	}
	return err
}
