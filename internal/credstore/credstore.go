// Package credstore persists the session's credential record: an opaque
// token string and a JSON-encoded snapshot of the current user, kept in
// a string key-value namespace so the session survives process restarts.
package credstore

import "context"

// Store is the opaque key-value storage used for credential records.
// Values are always strings; structured data is JSON-encoded by callers.
type Store interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, bool, error)
	Remove(ctx context.Context, key string) error
	Close() error
}
