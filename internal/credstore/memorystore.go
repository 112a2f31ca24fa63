package credstore

import "context"

// MemoryStore keeps credential records in process memory only.
// It is used in tests and when no credentials file is configured.
type MemoryStore struct {
	values map[string]string
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		values: map[string]string{},
	}
}

// Set stores value under key.
func (store *MemoryStore) Set(ctx context.Context, key, value string) error {
	store.values[key] = value
	return nil
}

// Get returns the value stored under key and whether it was present.
func (store *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, found := store.values[key]
	return value, found, nil
}

// Remove deletes the value stored under key.
func (store *MemoryStore) Remove(ctx context.Context, key string) error {
	delete(store.values, key)
	return nil
}

// Close is a no-op for MemoryStore.
func (store *MemoryStore) Close() error {
	return nil
}
