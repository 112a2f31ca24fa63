// Package memorystorage provides an in-memory users storage.
// It reuses the jsondb implementation without a backing file.
package memorystorage

import (
	"context"

	"github.com/greenhouse-mgmt/usrdir/internal/db/jsondb"
	"github.com/greenhouse-mgmt/usrdir/internal/models"
)

// MemoryStorage is the default backend when neither a database DSN nor
// a storage file is configured.
type MemoryStorage struct {
	*jsondb.JSONDB
}

// New returns an empty in-memory storage.
func New() (*MemoryStorage, error) {
	return &MemoryStorage{
		JSONDB: &jsondb.JSONDB{
			Cache: jsondb.CacheStruct{
				Users:      map[int]*models.UserRecord{},
				EmailIndex: map[string]int{},
				NextUserID: 1,
			},
		},
	}, nil
}

// Close is a no-op for the in-memory backend.
func (theStorage *MemoryStorage) Close() error {
	return nil
}

// Ping is a no-op for the in-memory backend.
func (theStorage *MemoryStorage) Ping(ctx context.Context) error {
	return nil
}
