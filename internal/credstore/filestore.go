package credstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
)

// FileStore keeps credential records in a JSON file. Every mutation is
// written through to disk immediately so a crash between Set and Close
// does not lose the session.
type FileStore struct {
	fileName string
	values   map[string]string
}

// NewFileStore loads the store from fileName, creating the file with
// owner-only permissions when it does not exist yet.
func NewFileStore(fileName string) (*FileStore, error) {
	store := &FileStore{
		fileName: fileName,
		values:   map[string]string{},
	}

	err := parseJSONFile(fileName, &store.values)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		if err := store.persist(); err != nil {
			return nil, err
		}
	}

	return store, nil
}

// Set stores value under key and writes the file through.
func (store *FileStore) Set(ctx context.Context, key, value string) error {
	store.values[key] = value
	return store.persist()
}

// Get returns the value stored under key and whether it was present.
func (store *FileStore) Get(ctx context.Context, key string) (string, bool, error) {
	value, found := store.values[key]
	return value, found, nil
}

// Remove deletes the value stored under key. Removing an absent key is
// not an error.
func (store *FileStore) Remove(ctx context.Context, key string) error {
	delete(store.values, key)
	return store.persist()
}

// Close is a no-op for FileStore since every mutation is written through.
func (store *FileStore) Close() error {
	return nil
}

func (store *FileStore) persist() error {
	jsonData, err := json.MarshalIndent(store.values, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	if err := os.WriteFile(store.fileName, jsonData, 0600); err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}

	return nil
}

func parseJSONFile(fileName string, values *map[string]string) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)

	return decoder.Decode(values)
}
