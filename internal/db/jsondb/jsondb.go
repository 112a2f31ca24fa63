// Package jsondb provides a file-backed implementation of the users
// storage. The whole data set is kept in memory and written to a JSON
// file on Close, which suits local development and tests.
package jsondb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/thoas/go-funk"

	"github.com/greenhouse-mgmt/usrdir/internal/models"
)

// JSONDB is the file-backed users storage. The cache is guarded by a
// mutex since the HTTP server invokes storage methods concurrently.
type JSONDB struct {
	fileName string
	mu       sync.RWMutex
	Cache    CacheStruct
}

// CacheStruct is the serialized shape of the database file.
type CacheStruct struct {
	Users      map[int]*models.UserRecord
	EmailIndex map[string]int
	NextUserID int
}

func initDBFile(fileName string) error {
	dbFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(dbFile, `{
	"Users": {},
	"EmailIndex": {},
	"NextUserID": 1
}`)
	if err != nil {
		return err
	}
	return dbFile.Close()
}

func writeToJSONFile(fileName string, cache interface{}) error {
	jsonData, err := json.MarshalIndent(cache, "", "\t")
	if err != nil {
		return fmt.Errorf("error marshaling JSON: %w", err)
	}

	err = os.WriteFile(fileName, jsonData, 0644)
	if err != nil {
		return fmt.Errorf("error writing to file: %w", err)
	}

	return nil
}

func parseJSONFile(fileName string, cacheMap *CacheStruct) error {
	file, err := os.Open(fileName)
	if err != nil {
		return err
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	err = decoder.Decode(cacheMap)
	if err != nil {
		return err
	}

	return nil
}

// New loads the database from fileName, creating an empty one when the
// file does not exist yet.
func New(fileName string) (*JSONDB, error) {
	database := JSONDB{
		fileName: fileName,
		Cache:    CacheStruct{},
	}

	err := parseJSONFile(database.fileName, &database.Cache)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
		err := initDBFile(fileName)
		if err != nil {
			return nil, err
		}
		err = parseJSONFile(database.fileName, &database.Cache)
		if err != nil {
			return nil, err
		}
	}

	// a hand-edited file may lack some of the keys
	if database.Cache.Users == nil {
		database.Cache.Users = map[int]*models.UserRecord{}
	}
	if database.Cache.EmailIndex == nil {
		database.Cache.EmailIndex = map[string]int{}
	}
	if database.Cache.NextUserID < 1 {
		database.Cache.NextUserID = 1
	}

	return &database, nil
}

// CreateUser assigns the next identifier and stores the record.
// Returns models.ErrEmailTaken when the email is already indexed.
func (db *JSONDB) CreateUser(ctx context.Context, record *models.UserRecord) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, taken := db.Cache.EmailIndex[record.Email]; taken {
		return nil, models.ErrEmailTaken
	}

	stored := *record
	stored.ID = db.Cache.NextUserID
	db.Cache.NextUserID++

	db.Cache.Users[stored.ID] = &stored
	db.Cache.EmailIndex[stored.Email] = stored.ID

	usr := stored.User

	return &usr, nil
}

// GetUserByID returns the public fields of the record with the given
// identifier, or models.ErrUserNotFound.
func (db *JSONDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	record, found := db.Cache.Users[id]
	if !found {
		return nil, models.ErrUserNotFound
	}

	usr := record.User

	return &usr, nil
}

// GetUserRecordByEmail returns the stored record matching the email,
// hash included, or models.ErrUserNotFound.
func (db *JSONDB) GetUserRecordByEmail(ctx context.Context, email string) (*models.UserRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	id, found := db.Cache.EmailIndex[email]
	if !found {
		return nil, models.ErrUserNotFound
	}

	record := *db.Cache.Users[id]

	return &record, nil
}

// GetAllUserRecords returns every stored record ordered by identifier.
func (db *JSONDB) GetAllUserRecords(ctx context.Context) ([]models.UserRecord, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	ids := funk.Keys(db.Cache.Users).([]int)
	sort.Ints(ids)

	result := make([]models.UserRecord, 0, len(ids))
	for _, id := range ids {
		result = append(result, *db.Cache.Users[id])
	}

	return result, nil
}

// UpdateUser replaces the mutable fields of the record with the given
// identifier. An empty PasswordHash in the incoming record keeps the
// stored hash. Returns models.ErrEmailTaken when the new email belongs
// to another record.
func (db *JSONDB) UpdateUser(ctx context.Context, id int, record *models.UserRecord) (*models.User, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	stored, found := db.Cache.Users[id]
	if !found {
		return nil, models.ErrUserNotFound
	}

	if ownerID, taken := db.Cache.EmailIndex[record.Email]; taken && ownerID != id {
		return nil, models.ErrEmailTaken
	}

	delete(db.Cache.EmailIndex, stored.Email)

	stored.Name = record.Name
	stored.Email = record.Email
	stored.Phone = record.Phone
	if record.PasswordHash != "" {
		stored.PasswordHash = record.PasswordHash
	}

	db.Cache.EmailIndex[stored.Email] = id

	usr := stored.User

	return &usr, nil
}

// DeleteUser removes the record with the given identifier.
func (db *JSONDB) DeleteUser(ctx context.Context, id int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	record, found := db.Cache.Users[id]
	if !found {
		return models.ErrUserNotFound
	}

	delete(db.Cache.EmailIndex, record.Email)
	delete(db.Cache.Users, id)

	return nil
}

// GetNumberOfUsers reports the amount of stored records.
func (db *JSONDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	return int64(len(db.Cache.Users)), nil
}

// Ping is a no-op for the file backend.
func (db *JSONDB) Ping(ctx context.Context) error {
	return nil
}

// Close writes the in-memory data set to the backing file.
func (db *JSONDB) Close() error {
	db.mu.RLock()
	defer db.mu.RUnlock()

	err := writeToJSONFile(db.fileName, db.Cache)
	if err != nil {
		return err
	}

	return nil
}
