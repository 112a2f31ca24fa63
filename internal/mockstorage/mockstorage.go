// Package mockstorage provides a testify-based mock implementation of
// the users storage interface. It is used to simulate storage behavior
// and inject failures in service and router tests.
package mockstorage

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/greenhouse-mgmt/usrdir/internal/models"
)

// StorageMock is a testify mock implementing the users storage interface
// consumed by the service, auth and app packages.
type StorageMock struct {
	mock.Mock
}

// CreateUser mocks inserting a new user record.
func (m *StorageMock) CreateUser(ctx context.Context, record *models.UserRecord) (*models.User, error) {
	args := m.Called(ctx, record)
	usr, _ := args.Get(0).(*models.User)
	return usr, args.Error(1)
}

// GetUserByID mocks fetching a user's public fields by identifier.
func (m *StorageMock) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	args := m.Called(ctx, id)
	usr, _ := args.Get(0).(*models.User)
	return usr, args.Error(1)
}

// GetUserRecordByEmail mocks fetching a stored record by email.
func (m *StorageMock) GetUserRecordByEmail(ctx context.Context, email string) (*models.UserRecord, error) {
	args := m.Called(ctx, email)
	record, _ := args.Get(0).(*models.UserRecord)
	return record, args.Error(1)
}

// GetAllUserRecords mocks listing every stored record.
func (m *StorageMock) GetAllUserRecords(ctx context.Context) ([]models.UserRecord, error) {
	args := m.Called(ctx)
	records, _ := args.Get(0).([]models.UserRecord)
	return records, args.Error(1)
}

// UpdateUser mocks replacing a record's mutable fields.
func (m *StorageMock) UpdateUser(ctx context.Context, id int, record *models.UserRecord) (*models.User, error) {
	args := m.Called(ctx, id, record)
	usr, _ := args.Get(0).(*models.User)
	return usr, args.Error(1)
}

// DeleteUser mocks removing a record.
func (m *StorageMock) DeleteUser(ctx context.Context, id int) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// GetNumberOfUsers mocks counting the stored records.
func (m *StorageMock) GetNumberOfUsers(ctx context.Context) (int64, error) {
	args := m.Called(ctx)
	return args.Get(0).(int64), args.Error(1)
}

// Ping mocks the storage health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks releasing the storage resources.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}
