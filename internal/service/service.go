// Package service implements the server-side user directory operations:
// registration, credential checks, and user CRUD over a pluggable
// storage backend. Passwords are hashed with bcrypt before they reach
// storage and never leave it.
package service

import (
	"context"
	"errors"

	"github.com/thoas/go-funk"
	"golang.org/x/crypto/bcrypt"

	"github.com/greenhouse-mgmt/usrdir/internal/models"
)

type userKeeper interface {
	CreateUser(ctx context.Context, record *models.UserRecord) (*models.User, error)
	GetUserByID(ctx context.Context, id int) (*models.User, error)
	GetUserRecordByEmail(ctx context.Context, email string) (*models.UserRecord, error)
	GetAllUserRecords(ctx context.Context) ([]models.UserRecord, error)
	UpdateUser(ctx context.Context, id int, record *models.UserRecord) (*models.User, error)
	DeleteUser(ctx context.Context, id int) error
	GetNumberOfUsers(ctx context.Context) (int64, error)
}

// ErrInvalidCredentials is returned when a login attempt carries an
// unknown email or a wrong password. The two cases are deliberately
// indistinguishable to callers.
var ErrInvalidCredentials = errors.New("invalid email or password")

// Service is the user directory application service.
type Service struct {
	db userKeeper
}

// New returns a Service over the given storage backend.
func New(db userKeeper) *Service {
	return &Service{db: db}
}

// Register creates a new account from a registration payload.
func (s *Service) Register(ctx context.Context, request models.RegisterRequest) (*models.User, error) {
	record, err := buildRecord(request.Name, request.Email, request.Phone, request.Password)
	if err != nil {
		return nil, err
	}

	return s.db.CreateUser(ctx, record)
}

// Authenticate verifies an email/password pair and returns the matching
// user, or ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	record, err := s.db.GetUserRecordByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(record.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	usr := record.User

	return &usr, nil
}

// ListUsers returns the public projection of every stored record,
// ordered by identifier.
func (s *Service) ListUsers(ctx context.Context) ([]models.User, error) {
	records, err := s.db.GetAllUserRecords(ctx)
	if err != nil {
		return nil, err
	}

	users := funk.Map(records, func(record models.UserRecord) models.User {
		return record.User
	}).([]models.User)

	return users, nil
}

// CreateUser creates a directory record on behalf of an authenticated caller.
func (s *Service) CreateUser(ctx context.Context, request models.CreateUserRequest) (*models.User, error) {
	record, err := buildRecord(request.Name, request.Email, request.Phone, request.Password)
	if err != nil {
		return nil, err
	}

	return s.db.CreateUser(ctx, record)
}

// UpdateUser replaces the mutable fields of the record with the given
// identifier. An empty password in the request keeps the stored hash.
func (s *Service) UpdateUser(ctx context.Context, id int, request models.UpdateUserRequest) (*models.User, error) {
	record := &models.UserRecord{
		User: models.User{
			ID:    id,
			Name:  request.Name,
			Email: request.Email,
			Phone: request.Phone,
		},
	}

	if request.Password != "" {
		hash, err := hashPassword(request.Password)
		if err != nil {
			return nil, err
		}
		record.PasswordHash = hash
	}

	return s.db.UpdateUser(ctx, id, record)
}

// DeleteUser removes the record with the given identifier.
func (s *Service) DeleteUser(ctx context.Context, id int) error {
	return s.db.DeleteUser(ctx, id)
}

// GetNumberOfUsers reports the total amount of stored records.
func (s *Service) GetNumberOfUsers(ctx context.Context) (int64, error) {
	return s.db.GetNumberOfUsers(ctx)
}

func buildRecord(name, email, phone, password string) (*models.UserRecord, error) {
	hash, err := hashPassword(password)
	if err != nil {
		return nil, err
	}

	return &models.UserRecord{
		User: models.User{
			Name:  name,
			Email: email,
			Phone: phone,
		},
		PasswordHash: hash,
	}, nil
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}

	return string(hash), nil
}
