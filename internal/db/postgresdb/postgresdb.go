// Package postgresdb provides a PostgreSQL-based implementation of the
// users storage. Schema management is handled with goose migrations.
package postgresdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/greenhouse-mgmt/usrdir/internal/models"
)

// PostgresDB is the PostgreSQL-backed users storage.
type PostgresDB struct {
	database          *sql.DB
	connectionTimeout time.Duration
}

type initOptions struct {
	DBPreReset bool
}

// InitOption defines a functional option for configuring database initialization.
type InitOption func(*initOptions)

// WithDBPreReset drops all public tables before running migrations.
// It is meant for test setups.
func WithDBPreReset(value bool) InitOption {
	return func(options *initOptions) {
		options.DBPreReset = value
	}
}

// New establishes a connection to the PostgreSQL database, runs schema
// migrations, and returns a configured PostgresDB instance.
func New(
	ctx context.Context,
	databaseDSN string,
	connectionTimeout time.Duration,
	migrationsDir string,
	optionsProto ...InitOption,
) (*PostgresDB, error) {
	options := &initOptions{
		DBPreReset: false,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	database, err := sql.Open("pgx", databaseDSN)
	if err != nil {
		return nil, err
	}

	result := &PostgresDB{
		database:          database,
		connectionTimeout: connectionTimeout,
	}

	if options.DBPreReset {
		if err := result.resetDB(ctx); err != nil {
			return nil, fmt.Errorf("error while `result.resetDB()` calling: %w", err)
		}
	}

	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("error while `goose.SetDialect()` calling: %w", err)
	}

	if err := goose.Up(result.database, migrationsDir); err != nil {
		return nil, fmt.Errorf("error while `goose.Up()` calling: %w", err)
	}

	return result, nil
}

// CreateUser inserts a new record and returns the public fields with the
// server-assigned identifier. A unique-constraint violation on the email
// column is reported as models.ErrEmailTaken.
func (db *PostgresDB) CreateUser(ctx context.Context, record *models.UserRecord) (*models.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`
			INSERT INTO users (name, email, phone, password_hash)
				VALUES ($1, $2, $3, $4)
				RETURNING id
		`,
		record.Name,
		record.Email,
		record.Phone,
		record.PasswordHash,
	)

	var id int
	if err := row.Scan(&id); err != nil {
		return nil, mapUniqueViolation(err)
	}

	return &models.User{
		ID:    id,
		Name:  record.Name,
		Email: record.Email,
		Phone: record.Phone,
	}, nil
}

// GetUserByID fetches the public fields of a user by identifier.
func (db *PostgresDB) GetUserByID(ctx context.Context, id int) (*models.User, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, name, email, phone FROM users WHERE id = $1`,
		id,
	)

	usr := models.User{}
	if err := row.Scan(&usr.ID, &usr.Name, &usr.Email, &usr.Phone); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}

	return &usr, nil
}

// GetUserRecordByEmail fetches a stored record, hash included, by email.
func (db *PostgresDB) GetUserRecordByEmail(ctx context.Context, email string) (*models.UserRecord, error) {
	row := db.database.QueryRowContext(
		ctx,
		`SELECT id, name, email, phone, password_hash FROM users WHERE email = $1`,
		email,
	)

	record := models.UserRecord{}
	err := row.Scan(&record.ID, &record.Name, &record.Email, &record.Phone, &record.PasswordHash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrUserNotFound
		}
		return nil, err
	}

	return &record, nil
}

// GetAllUserRecords returns every stored record ordered by identifier.
func (db *PostgresDB) GetAllUserRecords(ctx context.Context) ([]models.UserRecord, error) {
	rows, err := db.database.QueryContext(
		ctx,
		`SELECT id, name, email, phone, password_hash FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []models.UserRecord{}
	for rows.Next() {
		record := models.UserRecord{}
		err = rows.Scan(&record.ID, &record.Name, &record.Email, &record.Phone, &record.PasswordHash)
		if err != nil {
			return nil, err
		}

		result = append(result, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateUser replaces the mutable fields of the record with the given
// identifier, keeping the stored hash when the incoming one is empty.
func (db *PostgresDB) UpdateUser(ctx context.Context, id int, record *models.UserRecord) (*models.User, error) {
	result, err := db.database.ExecContext(
		ctx,
		`
			UPDATE users
				SET name = $1,
					email = $2,
					phone = $3,
					password_hash = CASE WHEN $4 = '' THEN password_hash ELSE $4 END
				WHERE id = $5
		`,
		record.Name,
		record.Email,
		record.Phone,
		record.PasswordHash,
		id,
	)
	if err != nil {
		return nil, mapUniqueViolation(err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, models.ErrUserNotFound
	}

	return db.GetUserByID(ctx, id)
}

// DeleteUser removes the record with the given identifier.
func (db *PostgresDB) DeleteUser(ctx context.Context, id int) error {
	result, err := db.database.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return models.ErrUserNotFound
	}

	return nil
}

// GetNumberOfUsers reports the amount of stored records.
func (db *PostgresDB) GetNumberOfUsers(ctx context.Context) (int64, error) {
	row := db.database.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`)

	var usersCount int64
	if err := row.Scan(&usersCount); err != nil {
		return 0, err
	}

	return usersCount, nil
}

// Ping verifies connectivity with the database within the configured timeout.
func (db *PostgresDB) Ping(ctx context.Context) error {
	ctxWithTimeout, cancel := context.WithTimeout(ctx, db.connectionTimeout)
	defer cancel()

	return db.database.PingContext(ctxWithTimeout)
}

// Close closes the database connection.
func (db *PostgresDB) Close() error {
	return db.database.Close()
}

func (db *PostgresDB) resetDB(ctx context.Context) error {
	_, err := db.database.ExecContext(
		ctx,
		`
			DO $$
			DECLARE
				r RECORD;
			BEGIN
				FOR r IN (SELECT tablename FROM pg_tables WHERE schemaname = 'public') LOOP
					EXECUTE 'DROP TABLE IF EXISTS ' || quote_ident(r.tablename) || ' CASCADE';
				END LOOP;
			END $$;
		`,
	)
	if err != nil {
		return fmt.Errorf("error while `db.database.ExecContext()` calling: %w", err)
	}
	return nil
}

// uniqueViolationCode is the PostgreSQL error code for a violated
// unique constraint.
const uniqueViolationCode = "23505"

func mapUniqueViolation(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return models.ErrEmailTaken
	}

	return err
}
