package credential

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"net/http"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
	"github.com/google/uuid"
	"modernc.org/sqlite"
	lib "modernc.org/sqlite/lib"
)

//go:embed migrations/*
var migrations embed.FS

// SQLiteStore is the production Store, backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and, if needed, creates and migrates) the
// credential database at dbFilePath.
func NewSQLiteStore(dbFilePath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=foreign_keys=on", dbFilePath))
	if err != nil {
		return nil, err
	}

	// A single open connection serializes all access and sidesteps
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.runMigrations(); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) runMigrations() error {
	migrationFS, err := fs.Sub(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("preparing migration subdirectory: %w", err)
	}

	sourceInstance, err := httpfs.New(http.FS(migrationFS), ".")
	if err != nil {
		return fmt.Errorf("creating source instance from embedded filesystem: %w", err)
	}

	driver, err := migratesqlite.WithInstance(s.db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("httpfs", sourceInstance, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) InsertUser(ctx context.Context, u User) error {
	q := `INSERT INTO users (id, username, email, password_hash, created_at)
	      VALUES (?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q, u.ID.String(), u.Username, u.Email, u.PasswordHash, u.CreatedAt.Unix())
	if err != nil {
		var sqliteErr *sqlite.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code() == lib.SQLITE_CONSTRAINT_UNIQUE {
			return ErrDupUsername
		}
		return err
	}
	return nil
}

func (s *SQLiteStore) UserByUsername(ctx context.Context, username string) (*User, error) {
	return s.scanOne(ctx, `SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?`, username)
}

func (s *SQLiteStore) UserByEmail(ctx context.Context, email string) (*User, error) {
	return s.scanOne(ctx, `SELECT id, username, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

func (s *SQLiteStore) scanOne(ctx context.Context, q, arg string) (*User, error) {
	row := s.db.QueryRowContext(ctx, q, arg)

	var (
		idStr     string
		u         User
		createdAt int64
	)
	if err := row.Scan(&idStr, &u.Username, &u.Email, &u.PasswordHash, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("parsing stored user id: %w", err)
	}
	u.ID = id
	u.CreatedAt = unixToTime(createdAt)
	return &u, nil
}
