package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"hotmic/internal/domain"
)

// FileName is the database file created inside the profile directory.
const FileName = "credentials.db"

// Store persists service keys in a per-profile SQLite database.
// Values from the environment fill keys that were never saved.
type Store struct {
	db       *sql.DB
	fallback domain.Credentials
	logger   *zap.Logger
}

// Open creates or opens <profileDir>/credentials.db.
func Open(profileDir string, fallback domain.Credentials, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(profileDir) == "" {
		return nil, errors.New("profile directory is required")
	}
	if err := os.MkdirAll(profileDir, 0o700); err != nil {
		return nil, fmt.Errorf("create profile directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	path := filepath.Join(profileDir, FileName)
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open credential database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping credential database: %w", err)
	}

	store := &Store{db: db, fallback: domain.Credentials{}, logger: logger}
	for name, value := range fallback {
		if value != "" {
			store.fallback[name] = value
		}
	}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize credential schema: %w", err)
	}

	logger.Debug("credential store opened", zap.String("path", path))
	return store, nil
}

func (s *Store) initSchema() error {
	const query = `
	CREATE TABLE IF NOT EXISTS credentials (
		service TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Get returns domain.ErrCredentialNotFound when service has no saved or
// environment value.
func (s *Store) Get(ctx context.Context, service string) (string, error) {
	service = strings.TrimSpace(service)
	if service == "" {
		return "", errors.New("service name is required")
	}

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM credentials WHERE service = ?`, service,
	).Scan(&value)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if fallback, ok := s.fallback[service]; ok {
			return fallback, nil
		}
		return "", fmt.Errorf("%s: %w", service, domain.ErrCredentialNotFound)
	case err != nil:
		return "", fmt.Errorf("read credential %s: %w", service, err)
	}
	return value, nil
}

// Set saves value for service. An empty value removes the saved key.
func (s *Store) Set(ctx context.Context, service string, value string) error {
	service = strings.TrimSpace(service)
	if service == "" {
		return errors.New("service name is required")
	}

	value = strings.TrimSpace(value)
	if value == "" {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM credentials WHERE service = ?`, service); err != nil {
			return fmt.Errorf("clear credential %s: %w", service, err)
		}
		s.logger.Info("credential cleared", zap.String("service", service))
		return nil
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO credentials (service, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(service) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		service, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("save credential %s: %w", service, err)
	}
	s.logger.Info("credential saved", zap.String("service", service))
	return nil
}

// All returns saved credentials merged over the environment fallback.
func (s *Store) All(ctx context.Context) (domain.Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT service, value FROM credentials`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	defer rows.Close()

	creds := domain.Credentials{}
	for name, value := range s.fallback {
		creds[name] = value
	}
	for rows.Next() {
		var service, value string
		if err := rows.Scan(&service, &value); err != nil {
			return nil, fmt.Errorf("scan credential row: %w", err)
		}
		creds[service] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate credentials: %w", err)
	}
	return creds, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}
