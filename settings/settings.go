// Package settings is the key-value settings collaborator shared between the
// credential resolver (read side) and the settings UI handlers (write side).
// Two implementations exist: Postgres-backed for deployments and an in-memory
// store for tests and credential-less demo runs.
package settings

import (
	"context"
	"database/sql"
	"errors"
	"sync"
)

// Keys for Twitch credential configuration.
const (
	KeyCredentialMode = "twitch_credential_mode"
	KeyClientID       = "twitch_client_id"
	KeyClientSecret   = "twitch_client_secret"
)

// Credential mode values stored under KeyCredentialMode.
const (
	ModeBuiltIn          = "builtin"
	ModeUserPublic       = "user_public"
	ModeUserConfidential = "user_confidential"
)

// ErrNotFound indicates the key has never been set.
var ErrNotFound = errors.New("settings: key not found")

// Store is the external key-value collaborator contract.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// ValidMode reports whether s is a recognized credential mode value.
func ValidMode(s string) bool {
	switch s {
	case ModeBuiltIn, ModeUserPublic, ModeUserConfidential:
		return true
	}
	return false
}

// PostgresStore persists settings in the settings table (see db.Migrate).
type PostgresStore struct {
	DB *sql.DB
}

func (s *PostgresStore) Get(ctx context.Context, key string) (string, error) {
	var v string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key=$1`, key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (s *PostgresStore) Set(ctx context.Context, key, value string) error {
	_, err := s.DB.ExecContext(ctx,
		`INSERT INTO settings (key,value,updated_at) VALUES ($1,$2,NOW())
		 ON CONFLICT(key) DO UPDATE SET value=EXCLUDED.value, updated_at=NOW()`, key, value)
	return err
}

// MemoryStore is a mutex-guarded map implementation of Store.
type MemoryStore struct {
	mu sync.RWMutex
	m  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{m: make(map[string]string)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.m[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}
