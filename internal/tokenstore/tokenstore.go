// Package tokenstore implements the Token Store: a durable set of opaque
// bearer tokens backed by SQLite, plus an in-memory double for tests.
package tokenstore

import (
	"database/sql"
	"fmt"
	"sync"

	_ "modernc.org/sqlite" // driver registration
)

// Store is the contract both implementations satisfy: insert is durable
// before it returns success, contains is a membership check.
type Store interface {
	Insert(token string) error
	Contains(token string) (bool, error)
	Close() error
}

// SQLiteStore is the canonical, durable Token Store (spec.md §9: "the
// durable variant is canonical").
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// OpenSQLiteStore opens or creates a token database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening token store: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS tokens (token TEXT PRIMARY KEY)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating tokens table: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Insert atomically adds token. The write is committed before this
// returns, satisfying the happens-before guarantee the Authorizer depends
// on before it emits Set-Cookie.
func (s *SQLiteStore) Insert(token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`INSERT OR IGNORE INTO tokens (token) VALUES (?)`, token)
	if err != nil {
		return fmt.Errorf("inserting token: %w", err)
	}
	return nil
}

// Contains reports whether token exists in the store.
func (s *SQLiteStore) Contains(token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var exists int
	err := s.db.QueryRow(`SELECT 1 FROM tokens WHERE token = ?`, token).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking token: %w", err)
	}
	return true, nil
}

// Close releases the underlying database handle. Called only at process
// shutdown.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// MemStore is an in-memory Store, acceptable as a test double per
// spec.md §9 (tokens are lost on restart).
type MemStore struct {
	mu     sync.RWMutex
	tokens map[string]struct{}
}

// NewMemStore constructs an empty in-memory token set.
func NewMemStore() *MemStore {
	return &MemStore{tokens: make(map[string]struct{})}
}

func (m *MemStore) Insert(token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[token] = struct{}{}
	return nil
}

func (m *MemStore) Contains(token string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tokens[token]
	return ok, nil
}

func (m *MemStore) Close() error {
	return nil
}
