package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// CachedTag is one tag inside a cached analysis result.
type CachedTag struct {
	Label      string  `json:"tag"`
	Confidence float64 `json:"confidence"`
}

// TagCacheEntry is a cached analysis result keyed by image content hash.
type TagCacheEntry struct {
	Tags   []CachedTag `json:"tags"`
	Model  string      `json:"model"`
	Width  int         `json:"width"`
	Height int         `json:"height"`
}

// Store defines the persistence interface for the tag cache and credentials.
type Store interface {
	GetTagCache(imageHash string) (*TagCacheEntry, error)
	SetTagCache(imageHash string, entry *TagCacheEntry) error

	// Credential methods. Values are encrypted at rest.
	GetCredential(name string) (string, error)
	SetCredential(name, value string) error

	Close() error
}

// SQLiteStore implements Store using SQLite with encrypted credentials.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
	mu            sync.RWMutex
}

// NewSQLiteStore opens (or creates) the SQLite database at dbPath.
// The encryptionKey is used to encrypt credential values at rest.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	// WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set file permissions (only works on creation)
	if err := os.Chmod(dbPath, 0600); err != nil && !os.IsNotExist(err) {
		// Ignore error if file doesn't exist yet
	}

	store := &SQLiteStore{
		db:            db,
		encryptionKey: encryptionKey,
	}

	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS tag_cache (
		image_hash TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS credentials (
		name TEXT PRIMARY KEY,
		encrypted_value TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// GetTagCache returns the cached entry for an image hash, or nil if absent.
func (s *SQLiteStore) GetTagCache(imageHash string) (*TagCacheEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRow(
		"SELECT payload FROM tag_cache WHERE image_hash = ?", imageHash,
	).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query tag cache: %w", err)
	}

	var entry TagCacheEntry
	if err := json.Unmarshal([]byte(payload), &entry); err != nil {
		return nil, fmt.Errorf("failed to decode tag cache entry: %w", err)
	}
	return &entry, nil
}

// SetTagCache stores or replaces the cached entry for an image hash.
func (s *SQLiteStore) SetTagCache(imageHash string, entry *TagCacheEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode tag cache entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO tag_cache (image_hash, payload, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(image_hash) DO UPDATE SET payload = excluded.payload, created_at = excluded.created_at`,
		imageHash, string(payload), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save tag cache entry: %w", err)
	}
	return nil
}

// GetCredential returns the decrypted credential value, or "" if absent.
func (s *SQLiteStore) GetCredential(name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var encrypted string
	err := s.db.QueryRow(
		"SELECT encrypted_value FROM credentials WHERE name = ?", name,
	).Scan(&encrypted)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to query credential: %w", err)
	}

	plaintext, err := Decrypt(encrypted, s.encryptionKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt credential %q: %w", name, err)
	}
	return string(plaintext), nil
}

// SetCredential encrypts and stores a credential value.
func (s *SQLiteStore) SetCredential(name, value string) error {
	encrypted, err := Encrypt([]byte(value), s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential %q: %w", name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err = s.db.Exec(
		`INSERT INTO credentials (name, encrypted_value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET encrypted_value = excluded.encrypted_value, updated_at = excluded.updated_at`,
		name, encrypted, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
