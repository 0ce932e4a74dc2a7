// Package auth is the credential collaborator: a SQLite users table with
// bcrypt password hashes and in-process session tokens.
//
// The memory core never sees credentials; it only receives the opaque
// owner ID this package resolves for an authenticated user.
package auth

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/crypto/bcrypt"

	_ "modernc.org/sqlite" // SQLite driver registration
)

var (
	// ErrEmailTaken reports a registration with an email that already
	// has an account.
	ErrEmailTaken = goerr.New("email already registered")

	// ErrInvalidCredentials reports a failed login. Unknown email and
	// wrong password are indistinguishable on purpose.
	ErrInvalidCredentials = goerr.New("invalid email or password")
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	owner_id TEXT UNIQUE NOT NULL,
	created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
)`

// Store holds user accounts and live sessions. Sessions are transient
// bearer tokens, kept in process only.
type Store struct {
	db *sql.DB

	mu       sync.RWMutex
	sessions map[string]string // token -> owner ID
}

// Open opens (and bootstraps) the user database at path. Use ":memory:"
// for tests.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, goerr.Wrap(err, "open user database", goerr.V("path", path))
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, goerr.Wrap(err, "bootstrap users table")
	}
	return &Store{
		db:       db,
		sessions: make(map[string]string),
	}, nil
}

// Register creates an account and returns the new owner ID.
func (s *Store) Register(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return "", goerr.New("email and password are required")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", goerr.Wrap(err, "hash password")
	}

	ownerID := uuid.New().String()
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO users (email, password_hash, owner_id) VALUES (?, ?, ?)",
		email, string(hash), ownerID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return "", goerr.Wrap(ErrEmailTaken, "register user", goerr.V("email", email))
		}
		return "", goerr.Wrap(err, "insert user")
	}
	return ownerID, nil
}

// Authenticate verifies the credentials and returns the owner ID.
func (s *Store) Authenticate(ctx context.Context, email, password string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var hash, ownerID string
	err := s.db.QueryRowContext(ctx,
		"SELECT password_hash, owner_id FROM users WHERE email = ?", email).
		Scan(&hash, &ownerID)
	if err == sql.ErrNoRows {
		return "", goerr.Wrap(ErrInvalidCredentials, "unknown email")
	}
	if err != nil {
		return "", goerr.Wrap(err, "query user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return "", goerr.Wrap(ErrInvalidCredentials, "password mismatch")
	}
	return ownerID, nil
}

// CreateSession issues a bearer token for an authenticated owner.
func (s *Store) CreateSession(ownerID string) string {
	token := uuid.New().String()
	s.mu.Lock()
	s.sessions[token] = ownerID
	s.mu.Unlock()
	return token
}

// Resolve maps a bearer token back to its owner ID.
func (s *Store) Resolve(token string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ownerID, ok := s.sessions[token]
	return ownerID, ok
}

// Revoke invalidates a session token.
func (s *Store) Revoke(token string) {
	s.mu.Lock()
	delete(s.sessions, token)
	s.mu.Unlock()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
