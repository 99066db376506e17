package auth

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	pkgdb "github.com/ahwlsqja/walletlogin/pkg/db"
)

//go:embed schema.sql
var schemaSQL string

// ErrSessionNotFound is returned when no session row matches
var ErrSessionNotFound = errors.New("session not found")

// Session is a backend-side record of an issued session token
type Session struct {
	ID        string
	Address   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	RevokedAt sql.NullTime
}

// Revoked reports whether the session was logged out
func (s *Session) Revoked() bool {
	return s.RevokedAt.Valid
}

// SessionRepository persists issued sessions
type SessionRepository interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	// Revoke marks the session revoked. Revoking twice is a no-op.
	Revoke(ctx context.Context, id string, at time.Time) error
}

// MySQLSessionRepository stores sessions in the wallet_sessions table
type MySQLSessionRepository struct {
	txRunner *pkgdb.TxRunner
}

// Compile-time interface compliance check
var _ SessionRepository = (*MySQLSessionRepository)(nil)

// NewMySQLSessionRepository creates a new repository
func NewMySQLSessionRepository(txRunner *pkgdb.TxRunner) *MySQLSessionRepository {
	return &MySQLSessionRepository{txRunner: txRunner}
}

// EnsureSchema creates the wallet_sessions table if missing
func (r *MySQLSessionRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.txRunner.DB().ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create wallet_sessions table: %w", err)
	}
	return nil
}

const (
	insertSessionSQL = `INSERT INTO wallet_sessions (id, address, issued_at, expires_at) VALUES (?, ?, ?, ?)`
	getSessionSQL    = `SELECT id, address, issued_at, expires_at, revoked_at FROM wallet_sessions WHERE id = ?`
	lockSessionSQL   = `SELECT revoked_at FROM wallet_sessions WHERE id = ? FOR UPDATE`
	revokeSessionSQL = `UPDATE wallet_sessions SET revoked_at = ? WHERE id = ? AND revoked_at IS NULL`
)

// Create inserts a new session row
func (r *MySQLSessionRepository) Create(ctx context.Context, s *Session) error {
	_, err := r.txRunner.DB().ExecContext(ctx, insertSessionSQL, s.ID, s.Address, s.IssuedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// Get loads a session by id
func (r *MySQLSessionRepository) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	err := r.txRunner.DB().QueryRowContext(ctx, getSessionSQL, id).
		Scan(&s.ID, &s.Address, &s.IssuedAt, &s.ExpiresAt, &s.RevokedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return &s, nil
}

// Revoke marks the session revoked inside a row-locking transaction
func (r *MySQLSessionRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	return r.txRunner.WithTx(ctx, func(tx *sql.Tx) error {
		// 1. Lock session row
		var revokedAt sql.NullTime
		err := tx.QueryRowContext(ctx, lockSessionSQL, id).Scan(&revokedAt)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrSessionNotFound
		}
		if err != nil {
			return fmt.Errorf("lock session: %w", err)
		}

		// 2. Already revoked - idempotent success
		if revokedAt.Valid {
			return nil
		}

		// 3. Revoke
		if _, err := tx.ExecContext(ctx, revokeSessionSQL, at, id); err != nil {
			return fmt.Errorf("revoke session: %w", err)
		}
		return nil
	})
}
