// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides account/session persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS accounts (
			id       TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE
		);

		CREATE INDEX IF NOT EXISTS idx_accounts_username ON accounts(username);

		CREATE TABLE IF NOT EXISTS public_keys (
			id          TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL REFERENCES accounts(id),
			key_pem     TEXT NOT NULL,
			validity    TEXT NOT NULL,
			validity_at INTEGER NOT NULL DEFAULT 0,
			position    INTEGER NOT NULL,

			CHECK (validity IN ('master', 'permanent', 'temporary', 'disabled'))
		);

		CREATE INDEX IF NOT EXISTS idx_public_keys_account ON public_keys(account_id, position);

		CREATE TABLE IF NOT EXISTS otp_secrets (
			account_id TEXT PRIMARY KEY REFERENCES accounts(id),
			secret     TEXT NOT NULL,
			issued_at  INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			account_id  TEXT NOT NULL REFERENCES accounts(id),
			expiry      INTEGER NOT NULL,
			issuer      TEXT NOT NULL,
			key_id      TEXT,
			state       TEXT NOT NULL DEFAULT 'normal',
			passkey     TEXT,
			disabled_at INTEGER,

			CHECK (issuer IN ('otp', 'public_key')),
			CHECK (state IN ('normal', 'passkey', 'disabled'))
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_account ON sessions(account_id);
		CREATE INDEX IF NOT EXISTS idx_sessions_expiry ON sessions(expiry);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// GetAccountByUsername retrieves an account with its keys and OTP secret.
func (s *SQLiteStore) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	return s.getAccount(ctx, "username = ?", username)
}

// GetAccount retrieves an account by id.
func (s *SQLiteStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	return s.getAccount(ctx, "id = ?", id)
}

func (s *SQLiteStore) getAccount(ctx context.Context, where string, arg any) (*Account, error) {
	account := &Account{}
	err := s.db.QueryRowContext(ctx,
		"SELECT id, username FROM accounts WHERE "+where, arg,
	).Scan(&account.ID, &account.Username)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}

	if err := s.loadPublicKeys(ctx, account); err != nil {
		return nil, err
	}
	if err := s.loadOTPSecret(ctx, account); err != nil {
		return nil, err
	}

	return account, nil
}

func (s *SQLiteStore) loadPublicKeys(ctx context.Context, account *Account) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, key_pem, validity, validity_at
		FROM public_keys WHERE account_id = ? ORDER BY position`,
		account.ID,
	)
	if err != nil {
		return fmt.Errorf("querying public keys: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key PublicKey
		if err := rows.Scan(&key.ID, &key.Key, &key.Validity, &key.ValidityAt); err != nil {
			return fmt.Errorf("scanning public key: %w", err)
		}
		account.PublicKeys = append(account.PublicKeys, key)
	}
	return rows.Err()
}

func (s *SQLiteStore) loadOTPSecret(ctx context.Context, account *Account) error {
	secret := &OTPSecret{}
	err := s.db.QueryRowContext(ctx,
		"SELECT secret, issued_at FROM otp_secrets WHERE account_id = ?", account.ID,
	).Scan(&secret.Secret, &secret.IssuedAt)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("querying otp secret: %w", err)
	}
	account.OTPSecret = secret
	return nil
}

// GetSession retrieves a session matching id, owning account and exact expiry.
func (s *SQLiteStore) GetSession(ctx context.Context, id, accountID string, expiry int64) (*Session, error) {
	return s.querySession(ctx,
		"id = ? AND account_id = ? AND expiry = ?", id, accountID, expiry)
}

// GetSessionByID retrieves a session by id alone.
func (s *SQLiteStore) GetSessionByID(ctx context.Context, id string) (*Session, error) {
	return s.querySession(ctx, "id = ?", id)
}

func (s *SQLiteStore) querySession(ctx context.Context, where string, args ...any) (*Session, error) {
	session := &Session{}
	var keyID, passkey sql.NullString
	var disabledAt sql.NullInt64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, account_id, expiry, issuer, key_id, state, passkey, disabled_at
		FROM sessions WHERE `+where, args...,
	).Scan(&session.ID, &session.AccountID, &session.Expiry, &session.Issuer,
		&keyID, &session.State, &passkey, &disabledAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}

	session.KeyID = keyID.String
	session.Passkey = passkey.String
	session.DisabledAt = disabledAt.Int64
	return session, nil
}

// InsertSession inserts a new session. The id PRIMARY KEY makes the insert
// atomic with respect to duplicates: a concurrent insert of the same id
// fails here even when a preceding existence check passed.
func (s *SQLiteStore) InsertSession(ctx context.Context, session *Session) (string, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, account_id, expiry, issuer, key_id, state, passkey, disabled_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.AccountID, session.Expiry, session.Issuer,
		nullable(session.KeyID), session.State, nullable(session.Passkey),
		nullableInt(session.DisabledAt),
	)
	if err != nil {
		if isDuplicateSessionID(err) {
			return "", ErrDuplicateSession
		}
		return "", fmt.Errorf("inserting session: %w", err)
	}
	return session.ID, nil
}

// DisableSession transitions a session to the disabled state. The transition
// is terminal: re-disabling is a no-op that preserves the original
// revocation timestamp.
func (s *SQLiteStore) DisableSession(ctx context.Context, id string, at int64) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE sessions SET state = ?, disabled_at = ? WHERE id = ? AND state != ?",
		StateDisabled, at, id, StateDisabled,
	)
	if err != nil {
		return fmt.Errorf("disabling session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking disable result: %w", err)
	}
	if affected == 0 {
		// Either the session does not exist or it is already disabled.
		session, err := s.GetSessionByID(ctx, id)
		if err != nil {
			return err
		}
		if session.Disabled() {
			return nil
		}
		return ErrNotFound
	}
	return nil
}

// CreateAccount inserts a new account row.
func (s *SQLiteStore) CreateAccount(ctx context.Context, account *Account) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO accounts (id, username) VALUES (?, ?)",
		account.ID, account.Username,
	)
	if err != nil {
		return fmt.Errorf("creating account: %w", err)
	}
	return nil
}

// AddPublicKey appends a public key to an account's ordered key sequence.
func (s *SQLiteStore) AddPublicKey(ctx context.Context, accountID string, key *PublicKey) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO public_keys (id, account_id, key_pem, validity, validity_at, position)
		VALUES (?, ?, ?, ?, ?,
			(SELECT COALESCE(MAX(position), -1) + 1 FROM public_keys WHERE account_id = ?))`,
		key.ID, accountID, key.Key, key.Validity, key.ValidityAt, accountID,
	)
	if err != nil {
		return fmt.Errorf("adding public key: %w", err)
	}
	return nil
}

// SetOTPSecret stores or replaces an account's OTP secret.
func (s *SQLiteStore) SetOTPSecret(ctx context.Context, accountID string, secret *OTPSecret) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO otp_secrets (account_id, secret, issued_at) VALUES (?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET secret = excluded.secret, issued_at = excluded.issued_at`,
		accountID, secret.Secret, secret.IssuedAt,
	)
	if err != nil {
		return fmt.Errorf("setting otp secret: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableInt(n int64) any {
	if n == 0 {
		return nil
	}
	return n
}

// isDuplicateSessionID checks if the error is specifically the sessions.id
// UNIQUE violation. Other constraint failures (foreign key, CHECK) must not
// masquerade as the replay signal.
func isDuplicateSessionID(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: sessions.id")
}
