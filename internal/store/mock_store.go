// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows verifier and guard tests to run without SQLite

package store

import (
	"context"
	"sync"
)

// MockStore is an in-memory Store implementation for testing.
type MockStore struct {
	mu       sync.RWMutex
	accounts map[string]*Account // keyed by account ID
	byName   map[string]string   // username -> account ID
	sessions map[string]*Session // keyed by session ID

	// FailWith, when set, is returned from every repository operation.
	// Lets tests exercise internal-error paths.
	FailWith error
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		accounts: make(map[string]*Account),
		byName:   make(map[string]string),
		sessions: make(map[string]*Session),
	}
}

// GetAccountByUsername retrieves an account by username.
func (m *MockStore) GetAccountByUsername(ctx context.Context, username string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}
	id, ok := m.byName[username]
	if !ok {
		return nil, ErrNotFound
	}
	a := *m.accounts[id]
	return &a, nil
}

// GetAccount retrieves an account by ID.
func (m *MockStore) GetAccount(ctx context.Context, id string) (*Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}
	account, ok := m.accounts[id]
	if !ok {
		return nil, ErrNotFound
	}
	a := *account
	return &a, nil
}

// GetSession retrieves a session matching id, account and exact expiry.
func (m *MockStore) GetSession(ctx context.Context, id, accountID string, expiry int64) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}
	session, ok := m.sessions[id]
	if !ok || session.AccountID != accountID || session.Expiry != expiry {
		return nil, ErrNotFound
	}
	s := *session
	return &s, nil
}

// GetSessionByID retrieves a session by id alone.
func (m *MockStore) GetSessionByID(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailWith != nil {
		return nil, m.FailWith
	}
	session, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	s := *session
	return &s, nil
}

// InsertSession stores a new session, failing on a duplicate id.
func (m *MockStore) InsertSession(ctx context.Context, session *Session) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return "", m.FailWith
	}
	if _, exists := m.sessions[session.ID]; exists {
		return "", ErrDuplicateSession
	}
	s := *session
	m.sessions[s.ID] = &s
	return s.ID, nil
}

// DisableSession transitions a session to the disabled state.
func (m *MockStore) DisableSession(ctx context.Context, id string, at int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	session, ok := m.sessions[id]
	if !ok {
		return ErrNotFound
	}
	// Terminal transition; a repeat keeps the original timestamp.
	if session.State == StateDisabled {
		return nil
	}
	session.State = StateDisabled
	session.DisabledAt = at
	return nil
}

// CreateAccount stores a new account.
func (m *MockStore) CreateAccount(ctx context.Context, account *Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	a := *account
	m.accounts[a.ID] = &a
	m.byName[a.Username] = a.ID
	return nil
}

// AddPublicKey appends a key to an account.
func (m *MockStore) AddPublicKey(ctx context.Context, accountID string, key *PublicKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	account, ok := m.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	account.PublicKeys = append(account.PublicKeys, *key)
	return nil
}

// SetOTPSecret stores an account's OTP secret.
func (m *MockStore) SetOTPSecret(ctx context.Context, accountID string, secret *OTPSecret) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	account, ok := m.accounts[accountID]
	if !ok {
		return ErrNotFound
	}
	s := *secret
	account.OTPSecret = &s
	return nil
}

// Close is a no-op for the mock.
func (m *MockStore) Close() error {
	return nil
}
