// ABOUTME: Tests for the SQLite store implementation
// ABOUTME: Covers account loading, session insert/duplicate/disable and lookups

package store

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestStore creates a temporary SQLite store for testing.
func setupTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	store, err := NewSQLiteStore(dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func seedAccount(t *testing.T, s Store, username string) *Account {
	t.Helper()
	account := &Account{ID: "acct-" + username, Username: username}
	require.NoError(t, s.CreateAccount(context.Background(), account))
	return account
}

func TestStore_GetAccountByUsername(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	seedAccount(t, store, "alice")

	account, err := store.GetAccountByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "acct-alice", account.ID)
	assert.Empty(t, account.PublicKeys)
	assert.Nil(t, account.OTPSecret)
}

func TestStore_GetAccountByUsername_NotFound(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.GetAccountByUsername(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_PublicKeysOrdered(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	account := seedAccount(t, store, "alice")
	for _, id := range []string{"key-1", "key-2", "key-3"} {
		require.NoError(t, store.AddPublicKey(ctx, account.ID, &PublicKey{
			ID:       id,
			Key:      "-----BEGIN PUBLIC KEY-----\n...\n-----END PUBLIC KEY-----",
			Validity: ValidityPermanent,
		}))
	}

	loaded, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.Len(t, loaded.PublicKeys, 3)
	assert.Equal(t, "key-1", loaded.PublicKeys[0].ID)
	assert.Equal(t, "key-2", loaded.PublicKeys[1].ID)
	assert.Equal(t, "key-3", loaded.PublicKeys[2].ID)
}

func TestStore_SetOTPSecret_Replaces(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	account := seedAccount(t, store, "alice")
	require.NoError(t, store.SetOTPSecret(ctx, account.ID, &OTPSecret{Secret: "b64-one", IssuedAt: 100}))
	require.NoError(t, store.SetOTPSecret(ctx, account.ID, &OTPSecret{Secret: "b64-two", IssuedAt: 200}))

	loaded, err := store.GetAccount(ctx, account.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded.OTPSecret)
	assert.Equal(t, "b64-two", loaded.OTPSecret.Secret)
	assert.Equal(t, int64(200), loaded.OTPSecret.IssuedAt)
}

func TestStore_InsertSession(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	account := seedAccount(t, store, "alice")
	session := &Session{
		ID:        "675f21efdbd4c628b5e9496a",
		AccountID: account.ID,
		Expiry:    time.Now().Add(time.Hour).Unix(),
		Issuer:    IssuerPublicKey,
		KeyID:     "key-1",
		State:     StateNormal,
	}

	id, err := store.InsertSession(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, session.ID, id)

	loaded, err := store.GetSession(ctx, session.ID, account.ID, session.Expiry)
	require.NoError(t, err)
	assert.Equal(t, IssuerPublicKey, loaded.Issuer)
	assert.Equal(t, "key-1", loaded.KeyID)
	assert.Equal(t, StateNormal, loaded.State)
	assert.False(t, loaded.Disabled())
}

func TestStore_InsertSession_Duplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	account := seedAccount(t, store, "alice")
	session := &Session{
		ID:        "675f21efdbd4c628b5e9496a",
		AccountID: account.ID,
		Expiry:    time.Now().Add(time.Hour).Unix(),
		Issuer:    IssuerOTP,
		State:     StatePasskey,
		Passkey:   "opaque",
	}

	_, err := store.InsertSession(ctx, session)
	require.NoError(t, err)

	_, err = store.InsertSession(ctx, session)
	assert.ErrorIs(t, err, ErrDuplicateSession)
}

func TestStore_InsertSession_ConcurrentDuplicate(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	account := seedAccount(t, store, "alice")
	session := Session{
		ID:        "675f21efdbd4c628b5e9496a",
		AccountID: account.ID,
		Expiry:    time.Now().Add(time.Hour).Unix(),
		Issuer:    IssuerOTP,
		State:     StateNormal,
	}

	const attempts = 8
	var wg sync.WaitGroup
	errs := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s := session
			_, errs[i] = store.InsertSession(ctx, &s)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrDuplicateSession)
		}
	}
	assert.Equal(t, 1, successes, "exactly one insert may win")
}

func TestStore_InsertSession_UnknownAccountIsNotDuplicate(t *testing.T) {
	store := setupTestStore(t)

	// Foreign key violation: the failure must stay distinct from the
	// duplicate-id replay signal.
	_, err := store.InsertSession(context.Background(), &Session{
		ID:        "675f21efdbd4c628b5e9496a",
		AccountID: "acct-missing",
		Expiry:    time.Now().Add(time.Hour).Unix(),
		Issuer:    IssuerOTP,
		State:     StateNormal,
	})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrDuplicateSession)
}

func TestStore_GetSession_ExpiryMustMatch(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	account := seedAccount(t, store, "alice")
	expiry := time.Now().Add(time.Hour).Unix()
	_, err := store.InsertSession(ctx, &Session{
		ID:        "675f21efdbd4c628b5e9496a",
		AccountID: account.ID,
		Expiry:    expiry,
		Issuer:    IssuerOTP,
		State:     StateNormal,
	})
	require.NoError(t, err)

	_, err = store.GetSession(ctx, "675f21efdbd4c628b5e9496a", account.ID, expiry+1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStore_DisableSession(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	account := seedAccount(t, store, "alice")
	expiry := time.Now().Add(time.Hour).Unix()
	_, err := store.InsertSession(ctx, &Session{
		ID:        "675f21efdbd4c628b5e9496a",
		AccountID: account.ID,
		Expiry:    expiry,
		Issuer:    IssuerPublicKey,
		KeyID:     "key-1",
		State:     StateNormal,
	})
	require.NoError(t, err)

	disabledAt := time.Now().Unix()
	require.NoError(t, store.DisableSession(ctx, "675f21efdbd4c628b5e9496a", disabledAt))

	loaded, err := store.GetSessionByID(ctx, "675f21efdbd4c628b5e9496a")
	require.NoError(t, err)
	assert.True(t, loaded.Disabled())
	assert.Equal(t, disabledAt, loaded.DisabledAt)
}

func TestStore_DisableSession_RepeatKeepsOriginalTimestamp(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	account := seedAccount(t, store, "alice")
	_, err := store.InsertSession(ctx, &Session{
		ID:        "675f21efdbd4c628b5e9496a",
		AccountID: account.ID,
		Expiry:    time.Now().Add(time.Hour).Unix(),
		Issuer:    IssuerOTP,
		State:     StateNormal,
	})
	require.NoError(t, err)

	first := time.Now().Unix()
	require.NoError(t, store.DisableSession(ctx, "675f21efdbd4c628b5e9496a", first))

	// Re-disabling succeeds but must not move the revocation time.
	require.NoError(t, store.DisableSession(ctx, "675f21efdbd4c628b5e9496a", first+100))

	loaded, err := store.GetSessionByID(ctx, "675f21efdbd4c628b5e9496a")
	require.NoError(t, err)
	assert.True(t, loaded.Disabled())
	assert.Equal(t, first, loaded.DisabledAt)
}

func TestStore_DisableSession_NotFound(t *testing.T) {
	store := setupTestStore(t)

	err := store.DisableSession(context.Background(), "missing", time.Now().Unix())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublicKey_Eligible(t *testing.T) {
	now := time.Now().Unix()

	tests := []struct {
		name string
		key  PublicKey
		want bool
	}{
		{name: "master", key: PublicKey{Validity: ValidityMaster}, want: true},
		{name: "permanent", key: PublicKey{Validity: ValidityPermanent}, want: true},
		{name: "temporary unexpired", key: PublicKey{Validity: ValidityTemporary, ValidityAt: now + 60}, want: true},
		{name: "temporary expired", key: PublicKey{Validity: ValidityTemporary, ValidityAt: now - 60}, want: false},
		{name: "disabled", key: PublicKey{Validity: ValidityDisabled, ValidityAt: now - 60}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.key.Eligible(now))
		})
	}
}
