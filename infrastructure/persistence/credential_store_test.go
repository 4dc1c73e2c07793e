package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/domain/document"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestCredentialStore_SaveAndAccessToken(t *testing.T) {
	store, err := NewCredentialStore(newTestDB(t), testKey)
	require.NoError(t, err)
	ctx := context.Background()

	expiry := time.Now().Add(time.Hour)
	require.NoError(t, store.Save(ctx, "u1", document.SourceEmail, "access-123", "refresh-456", expiry))

	token, err := store.AccessToken(ctx, "u1", document.SourceEmail)
	require.NoError(t, err)
	require.Equal(t, "access-123", token)
}

func TestCredentialStore_TokensStoredSealed(t *testing.T) {
	db := newTestDB(t)
	store, err := NewCredentialStore(db, testKey)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", document.SourceEmail, "access-123", "refresh-456", time.Time{}))

	var entity CredentialEntity
	require.NoError(t, db.Session(ctx).
		Where("user_id = ? AND source = ?", "u1", string(document.SourceEmail)).
		First(&entity).Error)

	// Ciphertext at rest, plaintext only after unsealing.
	require.NotEqual(t, "access-123", entity.AccessTokenCiphertext)
	require.NotEqual(t, "refresh-456", entity.RefreshTokenCipher)
	require.NotContains(t, entity.AccessTokenCiphertext, "access-123")
}

func TestCredentialStore_NoKeyStoresPlaintext(t *testing.T) {
	store, err := NewCredentialStore(newTestDB(t), nil)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", document.SourceMusic, "access-123", "", time.Time{}))

	token, err := store.AccessToken(ctx, "u1", document.SourceMusic)
	require.NoError(t, err)
	require.Equal(t, "access-123", token)
}

func TestCredentialStore_InvalidKey(t *testing.T) {
	_, err := NewCredentialStore(newTestDB(t), []byte("short"))
	require.Error(t, err)
}

func TestCredentialStore_AccessToken_NotFound(t *testing.T) {
	store, err := NewCredentialStore(newTestDB(t), testKey)
	require.NoError(t, err)

	_, err = store.AccessToken(context.Background(), "u1", document.SourceCalendar)
	require.ErrorIs(t, err, document.ErrNotFound)
}

func TestCredentialStore_AccessToken_Expired(t *testing.T) {
	store, err := NewCredentialStore(newTestDB(t), testKey)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", document.SourceEmail, "access-123", "refresh-456",
		time.Now().Add(-time.Minute)))

	_, err = store.AccessToken(ctx, "u1", document.SourceEmail)
	require.ErrorIs(t, err, ErrCredentialExpired)
}

func TestCredentialStore_ZeroExpiryNeverExpires(t *testing.T) {
	store, err := NewCredentialStore(newTestDB(t), testKey)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", document.SourceEmail, "access-123", "", time.Time{}))

	token, err := store.AccessToken(ctx, "u1", document.SourceEmail)
	require.NoError(t, err)
	require.Equal(t, "access-123", token)
}

func TestCredentialStore_Save_Upserts(t *testing.T) {
	db := newTestDB(t)
	store, err := NewCredentialStore(db, testKey)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", document.SourceEmail, "old-token", "old-refresh", time.Now().Add(time.Hour)))
	require.NoError(t, store.Save(ctx, "u1", document.SourceEmail, "new-token", "new-refresh", time.Now().Add(2*time.Hour)))

	token, err := store.AccessToken(ctx, "u1", document.SourceEmail)
	require.NoError(t, err)
	require.Equal(t, "new-token", token)

	// One row per (user, source).
	var count int64
	require.NoError(t, db.Session(ctx).Model(&CredentialEntity{}).
		Where("user_id = ?", "u1").
		Count(&count).Error)
	require.EqualValues(t, 1, count)
}

func TestCredentialStore_SourcesAreIndependent(t *testing.T) {
	store, err := NewCredentialStore(newTestDB(t), testKey)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "u1", document.SourceEmail, "email-token", "", time.Time{}))
	require.NoError(t, store.Save(ctx, "u1", document.SourceCalendar, "calendar-token", "", time.Time{}))

	token, err := store.AccessToken(ctx, "u1", document.SourceCalendar)
	require.NoError(t, err)
	require.Equal(t, "calendar-token", token)
}
