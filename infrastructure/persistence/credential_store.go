package persistence

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/recallhq/recall/domain/document"
	"github.com/recallhq/recall/internal/database"
)

// ErrCredentialExpired indicates a stored credential is past its expiry
// and needs a refresh before it can be used.
var ErrCredentialExpired = errors.New("credential expired")

// CredentialStore implements document.CredentialStore on GORM. Token
// material is sealed with AES-GCM when a key is configured; an empty key
// stores tokens as-is for local development.
type CredentialStore struct {
	db  database.Database
	gcm cipher.AEAD
}

// NewCredentialStore creates a CredentialStore. key must be empty or a
// valid AES key (16, 24 or 32 bytes).
func NewCredentialStore(db database.Database, key []byte) (*CredentialStore, error) {
	store := &CredentialStore{db: db}
	if len(key) > 0 {
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("credential cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("credential cipher: %w", err)
		}
		store.gcm = gcm
	}
	return store, nil
}

// Save upserts the credential for a (user, source).
func (s *CredentialStore) Save(ctx context.Context, userID string, source document.Source, accessToken, refreshToken string, expiresAt time.Time) error {
	access, err := s.seal(accessToken)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	refresh, err := s.seal(refreshToken)
	if err != nil {
		return fmt.Errorf("save credential: %w", err)
	}

	var expiry *time.Time
	if !expiresAt.IsZero() {
		expiry = &expiresAt
	}

	var existing CredentialEntity
	findErr := s.db.Session(ctx).
		Where("user_id = ? AND source = ?", userID, string(source)).
		First(&existing).Error

	switch {
	case errors.Is(findErr, gorm.ErrRecordNotFound):
		entity := CredentialEntity{
			UserID:                userID,
			Source:                string(source),
			AccessTokenCiphertext: access,
			RefreshTokenCipher:    refresh,
			ExpiresAt:             expiry,
		}
		if err := s.db.Session(ctx).Create(&entity).Error; err != nil {
			return fmt.Errorf("save credential: %w", err)
		}
		return nil
	case findErr != nil:
		return fmt.Errorf("save credential: %w", findErr)
	default:
		err := s.db.Session(ctx).Model(&existing).Updates(map[string]any{
			"access_token_ciphertext": access,
			"refresh_token_cipher":    refresh,
			"expires_at":              expiry,
		}).Error
		if err != nil {
			return fmt.Errorf("save credential: %w", err)
		}
		return nil
	}
}

// AccessToken returns a currently valid access token for a
// (user, source). Missing credentials map to ErrNotFound and expired
// ones to ErrCredentialExpired.
func (s *CredentialStore) AccessToken(ctx context.Context, userID string, source document.Source) (string, error) {
	var entity CredentialEntity
	err := s.db.Session(ctx).
		Where("user_id = ? AND source = ?", userID, string(source)).
		First(&entity).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("%w: credential for %s/%s", document.ErrNotFound, userID, source)
	}
	if err != nil {
		return "", fmt.Errorf("find credential: %w", err)
	}

	if entity.ExpiresAt != nil && entity.ExpiresAt.Before(time.Now()) {
		return "", fmt.Errorf("%w: %s/%s", ErrCredentialExpired, userID, source)
	}

	token, err := s.open(entity.AccessTokenCiphertext)
	if err != nil {
		return "", fmt.Errorf("unseal credential: %w", err)
	}
	return token, nil
}

func (s *CredentialStore) seal(plaintext string) (string, error) {
	if s.gcm == nil || plaintext == "" {
		return plaintext, nil
	}
	nonce := make([]byte, s.gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := s.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func (s *CredentialStore) open(sealed string) (string, error) {
	if s.gcm == nil || sealed == "" {
		return sealed, nil
	}
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", err
	}
	if len(raw) < s.gcm.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := s.gcm.Open(nil, raw[:s.gcm.NonceSize()], raw[s.gcm.NonceSize():], nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Interface check.
var _ document.CredentialStore = (*CredentialStore)(nil)
