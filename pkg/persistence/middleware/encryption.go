package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/ports"
)

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new snapshots.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	next   ports.SchedulerStore
	config EncryptionConfig
}

// envelope is the persisted form of an encrypted snapshot. The marker field
// lets Load distinguish envelopes from plain snapshots written before
// encryption was enabled.
type envelope struct {
	Encrypted string `json:"__encrypted__"`
}

// NewEncryptionMiddleware creates a middleware that encrypts continuation
// snapshots using AES-GCM before they reach the underlying store. Document
// and block identity stay in the clear so dedupe and scheduling still work;
// only the state snapshot is opaque at rest.
func NewEncryptionMiddleware(config EncryptionConfig) Middleware {
	if len(config.ActiveKey) != 32 {
		panic("active key must be 32 bytes (AES-256)")
	}
	return func(next ports.SchedulerStore) ports.SchedulerStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}
}

func (m *encryptionMiddleware) Save(ctx context.Context, item domain.ScheduledExecution) error {
	if len(item.Snapshot) > 0 {
		ciphertext, err := encrypt(item.Snapshot, m.config.ActiveKey)
		if err != nil {
			return fmt.Errorf("failed to encrypt snapshot: %w", err)
		}
		sealed, err := json.Marshal(envelope{
			Encrypted: base64.StdEncoding.EncodeToString(ciphertext),
		})
		if err != nil {
			return err
		}
		item.Snapshot = sealed
	}
	return m.next.Save(ctx, item)
}

func (m *encryptionMiddleware) LoadPending(ctx context.Context) ([]domain.ScheduledExecution, error) {
	items, err := m.next.LoadPending(ctx)
	if err != nil {
		return nil, err
	}
	for i := range items {
		opened, err := m.open(items[i].Snapshot)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", items[i].ID, err)
		}
		items[i].Snapshot = opened
	}
	return items, nil
}

func (m *encryptionMiddleware) MarkExecuted(ctx context.Context, id string) error {
	return m.next.MarkExecuted(ctx, id)
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *encryptionMiddleware) DeleteForDocument(ctx context.Context, documentID string) error {
	return m.next.DeleteForDocument(ctx, documentID)
}

// open decrypts an envelope back into the plain snapshot. Snapshots written
// before encryption was enabled pass through unchanged.
func (m *encryptionMiddleware) open(snapshot []byte) ([]byte, error) {
	if len(snapshot) == 0 {
		return snapshot, nil
	}
	var env envelope
	if err := json.Unmarshal(snapshot, &env); err != nil || env.Encrypted == "" {
		return snapshot, nil
	}

	ciphertext, err := base64.StdEncoding.DecodeString(env.Encrypted)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt snapshot: %w", err)
	}
	return plain, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	// Try active key first
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

	// Try fallbacks in order
	for _, key := range fallbackKeys {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}

	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	ciphertextBytes := ciphertext[gcm.NonceSize():]

	return gcm.Open(nil, nonce, ciphertextBytes, nil)
}
