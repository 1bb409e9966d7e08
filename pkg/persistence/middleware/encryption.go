package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/ports"
)

// sealedPrefix marks a password encrypted by this middleware.
const sealedPrefix = "enc:v1:"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys is a list of old keys to try when decryption fails.
	// This enables zero-downtime key rotation.
	FallbackKeys [][]byte
}

type encryptionMiddleware struct {
	ports.InstanceStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that keeps server passwords
// encrypted at rest with AES-GCM. Passwords stored before encryption was
// enabled are read as plain text and sealed on the next save.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, errors.New("active key must be 32 bytes (AES-256)")
	}
	for i, k := range config.FallbackKeys {
		if len(k) != 32 {
			return nil, fmt.Errorf("fallback key %d must be 32 bytes (AES-256)", i)
		}
	}
	return func(next ports.InstanceStore) ports.InstanceStore {
		return &encryptionMiddleware{InstanceStore: next, config: config}
	}, nil
}

// MustEncryptionMiddleware is like NewEncryptionMiddleware but panics on a bad key.
func MustEncryptionMiddleware(config EncryptionConfig) Middleware {
	mw, err := NewEncryptionMiddleware(config)
	if err != nil {
		panic(err)
	}
	return mw
}

func (m *encryptionMiddleware) Save(ctx context.Context, inst *domain.Instance) (*domain.Instance, error) {
	sealed, err := m.seal(inst)
	if err != nil {
		return nil, err
	}
	saved, err := m.InstanceStore.Save(ctx, sealed)
	if err != nil {
		return nil, err
	}
	return m.open(saved)
}

func (m *encryptionMiddleware) SaveEventAndInstance(ctx context.Context, ev *domain.Event, inst *domain.Instance) (*domain.Instance, error) {
	sealed, err := m.seal(inst)
	if err != nil {
		return nil, err
	}
	saved, err := m.InstanceStore.SaveEventAndInstance(ctx, ev, sealed)
	if err != nil {
		return nil, err
	}
	return m.open(saved)
}

func (m *encryptionMiddleware) Update(ctx context.Context, id string, fn func(*domain.Instance) (*domain.Event, error)) (*domain.Instance, error) {
	saved, err := m.InstanceStore.Update(ctx, id, func(inst *domain.Instance) (*domain.Event, error) {
		if _, err := m.open(inst); err != nil {
			return nil, err
		}
		ev, err := fn(inst)
		if err != nil {
			return nil, err
		}
		sealed, err := m.seal(inst)
		if err != nil {
			return nil, err
		}
		inst.Password = sealed.Password
		return ev, nil
	})
	if err != nil {
		return nil, err
	}
	return m.open(saved)
}

func (m *encryptionMiddleware) Get(ctx context.Context, id string) (*domain.Instance, error) {
	inst, err := m.InstanceStore.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(inst)
}

func (m *encryptionMiddleware) FindPendingForHost(ctx context.Context, hostID string) (*domain.Instance, error) {
	inst, err := m.InstanceStore.FindPendingForHost(ctx, hostID)
	if err != nil {
		return nil, err
	}
	return m.open(inst)
}

func (m *encryptionMiddleware) ListByHost(ctx context.Context, hostID string) ([]*domain.Instance, error) {
	list, err := m.InstanceStore.ListByHost(ctx, hostID)
	if err != nil {
		return nil, err
	}
	return m.openAll(list)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]*domain.Instance, error) {
	list, err := m.InstanceStore.List(ctx)
	if err != nil {
		return nil, err
	}
	return m.openAll(list)
}

func (m *encryptionMiddleware) seal(inst *domain.Instance) (*domain.Instance, error) {
	// A plain password may itself start with sealedPrefix, so every
	// non-empty password is sealed.
	if inst.Password == "" {
		return inst, nil
	}
	ciphertext, err := encrypt([]byte(inst.Password), m.config.ActiveKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt password of %s: %w", inst.ID, err)
	}
	out := inst.Clone()
	out.Password = sealedPrefix + base64.StdEncoding.EncodeToString(ciphertext)
	return out, nil
}

func (m *encryptionMiddleware) open(inst *domain.Instance) (*domain.Instance, error) {
	encoded, ok := strings.CutPrefix(inst.Password, sealedPrefix)
	if !ok {
		return inst, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode password of %s: %w", inst.ID, err)
	}
	plain, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password of %s: %w", inst.ID, err)
	}
	inst.Password = string(plain)
	return inst, nil
}

func (m *encryptionMiddleware) openAll(list []*domain.Instance) ([]*domain.Instance, error) {
	for _, inst := range list {
		if _, err := m.open(inst); err != nil {
			return nil, err
		}
	}
	return list, nil
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
	if plain, err := decrypt(ciphertext, activeKey); err == nil {
		return plain, nil
	}

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
