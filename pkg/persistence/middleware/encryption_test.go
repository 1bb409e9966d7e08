package middleware_test

import (
	"context"
	"crypto/rand"
	"io"
	"strings"
	"testing"

	"github.com/aretw0/tsw/pkg/adapters/memory"
	"github.com/aretw0/tsw/pkg/domain"
	"github.com/aretw0/tsw/pkg/persistence/middleware"
	"github.com/aretw0/tsw/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func secure(t *testing.T, next ports.InstanceStore, cfg middleware.EncryptionConfig) ports.InstanceStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw(next)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	underlying := memory.NewStore()
	store := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	inst := domain.NewInstance("host", "secret")
	inst.Password = "hunter2"

	saved, err := store.Save(ctx, inst)
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if saved.Password != "hunter2" {
		t.Errorf("Save should return the plain password, got %q", saved.Password)
	}
	if inst.Password != "hunter2" {
		t.Error("Middleware modified the caller's instance")
	}

	raw, err := underlying.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Underlying get failed: %v", err)
	}
	if raw.Password == "hunter2" || !strings.HasPrefix(raw.Password, "enc:v1:") {
		t.Fatalf("Expected a sealed password, found %q", raw.Password)
	}

	loaded, err := store.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Get via middleware failed: %v", err)
	}
	if loaded.Password != "hunter2" {
		t.Errorf("Expected 'hunter2', got %q", loaded.Password)
	}

	list, err := store.ListByHost(ctx, "host")
	if err != nil {
		t.Fatalf("ListByHost failed: %v", err)
	}
	if len(list) != 1 || list[0].Password != "hunter2" {
		t.Errorf("ListByHost should decrypt passwords")
	}

	pending, err := store.FindPendingForHost(ctx, "host")
	if err != nil {
		t.Fatalf("FindPendingForHost failed: %v", err)
	}
	if pending.Password != "hunter2" {
		t.Errorf("FindPendingForHost should decrypt passwords")
	}
}

func TestEncryptionMiddleware_PlainPasswordsStayReadable(t *testing.T) {
	underlying := memory.NewStore()
	ctx := context.Background()

	inst := domain.NewInstance("host", "legacy")
	inst.Password = "legacy-pass"
	if _, err := underlying.Save(ctx, inst); err != nil {
		t.Fatal(err)
	}

	store := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	loaded, err := store.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Password != "legacy-pass" {
		t.Errorf("Expected plain password, got %q", loaded.Password)
	}
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlying := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)
	ctx := context.Background()

	oldStore := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: oldKey})
	inst := domain.NewInstance("host", "rotation")
	inst.Password = "encrypted-with-old-key"
	if _, err := oldStore.Save(ctx, inst); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	newStore := secure(t, underlying, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})
	loaded, err := newStore.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Get with rotated key failed: %v", err)
	}
	if loaded.Password != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed")
	}

	loaded.Password = "encrypted-with-new-key"
	if _, err := newStore.Save(ctx, loaded); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}

	if _, err := oldStore.Get(ctx, inst.ID); err == nil {
		t.Error("Expected failure when reading new-key encryption with the old key only")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	if _, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")}); err == nil {
		t.Error("Expected error for invalid key size")
	}

	defer func() {
		if r := recover(); r == nil {
			t.Errorf("Expected panic for invalid key size")
		}
	}()
	middleware.MustEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
}

func TestEncryptionMiddleware_Update(t *testing.T) {
	underlying := memory.NewStore()
	store := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	inst := domain.NewInstance("host", "update")
	inst.Password = "hunter2"
	if _, err := store.Save(ctx, inst); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	var seen string
	saved, err := store.Update(ctx, inst.ID, func(i *domain.Instance) (*domain.Event, error) {
		seen = i.Password
		i.State = domain.StateIdle
		return nil, nil
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if seen != "hunter2" {
		t.Errorf("Mutation should see the plain password, got %q", seen)
	}
	if saved.Password != "hunter2" {
		t.Errorf("Update should return the plain password, got %q", saved.Password)
	}

	raw, err := underlying.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Underlying get failed: %v", err)
	}
	if !strings.HasPrefix(raw.Password, "enc:v1:") {
		t.Errorf("Expected a sealed password after Update, found %q", raw.Password)
	}
}

func TestEncryptionMiddleware_PasswordLookingSealed(t *testing.T) {
	underlying := memory.NewStore()
	store := secure(t, underlying, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	ctx := context.Background()

	inst := domain.NewInstance("host", "prefix")
	inst.Password = "enc:v1:not-really"
	if _, err := store.Save(ctx, inst); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	raw, err := underlying.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Underlying get failed: %v", err)
	}
	if raw.Password == "enc:v1:not-really" {
		t.Fatal("Password was stored without encryption")
	}

	loaded, err := store.Get(ctx, inst.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if loaded.Password != "enc:v1:not-really" {
		t.Errorf("Expected the original password, got %q", loaded.Password)
	}
}
