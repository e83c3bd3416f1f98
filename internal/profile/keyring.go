package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

// KeyringStore keeps profile values in the OS keychain with an optional file
// fallback for environments where no system keyring is available.
type KeyringStore struct {
	service      string
	profile      string
	fallbackPath string
	mu           sync.Mutex
}

// NewKeyringStore creates a keyring-backed profile store.
func NewKeyringStore(serviceName, profile, fallbackPath string) *KeyringStore {
	if strings.TrimSpace(serviceName) == "" {
		serviceName = "neon-arcade"
	}
	if strings.TrimSpace(profile) == "" {
		profile = "default"
	}
	return &KeyringStore{
		service:      serviceName,
		profile:      profile,
		fallbackPath: fallbackPath,
	}
}

func (k *KeyringStore) account(key string) string {
	return fmt.Sprintf("%s/%s", k.profile, key)
}

func (k *KeyringStore) Get(_ context.Context, key string) (string, bool, error) {
	val, err := keyring.Get(k.service, k.account(key))
	if err == nil {
		return val, true, nil
	}
	if !isKeyringUnavailable(err) && !errors.Is(err, keyring.ErrNotFound) {
		return "", false, fmt.Errorf("profile: keyring get %s: %w", key, err)
	}
	if strings.TrimSpace(k.fallbackPath) == "" {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("profile: keyring unavailable and no fallback path configured")
	}
	return k.getFallback(key)
}

func (k *KeyringStore) Set(_ context.Context, key, value string) error {
	if err := keyring.Set(k.service, k.account(key), value); err == nil {
		return nil
	} else if !isKeyringUnavailable(err) {
		return fmt.Errorf("profile: keyring set %s: %w", key, err)
	}
	return k.setFallback(key, value)
}

func (k *KeyringStore) Delete(_ context.Context, key string) error {
	err := keyring.Delete(k.service, k.account(key))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) && !isKeyringUnavailable(err) {
		// still clear the fallback copy
		_ = k.deleteFallback(key)
		return fmt.Errorf("profile: keyring delete %s: %w", key, err)
	}
	return k.deleteFallback(key)
}

func isKeyringUnavailable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "secret service") ||
		strings.Contains(msg, "dbus") ||
		strings.Contains(msg, "no keychain") ||
		strings.Contains(msg, "keyring backend not available")
}

// fallbackValues is profile -> key -> value.
type fallbackValues map[string]map[string]string

func (k *KeyringStore) getFallback(key string) (string, bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return "", false, err
	}
	val, ok := data[k.profile][key]
	return val, ok, nil
}

func (k *KeyringStore) setFallback(key, value string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return fmt.Errorf("profile: keyring unavailable and no fallback path configured")
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[k.profile]; !ok {
		data[k.profile] = map[string]string{}
	}
	data[k.profile][key] = value
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) deleteFallback(key string) error {
	if strings.TrimSpace(k.fallbackPath) == "" {
		return nil
	}
	k.mu.Lock()
	defer k.mu.Unlock()

	data, err := k.readFallbackUnlocked()
	if err != nil {
		return err
	}
	if _, ok := data[k.profile][key]; !ok {
		return nil
	}
	delete(data[k.profile], key)
	return k.writeFallbackUnlocked(data)
}

func (k *KeyringStore) readFallbackUnlocked() (fallbackValues, error) {
	out := fallbackValues{}
	raw, err := os.ReadFile(k.fallbackPath)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("profile: read fallback values: %w", err)
	}
	if len(raw) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("profile: decode fallback values: %w", err)
	}
	return out, nil
}

func (k *KeyringStore) writeFallbackUnlocked(data fallbackValues) error {
	if err := os.MkdirAll(filepath.Dir(k.fallbackPath), 0o700); err != nil {
		return fmt.Errorf("profile: mkdir fallback dir: %w", err)
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("profile: encode fallback values: %w", err)
	}
	if err := os.WriteFile(k.fallbackPath, raw, 0o600); err != nil {
		return fmt.Errorf("profile: write fallback values: %w", err)
	}
	return nil
}
