package vault

import (
	"fmt"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/zalando/go-keyring"
)

const (
	keyringService = "com.systmms.vaultmirror"
	keyringAccount = "bw-session"
)

// SessionCache stores the vault CLI session token. The durable copy lives in
// the OS keyring (Secret Service, Keychain, or Credential Manager); the
// in-process copy is held in a memguard enclave so the plaintext token is
// encrypted at rest in memory between uses.
type SessionCache struct {
	mu      sync.Mutex
	enclave *memguard.Enclave
}

// NewSessionCache creates an empty session cache
func NewSessionCache() *SessionCache {
	return &SessionCache{}
}

// Store saves a session token to the keyring and the in-process enclave
func (c *SessionCache) Store(token string) error {
	if token == "" {
		return fmt.Errorf("refusing to store an empty session token")
	}
	if err := keyring.Set(keyringService, keyringAccount, token); err != nil {
		return fmt.Errorf("failed to store session in keyring: %w", err)
	}

	c.mu.Lock()
	c.enclave = memguard.NewEnclave([]byte(token))
	c.mu.Unlock()
	return nil
}

// Load returns the cached session token, preferring the in-process enclave
// over a keyring round trip.
func (c *SessionCache) Load() (string, error) {
	c.mu.Lock()
	enclave := c.enclave
	c.mu.Unlock()

	if enclave != nil {
		locked, err := enclave.Open()
		if err == nil {
			token := string(locked.Bytes())
			locked.Destroy()
			return token, nil
		}
	}

	token, err := keyring.Get(keyringService, keyringAccount)
	if err != nil {
		if err == keyring.ErrNotFound {
			return "", fmt.Errorf("no cached session")
		}
		return "", fmt.Errorf("failed to read session from keyring: %w", err)
	}

	c.mu.Lock()
	c.enclave = memguard.NewEnclave([]byte(token))
	c.mu.Unlock()
	return token, nil
}

// Clear removes the session token from the keyring and memory
func (c *SessionCache) Clear() error {
	c.mu.Lock()
	c.enclave = nil
	c.mu.Unlock()

	if err := keyring.Delete(keyringService, keyringAccount); err != nil && err != keyring.ErrNotFound {
		return fmt.Errorf("failed to clear session from keyring: %w", err)
	}
	return nil
}
