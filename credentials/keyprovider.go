// Package credentials provides secure credential storage for studio-ops.
package credentials

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sync"

	"github.com/zalando/go-keyring"
	"golang.org/x/crypto/argon2"
)

const (
	// keyringService and keyringUser locate our key in the system keyring.
	keyringService = "studio-ops"
	keyringUser    = "encryption-key"

	// keyLength is 256 bits for AES-256-GCM.
	keyLength = 32

	// encryptionKeyEnv overrides the keyring, mainly for CI and tests.
	encryptionKeyEnv = "STUDIO_OPS_ENCRYPTION_KEY"
)

// Argon2id parameters for passphrase-derived keys.
const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024 // 64 MB
	argon2Threads = 4
)

// ErrKeyringUnavailable indicates the system keyring cannot be reached.
var ErrKeyringUnavailable = errors.New("system keyring unavailable")

// KeyProvider yields the symmetric key the Store encrypts with.
type KeyProvider interface {
	// GetKey returns the 32-byte encryption key, creating one if the
	// backing store has none yet.
	GetKey() ([]byte, error)

	// ResetKey replaces the stored key with a fresh one. Credentials
	// encrypted under the old key become unreadable.
	ResetKey() ([]byte, error)

	// Description names the key storage mechanism for user-facing output.
	Description() string
}

func newRandomKey() ([]byte, error) {
	key := make([]byte, keyLength)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generating random key: %w", err)
	}
	return key, nil
}

// KeyringKeyProvider keeps the key in the OS keyring (macOS Keychain,
// Windows Credential Manager, Linux Secret Service).
type KeyringKeyProvider struct {
	mu sync.Mutex
}

// NewKeyringKeyProvider creates a KeyringKeyProvider.
func NewKeyringKeyProvider() *KeyringKeyProvider {
	return &KeyringKeyProvider{}
}

// GetKey returns the stored key, generating and storing one when the
// keyring has no entry or holds a malformed one.
func (p *KeyringKeyProvider) GetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	keyHex, err := keyring.Get(keyringService, keyringUser)
	if err == nil {
		if key, decErr := hex.DecodeString(keyHex); decErr == nil && len(key) == keyLength {
			return key, nil
		}
		// Malformed entry, fall through and replace it.
	} else if !errors.Is(err, keyring.ErrNotFound) {
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	return p.storeFreshKey()
}

// ResetKey replaces the keyring entry with a fresh key.
func (p *KeyringKeyProvider) ResetKey() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.storeFreshKey()
}

// storeFreshKey requires p.mu to be held.
func (p *KeyringKeyProvider) storeFreshKey() ([]byte, error) {
	key, err := newRandomKey()
	if err != nil {
		return nil, err
	}
	if err := keyring.Set(keyringService, keyringUser, hex.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("%w: storing key: %v", ErrKeyringUnavailable, err)
	}
	return key, nil
}

func (p *KeyringKeyProvider) Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// PassphraseKeyProvider derives the key from a passphrase with Argon2id.
// Fallback for hosts without a usable keyring; the salt lives next to the
// encrypted credentials file.
type PassphraseKeyProvider struct {
	passphrase string
	salt       []byte
}

// NewPassphraseKeyProvider creates a PassphraseKeyProvider.
func NewPassphraseKeyProvider(passphrase string, salt []byte) *PassphraseKeyProvider {
	return &PassphraseKeyProvider{passphrase: passphrase, salt: salt}
}

// GetKey derives the key. The same passphrase and salt always produce the
// same key.
func (p *PassphraseKeyProvider) GetKey() ([]byte, error) {
	if p.passphrase == "" {
		return nil, errors.New("passphrase is required")
	}
	if len(p.salt) == 0 {
		return nil, errors.New("salt is required")
	}
	return argon2.IDKey([]byte(p.passphrase), p.salt, argon2Time, argon2Memory, argon2Threads, keyLength), nil
}

// ResetKey returns the derived key unchanged; a passphrase key has no
// stored state to replace.
func (p *PassphraseKeyProvider) ResetKey() ([]byte, error) {
	return p.GetKey()
}

func (p *PassphraseKeyProvider) Description() string {
	return "Passphrase-derived key (Argon2id)"
}

// GenerateSalt returns a fresh random salt for passphrase derivation.
func GenerateSalt() ([]byte, error) {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generating salt: %w", err)
	}
	return salt, nil
}

// EnvKeyProvider reads a hex-encoded key from an environment variable.
type EnvKeyProvider struct {
	envVar string
}

// NewEnvKeyProvider creates an EnvKeyProvider reading the named variable.
func NewEnvKeyProvider(envVar string) *EnvKeyProvider {
	return &EnvKeyProvider{envVar: envVar}
}

// GetKey decodes and validates the key from the environment.
func (p *EnvKeyProvider) GetKey() ([]byte, error) {
	keyHex := os.Getenv(p.envVar)
	if keyHex == "" {
		return nil, fmt.Errorf("environment variable %s not set", p.envVar)
	}

	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid key in %s: %w", p.envVar, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("key in %s must be %d bytes, got %d", p.envVar, keyLength, len(key))
	}
	return key, nil
}

// ResetKey is not supported; the variable is owned by the environment.
func (p *EnvKeyProvider) ResetKey() ([]byte, error) {
	return nil, errors.New("cannot reset environment-based key")
}

func (p *EnvKeyProvider) Description() string {
	return fmt.Sprintf("Environment variable (%s)", p.envVar)
}

// GetDefaultKeyProvider picks the provider for this host: the
// STUDIO_OPS_ENCRYPTION_KEY variable when set, otherwise the system
// keyring. Errors out with a hint when neither works.
func GetDefaultKeyProvider() (KeyProvider, error) {
	if os.Getenv(encryptionKeyEnv) != "" {
		return NewEnvKeyProvider(encryptionKeyEnv), nil
	}

	provider := NewKeyringKeyProvider()
	if _, err := provider.GetKey(); err != nil {
		if errors.Is(err, ErrKeyringUnavailable) {
			return nil, fmt.Errorf("system keyring unavailable; set %s environment variable: %w", encryptionKeyEnv, err)
		}
		return nil, err
	}
	return provider, nil
}

// IsKeyringAvailable reports whether the system keyring is usable.
func IsKeyringAvailable() bool {
	_, err := NewKeyringKeyProvider().GetKey()
	return err == nil
}
