package credentials

import (
	"encoding/hex"
	"testing"
)

func TestEnvKeyProvider_GetKey(t *testing.T) {
	envVar := "TEST_STUDIO_OPS_ENCRYPTION_KEY"

	t.Run("valid key", func(t *testing.T) {
		validKey := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
		t.Setenv(envVar, validKey)

		provider := NewEnvKeyProvider(envVar)
		key, err := provider.GetKey()
		if err != nil {
			t.Fatalf("GetKey() error = %v", err)
		}

		if len(key) != keyLength {
			t.Errorf("GetKey() returned %d bytes, want %d", len(key), keyLength)
		}

		expectedKey, _ := hex.DecodeString(validKey)
		if string(key) != string(expectedKey) {
			t.Errorf("GetKey() returned wrong key")
		}
	})

	t.Run("missing env var", func(t *testing.T) {
		t.Setenv(envVar, "")

		provider := NewEnvKeyProvider(envVar)
		if _, err := provider.GetKey(); err == nil {
			t.Error("GetKey() should fail when env var is unset")
		}
	})

	t.Run("invalid hex", func(t *testing.T) {
		t.Setenv(envVar, "not-hex")

		provider := NewEnvKeyProvider(envVar)
		if _, err := provider.GetKey(); err == nil {
			t.Error("GetKey() should fail on invalid hex")
		}
	})

	t.Run("wrong length", func(t *testing.T) {
		t.Setenv(envVar, "abcdef")

		provider := NewEnvKeyProvider(envVar)
		if _, err := provider.GetKey(); err == nil {
			t.Error("GetKey() should fail on short key")
		}
	})

	t.Run("reset unsupported", func(t *testing.T) {
		provider := NewEnvKeyProvider(envVar)
		if _, err := provider.ResetKey(); err == nil {
			t.Error("ResetKey() should not be supported")
		}
	})
}

func TestPassphraseKeyProvider(t *testing.T) {
	salt, err := GenerateSalt()
	if err != nil {
		t.Fatalf("GenerateSalt() error = %v", err)
	}
	if len(salt) != 16 {
		t.Errorf("salt length = %d, want 16", len(salt))
	}

	provider := NewPassphraseKeyProvider("correct horse battery staple", salt)
	key1, err := provider.GetKey()
	if err != nil {
		t.Fatalf("GetKey() error = %v", err)
	}
	if len(key1) != keyLength {
		t.Errorf("key length = %d, want %d", len(key1), keyLength)
	}

	// Same passphrase and salt derive the same key.
	key2, err := NewPassphraseKeyProvider("correct horse battery staple", salt).GetKey()
	if err != nil {
		t.Fatalf("GetKey() error = %v", err)
	}
	if string(key1) != string(key2) {
		t.Error("same passphrase and salt should derive the same key")
	}

	// Different salt derives a different key.
	otherSalt, _ := GenerateSalt()
	key3, err := NewPassphraseKeyProvider("correct horse battery staple", otherSalt).GetKey()
	if err != nil {
		t.Fatalf("GetKey() error = %v", err)
	}
	if string(key1) == string(key3) {
		t.Error("different salt should derive a different key")
	}

	// Missing passphrase or salt fails.
	if _, err := NewPassphraseKeyProvider("", salt).GetKey(); err == nil {
		t.Error("GetKey() should fail without passphrase")
	}
	if _, err := NewPassphraseKeyProvider("pw", nil).GetKey(); err == nil {
		t.Error("GetKey() should fail without salt")
	}
}

func TestGetDefaultKeyProviderPrefersEnv(t *testing.T) {
	t.Setenv("STUDIO_OPS_ENCRYPTION_KEY", "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	provider, err := GetDefaultKeyProvider()
	if err != nil {
		t.Fatalf("GetDefaultKeyProvider() error = %v", err)
	}

	if _, ok := provider.(*EnvKeyProvider); !ok {
		t.Errorf("provider = %T, want *EnvKeyProvider", provider)
	}
}
