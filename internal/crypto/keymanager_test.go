package crypto

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const testKeyHex = "4c0883a69102937d6231471b5dbb6204fe51296170827936ea5cce4b76994b0f"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey("0x"+testKeyHex, "hunter2")
	if err != nil {
		t.Fatalf("EncryptKey: %v", err)
	}
	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("DecryptKey: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("key = %q, want %q", got, testKeyHex)
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testKeyHex, "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := DecryptKey(blob, "wrong"); err == nil {
		t.Fatal("DecryptKey accepted a wrong password")
	}
}

func TestEncryptRejectsBadKeys(t *testing.T) {
	if _, err := EncryptKey("not-hex", "pw"); err == nil {
		t.Error("accepted non-hex key")
	}
	if _, err := EncryptKey("abcd", "pw"); err == nil {
		t.Error("accepted short key")
	}
	if _, err := EncryptKey(testKeyHex, ""); err == nil {
		t.Error("accepted empty password")
	}
}

func TestLoadKeyPrecedence(t *testing.T) {
	// Raw key wins even when a file is configured.
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testKeyHex, EncryptedKeyPath: "/nonexistent"})
	if err != nil {
		t.Fatalf("LoadKey raw: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("key = %q", got)
	}

	// Encrypted file path.
	blob, err := EncryptKey(testKeyHex, "pw")
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "resolver.key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatal(err)
	}
	got, err = LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "pw"})
	if err != nil {
		t.Fatalf("LoadKey file: %v", err)
	}
	if got != testKeyHex {
		t.Errorf("key = %q", got)
	}

	// Nothing configured.
	if _, err := LoadKey(KeyConfig{}); err == nil || !strings.Contains(err.Error(), "no private key source") {
		t.Errorf("err = %v", err)
	}
}
