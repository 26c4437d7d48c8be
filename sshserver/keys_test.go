package sshserver

import (
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

func TestParseAuthorizedKeys(t *testing.T) {
	allowed := newSigner(t)
	other := newSigner(t)
	data := "# console users\n\n" + string(ssh.MarshalAuthorizedKey(allowed.PublicKey()))
	keys, err := ParseAuthorizedKeys([]byte(data))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if keys.Len() != 1 {
		t.Fatalf("expected one key, got %d", keys.Len())
	}
	if !keys.Contains(allowed.PublicKey()) || keys.Contains(other.PublicKey()) {
		t.Fatalf("unexpected membership")
	}
	if _, err := ParseAuthorizedKeys([]byte("ssh-ed25519 not-base64\n")); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestEnsureHostKeyIsStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "host_key")
	first, created, err := EnsureHostKey(path)
	if err != nil || !created {
		t.Fatalf("create host key: created=%v err=%v", created, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("expected 0600, got %v", info.Mode().Perm())
	}
	second, created, err := EnsureHostKey(path)
	if err != nil || created {
		t.Fatalf("load host key: created=%v err=%v", created, err)
	}
	if ssh.FingerprintSHA256(first.PublicKey()) != ssh.FingerprintSHA256(second.PublicKey()) {
		t.Fatalf("host key changed between loads")
	}
	if _, _, err := EnsureHostKey(" "); err == nil {
		t.Fatalf("expected error for empty path")
	}
}
