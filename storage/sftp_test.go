package storage

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"

	"mediajob/config"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

func newHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	key, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func TestSFTPKnownHosts(t *testing.T) {
	trusted := newHostKey(t)
	file := filepath.Join(t.TempDir(), "known_hosts")
	line := knownhosts.Line([]string{"sftp.example.com:22"}, trusted) + "\n"
	if err := os.WriteFile(file, []byte(line), 0600); err != nil {
		t.Fatal(err)
	}

	cb, err := hostKeyCallback(config.SFTPConfig{Host: "sftp.example.com", KnownHostsFile: file})
	if err != nil {
		t.Fatalf("hostKeyCallback: %v", err)
	}
	remote := &net.TCPAddr{IP: net.ParseIP("192.0.2.10"), Port: 22}
	if err := cb("sftp.example.com:22", remote, trusted); err != nil {
		t.Errorf("trusted key rejected: %v", err)
	}
	if err := cb("sftp.example.com:22", remote, newHostKey(t)); err == nil {
		t.Error("unknown key accepted")
	}
}

func TestSFTPHostKeyPolicyRequired(t *testing.T) {
	cfg := config.SFTPConfig{Host: "sftp.example.com", User: "u", Password: "p"}
	if _, err := NewSFTP(cfg); err == nil {
		t.Fatal("expected an error without a host key policy")
	}

	cfg.KnownHostsFile = filepath.Join(t.TempDir(), "missing")
	if _, err := NewSFTP(cfg); err == nil {
		t.Fatal("expected an error for a missing known_hosts file")
	}

	cfg.KnownHostsFile = ""
	cfg.InsecureIgnoreHostKey = true
	b, err := NewSFTP(cfg)
	if err != nil {
		t.Fatalf("NewSFTP: %v", err)
	}
	if b.addr != "sftp.example.com:22" {
		t.Errorf("addr = %s", b.addr)
	}
}
