package sshkey

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"strings"

	"golang.org/x/crypto/ssh"
)

// KeyPair is a generated Ed25519 SSH identity for one agent. The private
// key stays server-side; the public key is what the operator installs in
// the agent's authorized_keys.
type KeyPair struct {
	PrivateKeyPEM string
	AuthorizedKey string
	Fingerprint   string
}

// Generate creates a fresh Ed25519 key pair. The comment ends up in the
// authorized_keys line; agent names work well here.
func Generate(comment string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("sshkey: generate key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("sshkey: marshal private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("sshkey: convert public key: %w", err)
	}

	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(sshPub)))
	if comment != "" {
		authorized += " " + comment
	}

	return &KeyPair{
		PrivateKeyPEM: string(pem.EncodeToMemory(block)),
		AuthorizedKey: authorized,
		Fingerprint:   ssh.FingerprintSHA256(sshPub),
	}, nil
}

// Fingerprint returns the SHA256 fingerprint of an authorized_keys line.
func Fingerprint(authorizedKey string) (string, error) {
	pub, _, _, _, err := ssh.ParseAuthorizedKey([]byte(authorizedKey))
	if err != nil {
		return "", fmt.Errorf("sshkey: parse public key: %w", err)
	}
	return ssh.FingerprintSHA256(pub), nil
}
