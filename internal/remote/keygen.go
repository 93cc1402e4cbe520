package remote

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"

	"github.com/shinji-kodama/blog-agent/internal/model"
)

// KeyPair is an ed25519 deploy key in OpenSSH formats.
type KeyPair struct {
	// PrivateKey is the PEM "OPENSSH PRIVATE KEY" block, the value stored
	// in the SSH_PRIVATE_KEY secret.
	PrivateKey []byte

	// AuthorizedKey is the authorized_keys line for the server.
	AuthorizedKey []byte

	// Fingerprint is the SHA256 fingerprint of the public key.
	Fingerprint string
}

// GenerateKey creates a new ed25519 key pair. comment is appended to the
// authorized_keys line and embedded in the private key.
func GenerateKey(comment string) (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode private key: %w", err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("failed to encode public key: %w", err)
	}

	authorized := ssh.MarshalAuthorizedKey(sshPub)
	if comment != "" {
		// MarshalAuthorizedKey ends with a newline; the comment goes before it.
		authorized = append(authorized[:len(authorized)-1], []byte(" "+comment+"\n")...)
	}

	return &KeyPair{
		PrivateKey:    pem.EncodeToMemory(block),
		AuthorizedKey: authorized,
		Fingerprint:   ssh.FingerprintSHA256(sshPub),
	}, nil
}

// WriteKeyPair generates a key pair and writes the private key to path
// (mode 0600) and the public key to path+".pub" (mode 0644). Existing files
// are only replaced when force is set.
func WriteKeyPair(path, comment string, force bool) (*KeyPair, error) {
	pubPath := path + ".pub"
	if !force {
		for _, p := range []string{path, pubPath} {
			if _, err := os.Stat(p); err == nil {
				return nil, model.NewCLIError(model.ExitGeneralError,
					fmt.Sprintf("%s already exists (use --force to overwrite)", p))
			} else if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to check %s: %w", p, err)
			}
		}
	}

	kp, err := GenerateKey(comment)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create key directory: %w", err)
	}
	// WriteFile keeps the mode of an existing file, so tighten explicitly.
	if err := os.WriteFile(path, kp.PrivateKey, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write private key: %w", err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return nil, fmt.Errorf("failed to restrict private key permissions: %w", err)
	}
	if err := os.WriteFile(pubPath, kp.AuthorizedKey, 0o644); err != nil {
		return nil, fmt.Errorf("failed to write public key: %w", err)
	}
	return kp, nil
}
