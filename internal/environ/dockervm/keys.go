package dockervm

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"

	"golang.org/x/crypto/ssh"
)

// generateKeypair mints a fresh ed25519 keypair for the container's SSH
// account: the private half as PEM for our client, the public half in
// authorized_keys format for the container's environment.
func generateKeypair() (privatePEM, authorizedKey []byte, err error) {
	public, private, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key: %w", err)
	}

	block, err := ssh.MarshalPrivateKey(private, "")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal private key: %w", err)
	}
	privatePEM = pem.EncodeToMemory(block)

	sshPublic, err := ssh.NewPublicKey(public)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal public key: %w", err)
	}
	authorizedKey = ssh.MarshalAuthorizedKey(sshPublic)
	return privatePEM, authorizedKey, nil
}
