package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"github.com/dockfleet/dockfleet/pkg/storage"
	"github.com/dockfleet/dockfleet/pkg/types"
)

// CredentialStore decrypts per-host credentials on demand. Plaintext is
// returned to the transport dialer only and must never be retained past
// handle creation, logged, or written into error messages.
type CredentialStore struct {
	encryptionKey []byte // 32 bytes for AES-256
	store         storage.Store
}

// NewCredentialStore creates a credential store with the given encryption key.
// The key must be 32 bytes for AES-256-GCM.
func NewCredentialStore(key []byte, store storage.Store) (*CredentialStore, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes for AES-256, got %d", len(key))
	}

	return &CredentialStore{
		encryptionKey: key,
		store:         store,
	}, nil
}

// ParseEncryptionKey interprets the configured key string: standard base64
// of 32 bytes, or an arbitrary passphrase hashed with SHA-256.
func ParseEncryptionKey(s string) ([]byte, error) {
	if s == "" {
		return nil, fmt.Errorf("encryption key cannot be empty")
	}
	if decoded, err := base64.StdEncoding.DecodeString(s); err == nil && len(decoded) == 32 {
		return decoded, nil
	}
	hash := sha256.Sum256([]byte(s))
	return hash[:], nil
}

// Encrypt encrypts plaintext credential material using AES-256-GCM.
// Returns ciphertext with nonce prepended.
func (cs *CredentialStore) Encrypt(plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("cannot encrypt empty data")
	}

	block, err := aes.NewCipher(cs.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return ciphertext, nil
}

// decrypt reverses Encrypt. The error path never includes key or data.
func (cs *CredentialStore) decrypt(ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("cannot decrypt empty data")
	}

	block, err := aes.NewCipher(cs.encryptionKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt credential")
	}

	return plaintext, nil
}

// Put encrypts and stores one credential item for a host
func (cs *CredentialStore) Put(hostID string, kind types.CredentialKind, plaintext []byte) error {
	encrypted, err := cs.Encrypt(plaintext)
	if err != nil {
		return fmt.Errorf("failed to encrypt credential: %w", err)
	}
	return cs.store.PutCredential(&types.Credential{
		HostID: hostID,
		Kind:   kind,
		Data:   encrypted,
	})
}

// Decrypt returns all decrypted credential items for a host. A host with
// no stored credentials yields an empty map, not an error.
func (cs *CredentialStore) Decrypt(hostID string) (map[types.CredentialKind][]byte, error) {
	creds, err := cs.store.GetCredentials(hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	out := make(map[types.CredentialKind][]byte, len(creds))
	for _, cred := range creds {
		plaintext, err := cs.decrypt(cred.Data)
		if err != nil {
			return nil, fmt.Errorf("credential %s for host %s: %w", cred.Kind, hostID, err)
		}
		out[cred.Kind] = plaintext
	}
	return out, nil
}

// Delete removes all credential items for a host
func (cs *CredentialStore) Delete(hostID string) error {
	return cs.store.DeleteCredentials(hostID)
}
