// Package vault encrypts gateway and model-provider credentials at rest
// with AES-256-GCM under a passphrase-derived key.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/argon2"

	"github.com/mkefalas/apiary/internal/store"
)

// Vault holds an AES-256 key derived from a passphrase via Argon2id.
// The salt is deterministic (SHA-256 of the passphrase) so the same
// passphrase produces the same key across restarts.
type Vault struct {
	key [32]byte
}

func New(passphrase string) *Vault {
	salt := sha256.Sum256([]byte(passphrase))
	key := argon2.IDKey([]byte(passphrase), salt[:16], 1, 64*1024, 4, 32)

	v := &Vault{}
	copy(v.key[:], key)
	return v
}

// Encrypt seals plaintext with a random nonce.
func (v *Vault) Encrypt(plaintext []byte) (ciphertext, nonce []byte, err error) {
	gcm, err := v.gcm()
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext = gcm.Seal(nil, nonce, plaintext, nil)
	return ciphertext, nonce, nil
}

// Decrypt opens ciphertext sealed by Encrypt.
func (v *Vault) Decrypt(ciphertext, nonce []byte) ([]byte, error) {
	gcm, err := v.gcm()
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt: %w", err)
	}
	return plaintext, nil
}

func (v *Vault) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(v.key[:])
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// Keeper stores named credentials encrypted in the database.
type Keeper struct {
	vault *Vault
	store *store.Store
}

func NewKeeper(v *Vault, s *store.Store) *Keeper {
	return &Keeper{vault: v, store: s}
}

// Set encrypts and persists a credential under name, replacing any
// previous value.
func (k *Keeper) Set(name, value string) error {
	ciphertext, nonce, err := k.vault.Encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("encrypt secret %s: %w", name, err)
	}
	return k.store.SaveSecret(&store.Secret{Name: name, Ciphertext: ciphertext, Nonce: nonce})
}

// Get decrypts the credential stored under name. Returns "" with no
// error when the secret does not exist.
func (k *Keeper) Get(name string) (string, error) {
	sec, err := k.store.GetSecret(name)
	if err != nil {
		return "", err
	}
	if sec == nil {
		return "", nil
	}
	plaintext, err := k.vault.Decrypt(sec.Ciphertext, sec.Nonce)
	if err != nil {
		return "", fmt.Errorf("decrypt secret %s: %w", name, err)
	}
	return string(plaintext), nil
}

// Delete removes a stored credential.
func (k *Keeper) Delete(name string) error {
	return k.store.DeleteSecret(name)
}
