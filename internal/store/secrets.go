package store

import (
	"database/sql"
	"fmt"
)

// Secret is an encrypted credential blob, typically the token the sandbox
// backend would present to the remote execution gateway. Encryption and
// decryption happen in the vault; the store only holds opaque bytes.
type Secret struct {
	Name       string `json:"name"`
	Ciphertext []byte `json:"-"`
	Nonce      []byte `json:"-"`
}

func (s *Store) SaveSecret(sec *Secret) error {
	_, err := s.db.Exec(`
		INSERT INTO secrets (name, ciphertext, nonce) VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			ciphertext = excluded.ciphertext,
			nonce = excluded.nonce,
			updated_at = CURRENT_TIMESTAMP`,
		sec.Name, sec.Ciphertext, sec.Nonce)
	if err != nil {
		return fmt.Errorf("save secret: %w", err)
	}
	return nil
}

func (s *Store) GetSecret(name string) (*Secret, error) {
	sec := &Secret{Name: name}
	err := s.db.QueryRow(`SELECT ciphertext, nonce FROM secrets WHERE name = ?`, name).
		Scan(&sec.Ciphertext, &sec.Nonce)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get secret: %w", err)
	}
	return sec, nil
}

func (s *Store) DeleteSecret(name string) error {
	_, err := s.db.Exec(`DELETE FROM secrets WHERE name = ?`, name)
	return err
}
