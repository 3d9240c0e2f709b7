// Package vault seals site passwords at rest and opens them for exactly one booking
// attempt.
package vault

import (
	"errors"
	"fmt"
)

var ErrDecryption = errors.New("vault: decryption failed")

const (
	// PolicyRecord generates a key pair per booking and stores the private key beside
	// the ciphertext. Anyone who can read the store can read the passwords.
	PolicyRecord = "record"
	// PolicyMaster seals every booking with one process-wide key held outside the store.
	PolicyMaster = "master"
)

type Vault interface {
	Seal(plaintext []byte) (ciphertext, keyMaterial string, err error)
	Open(ciphertext, keyMaterial string) (Secret, error)
}

// New builds the vault for policy. masterKey is only used by PolicyMaster.
func New(policy string, masterKey []byte) (Vault, error) {
	switch policy {
	case PolicyRecord, "":
		return NewRecordKeys(), nil
	case PolicyMaster:
		return NewMaster(masterKey)
	default:
		return nil, fmt.Errorf("vault: unknown policy %q", policy)
	}
}

// Secret is an opened password. Callers defer Wipe as soon as they hold one.
type Secret []byte

const redacted = "[redacted]"

func (s Secret) Wipe() { clear(s) }

func (s Secret) String() string   { return redacted }
func (s Secret) GoString() string { return redacted }

func (s Secret) MarshalJSON() ([]byte, error) { return []byte(`"` + redacted + `"`), nil }

// Reveal returns the plaintext. The returned string outlives Wipe, so only call it at the
// point the password leaves the process.
func (s Secret) Reveal() string { return string(s) }
