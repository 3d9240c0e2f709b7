package vault

import (
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/gorilla/securecookie"
	"golang.org/x/crypto/hkdf"
)

const (
	// MinMasterKeyLen is the shortest MASTER_KEY accepted, in bytes.
	MinMasterKeyLen = 32

	tokenName = "teesched-credential"
	hkdfInfo  = "teesched vault v1"
)

// Master is PolicyMaster: securecookie authenticated encryption (AES-256 + HMAC-SHA256)
// with hash and block keys derived from one master key. The store never sees the key.
type Master struct {
	sc *securecookie.SecureCookie
}

func NewMaster(masterKey []byte) (*Master, error) {
	if len(masterKey) < MinMasterKeyLen {
		return nil, fmt.Errorf("vault: master key must be at least %d bytes, got %d", MinMasterKeyLen, len(masterKey))
	}

	keys := make([]byte, 64)
	if _, err := io.ReadFull(hkdf.New(sha256.New, masterKey, nil, []byte(hkdfInfo)), keys); err != nil {
		return nil, fmt.Errorf("vault: derive keys: %w", err)
	}

	sc := securecookie.New(keys[:32], keys[32:])
	sc.MaxAge(0)
	sc.MaxLength(0)
	sc.SetSerializer(securecookie.JSONEncoder{})
	return &Master{sc: sc}, nil
}

func (v *Master) Seal(plaintext []byte) (string, string, error) {
	token, err := v.sc.Encode(tokenName, string(plaintext))
	if err != nil {
		return "", "", fmt.Errorf("vault: seal: %w", err)
	}
	return token, "", nil
}

// Open ignores keyMaterial so rows written under PolicyRecord fail loudly rather than
// being read with the wrong scheme.
func (v *Master) Open(ciphertext, _ string) (Secret, error) {
	var pt string
	if err := v.sc.Decode(tokenName, ciphertext, &pt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return Secret(pt), nil
}
