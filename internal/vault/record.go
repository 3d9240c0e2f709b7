package vault

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"fmt"
)

const defaultRecordBits = 2048

// RecordKeys is PolicyRecord. Ciphertext is hex-encoded RSA PKCS#1 v1.5 and key material
// is a PKCS#1 "RSA PRIVATE KEY" PEM block, the layout existing stores already hold.
type RecordKeys struct {
	bits int
}

func NewRecordKeys() *RecordKeys {
	return &RecordKeys{bits: defaultRecordBits}
}

func (v *RecordKeys) Seal(plaintext []byte) (string, string, error) {
	key, err := rsa.GenerateKey(rand.Reader, v.bits)
	if err != nil {
		return "", "", fmt.Errorf("vault: generate key: %w", err)
	}
	ct, err := rsa.EncryptPKCS1v15(rand.Reader, &key.PublicKey, plaintext)
	if err != nil {
		return "", "", fmt.Errorf("vault: encrypt: %w", err)
	}
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}
	return hex.EncodeToString(ct), string(pem.EncodeToMemory(block)), nil
}

func (v *RecordKeys) Open(ciphertext, keyMaterial string) (Secret, error) {
	block, _ := pem.Decode([]byte(keyMaterial))
	if block == nil {
		return nil, fmt.Errorf("%w: key material is not PEM", ErrDecryption)
	}
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("%w: parse key: %v", ErrDecryption, err)
	}
	ct, err := hex.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext is not hex: %v", ErrDecryption, err)
	}
	pt, err := rsa.DecryptPKCS1v15(nil, key, ct)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}
	return Secret(pt), nil
}
