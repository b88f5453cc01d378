// Package crypto holds the envelope encryption primitives and the clients
// for the remote key services they depend on.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"fmt"
)

const gcmTagSize = 16

// Decrypt reverses the payload encryption applied upstream: AES in CTR mode
// without padding. All inputs are standard base64.
func Decrypt(key, iv, ciphertext string) (string, error) {
	keyBytes, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return "", fmt.Errorf("failed to decode data key: %w", err)
	}
	ivBytes, err := base64.StdEncoding.DecodeString(iv)
	if err != nil {
		return "", fmt.Errorf("failed to decode initialisation vector: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("failed to decode ciphertext: %w", err)
	}

	block, err := aes.NewCipher(keyBytes)
	if err != nil {
		return "", fmt.Errorf("invalid data key: %w", err)
	}
	if len(ivBytes) != block.BlockSize() {
		return "", fmt.Errorf("initialisation vector must be %d bytes, got %d", block.BlockSize(), len(ivBytes))
	}

	plaintext := make([]byte, len(data))
	cipher.NewCTR(block, ivBytes).XORKeyStream(plaintext, data)
	return string(plaintext), nil
}

// sealGCM encrypts with AES-GCM and a 128 bit tag. The tag is appended to
// the ciphertext.
func sealGCM(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("invalid data key: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, fmt.Errorf("failed to create gcm cipher: %w", err)
	}
	return gcm.Seal(nil, iv, plaintext, nil), nil
}
