package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
)

// encryptCTR produces the upstream payload encoding that Decrypt reverses.
func encryptCTR(key, iv []byte, plaintext string) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	out := make([]byte, len(plaintext))
	cipher.NewCTR(block, iv).XORKeyStream(out, []byte(plaintext))
	return base64.StdEncoding.EncodeToString(out), nil
}

func openGCM(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, len(iv))
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, iv, ciphertext, nil)
}
