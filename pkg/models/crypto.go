package models

// EncryptedDataKey is a freshly generated envelope key. Plaintext never
// leaves the process; Ciphertext is base64.
type EncryptedDataKey struct {
	KeyID      string
	Plaintext  []byte
	Ciphertext string
}

// EncryptionResult is the output of one envelope encryption. All binary
// fields are base64.
type EncryptionResult struct {
	EncryptingKeyID      string
	InitialisationVector string
	EncryptedDataKey     string
	CipherText           string
}
