// Package crypto implements per-record envelope encryption: every Encrypt
// call derives a one-off AES-256 key from the process master secret and a
// fresh random salt, so only the salt travels with the ciphertext.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"golang.org/x/crypto/pbkdf2"

	"github.com/safeworkhq/compliance-backend/internal/domain/errors"
)

const (
	// SaltSize is the fixed prefix length of every encrypted blob.
	SaltSize = 16

	// MinMasterSecretLength is enforced at construction. A short secret is a
	// startup failure, never a silently weakened key.
	MinMasterSecretLength = 32

	// MinIterations is the floor for the PBKDF2 cost parameter.
	MinIterations = 100_000

	keySize   = 32
	nonceSize = 12
)

// Envelope performs authenticated encryption with keys derived per operation.
// Construct once at process start and share by handle; the type is stateless
// per call and safe for concurrent use.
type Envelope struct {
	masterSecret []byte
	iterations   int
}

// NewEnvelope validates the master secret and KDF cost up front. The service
// refuses to construct with a missing or short secret: a fallback key would
// silently orphan every previously encrypted record on restart.
func NewEnvelope(masterSecret []byte, iterations int) (*Envelope, error) {
	if len(masterSecret) < MinMasterSecretLength {
		return nil, errors.NewValidationError("MASTER_SECRET_TOO_SHORT",
			"master secret must be at least 32 bytes; refusing to start")
	}
	if iterations < MinIterations {
		return nil, errors.NewValidationError("KDF_ITERATIONS_TOO_LOW",
			"key derivation iteration count must be at least 100000")
	}

	secret := make([]byte, len(masterSecret))
	copy(secret, masterSecret)

	return &Envelope{masterSecret: secret, iterations: iterations}, nil
}

// DeriveKey computes the symmetric key for a given salt. Deterministic for a
// fixed (master secret, salt) pair and deliberately slow; the iteration count
// is a cost parameter, not an optimization target.
func (e *Envelope) DeriveKey(salt []byte) []byte {
	return pbkdf2.Key(e.masterSecret, salt, e.iterations, keySize, sha256.New)
}

// Encrypt seals plaintext under a freshly derived key and returns
// salt || ciphertext. The salt is new random bytes on every call, so
// encrypting identical plaintext twice yields different blobs.
func (e *Envelope) Encrypt(plaintext []byte) ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, errors.NewInternalError("failed to generate encryption salt").WithCause(err)
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.NewInternalError("failed to generate encryption nonce").WithCause(err)
	}

	aead, err := e.newAEAD(salt)
	if err != nil {
		return nil, err
	}

	sealed := aead.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 0, SaltSize+nonceSize+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return blob, nil
}

// EncryptValue encrypts an arbitrary value. Strings are encrypted as-is;
// everything else is serialized to canonical JSON first, so a structured
// payload round-trips through DecryptValue.
func (e *Envelope) EncryptValue(v any) ([]byte, error) {
	if s, ok := v.(string); ok {
		return e.Encrypt([]byte(s))
	}

	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, errors.NewInternalError("failed to serialize payload for encryption").WithCause(err)
	}
	return e.Encrypt(plaintext)
}

// Decrypt splits a blob into salt and ciphertext, re-derives the key and
// opens the payload. Any tampering, truncation, or wrong master secret
// surfaces as an integrity error; a wrong plaintext is never returned.
func (e *Envelope) Decrypt(blob []byte) ([]byte, error) {
	if len(blob) < SaltSize+nonceSize {
		return nil, errors.NewIntegrityError("encrypted blob is truncated")
	}

	salt := blob[:SaltSize]
	nonce := blob[SaltSize : SaltSize+nonceSize]
	sealed := blob[SaltSize+nonceSize:]

	aead, err := e.newAEAD(salt)
	if err != nil {
		return nil, err
	}

	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, errors.NewIntegrityError("decryption failed: ciphertext was modified or encrypted under a different master secret")
	}
	return plaintext, nil
}

// DecryptValue decrypts a blob produced by EncryptValue into v.
func (e *Envelope) DecryptValue(blob []byte, v any) error {
	plaintext, err := e.Decrypt(blob)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(plaintext, v); err != nil {
		return errors.NewIntegrityError("decrypted payload is not valid JSON").WithCause(err)
	}
	return nil
}

func (e *Envelope) newAEAD(salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(e.DeriveKey(salt))
	if err != nil {
		return nil, errors.NewInternalError("failed to initialize cipher").WithCause(err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.NewInternalError("failed to initialize AEAD").WithCause(err)
	}
	return aead, nil
}

// EncodeBlob renders a blob as hex for storage in text columns.
func EncodeBlob(blob []byte) string {
	return hex.EncodeToString(blob)
}

// DecodeBlob parses the hex form produced by EncodeBlob.
func DecodeBlob(s string) ([]byte, error) {
	blob, err := hex.DecodeString(s)
	if err != nil {
		return nil, errors.NewValidationError("INVALID_BLOB_ENCODING",
			"encrypted blob must be a hex string")
	}
	return blob, nil
}
