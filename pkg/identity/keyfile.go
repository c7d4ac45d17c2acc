package identity

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"
)

// KeyFile is the on-disk identity format. Written with mode 0600.
type KeyFile struct {
	AgentID    string `json:"agent_id"`
	PublicKey  string `json:"public_key"`
	PrivateKey string `json:"private_key,omitempty"`
	CreatedAt  string `json:"created_at"`

	// Set instead of PrivateKey when the seed is passphrase-encrypted.
	Encrypted *EncryptedSeed `json:"encrypted,omitempty"`
}

// EncryptedSeed is an argon2id + NaCl secretbox envelope around the seed.
type EncryptedSeed struct {
	KDF        string `json:"kdf"` // "argon2id"
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Save writes the identity to path as plaintext JSON, mode 0600.
func Save(id *Identity, path string) error {
	return writeKeyFile(id.Export(), path)
}

// SaveEncrypted writes the identity with the seed sealed under passphrase.
func SaveEncrypted(id *Identity, path string, passphrase []byte) error {
	kf := id.Export()
	seed, err := hex.DecodeString(kf.PrivateKey)
	if err != nil {
		return fmt.Errorf("keyfile: bad seed: %w", err)
	}

	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("keyfile: salt: %w", err)
	}
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return fmt.Errorf("keyfile: nonce: %w", err)
	}

	var key [32]byte
	copy(key[:], argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, 32))
	sealed := secretbox.Seal(nil, seed, &nonce, &key)

	kf.PrivateKey = ""
	kf.Encrypted = &EncryptedSeed{
		KDF:        "argon2id",
		Salt:       hex.EncodeToString(salt),
		Nonce:      hex.EncodeToString(nonce[:]),
		Ciphertext: hex.EncodeToString(sealed),
	}
	return writeKeyFile(kf, path)
}

func writeKeyFile(kf KeyFile, path string) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("keyfile: marshal: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("keyfile: write: %w", err)
	}
	return nil
}

// Load reads an identity from path. passphrase may be nil for plaintext
// keyfiles; it is required when the seed is encrypted.
func Load(path string, passphrase []byte) (*Identity, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keyfile: read: %w", err)
	}

	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("keyfile: parse: %w", err)
	}

	seedHex := kf.PrivateKey
	if kf.Encrypted != nil {
		seed, err := openSeed(kf.Encrypted, passphrase)
		if err != nil {
			return nil, err
		}
		seedHex = hex.EncodeToString(seed)
	}
	if seedHex == "" {
		return nil, fmt.Errorf("keyfile: no private key material in %s", path)
	}

	id, err := FromSeedHex(seedHex)
	if err != nil {
		return nil, err
	}
	if kf.AgentID != "" && kf.AgentID != id.AgentID() {
		return nil, fmt.Errorf("keyfile: agent_id %s does not match key-derived %s", kf.AgentID, id.AgentID())
	}
	if ts, err := time.Parse(time.RFC3339, kf.CreatedAt); err == nil {
		id.createdAt = ts
	}
	return id, nil
}

func openSeed(enc *EncryptedSeed, passphrase []byte) ([]byte, error) {
	if enc.KDF != "argon2id" {
		return nil, fmt.Errorf("keyfile: unsupported kdf %q", enc.KDF)
	}
	if len(passphrase) == 0 {
		return nil, fmt.Errorf("keyfile: passphrase required")
	}
	salt, err := hex.DecodeString(enc.Salt)
	if err != nil {
		return nil, fmt.Errorf("keyfile: bad salt: %w", err)
	}
	nonceBytes, err := hex.DecodeString(enc.Nonce)
	if err != nil || len(nonceBytes) != 24 {
		return nil, fmt.Errorf("keyfile: bad nonce")
	}
	ct, err := hex.DecodeString(enc.Ciphertext)
	if err != nil {
		return nil, fmt.Errorf("keyfile: bad ciphertext: %w", err)
	}

	var nonce [24]byte
	copy(nonce[:], nonceBytes)
	var key [32]byte
	copy(key[:], argon2.IDKey(passphrase, salt, argonTime, argonMemory, argonThreads, 32))

	seed, ok := secretbox.Open(nil, ct, &nonce, &key)
	if !ok {
		return nil, fmt.Errorf("keyfile: wrong passphrase or corrupted file")
	}
	return seed, nil
}
