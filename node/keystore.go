package node

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"

	"golang.org/x/crypto/scrypt"

	"github.com/duskengine/rusk/bls"
)

// keystoreFile is the on-disk shape of an encrypted consensus key
// (spec.md §6 "consensus_keys_path", SPEC_FULL's "bootstrap / consensus-
// key unlock" supplement). The BLS secret key's IKM seed is encrypted
// with AES-GCM under a key derived from the unlock password via scrypt.
type keystoreFile struct {
	Salt       []byte `json:"salt"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ciphertext"`
}

const (
	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
	keyLen  = 32
)

func deriveKey(password string, salt []byte) ([]byte, error) {
	key, err := scrypt.Key([]byte(password), salt, scryptN, scryptR, scryptP, keyLen)
	if err != nil {
		return nil, fmt.Errorf("node: derive key: %w", err)
	}
	return key, nil
}

// SaveConsensusKey encrypts seed (the BLS key generation IKM) under
// password and writes it to path.
func SaveConsensusKey(path string, seed []byte, password string) error {
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("node: generate salt: %w", err)
	}
	key, err := deriveKey(password, salt)
	if err != nil {
		return err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("node: generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nil, nonce, seed, nil)

	data, err := json.Marshal(keystoreFile{Salt: salt, Nonce: nonce, Ciphertext: ciphertext})
	if err != nil {
		return fmt.Errorf("node: marshal keystore: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("node: write keystore: %w", err)
	}
	return nil
}

// LoadConsensusKey decrypts the consensus key at path under password and
// derives the node's BLS secret key from it.
func LoadConsensusKey(path, password string) (*bls.SecretKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("node: read consensus key: %w", err)
	}
	var ks keystoreFile
	if err := json.Unmarshal(data, &ks); err != nil {
		return nil, fmt.Errorf("node: parse consensus key: %w", err)
	}

	key, err := deriveKey(password, ks.Salt)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	seed, err := gcm.Open(nil, ks.Nonce, ks.Ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("node: decrypt consensus key: wrong password or corrupted file")
	}

	sk, err := bls.KeyGen(seed)
	if err != nil {
		return nil, fmt.Errorf("node: derive secret key: %w", err)
	}
	return sk, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("node: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("node: new gcm: %w", err)
	}
	return gcm, nil
}
