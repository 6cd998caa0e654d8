package crypt

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
)

var (
	ErrInvalidIV      = errors.New("invalid initialization vector")
	ErrInvalidPadding = errors.New("invalid padding")
)

// Cipher encrypts field values with AES-256-CBC. The key is derived once
// from a passphrase, the IV is stored per row next to the encrypted values.
type Cipher struct {
	block cipher.Block
}

// DeriveKey stretches a passphrase into a 32 byte key.
func DeriveKey(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 1, 64*1024, 4, 32)
}

func NewCipher(passphrase, salt string) (*Cipher, error) {
	block, err := aes.NewCipher(DeriveKey([]byte(passphrase), []byte(salt)))
	if err != nil {
		return nil, err
	}
	return &Cipher{block: block}, nil
}

// NewIV returns a random base64 encoded initialization vector.
func (c *Cipher) NewIV() (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(iv), nil
}

// Encrypt returns the base64 encoded ciphertext of plain.
func (c *Cipher) Encrypt(plain, iv string) (string, error) {
	rawIV, err := decodeIV(iv)
	if err != nil {
		return "", err
	}

	data := pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(data))
	cipher.NewCBCEncrypter(c.block, rawIV).CryptBlocks(out, data)

	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *Cipher) Decrypt(encoded, iv string) (string, error) {
	rawIV, err := decodeIV(iv)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	if len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return "", fmt.Errorf("ciphertext length %d is not a multiple of the block size", len(data))
	}

	out := make([]byte, len(data))
	cipher.NewCBCDecrypter(c.block, rawIV).CryptBlocks(out, data)

	plain, err := unpad(out, aes.BlockSize)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}

func decodeIV(iv string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(iv)
	if err != nil || len(raw) != aes.BlockSize {
		return nil, ErrInvalidIV
	}
	return raw, nil
}

// pkcs7
func pad(data []byte, size int) []byte {
	n := size - len(data)%size
	return append(data, bytes.Repeat([]byte{byte(n)}, n)...)
}

func unpad(data []byte, size int) ([]byte, error) {
	n := int(data[len(data)-1])
	if n == 0 || n > size || n > len(data) {
		return nil, ErrInvalidPadding
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, ErrInvalidPadding
		}
	}
	return data[:len(data)-n], nil
}
