package walletconnect

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

var errBadHMAC = errors.New("walletconnect: payload hmac mismatch")

func randomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, err
	}
	return b, nil
}

func hmacSHA256(data, key []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(data)
	return h.Sum(nil)
}

// encryptPayload encrypts plaintext with AES-256-CBC and signs
// ciphertext||iv with HMAC-SHA256, as the v1 bridge protocol requires
func encryptPayload(plaintext, key []byte) (*wcMessagePayload, error) {
	iv, err := randomBytes(aes.BlockSize)
	if err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	padded := pkcs7Pad(plaintext, aes.BlockSize)
	data := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(data, padded)

	mac := hmacSHA256(append(append([]byte{}, data...), iv...), key)
	return &wcMessagePayload{
		Data: hex.EncodeToString(data),
		IV:   hex.EncodeToString(iv),
		Hmac: hex.EncodeToString(mac),
	}, nil
}

func decryptPayload(p *wcMessagePayload, key []byte) ([]byte, error) {
	iv, err := hex.DecodeString(p.IV)
	if err != nil {
		return nil, fmt.Errorf("decode iv: %w", err)
	}
	data, err := hex.DecodeString(p.Data)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}
	mac, err := hex.DecodeString(p.Hmac)
	if err != nil {
		return nil, fmt.Errorf("decode hmac: %w", err)
	}
	if !hmac.Equal(mac, hmacSHA256(append(append([]byte{}, data...), iv...), key)) {
		return nil, errBadHMAC
	}
	if len(iv) != aes.BlockSize || len(data) == 0 || len(data)%aes.BlockSize != 0 {
		return nil, errors.New("walletconnect: malformed ciphertext")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	plain := make([]byte, len(data))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, data)
	return pkcs7Unpad(plain, aes.BlockSize)
}

func encryptJSON(v any, key []byte) (string, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	p, err := encryptPayload(body, key)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(append([]byte{}, b...), bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 {
		return nil, errors.New("walletconnect: empty plaintext")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, errors.New("walletconnect: bad padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("walletconnect: bad padding")
		}
	}
	return b[:len(b)-n], nil
}
