// Package renatclient implements the wire envelope and HTTP client for
// talking to a renat server: record ids are HMAC-derived from a shared
// secret, and values are compressed, digested, AES-CBC encrypted, and
// base64-encoded before they ever leave the process.
package renatclient

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha1"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

const aesBlockSize = aes.BlockSize

// deriveRecordID turns a user-chosen key into the record_id used on
// the wire: hex(HMAC-SHA1(secret, key)).
func deriveRecordID(secret, key []byte) string {
	mac := hmac.New(sha1.New, secret)
	mac.Write(key)
	return hex.EncodeToString(mac.Sum(nil))
}

// deriveValueKey is the first 16 bytes of SHA1(secret), used as the
// AES-128 key for the value envelope.
func deriveValueKey(secret []byte) []byte {
	sum := sha1.Sum(secret)
	return sum[:16]
}

// sealValue builds the wire value: base64(IV || AES-CBC(key,
// compress(plaintext) || SHA1(compress(plaintext)) || PKCS7 padding)).
//
// The original envelope compresses with bzip2; no library in the
// reference pack provides a bzip2 writer, so this compresses with
// zstd instead (see DESIGN.md). Every other step of the envelope is
// unchanged.
func sealValue(secret, plaintext []byte) (string, error) {
	compressed, err := zstdCompress(plaintext)
	if err != nil {
		return "", fmt.Errorf("renatclient: compress value: %w", err)
	}

	digest := sha1.Sum(compressed)
	payload := append(append([]byte{}, compressed...), digest[:]...)
	padded := pkcs7Pad(payload, aesBlockSize)

	key := deriveValueKey(secret)
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("renatclient: build cipher: %w", err)
	}

	iv := make([]byte, aesBlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("renatclient: generate iv: %w", err)
	}

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	wire := append(append([]byte{}, iv...), ciphertext...)
	return base64.StdEncoding.EncodeToString(wire), nil
}

// openValue reverses sealValue: decode, decrypt, strip padding, verify
// the digest, and decompress.
func openValue(secret []byte, wire string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(wire)
	if err != nil {
		return nil, fmt.Errorf("renatclient: decode base64: %w", err)
	}
	if len(raw) < aesBlockSize || (len(raw)-aesBlockSize)%aesBlockSize != 0 {
		return nil, fmt.Errorf("renatclient: malformed envelope length %d", len(raw))
	}
	iv, ciphertext := raw[:aesBlockSize], raw[aesBlockSize:]

	key := deriveValueKey(secret)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("renatclient: build cipher: %w", err)
	}

	padded := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(padded, ciphertext)

	payload, err := pkcs7Unpad(padded, aesBlockSize)
	if err != nil {
		return nil, fmt.Errorf("renatclient: strip padding: %w", err)
	}
	if len(payload) < sha1.Size {
		return nil, fmt.Errorf("renatclient: envelope too short for digest")
	}

	compressed, digest := payload[:len(payload)-sha1.Size], payload[len(payload)-sha1.Size:]
	want := sha1.Sum(compressed)
	if !hmac.Equal(digest, want[:]) {
		return nil, fmt.Errorf("renatclient: value digest mismatch")
	}

	plaintext, err := zstdDecompress(compressed)
	if err != nil {
		return nil, fmt.Errorf("renatclient: decompress value: %w", err)
	}
	return plaintext, nil
}

func zstdCompress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func zstdDecompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

// pkcs7Pad always adds between 1 and blockSize bytes, a full block
// when the message is already aligned.
func pkcs7Pad(data []byte, blockSize int) []byte {
	padLen := blockSize - len(data)%blockSize
	padding := bytes.Repeat([]byte{byte(padLen)}, padLen)
	return append(append([]byte{}, data...), padding...)
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, fmt.Errorf("renatclient: padded length %d not a multiple of %d", len(data), blockSize)
	}
	padLen := int(data[len(data)-1])
	if padLen == 0 || padLen > blockSize || padLen > len(data) {
		return nil, fmt.Errorf("renatclient: invalid padding length %d", padLen)
	}
	for _, b := range data[len(data)-padLen:] {
		if int(b) != padLen {
			return nil, fmt.Errorf("renatclient: corrupt padding bytes")
		}
	}
	return data[:len(data)-padLen], nil
}
