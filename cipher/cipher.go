// Copyright 2020 Michael J. Fromberger. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package cipher implements the symmetric primitives used to decrypt
// browser-encrypted cookie values: AES-CBC-PKCS7, AES-GCM, and
// ChaCha20-Poly1305, all keyed by PBKDF2-HMAC-SHA1.
package cipher

import (
	"bytes"
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/sha1"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

// Chromium's hardcoded PBKDF2 salt on Unix and macOS.
const KeySalt = "saltysalt"

// The fixed IV used for AES-CBC-PKCS7 cookie decryption: 16 space bytes.
var FixedIV = bytes.Repeat([]byte{0x20}, 16)

// DeriveKey generates a symmetric key from passphrase using PBKDF2-HMAC-SHA1,
// Chromium's fixed salt, and the given iteration count. keyLen is the
// desired output length in bytes (16 for Chromium's v10/v11 key, 32 for
// app-bound and GCM key material).
func DeriveKey(passphrase string, iterations, keyLen int) []byte {
	return pbkdf2.Key([]byte(passphrase), []byte(KeySalt), iterations, keyLen, sha1.New)
}

// AESCBCPKCS7Decrypt decrypts ciphertext using AES in CBC mode with the
// given 16-byte key and iv, and strips PKCS7 padding. It reports an error
// if the padding is malformed, which Chromium treats as signal that the
// decryption key was wrong.
func AESCBCPKCS7Decrypt(key, iv, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 || len(ciphertext)%aes.BlockSize != 0 {
		return nil, errors.New("cipher: ciphertext is not a multiple of the block size")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, len(ciphertext))
	gocipher.NewCBCDecrypter(block, iv).CryptBlocks(buf, ciphertext)
	return unpadPKCS7(buf)
}

// AESCBCPKCS7Encrypt pads plaintext with PKCS7 and encrypts it with AES in
// CBC mode using the given 16-byte key and iv.
func AESCBCPKCS7Encrypt(key, iv, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	padded := padPKCS7(plaintext, aes.BlockSize)
	buf := make([]byte, len(padded))
	gocipher.NewCBCEncrypter(block, iv).CryptBlocks(buf, padded)
	return buf, nil
}

func padPKCS7(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	if n == 0 {
		n = blockSize // always at least one byte of padding
	}
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

func unpadPKCS7(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("cipher: empty plaintext")
	}
	n := int(data[len(data)-1])
	if n < 1 || n > len(data) {
		return nil, errors.New("cipher: invalid PKCS7 padding")
	}
	for _, b := range data[len(data)-n:] {
		if int(b) != n {
			return nil, errors.New("cipher: invalid PKCS7 padding")
		}
	}
	return data[:len(data)-n], nil
}

// AESGCMDecrypt decrypts ciphertext (which must include the trailing 16-byte
// authentication tag) using AES-GCM with the given 32-byte key and 12-byte
// nonce. It reports decrypt_failed-class errors if the tag does not verify.
func AESGCMDecrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Open(nil, nonce, ciphertext, nil)
}

// AESGCMEncrypt encrypts plaintext with AES-GCM under the given 32-byte key
// and 12-byte nonce, appending the authentication tag to the output.
func AESGCMEncrypt(key, nonce, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return gcm.Seal(nil, nonce, plaintext, nil), nil
}

// ChaCha20Poly1305Decrypt decrypts ciphertext (including its trailing
// 16-byte tag) using ChaCha20-Poly1305 with the given 32-byte key and
// 12-byte nonce.
func ChaCha20Poly1305Decrypt(key, nonce, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Open(nil, nonce, ciphertext, nil)
}

// ChaCha20Poly1305Encrypt encrypts plaintext using ChaCha20-Poly1305 with
// the given 32-byte key and 12-byte nonce.
func ChaCha20Poly1305Encrypt(key, nonce, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, err
	}
	return aead.Seal(nil, nonce, plaintext, nil), nil
}
