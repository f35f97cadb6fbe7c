// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"hash"
	"math/big"

	"github.com/luxfi/crypto/secp256k1"
)

// SealOutput re-encrypts the plaintext behind a handle for a single
// reader. The result is ECIES over secp256k1 (ephemeral ECDH, Concat
// KDF, AES-256-CTR, HMAC-SHA256), the scheme wallets already speak, so
// a trader can open their fill amount client side while the chain never
// sees it. publicKey is the reader's uncompressed 65-byte point.
func (e *Engine) SealOutput(h Handle, publicKey []byte) ([]byte, error) {
	value, err := e.Reveal(h)
	if err != nil {
		return nil, err
	}

	ctType, _ := e.TypeOf(h)
	width := BitWidth(ctType)
	plaintext := make([]byte, (width+7)/8)
	value.FillBytes(plaintext)

	return eciesSeal(publicKey, plaintext)
}

func eciesSeal(recipientPk, plaintext []byte) ([]byte, error) {
	curve := secp256k1.S256()

	if len(recipientPk) != 65 {
		return nil, ErrInvalidPublicKey
	}
	x, y := elliptic.Unmarshal(curve, recipientPk)
	if x == nil {
		return nil, ErrInvalidPublicKey
	}

	ephPriv, err := ecdsa.GenerateKey(curve, rand.Reader)
	if err != nil {
		return nil, err
	}

	sharedSecret := ecdhSecret(curve, x, y, ephPriv.D.Bytes())

	// Concat KDF (NIST SP 800-56A): 32 bytes AES key, 32 bytes MAC key
	derivedKey := concatKDF(sha256.New, sharedSecret, nil, 64)
	encKey := derivedKey[:32]
	macKey := derivedKey[32:]

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return nil, err
	}

	ciphertext := make([]byte, len(iv)+len(plaintext))
	copy(ciphertext, iv)
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(ciphertext[aes.BlockSize:], plaintext)

	mac := hmac.New(sha256.New, macKey)
	mac.Write(ciphertext)
	tag := mac.Sum(nil)

	ephPub := elliptic.Marshal(curve, ephPriv.PublicKey.X, ephPriv.PublicKey.Y)

	// ephemeral_pk || iv+ciphertext || mac
	result := make([]byte, 0, len(ephPub)+len(ciphertext)+len(tag))
	result = append(result, ephPub...)
	result = append(result, ciphertext...)
	result = append(result, tag...)
	return result, nil
}

// OpenSealed decrypts a sealed output with the reader's private key.
// Client-side helper kept next to the sealing code it must mirror.
func OpenSealed(privateKey, sealed []byte) ([]byte, error) {
	curve := secp256k1.S256()

	const pubKeySize = 65
	const macSize = 32
	if len(sealed) < pubKeySize+aes.BlockSize+macSize {
		return nil, ErrInvalidInput
	}

	ephPub := sealed[:pubKeySize]
	encryptedWithIV := sealed[pubKeySize : len(sealed)-macSize]
	expectedMac := sealed[len(sealed)-macSize:]

	ephX, ephY := elliptic.Unmarshal(curve, ephPub)
	if ephX == nil {
		return nil, ErrInvalidPublicKey
	}

	sharedSecret := ecdhSecret(curve, ephX, ephY, privateKey)

	derivedKey := concatKDF(sha256.New, sharedSecret, nil, 64)
	encKey := derivedKey[:32]
	macKey := derivedKey[32:]

	mac := hmac.New(sha256.New, macKey)
	mac.Write(encryptedWithIV)
	if subtle.ConstantTimeCompare(expectedMac, mac.Sum(nil)) != 1 {
		return nil, ErrOperationFailed
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, err
	}

	iv := encryptedWithIV[:aes.BlockSize]
	encrypted := encryptedWithIV[aes.BlockSize:]

	plaintext := make([]byte, len(encrypted))
	stream := cipher.NewCTR(block, iv)
	stream.XORKeyStream(plaintext, encrypted)
	return plaintext, nil
}

func ecdhSecret(curve elliptic.Curve, x, y *big.Int, scalar []byte) []byte {
	sx, _ := curve.ScalarMult(x, y, scalar)
	sharedSecret := sx.Bytes()

	byteLen := (curve.Params().BitSize + 7) / 8
	if len(sharedSecret) < byteLen {
		padded := make([]byte, byteLen)
		copy(padded[byteLen-len(sharedSecret):], sharedSecret)
		sharedSecret = padded
	}
	return sharedSecret
}

func concatKDF(h func() hash.Hash, z, otherInfo []byte, keyLen int) []byte {
	hashSize := h().Size()
	reps := (keyLen + hashSize - 1) / hashSize

	derivedKey := make([]byte, 0, reps*hashSize)

	for counter := uint32(1); counter <= uint32(reps); counter++ {
		hasher := h()
		counterBytes := make([]byte, 4)
		binary.BigEndian.PutUint32(counterBytes, counter)
		hasher.Write(counterBytes)
		hasher.Write(z)
		hasher.Write(otherInfo)
		derivedKey = hasher.Sum(derivedKey)
	}

	return derivedKey[:keyLen]
}
