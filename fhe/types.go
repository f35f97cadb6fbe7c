// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe implements the homomorphic compute layer the dark pool
// runs on. Ciphertexts live off the EVM stack and are referenced by
// 32-byte handles. The engine evaluates arithmetic, comparison and
// selection circuits over handles without learning operand values, and
// a decryption oracle resolves the few values that must become public
// (reserve totals) asynchronously.
package fhe

import (
	"errors"

	"github.com/luxfi/geth/common"
)

// Handle references a ciphertext held by the engine. The zero handle is
// the canonical "missing operand" value: every operation fed a zero
// handle yields a zero handle.
type Handle = common.Hash

// Ciphertext type constants - must match github.com/luxfi/fhe FheUintType
const (
	TypeEbool    uint8 = 0 // FheBool - 1 bit
	TypeEuint8   uint8 = 2 // FheUint8 - 8 bits
	TypeEuint16  uint8 = 3 // FheUint16 - 16 bits
	TypeEuint32  uint8 = 4 // FheUint32 - 32 bits
	TypeEuint64  uint8 = 5 // FheUint64 - 64 bits
	TypeEuint128 uint8 = 6 // FheUint128 - 128 bits
	TypeEuint256 uint8 = 8 // FheUint256 - 256 bits
)

// BitWidth returns the plaintext width of a ciphertext type in bits.
func BitWidth(ctType uint8) uint {
	switch ctType {
	case TypeEbool:
		return 1
	case TypeEuint8:
		return 8
	case TypeEuint16:
		return 16
	case TypeEuint32:
		return 32
	case TypeEuint64:
		return 64
	case TypeEuint128:
		return 128
	case TypeEuint256:
		return 256
	default:
		return 0
	}
}

// Gas costs for FHE operations
const (
	GasEncrypt        uint64 = 50000
	GasDecryptRequest uint64 = 10000
	GasAdd            uint64 = 65000
	GasSub            uint64 = 65000
	GasMulDiv         uint64 = 200000
	GasCmp            uint64 = 60000
	GasMin            uint64 = 120000
	GasSelect         uint64 = 100000
	GasBool           uint64 = 50000
	GasVerify         uint64 = 80000
	GasSeal           uint64 = 90000
)

var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidType      = errors.New("unknown ciphertext type")
	ErrTypeMismatch     = errors.New("ciphertext type mismatch")
	ErrUnknownHandle    = errors.New("unknown ciphertext handle")
	ErrBadSignature     = errors.New("input ciphertext signature invalid")
	ErrUnknownSigner    = errors.New("input ciphertext signer not authorized")
	ErrOperationFailed  = errors.New("FHE operation failed")
	ErrInsufficientGas  = errors.New("insufficient gas for FHE operation")
	ErrDecryptForbidden = errors.New("handle not cleared for decryption")
	ErrInvalidPublicKey = errors.New("invalid sealing public key")
)

// InputCiphertext is an externally produced ciphertext submitted to the
// chain. The gateway that encrypted it under the network key signs the
// tuple (hash, securityZone, type); Verify recovers the signer before a
// handle is minted.
type InputCiphertext struct {
	Ciphertext   []byte
	SecurityZone uint8
	CtType       uint8
	// Signature is a 65-byte [R || S || V] secp256k1 signature over
	// keccak256(ciphertextHash || securityZone || ctType).
	Signature []byte
}

// Hash returns the content hash the gateway signs.
func (ic *InputCiphertext) Hash() common.Hash {
	return common.BytesToHash(hashInput(ic.Ciphertext, ic.SecurityZone, ic.CtType))
}
