// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import "math/big"

// backend evaluates circuits over serialized ciphertexts. Two
// implementations exist: the TFHE backend (build tag "tfhe") running on
// github.com/luxfi/fhe, and a cleartext-encoding backend used on nodes
// that delegate real ciphertext work to the coprocessor. Every method
// returns nil on malformed input; callers translate nil into the zero
// handle.
type backend interface {
	// Encrypt produces a ciphertext of value under ctType. Values wider
	// than the type are truncated to the type's bit width.
	Encrypt(value *big.Int, ctType uint8) []byte

	// Decrypt recovers the plaintext. Only the oracle path calls this.
	Decrypt(ct []byte, ctType uint8) *big.Int

	Add(lhs, rhs []byte, ctType uint8) []byte
	Sub(lhs, rhs []byte, ctType uint8) []byte
	Mul(lhs, rhs []byte, ctType uint8) []byte

	// Div floors; an encrypted zero divisor yields an encrypted zero.
	Div(lhs, rhs []byte, ctType uint8) []byte

	// MulDiv computes ct * num / den without intermediate truncation.
	// den must be nonzero.
	MulDiv(ct []byte, num, den *big.Int, ctType uint8) []byte

	Shl(ct []byte, bits uint, ctType uint8) []byte
	Shr(ct []byte, bits uint, ctType uint8) []byte

	// Cast re-encodes a ciphertext at another width, truncating on
	// narrowing.
	Cast(ct []byte, fromType, toType uint8) []byte

	// Comparisons return an ebool ciphertext.
	Lt(lhs, rhs []byte, ctType uint8) []byte
	Le(lhs, rhs []byte, ctType uint8) []byte
	Gt(lhs, rhs []byte, ctType uint8) []byte
	Ge(lhs, rhs []byte, ctType uint8) []byte
	Eq(lhs, rhs []byte, ctType uint8) []byte

	Min(lhs, rhs []byte, ctType uint8) []byte
	Max(lhs, rhs []byte, ctType uint8) []byte

	// Select returns ifTrue where control decrypts to 1, else ifFalse.
	// control is an ebool ciphertext.
	Select(control, ifTrue, ifFalse []byte, ctType uint8) []byte

	// Boolean algebra over ebool ciphertexts.
	And(lhs, rhs []byte) []byte
	Or(lhs, rhs []byte) []byte
	Not(ct []byte) []byte

	// Valid reports whether ct deserializes as a ciphertext of ctType.
	Valid(ct []byte, ctType uint8) bool
}
