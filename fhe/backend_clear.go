// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build !tfhe

package fhe

import "math/big"

// clearBackend encodes plaintexts directly instead of encrypting them.
// Nodes built without the tfhe tag never hold key material; they track
// handle algebra locally and trust the coprocessor for real ciphertexts.
// The encoding is [ctType || 32-byte big-endian value].
type clearBackend struct{}

func newBackend() backend { return clearBackend{} }

const clearCtLen = 33

func typeMask(ctType uint8) *big.Int {
	width := BitWidth(ctType)
	if width == 0 {
		return nil
	}
	mask := new(big.Int).Lsh(big.NewInt(1), width)
	return mask.Sub(mask, big.NewInt(1))
}

func (clearBackend) encode(value *big.Int, ctType uint8) []byte {
	mask := typeMask(ctType)
	if mask == nil || value.Sign() < 0 {
		return nil
	}
	v := new(big.Int).And(value, mask)
	out := make([]byte, clearCtLen)
	out[0] = ctType
	v.FillBytes(out[1:])
	return out
}

func (clearBackend) decode(ct []byte, ctType uint8) *big.Int {
	if len(ct) != clearCtLen || ct[0] != ctType {
		return nil
	}
	return new(big.Int).SetBytes(ct[1:])
}

func (b clearBackend) Encrypt(value *big.Int, ctType uint8) []byte {
	return b.encode(value, ctType)
}

func (b clearBackend) Decrypt(ct []byte, ctType uint8) *big.Int {
	v := b.decode(ct, ctType)
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func (b clearBackend) binary(lhs, rhs []byte, ctType uint8, f func(a, v *big.Int) *big.Int) []byte {
	a := b.decode(lhs, ctType)
	c := b.decode(rhs, ctType)
	if a == nil || c == nil {
		return nil
	}
	return b.encode(f(a, c), ctType)
}

func (b clearBackend) Add(lhs, rhs []byte, ctType uint8) []byte {
	return b.binary(lhs, rhs, ctType, func(a, c *big.Int) *big.Int {
		return new(big.Int).Add(a, c)
	})
}

// Sub wraps modulo the type width, matching TFHE two's complement.
func (b clearBackend) Sub(lhs, rhs []byte, ctType uint8) []byte {
	mask := typeMask(ctType)
	return b.binary(lhs, rhs, ctType, func(a, c *big.Int) *big.Int {
		d := new(big.Int).Sub(a, c)
		if d.Sign() < 0 {
			d.Add(d, new(big.Int).Add(mask, big.NewInt(1)))
		}
		return d
	})
}

func (b clearBackend) Mul(lhs, rhs []byte, ctType uint8) []byte {
	return b.binary(lhs, rhs, ctType, func(a, c *big.Int) *big.Int {
		return new(big.Int).Mul(a, c)
	})
}

func (b clearBackend) Div(lhs, rhs []byte, ctType uint8) []byte {
	return b.binary(lhs, rhs, ctType, func(a, c *big.Int) *big.Int {
		if c.Sign() == 0 {
			return big.NewInt(0)
		}
		return new(big.Int).Quo(a, c)
	})
}

func (b clearBackend) Shl(ct []byte, bits uint, ctType uint8) []byte {
	v := b.decode(ct, ctType)
	if v == nil {
		return nil
	}
	return b.encode(new(big.Int).Lsh(v, bits), ctType)
}

func (b clearBackend) Shr(ct []byte, bits uint, ctType uint8) []byte {
	v := b.decode(ct, ctType)
	if v == nil {
		return nil
	}
	return b.encode(new(big.Int).Rsh(v, bits), ctType)
}

func (b clearBackend) Cast(ct []byte, fromType, toType uint8) []byte {
	v := b.decode(ct, fromType)
	if v == nil {
		return nil
	}
	return b.encode(v, toType)
}

func (b clearBackend) MulDiv(ct []byte, num, den *big.Int, ctType uint8) []byte {
	v := b.decode(ct, ctType)
	if v == nil || den == nil || den.Sign() == 0 || num == nil || num.Sign() < 0 {
		return nil
	}
	out := new(big.Int).Mul(v, num)
	out.Quo(out, den)
	return b.encode(out, ctType)
}

func (b clearBackend) cmp(lhs, rhs []byte, ctType uint8, f func(int) bool) []byte {
	a := b.decode(lhs, ctType)
	c := b.decode(rhs, ctType)
	if a == nil || c == nil {
		return nil
	}
	bit := big.NewInt(0)
	if f(a.Cmp(c)) {
		bit = big.NewInt(1)
	}
	return b.encode(bit, TypeEbool)
}

func (b clearBackend) Lt(lhs, rhs []byte, ctType uint8) []byte {
	return b.cmp(lhs, rhs, ctType, func(c int) bool { return c < 0 })
}

func (b clearBackend) Le(lhs, rhs []byte, ctType uint8) []byte {
	return b.cmp(lhs, rhs, ctType, func(c int) bool { return c <= 0 })
}

func (b clearBackend) Gt(lhs, rhs []byte, ctType uint8) []byte {
	return b.cmp(lhs, rhs, ctType, func(c int) bool { return c > 0 })
}

func (b clearBackend) Ge(lhs, rhs []byte, ctType uint8) []byte {
	return b.cmp(lhs, rhs, ctType, func(c int) bool { return c >= 0 })
}

func (b clearBackend) Eq(lhs, rhs []byte, ctType uint8) []byte {
	return b.cmp(lhs, rhs, ctType, func(c int) bool { return c == 0 })
}

func (b clearBackend) Min(lhs, rhs []byte, ctType uint8) []byte {
	return b.binary(lhs, rhs, ctType, func(a, c *big.Int) *big.Int {
		if a.Cmp(c) < 0 {
			return a
		}
		return c
	})
}

func (b clearBackend) Max(lhs, rhs []byte, ctType uint8) []byte {
	return b.binary(lhs, rhs, ctType, func(a, c *big.Int) *big.Int {
		if a.Cmp(c) > 0 {
			return a
		}
		return c
	})
}

func (b clearBackend) Select(control, ifTrue, ifFalse []byte, ctType uint8) []byte {
	cond := b.decode(control, TypeEbool)
	t := b.decode(ifTrue, ctType)
	f := b.decode(ifFalse, ctType)
	if cond == nil || t == nil || f == nil {
		return nil
	}
	if cond.Sign() != 0 {
		return b.encode(t, ctType)
	}
	return b.encode(f, ctType)
}

func (b clearBackend) boolOp(lhs, rhs []byte, f func(a, c bool) bool) []byte {
	a := b.decode(lhs, TypeEbool)
	c := b.decode(rhs, TypeEbool)
	if a == nil || c == nil {
		return nil
	}
	bit := big.NewInt(0)
	if f(a.Sign() != 0, c.Sign() != 0) {
		bit = big.NewInt(1)
	}
	return b.encode(bit, TypeEbool)
}

func (b clearBackend) And(lhs, rhs []byte) []byte {
	return b.boolOp(lhs, rhs, func(a, c bool) bool { return a && c })
}

func (b clearBackend) Or(lhs, rhs []byte) []byte {
	return b.boolOp(lhs, rhs, func(a, c bool) bool { return a || c })
}

func (b clearBackend) Not(ct []byte) []byte {
	a := b.decode(ct, TypeEbool)
	if a == nil {
		return nil
	}
	bit := big.NewInt(1)
	if a.Sign() != 0 {
		bit = big.NewInt(0)
	}
	return b.encode(bit, TypeEbool)
}

func (b clearBackend) Valid(ct []byte, ctType uint8) bool {
	return b.decode(ct, ctType) != nil
}
