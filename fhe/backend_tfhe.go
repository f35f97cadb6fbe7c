// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

//go:build tfhe

package fhe

import (
	"math/big"
	"sync"

	"github.com/luxfi/fhe"
)

// tfheBackend evaluates circuits on real TFHE ciphertexts via
// github.com/luxfi/fhe. Key material is generated once per process.
type tfheBackend struct{}

func newBackend() backend { return tfheBackend{} }

var (
	tfheOnce  sync.Once
	evaluator *fhe.BitwiseEvaluator
	encryptor *fhe.BitwiseEncryptor
	decryptor *fhe.BitwiseDecryptor
	secretKey *fhe.SecretKey
	publicKey *fhe.PublicKey
	params    fhe.Parameters
	initErr   error
)

func initTFHE() error {
	tfheOnce.Do(func() {
		var err error

		params, err = fhe.NewParametersFromLiteral(fhe.PN10QP27)
		if err != nil {
			initErr = err
			return
		}

		kg := fhe.NewKeyGenerator(params)
		secretKey, publicKey = kg.GenKeyPair()
		bsk := kg.GenBootstrapKey(secretKey)

		encryptor = fhe.NewBitwiseEncryptor(params, secretKey)
		decryptor = fhe.NewBitwiseDecryptor(params, secretKey)
		evaluator = fhe.NewBitwiseEvaluator(params, bsk, secretKey)
	})

	return initErr
}

func fheTypeToTFHEType(ctType uint8) fhe.FheUintType {
	switch ctType {
	case TypeEbool:
		return fhe.FheBool
	case TypeEuint8:
		return fhe.FheUint8
	case TypeEuint16:
		return fhe.FheUint16
	case TypeEuint32:
		return fhe.FheUint32
	case TypeEuint64:
		return fhe.FheUint64
	case TypeEuint128:
		return fhe.FheUint128
	case TypeEuint256:
		return fhe.FheUint256
	default:
		return fhe.FheUint64
	}
}

func serialize(ct *fhe.BitCiphertext) []byte {
	if ct == nil {
		return nil
	}
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil
	}
	return data
}

func deserialize(data []byte) *fhe.BitCiphertext {
	if len(data) == 0 {
		return nil
	}
	ct := new(fhe.BitCiphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil
	}
	return ct
}

// deserializeBit reads a single encrypted bit, the control operand of a
// selection circuit.
func deserializeBit(data []byte) *fhe.Ciphertext {
	if len(data) == 0 {
		return nil
	}
	ct := new(fhe.Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return nil
	}
	return ct
}

func (tfheBackend) Encrypt(value *big.Int, ctType uint8) []byte {
	if err := initTFHE(); err != nil || value == nil || value.Sign() < 0 {
		return nil
	}
	ct := encryptor.EncryptUint64(value.Uint64(), fheTypeToTFHEType(ctType))
	return serialize(ct)
}

func (tfheBackend) Decrypt(ct []byte, ctType uint8) *big.Int {
	if err := initTFHE(); err != nil {
		return big.NewInt(0)
	}
	ctIn := deserialize(ct)
	if ctIn == nil {
		return big.NewInt(0)
	}
	return new(big.Int).SetUint64(decryptor.DecryptUint64(ctIn))
}

func binaryOp(lhs, rhs []byte, f func(a, b *fhe.BitCiphertext) (*fhe.BitCiphertext, error)) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}
	ctLhs := deserialize(lhs)
	ctRhs := deserialize(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}
	result, err := f(ctLhs, ctRhs)
	if err != nil {
		return nil
	}
	return serialize(result)
}

func (tfheBackend) Add(lhs, rhs []byte, ctType uint8) []byte {
	return binaryOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.BitCiphertext, error) {
		return evaluator.Add(a, b)
	})
}

func (tfheBackend) Sub(lhs, rhs []byte, ctType uint8) []byte {
	return binaryOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.BitCiphertext, error) {
		return evaluator.Sub(a, b)
	})
}

func (tfheBackend) Mul(lhs, rhs []byte, ctType uint8) []byte {
	return binaryOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.BitCiphertext, error) {
		return evaluator.Mul(a, b)
	})
}

func (tfheBackend) Div(lhs, rhs []byte, ctType uint8) []byte {
	return binaryOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.BitCiphertext, error) {
		return evaluator.Div(a, b)
	})
}

func (tfheBackend) Shl(ct []byte, bits uint, ctType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}
	ctIn := deserialize(ct)
	if ctIn == nil {
		return nil
	}
	return serialize(evaluator.Shl(ctIn, int(bits)))
}

func (tfheBackend) Shr(ct []byte, bits uint, ctType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}
	ctIn := deserialize(ct)
	if ctIn == nil {
		return nil
	}
	return serialize(evaluator.Shr(ctIn, int(bits)))
}

func (tfheBackend) Cast(ct []byte, fromType, toType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}
	ctIn := deserialize(ct)
	if ctIn == nil {
		return nil
	}
	return serialize(evaluator.CastTo(ctIn, fheTypeToTFHEType(toType)))
}

func (tfheBackend) MulDiv(ct []byte, num, den *big.Int, ctType uint8) []byte {
	if err := initTFHE(); err != nil || den == nil || den.Sign() == 0 {
		return nil
	}
	ctIn := deserialize(ct)
	if ctIn == nil {
		return nil
	}

	scaled, err := evaluator.ScalarMul(ctIn, num.Uint64())
	if err != nil {
		return nil
	}

	ctDen := encryptor.EncryptUint64(den.Uint64(), fheTypeToTFHEType(ctType))
	result, err := evaluator.Div(scaled, ctDen)
	if err != nil {
		return nil
	}
	return serialize(result)
}

func cmpOp(lhs, rhs []byte, f func(a, b *fhe.BitCiphertext) (*fhe.Ciphertext, error)) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}
	ctLhs := deserialize(lhs)
	ctRhs := deserialize(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}
	bit, err := f(ctLhs, ctRhs)
	if err != nil {
		return nil
	}
	return serialize(fhe.WrapBoolCiphertext(bit))
}

func (tfheBackend) Lt(lhs, rhs []byte, ctType uint8) []byte {
	return cmpOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.Ciphertext, error) {
		return evaluator.Lt(a, b)
	})
}

func (tfheBackend) Le(lhs, rhs []byte, ctType uint8) []byte {
	return cmpOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.Ciphertext, error) {
		return evaluator.Le(a, b)
	})
}

func (tfheBackend) Gt(lhs, rhs []byte, ctType uint8) []byte {
	return cmpOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.Ciphertext, error) {
		return evaluator.Gt(a, b)
	})
}

func (tfheBackend) Ge(lhs, rhs []byte, ctType uint8) []byte {
	return cmpOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.Ciphertext, error) {
		return evaluator.Ge(a, b)
	})
}

func (tfheBackend) Eq(lhs, rhs []byte, ctType uint8) []byte {
	return cmpOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.Ciphertext, error) {
		return evaluator.Eq(a, b)
	})
}

func (tfheBackend) Min(lhs, rhs []byte, ctType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}
	ctLhs := deserialize(lhs)
	ctRhs := deserialize(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}
	lt, err := evaluator.Lt(ctLhs, ctRhs)
	if err != nil {
		return nil
	}
	result, err := evaluator.Select(lt, ctLhs, ctRhs)
	if err != nil {
		return nil
	}
	return serialize(result)
}

func (tfheBackend) Max(lhs, rhs []byte, ctType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}
	ctLhs := deserialize(lhs)
	ctRhs := deserialize(rhs)
	if ctLhs == nil || ctRhs == nil {
		return nil
	}
	gt, err := evaluator.Gt(ctLhs, ctRhs)
	if err != nil {
		return nil
	}
	result, err := evaluator.Select(gt, ctLhs, ctRhs)
	if err != nil {
		return nil
	}
	return serialize(result)
}

func (tfheBackend) Select(control, ifTrue, ifFalse []byte, ctType uint8) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}
	ctControl := deserializeBit(control)
	ctTrue := deserialize(ifTrue)
	ctFalse := deserialize(ifFalse)
	if ctControl == nil || ctTrue == nil || ctFalse == nil {
		return nil
	}
	result, err := evaluator.Select(ctControl, ctTrue, ctFalse)
	if err != nil {
		return nil
	}
	return serialize(result)
}

func (tfheBackend) And(lhs, rhs []byte) []byte {
	return binaryOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.BitCiphertext, error) {
		return evaluator.And(a, b)
	})
}

func (tfheBackend) Or(lhs, rhs []byte) []byte {
	return binaryOp(lhs, rhs, func(a, b *fhe.BitCiphertext) (*fhe.BitCiphertext, error) {
		return evaluator.Or(a, b)
	})
}

func (tfheBackend) Not(ct []byte) []byte {
	if err := initTFHE(); err != nil {
		return nil
	}
	ctIn := deserialize(ct)
	if ctIn == nil {
		return nil
	}
	return serialize(evaluator.Not(ctIn))
}

func (tfheBackend) Valid(ct []byte, ctType uint8) bool {
	return deserialize(ct) != nil
}
