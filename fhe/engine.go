// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"encoding/binary"
	"math/big"
	"sync"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	log "github.com/luxfi/log"
	"github.com/zeebo/blake3"
)

// Engine owns the ciphertext store and evaluates handle algebra on top
// of the active backend. All methods follow the zero-handle convention:
// a missing or malformed operand produces the zero handle, never an
// error, so that confidential call paths cannot leak operand validity
// through reverts.
type Engine struct {
	mu      sync.RWMutex
	backend backend
	log     log.Logger

	cts     map[Handle][]byte
	ctTypes map[Handle]uint8
	nonce   uint64

	// signers authorized to attest input ciphertexts
	signers map[common.Address]bool

	oracle    DecryptionOracle
	nextReqID uint64
	pending   map[uint64]DecryptCallback
}

// NewEngine creates an engine backed by the build-selected backend.
// With no oracle configured, decryption requests are fulfilled inline.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{
		backend: newBackend(),
		log:     log.NewTestLogger(log.InfoLevel),
		cts:     make(map[Handle][]byte),
		ctTypes: make(map[Handle]uint8),
		signers: make(map[common.Address]bool),
		pending: make(map[uint64]DecryptCallback),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.oracle == nil {
		e.oracle = &LoopbackOracle{}
	}
	e.oracle.attach(e)
	return e
}

// EngineOption configures an Engine at construction.
type EngineOption func(*Engine)

// WithOracle routes decryption requests through the given oracle.
func WithOracle(o DecryptionOracle) EngineOption {
	return func(e *Engine) { e.oracle = o }
}

// WithSigner authorizes an input-ciphertext attestation signer.
func WithSigner(addr common.Address) EngineOption {
	return func(e *Engine) { e.signers[addr] = true }
}

// WithLogger overrides the engine logger.
func WithLogger(l log.Logger) EngineOption {
	return func(e *Engine) { e.log = l }
}

// store saves a ciphertext and mints a fresh handle for it. Handles are
// blake3(nonce || ct) so repeated stores of equal ciphertexts stay
// unlinkable on chain.
func (e *Engine) store(ct []byte, ctType uint8) Handle {
	if ct == nil {
		return Handle{}
	}
	e.nonce++
	var nonceBytes [8]byte
	binary.BigEndian.PutUint64(nonceBytes[:], e.nonce)

	h := blake3.New()
	h.Write(nonceBytes[:])
	h.Write([]byte{ctType})
	h.Write(ct)

	var handle Handle
	h.Digest().Read(handle[:])

	e.cts[handle] = ct
	e.ctTypes[handle] = ctType
	return handle
}

func (e *Engine) get(h Handle) ([]byte, uint8, bool) {
	ct, ok := e.cts[h]
	if !ok {
		return nil, 0, false
	}
	return ct, e.ctTypes[h], true
}

// TypeOf reports the ciphertext type behind a handle.
func (e *Engine) TypeOf(h Handle) (uint8, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	t, ok := e.ctTypes[h]
	return t, ok
}

// TrivialEncrypt mints a handle for a publicly known value. Trivial
// ciphertexts carry no entropy; they exist so public quantities can
// enter homomorphic circuits.
func (e *Engine) TrivialEncrypt(value *big.Int, ctType uint8) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store(e.backend.Encrypt(value, ctType), ctType)
}

// Zero returns a fresh trivial encryption of zero.
func (e *Engine) Zero(ctType uint8) Handle {
	return e.TrivialEncrypt(big.NewInt(0), ctType)
}

func (e *Engine) binary(a, b Handle, f func(lhs, rhs []byte, ctType uint8) []byte) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	lhs, lhsType, ok := e.get(a)
	if !ok {
		return Handle{}
	}
	rhs, rhsType, ok := e.get(b)
	if !ok || rhsType != lhsType {
		return Handle{}
	}
	return e.store(f(lhs, rhs, lhsType), lhsType)
}

// Add returns a handle to a + b, wrapping at the type width.
func (e *Engine) Add(a, b Handle) Handle {
	return e.binary(a, b, e.backend.Add)
}

// Sub returns a handle to a - b in two's complement.
func (e *Engine) Sub(a, b Handle) Handle {
	return e.binary(a, b, e.backend.Sub)
}

// Mul returns a handle to a * b, wrapping at the type width.
func (e *Engine) Mul(a, b Handle) Handle {
	return e.binary(a, b, e.backend.Mul)
}

// Div returns a handle to a / b, floored. An encrypted zero divisor
// yields an encrypted zero, not an error; division circuits cannot leak
// the divisor's value.
func (e *Engine) Div(a, b Handle) Handle {
	return e.binary(a, b, e.backend.Div)
}

// Shl returns a handle to a << bits at the type width.
func (e *Engine) Shl(a Handle, bits uint) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	ct, ctType, ok := e.get(a)
	if !ok {
		return Handle{}
	}
	return e.store(e.backend.Shl(ct, bits, ctType), ctType)
}

// Shr returns a handle to a >> bits.
func (e *Engine) Shr(a Handle, bits uint) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	ct, ctType, ok := e.get(a)
	if !ok {
		return Handle{}
	}
	return e.store(e.backend.Shr(ct, bits, ctType), ctType)
}

// Cast re-encodes a handle at another type width.
func (e *Engine) Cast(a Handle, toType uint8) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	ct, fromType, ok := e.get(a)
	if !ok || BitWidth(toType) == 0 {
		return Handle{}
	}
	if fromType == toType {
		return a
	}
	return e.store(e.backend.Cast(ct, fromType, toType), toType)
}

// Min returns a handle to the smaller of a and b.
func (e *Engine) Min(a, b Handle) Handle {
	return e.binary(a, b, e.backend.Min)
}

// Max returns a handle to the larger of a and b.
func (e *Engine) Max(a, b Handle) Handle {
	return e.binary(a, b, e.backend.Max)
}

// MulDiv returns a handle to a * num / den computed without
// intermediate truncation. num and den are public scalars; den == 0
// yields the zero handle.
func (e *Engine) MulDiv(a Handle, num, den *big.Int) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	ct, ctType, ok := e.get(a)
	if !ok {
		return Handle{}
	}
	return e.store(e.backend.MulDiv(ct, num, den, ctType), ctType)
}

func (e *Engine) compare(a, b Handle, f func(lhs, rhs []byte, ctType uint8) []byte) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	lhs, lhsType, ok := e.get(a)
	if !ok {
		return Handle{}
	}
	rhs, rhsType, ok := e.get(b)
	if !ok || rhsType != lhsType {
		return Handle{}
	}
	return e.store(f(lhs, rhs, lhsType), TypeEbool)
}

// Lt returns an ebool handle for a < b.
func (e *Engine) Lt(a, b Handle) Handle { return e.compare(a, b, e.backend.Lt) }

// Le returns an ebool handle for a <= b.
func (e *Engine) Le(a, b Handle) Handle { return e.compare(a, b, e.backend.Le) }

// Gt returns an ebool handle for a > b.
func (e *Engine) Gt(a, b Handle) Handle { return e.compare(a, b, e.backend.Gt) }

// Ge returns an ebool handle for a >= b.
func (e *Engine) Ge(a, b Handle) Handle { return e.compare(a, b, e.backend.Ge) }

// Eq returns an ebool handle for a == b.
func (e *Engine) Eq(a, b Handle) Handle { return e.compare(a, b, e.backend.Eq) }

// IsZero returns an ebool handle for a == 0.
func (e *Engine) IsZero(a Handle) Handle {
	t, ok := e.TypeOf(a)
	if !ok {
		return Handle{}
	}
	return e.Eq(a, e.Zero(t))
}

// Select returns ifTrue where cond holds, else ifFalse. cond must be an
// ebool handle and both branches must share a type.
func (e *Engine) Select(cond, ifTrue, ifFalse Handle) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	control, condType, ok := e.get(cond)
	if !ok || condType != TypeEbool {
		return Handle{}
	}
	t, tType, ok := e.get(ifTrue)
	if !ok {
		return Handle{}
	}
	f, fType, ok := e.get(ifFalse)
	if !ok || fType != tType {
		return Handle{}
	}
	return e.store(e.backend.Select(control, t, f, tType), tType)
}

// And returns an ebool handle for a && b.
func (e *Engine) And(a, b Handle) Handle {
	return e.boolBinary(a, b, e.backend.And)
}

// Or returns an ebool handle for a || b.
func (e *Engine) Or(a, b Handle) Handle {
	return e.boolBinary(a, b, e.backend.Or)
}

func (e *Engine) boolBinary(a, b Handle, f func(lhs, rhs []byte) []byte) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	lhs, lhsType, ok := e.get(a)
	if !ok || lhsType != TypeEbool {
		return Handle{}
	}
	rhs, rhsType, ok := e.get(b)
	if !ok || rhsType != TypeEbool {
		return Handle{}
	}
	return e.store(f(lhs, rhs), TypeEbool)
}

// Not returns an ebool handle for !a.
func (e *Engine) Not(a Handle) Handle {
	e.mu.Lock()
	defer e.mu.Unlock()
	ct, ctType, ok := e.get(a)
	if !ok || ctType != TypeEbool {
		return Handle{}
	}
	return e.store(e.backend.Not(ct), TypeEbool)
}

// hashInput computes the attestation digest of an input ciphertext.
func hashInput(ct []byte, securityZone, ctType uint8) []byte {
	ctHash := crypto.Keccak256(ct)
	return crypto.Keccak256(ctHash, []byte{securityZone}, []byte{ctType})
}

// Verify checks an externally produced ciphertext's attestation and
// mints a handle for it. The signature must recover to an authorized
// gateway signer. This is the only path by which foreign ciphertexts
// enter the store, and unlike evaluation it fails loudly: a forged
// input is a hard rejection, not a silent zero.
func (e *Engine) Verify(input InputCiphertext) (Handle, error) {
	if len(input.Ciphertext) == 0 || len(input.Signature) != 65 {
		return Handle{}, ErrInvalidInput
	}
	if BitWidth(input.CtType) == 0 {
		return Handle{}, ErrInvalidType
	}

	digest := hashInput(input.Ciphertext, input.SecurityZone, input.CtType)
	pub, err := crypto.SigToPub(digest, input.Signature)
	if err != nil {
		return Handle{}, ErrBadSignature
	}
	// crypto returns its own address type; the signer set is keyed by the
	// geth one.
	signer := common.BytesToAddress(crypto.PubkeyToAddress(*pub).Bytes())

	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.signers[signer] {
		return Handle{}, ErrUnknownSigner
	}
	if !e.backend.Valid(input.Ciphertext, input.CtType) {
		return Handle{}, ErrInvalidInput
	}

	h := e.store(input.Ciphertext, input.CtType)
	e.log.Debug("verified input ciphertext", "handle", h, "signer", signer, "type", input.CtType)
	return h, nil
}

// Reveal decrypts a handle directly. Only the oracle fulfillment path
// and sealing use it; application code requests decryption instead.
func (e *Engine) Reveal(h Handle) (*big.Int, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ct, ctType, ok := e.get(h)
	if !ok {
		return nil, ErrUnknownHandle
	}
	return e.backend.Decrypt(ct, ctType), nil
}

// DecryptCallback delivers a resolved plaintext for a request.
type DecryptCallback func(requestID uint64, value *big.Int)

// RequestDecrypt submits a handle to the decryption oracle. The
// callback runs when the oracle fulfills, which may be several blocks
// later and out of order with other requests.
func (e *Engine) RequestDecrypt(h Handle, cb DecryptCallback) (uint64, error) {
	e.mu.Lock()
	if _, ok := e.cts[h]; !ok {
		e.mu.Unlock()
		return 0, ErrUnknownHandle
	}
	e.nextReqID++
	id := e.nextReqID
	e.pending[id] = cb
	oracle := e.oracle
	e.mu.Unlock()

	e.log.Debug("decryption requested", "id", id, "handle", h)
	oracle.Submit(id, h)
	return id, nil
}

// fulfill is called by the oracle with a resolved plaintext.
func (e *Engine) fulfill(requestID uint64, value *big.Int) {
	e.mu.Lock()
	cb, ok := e.pending[requestID]
	delete(e.pending, requestID)
	e.mu.Unlock()
	if !ok {
		e.log.Warn("oracle fulfilled unknown request", "id", requestID)
		return
	}
	cb(requestID, value)
}

// PendingDecrypts reports the number of unfulfilled oracle requests.
func (e *Engine) PendingDecrypts() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.pending)
}
