// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"encoding/binary"
	"errors"

	"github.com/luxfi/geth/common"
	"github.com/zeebo/blake3"
)

// HookFlags is a bitmap of hook capabilities encoded into the leading two
// bytes of a hook contract's address, Uniswap v4 style. The momentum
// closure runs in the after-swap position.
type HookFlags uint16

const (
	HookBeforeInitialize HookFlags = 1 << iota
	HookAfterInitialize
	HookBeforeAddLiquidity
	HookAfterAddLiquidity
	HookBeforeRemoveLiquidity
	HookAfterRemoveLiquidity
	HookBeforeSwap
	HookAfterSwap
	HookBeforeDeposit
	HookAfterDeposit
	HookBeforeClaim
	HookAfterClaim
)

// HookPermissions is the unpacked form of HookFlags.
type HookPermissions struct {
	BeforeInitialize      bool
	AfterInitialize       bool
	BeforeAddLiquidity    bool
	AfterAddLiquidity     bool
	BeforeRemoveLiquidity bool
	AfterRemoveLiquidity  bool
	BeforeSwap            bool
	AfterSwap             bool
	BeforeDeposit         bool
	AfterDeposit          bool
	BeforeClaim           bool
	AfterClaim            bool
}

var (
	ErrHookNotRegistered  = errors.New("hook not registered")
	ErrHookInvalidAddress = errors.New("hook address doesn't match capabilities")
)

// Hook receives lifecycle callbacks for pools whose key names its address.
// A Before callback may veto the operation by returning an error; After
// callbacks are notifications.
type Hook interface {
	BeforeSwap(poolID common.Hash, params SwapParams) error
	AfterSwap(poolID common.Hash, delta BalanceDelta)
	BeforeDeposit(poolID common.Hash, tick int24, side Side) error
	AfterDeposit(poolID common.Hash, tick int24, side Side)
	BeforeClaim(poolID common.Hash, tick int24, side Side) error
	AfterClaim(poolID common.Hash, tick int24, side Side)
}

// HookRegistry tracks hook contracts and their capabilities.
type HookRegistry struct {
	registeredHooks map[common.Address]HookFlags
	contracts       map[common.Address]Hook
}

// NewHookRegistry creates an empty registry.
func NewHookRegistry() *HookRegistry {
	return &HookRegistry{
		registeredHooks: make(map[common.Address]HookFlags),
		contracts:       make(map[common.Address]Hook),
	}
}

// ValidateHookAddress checks that a hook address encodes the claimed
// permissions in its first two bytes.
func ValidateHookAddress(addr common.Address, permissions HookPermissions) error {
	encoded := EncodeHookPermissions(permissions)
	addrFlags := binary.BigEndian.Uint16(addr[0:2])
	if addrFlags != uint16(encoded) {
		return ErrHookInvalidAddress
	}
	return nil
}

// EncodeHookPermissions packs permissions into a HookFlags bitmap.
func EncodeHookPermissions(p HookPermissions) HookFlags {
	var flags HookFlags
	if p.BeforeInitialize {
		flags |= HookBeforeInitialize
	}
	if p.AfterInitialize {
		flags |= HookAfterInitialize
	}
	if p.BeforeAddLiquidity {
		flags |= HookBeforeAddLiquidity
	}
	if p.AfterAddLiquidity {
		flags |= HookAfterAddLiquidity
	}
	if p.BeforeRemoveLiquidity {
		flags |= HookBeforeRemoveLiquidity
	}
	if p.AfterRemoveLiquidity {
		flags |= HookAfterRemoveLiquidity
	}
	if p.BeforeSwap {
		flags |= HookBeforeSwap
	}
	if p.AfterSwap {
		flags |= HookAfterSwap
	}
	if p.BeforeDeposit {
		flags |= HookBeforeDeposit
	}
	if p.AfterDeposit {
		flags |= HookAfterDeposit
	}
	if p.BeforeClaim {
		flags |= HookBeforeClaim
	}
	if p.AfterClaim {
		flags |= HookAfterClaim
	}
	return flags
}

// DecodeHookPermissions unpacks a HookFlags bitmap.
func DecodeHookPermissions(flags HookFlags) HookPermissions {
	return HookPermissions{
		BeforeInitialize:      flags&HookBeforeInitialize != 0,
		AfterInitialize:       flags&HookAfterInitialize != 0,
		BeforeAddLiquidity:    flags&HookBeforeAddLiquidity != 0,
		AfterAddLiquidity:     flags&HookAfterAddLiquidity != 0,
		BeforeRemoveLiquidity: flags&HookBeforeRemoveLiquidity != 0,
		AfterRemoveLiquidity:  flags&HookAfterRemoveLiquidity != 0,
		BeforeSwap:            flags&HookBeforeSwap != 0,
		AfterSwap:             flags&HookAfterSwap != 0,
		BeforeDeposit:         flags&HookBeforeDeposit != 0,
		AfterDeposit:          flags&HookAfterDeposit != 0,
		BeforeClaim:           flags&HookBeforeClaim != 0,
		AfterClaim:            flags&HookAfterClaim != 0,
	}
}

// GetHookPermissionsFromAddress extracts permissions from a hook address.
func GetHookPermissionsFromAddress(addr common.Address) HookPermissions {
	return DecodeHookPermissions(HookFlags(binary.BigEndian.Uint16(addr[0:2])))
}

// HasPermission checks if an address carries a specific hook flag.
func HasPermission(addr common.Address, flag HookFlags) bool {
	return HookFlags(binary.BigEndian.Uint16(addr[0:2]))&flag != 0
}

// RegisterHook registers a hook contract; the address prefix must match.
func (hr *HookRegistry) RegisterHook(addr common.Address, flags HookFlags) error {
	addrFlags := HookFlags(binary.BigEndian.Uint16(addr[0:2]))
	if addrFlags != flags {
		return ErrHookInvalidAddress
	}
	hr.registeredHooks[addr] = flags
	return nil
}

// BindHook attaches the implementation dispatched for a registered hook
// address.
func (hr *HookRegistry) BindHook(addr common.Address, h Hook) error {
	if _, ok := hr.registeredHooks[addr]; !ok {
		return ErrHookNotRegistered
	}
	hr.contracts[addr] = h
	return nil
}

// Contract returns the implementation bound to a hook address, if any.
func (hr *HookRegistry) Contract(addr common.Address) (Hook, bool) {
	h, ok := hr.contracts[addr]
	return h, ok
}

// GetHookFlags returns the flags for a registered hook.
func (hr *HookRegistry) GetHookFlags(addr common.Address) (HookFlags, bool) {
	flags, ok := hr.registeredHooks[addr]
	return flags, ok
}

// IsHookEnabled checks whether a hook type is enabled for an address.
// Unregistered hooks fall back to the address-encoded flags.
func (hr *HookRegistry) IsHookEnabled(addr common.Address, flag HookFlags) bool {
	flags, ok := hr.registeredHooks[addr]
	if !ok {
		flags = HookFlags(binary.BigEndian.Uint16(addr[0:2]))
	}
	return flags&flag != 0
}

// GenerateHookAddress derives a CREATE2-style address whose leading bytes
// encode the given permissions.
func GenerateHookAddress(deployer common.Address, salt [32]byte, permissions HookPermissions) common.Address {
	flags := EncodeHookPermissions(permissions)

	h := blake3.New()
	h.Write([]byte{0xff})
	h.Write(deployer.Bytes())
	h.Write(salt[:])

	var hash [32]byte
	h.Digest().Read(hash[:])

	var addr common.Address
	copy(addr[:], hash[12:32])
	binary.BigEndian.PutUint16(addr[0:2], uint16(flags))
	return addr
}
