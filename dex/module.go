// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package dex

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/darkpool/contract"
	"github.com/luxfi/darkpool/fhe"
	"github.com/luxfi/darkpool/modules"
)

var _ contract.StatefulPrecompiledContract = (*DarkPoolContract)(nil)

// ConfigKey is the key used in json config files to specify this precompile config.
const ConfigKey = "darkPoolConfig"

// DarkPoolPrecompile is the singleton instance.
var DarkPoolPrecompile = &DarkPoolContract{
	poolManager: NewPoolManager(fhe.NewEngine()),
}

// Module is the precompile module registration.
var Module = modules.Module{
	ConfigKey: ConfigKey,
	Address:   ContractDarkPoolAddress,
	Contract:  DarkPoolPrecompile,
}

func init() {
	if err := modules.RegisterModule(Module); err != nil {
		panic(err)
	}
}

// Method selectors
const (
	SelectorInitialize       uint32 = 0x01000000 // initialize(PoolKey,privacy,uint160)
	SelectorSwap             uint32 = 0x02000000 // swap(poolId,bool,uint256,uint256,address)
	SelectorSwapEncrypted    uint32 = 0x02000001 // swapEncrypted(poolId,ebool,euint128,euint128,address)
	SelectorDeposit          uint32 = 0x03000000 // deposit(poolId,int24,side,euint128,uint64,int24)
	SelectorWithdraw         uint32 = 0x03000001 // withdraw(poolId,int24,side,euint128)
	SelectorClaim            uint32 = 0x03000002 // claim(poolId,int24,side)
	SelectorAddLiquidity     uint32 = 0x04000000 // addLiquidity(poolId,uint256,uint256)
	SelectorRemoveLiquidity  uint32 = 0x04000001 // removeLiquidity(poolId,uint256)
	SelectorAddLiquidityEnc  uint32 = 0x04000002 // addLiquidityEncrypted(poolId,euint128,euint128)
	SelectorRemoveLiqEnc     uint32 = 0x04000003 // removeLiquidityEncrypted(poolId,euint128)
	SelectorSyncReserves     uint32 = 0x05000000 // trySyncReserves(poolId)
	SelectorPokeMomentum     uint32 = 0x05000001 // pokeMomentum(poolId)
	SelectorQueueProtocolFee uint32 = 0x06000000 // queueProtocolFee(poolId,uint24,uint64)
	SelectorApplyProtocolFee uint32 = 0x06000001 // applyProtocolFee(poolId)
	SelectorGetReserves      uint32 = 0x07000000 // getReserves(poolId)
	SelectorQuote            uint32 = 0x07000001 // quote(poolId,bool,uint256)
)

// Config configures the dark pool precompile.
type Config struct {
	ProtocolFeeController common.Address `json:"protocolFeeController,omitempty"`
	MaxBucketsPerSwap     int            `json:"maxBucketsPerSwap,omitempty"`
	MaxReserveStaleness   uint64         `json:"maxReserveStaleness,omitempty"`
}

func (c *Config) Key() string { return ConfigKey }

func (c *Config) Equal(other *Config) bool {
	if other == nil {
		return false
	}
	return c.ProtocolFeeController == other.ProtocolFeeController &&
		c.MaxBucketsPerSwap == other.MaxBucketsPerSwap &&
		c.MaxReserveStaleness == other.MaxReserveStaleness
}

func (c *Config) Verify() error {
	if c.MaxBucketsPerSwap < 0 {
		return fmt.Errorf("maxBucketsPerSwap must be non-negative")
	}
	return nil
}

// Configure applies the config to the singleton.
func (c *Config) Configure() {
	pm := DarkPoolPrecompile.poolManager
	if c.ProtocolFeeController != (common.Address{}) {
		pm.protocolFeeController = c.ProtocolFeeController
	}
	if c.MaxBucketsPerSwap > 0 {
		pm.maxBucketsPerSwap = c.MaxBucketsPerSwap
	}
	if c.MaxReserveStaleness > 0 {
		pm.maxReserveStaleness = c.MaxReserveStaleness
	}
}

// DarkPoolContract implements the dark pool precompile.
type DarkPoolContract struct {
	poolManager *PoolManager
}

// PoolManager exposes the underlying manager.
func (c *DarkPoolContract) PoolManager() *PoolManager { return c.poolManager }

// Run executes the precompile.
func (c *DarkPoolContract) Run(
	accessibleState contract.AccessibleState,
	caller common.Address,
	addr common.Address,
	input []byte,
	suppliedGas uint64,
	readOnly bool,
) (ret []byte, remainingGas uint64, err error) {
	if len(input) < 4 {
		return nil, suppliedGas, fmt.Errorf("input too short")
	}

	selector := binary.BigEndian.Uint32(input[:4])
	data := input[4:]

	remainingGas, err = contract.DeductGas(suppliedGas, c.RequiredGas(input))
	if err != nil {
		return nil, 0, err
	}

	if readOnly && mutates(selector) {
		return nil, remainingGas, contract.ErrWriteProtection
	}

	blockNumber := accessibleState.GetBlockContext().Number()

	switch selector {
	case SelectorInitialize:
		ret, err = c.runInitialize(data)
	case SelectorSwap:
		ret, err = c.runSwap(caller, data, blockNumber)
	case SelectorSwapEncrypted:
		ret, err = c.runSwapEncrypted(caller, data, blockNumber)
	case SelectorDeposit:
		ret, err = c.runDeposit(caller, data, blockNumber)
	case SelectorWithdraw:
		ret, err = c.runWithdraw(caller, data)
	case SelectorClaim:
		ret, err = c.runClaim(caller, data)
	case SelectorAddLiquidity:
		ret, err = c.runAddLiquidity(caller, data)
	case SelectorRemoveLiquidity:
		ret, err = c.runRemoveLiquidity(caller, data)
	case SelectorAddLiquidityEnc:
		ret, err = c.runAddLiquidityEnc(caller, data)
	case SelectorRemoveLiqEnc:
		ret, err = c.runRemoveLiqEnc(caller, data)
	case SelectorSyncReserves:
		ret, err = c.runSyncReserves(data, blockNumber)
	case SelectorPokeMomentum:
		ret, err = c.runPokeMomentum(data)
	case SelectorQueueProtocolFee:
		ret, err = c.runQueueProtocolFee(caller, data)
	case SelectorApplyProtocolFee:
		ret, err = c.runApplyProtocolFee(data, blockNumber)
	case SelectorGetReserves:
		ret, err = c.runGetReserves(data)
	case SelectorQuote:
		ret, err = c.runQuote(data)
	default:
		return nil, remainingGas, fmt.Errorf("unknown method selector: %x", selector)
	}

	return ret, remainingGas, err
}

// RequiredGas returns the gas cost for the given input.
func (c *DarkPoolContract) RequiredGas(input []byte) uint64 {
	if len(input) < 4 {
		return GasView
	}
	switch binary.BigEndian.Uint32(input[:4]) {
	case SelectorInitialize:
		return GasPoolCreate
	case SelectorSwap:
		return GasSwap
	case SelectorSwapEncrypted:
		return GasSwapEncrypted
	case SelectorDeposit:
		return GasOrderPlace
	case SelectorWithdraw:
		return GasOrderWithdraw
	case SelectorClaim:
		return GasOrderClaim
	case SelectorAddLiquidity, SelectorRemoveLiquidity:
		return GasLiquidity
	case SelectorAddLiquidityEnc, SelectorRemoveLiqEnc:
		return GasLiquidity + GasSwapEncrypted
	case SelectorSyncReserves, SelectorPokeMomentum:
		return GasReserveSync
	case SelectorQueueProtocolFee, SelectorApplyProtocolFee:
		return GasFeeAdmin
	default:
		return GasView
	}
}

func mutates(selector uint32) bool {
	switch selector {
	case SelectorGetReserves, SelectorQuote:
		return false
	default:
		return true
	}
}

// initialize: token0(20) token1(20) fee(4) spacing(4) hooks(20) priv0(1) priv1(1) sqrtPriceX96(32)
func (c *DarkPoolContract) runInitialize(input []byte) ([]byte, error) {
	if len(input) < 102 {
		return nil, fmt.Errorf("input too short for initialize")
	}
	key := PoolKey{
		Token0:      common.BytesToAddress(input[0:20]),
		Token1:      common.BytesToAddress(input[20:40]),
		Fee:         binary.BigEndian.Uint32(input[40:44]),
		TickSpacing: int24(binary.BigEndian.Uint32(input[44:48])),
		Hooks:       common.BytesToAddress(input[48:68]),
	}
	priv0 := PrivacyTier(input[68])
	priv1 := PrivacyTier(input[69])
	sqrtPrice := new(big.Int).SetBytes(input[70:102])

	id, err := c.poolManager.InitializePool(key, priv0, priv1, sqrtPrice)
	if err != nil {
		return nil, err
	}
	return id.Bytes(), nil
}

// swap: poolId(32) zeroForOne(1) amountIn(32) minOut(32) recipient(20)
func (c *DarkPoolContract) runSwap(caller common.Address, input []byte, blockNumber uint64) ([]byte, error) {
	if len(input) < 117 {
		return nil, fmt.Errorf("input too short for swap")
	}
	params := SwapParams{
		ZeroForOne:   input[32] == 1,
		AmountIn:     new(big.Int).SetBytes(input[33:65]),
		MinAmountOut: new(big.Int).SetBytes(input[65:97]),
		Recipient:    common.BytesToAddress(input[97:117]),
	}
	delta, err := c.poolManager.SwapForPool(caller, common.BytesToHash(input[0:32]), params, blockNumber)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 64)
	delta.Amount0.Abs(delta.Amount0).FillBytes(out[0:32])
	delta.Amount1.Abs(delta.Amount1).FillBytes(out[32:64])
	return out, nil
}

// swapEncrypted: poolId(32) dirHandle(32) amountHandle(32) minOutHandle(32) recipient(20)
func (c *DarkPoolContract) runSwapEncrypted(caller common.Address, input []byte, blockNumber uint64) ([]byte, error) {
	if len(input) < 148 {
		return nil, fmt.Errorf("input too short for swapEncrypted")
	}
	out, err := c.poolManager.SwapEncrypted(
		caller,
		common.BytesToHash(input[0:32]),
		fhe.Handle(common.BytesToHash(input[32:64])),
		fhe.Handle(common.BytesToHash(input[64:96])),
		fhe.Handle(common.BytesToHash(input[96:128])),
		common.BytesToAddress(input[128:148]),
		blockNumber,
	)
	if err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

// deposit: poolId(32) tick(4) side(1) amountHandle(32) deadline(8) maxDrift(4)
func (c *DarkPoolContract) runDeposit(caller common.Address, input []byte, blockNumber uint64) ([]byte, error) {
	if len(input) < 81 {
		return nil, fmt.Errorf("input too short for deposit")
	}
	err := c.poolManager.Deposit(
		caller,
		common.BytesToHash(input[0:32]),
		int24(binary.BigEndian.Uint32(input[32:36])),
		Side(input[36]),
		fhe.Handle(common.BytesToHash(input[37:69])),
		binary.BigEndian.Uint64(input[69:77]),
		int24(binary.BigEndian.Uint32(input[77:81])),
		blockNumber,
	)
	if err != nil {
		return nil, err
	}
	return []byte{1}, nil
}

// withdraw: poolId(32) tick(4) side(1) amountHandle(32)
func (c *DarkPoolContract) runWithdraw(caller common.Address, input []byte) ([]byte, error) {
	if len(input) < 69 {
		return nil, fmt.Errorf("input too short for withdraw")
	}
	h, err := c.poolManager.Withdraw(
		caller,
		common.BytesToHash(input[0:32]),
		int24(binary.BigEndian.Uint32(input[32:36])),
		Side(input[36]),
		fhe.Handle(common.BytesToHash(input[37:69])),
	)
	if err != nil {
		return nil, err
	}
	return h.Bytes(), nil
}

// claim: poolId(32) tick(4) side(1)
func (c *DarkPoolContract) runClaim(caller common.Address, input []byte) ([]byte, error) {
	if len(input) < 37 {
		return nil, fmt.Errorf("input too short for claim")
	}
	h, err := c.poolManager.Claim(
		caller,
		common.BytesToHash(input[0:32]),
		int24(binary.BigEndian.Uint32(input[32:36])),
		Side(input[36]),
	)
	if err != nil {
		return nil, err
	}
	return h.Bytes(), nil
}

// addLiquidity: poolId(32) amount0(32) amount1(32)
func (c *DarkPoolContract) runAddLiquidity(caller common.Address, input []byte) ([]byte, error) {
	if len(input) < 96 {
		return nil, fmt.Errorf("input too short for addLiquidity")
	}
	minted, err := c.poolManager.AddLiquidity(
		caller,
		common.BytesToHash(input[0:32]),
		new(big.Int).SetBytes(input[32:64]),
		new(big.Int).SetBytes(input[64:96]),
	)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 32)
	minted.FillBytes(out)
	return out, nil
}

// removeLiquidity: poolId(32) lpAmount(32)
func (c *DarkPoolContract) runRemoveLiquidity(caller common.Address, input []byte) ([]byte, error) {
	if len(input) < 64 {
		return nil, fmt.Errorf("input too short for removeLiquidity")
	}
	delta, err := c.poolManager.RemoveLiquidity(
		caller,
		common.BytesToHash(input[0:32]),
		new(big.Int).SetBytes(input[32:64]),
	)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 64)
	delta.Amount0.FillBytes(out[0:32])
	delta.Amount1.FillBytes(out[32:64])
	return out, nil
}

// addLiquidityEncrypted: poolId(32) handle0(32) handle1(32)
func (c *DarkPoolContract) runAddLiquidityEnc(caller common.Address, input []byte) ([]byte, error) {
	if len(input) < 96 {
		return nil, fmt.Errorf("input too short for addLiquidityEncrypted")
	}
	minted, err := c.poolManager.AddLiquidityEncrypted(
		caller,
		common.BytesToHash(input[0:32]),
		fhe.Handle(common.BytesToHash(input[32:64])),
		fhe.Handle(common.BytesToHash(input[64:96])),
	)
	if err != nil {
		return nil, err
	}
	return minted.Bytes(), nil
}

// removeLiquidityEncrypted: poolId(32) lpHandle(32)
func (c *DarkPoolContract) runRemoveLiqEnc(caller common.Address, input []byte) ([]byte, error) {
	if len(input) < 64 {
		return nil, fmt.Errorf("input too short for removeLiquidityEncrypted")
	}
	out0, out1, err := c.poolManager.RemoveLiquidityEncrypted(
		caller,
		common.BytesToHash(input[0:32]),
		fhe.Handle(common.BytesToHash(input[32:64])),
	)
	if err != nil {
		return nil, err
	}
	return append(out0.Bytes(), out1.Bytes()...), nil
}

// trySyncReserves: poolId(32)
func (c *DarkPoolContract) runSyncReserves(input []byte, blockNumber uint64) ([]byte, error) {
	if len(input) < 32 {
		return nil, fmt.Errorf("input too short for sync")
	}
	id, err := c.poolManager.TrySyncReserves(common.BytesToHash(input[0:32]), blockNumber)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 8)
	binary.BigEndian.PutUint64(out, id)
	return out, nil
}

// pokeMomentum: poolId(32)
func (c *DarkPoolContract) runPokeMomentum(input []byte) ([]byte, error) {
	if len(input) < 32 {
		return nil, fmt.Errorf("input too short for poke")
	}
	if err := c.poolManager.PokeMomentum(common.BytesToHash(input[0:32])); err != nil {
		return nil, err
	}
	return []byte{1}, nil
}

// queueProtocolFee: poolId(32) feeBps(4) effectiveBlock(8)
func (c *DarkPoolContract) runQueueProtocolFee(caller common.Address, input []byte) ([]byte, error) {
	if len(input) < 44 {
		return nil, fmt.Errorf("input too short for queueProtocolFee")
	}
	err := c.poolManager.QueueProtocolFee(
		caller,
		common.BytesToHash(input[0:32]),
		binary.BigEndian.Uint32(input[32:36]),
		binary.BigEndian.Uint64(input[36:44]),
	)
	if err != nil {
		return nil, err
	}
	return []byte{1}, nil
}

// applyProtocolFee: poolId(32)
func (c *DarkPoolContract) runApplyProtocolFee(input []byte, blockNumber uint64) ([]byte, error) {
	if len(input) < 32 {
		return nil, fmt.Errorf("input too short for applyProtocolFee")
	}
	if err := c.poolManager.ApplyProtocolFee(common.BytesToHash(input[0:32]), blockNumber); err != nil {
		return nil, err
	}
	return []byte{1}, nil
}

// getReserves: poolId(32) -> reserve0(32) reserve1(32) tick(4)
func (c *DarkPoolContract) runGetReserves(input []byte) ([]byte, error) {
	if len(input) < 32 {
		return nil, fmt.Errorf("input too short for getReserves")
	}
	pool, err := c.poolManager.GetPool(common.BytesToHash(input[0:32]))
	if err != nil {
		return nil, err
	}
	out := make([]byte, 68)
	pool.Reserves.Reserve0.FillBytes(out[0:32])
	pool.Reserves.Reserve1.FillBytes(out[32:64])
	binary.BigEndian.PutUint32(out[64:68], uint32(pool.Reserves.Tick))
	return out, nil
}

// quote: poolId(32) zeroForOne(1) amountIn(32)
func (c *DarkPoolContract) runQuote(input []byte) ([]byte, error) {
	if len(input) < 65 {
		return nil, fmt.Errorf("input too short for quote")
	}
	amountOut, err := c.poolManager.Quote(
		common.BytesToHash(input[0:32]),
		input[32] == 1,
		new(big.Int).SetBytes(input[33:65]),
	)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 32)
	amountOut.FillBytes(out)
	return out, nil
}
