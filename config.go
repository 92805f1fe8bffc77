package multipay

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Config is the engine's process-wide configuration, scoped to one instance
// and mutated only through the gated setters.
type Config struct {
	FeeRecipient common.Address `json:"feeRecipient"`
	FeeRate      *big.Int       `json:"feeRate"`
	Router       common.Address `json:"router"`
	IsSwapV2     bool           `json:"isSwapV2"`
}

// Initialize performs the one-time setup of an engine instance. It must be
// called before any other mutating entry point and fails on a second call.
// The caller must hold the admin permission.
func (e *Engine) Initialize(caller common.Address, params InitializeParams) error {
	if err := e.auth.Authorize(caller, PermissionAdmin); err != nil {
		return err
	}
	if params.Router == (common.Address{}) {
		return NewSettlementError(ErrCodeZeroAddress, "router is the zero address", nil)
	}
	if params.FeeRecipient == (common.Address{}) {
		return NewSettlementError(ErrCodeZeroAddress, "fee recipient is the zero address", nil)
	}
	rate, err := parseFeeRate(params.FeeRate)
	if err != nil {
		return err
	}

	e.cfgMu.Lock()
	if e.initialized {
		e.cfgMu.Unlock()
		return NewSettlementError(ErrCodeAlreadyInitialized, "engine is already initialized", nil)
	}
	e.router = params.Router
	e.isSwapV2 = params.IsSwapV2
	e.feeRecipient = params.FeeRecipient
	e.feeRate = rate
	e.initialized = true
	e.cfgMu.Unlock()

	e.sink.Emit(SwapRouterChanged{Router: params.Router, IsSwapV2: params.IsSwapV2})
	e.sink.Emit(FeeAddressChanged{FeeAddress: params.FeeRecipient})
	e.sink.Emit(FeeChanged{Fee: rate.ToBig()})
	return nil
}

// SetFee updates the 1e18-scaled fee rate. Rates at or above 3e16 (3%) fail
// with the fee-cap error. Admin only.
func (e *Engine) SetFee(caller common.Address, rate *big.Int) error {
	if err := e.auth.Authorize(caller, PermissionAdmin); err != nil {
		return err
	}
	if err := e.requireInitialized(); err != nil {
		return err
	}
	parsed, err := parseFeeRate(rate)
	if err != nil {
		return err
	}

	e.cfgMu.Lock()
	e.feeRate = parsed
	e.cfgMu.Unlock()

	e.sink.Emit(FeeChanged{Fee: parsed.ToBig()})
	return nil
}

// SetFeeAddress updates the fee recipient. Admin only.
func (e *Engine) SetFeeAddress(caller, feeRecipient common.Address) error {
	if err := e.auth.Authorize(caller, PermissionAdmin); err != nil {
		return err
	}
	if err := e.requireInitialized(); err != nil {
		return err
	}
	if feeRecipient == (common.Address{}) {
		return NewSettlementError(ErrCodeZeroAddress, "fee recipient is the zero address", nil)
	}

	e.cfgMu.Lock()
	e.feeRecipient = feeRecipient
	e.cfgMu.Unlock()

	e.sink.Emit(FeeAddressChanged{FeeAddress: feeRecipient})
	return nil
}

// SetRouter updates the router address and protocol selection. Admin only.
func (e *Engine) SetRouter(caller, router common.Address, isSwapV2 bool) error {
	if err := e.auth.Authorize(caller, PermissionAdmin); err != nil {
		return err
	}
	if err := e.requireInitialized(); err != nil {
		return err
	}
	if router == (common.Address{}) {
		return NewSettlementError(ErrCodeZeroAddress, "router is the zero address", nil)
	}

	e.cfgMu.Lock()
	e.router = router
	e.isSwapV2 = isSwapV2
	e.cfgMu.Unlock()

	e.sink.Emit(SwapRouterChanged{Router: router, IsSwapV2: isSwapV2})
	return nil
}

// Config returns a copy of the current configuration. Callers across
// separate calls may observe a stale configuration; no versioning is
// provided.
func (e *Engine) Config() Config {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return Config{
		FeeRecipient: e.feeRecipient,
		FeeRate:      e.feeRate.ToBig(),
		Router:       e.router,
		IsSwapV2:     e.isSwapV2,
	}
}

// Initialized reports whether Initialize has completed.
func (e *Engine) Initialized() bool {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.initialized
}

func (e *Engine) requireInitialized() error {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	if !e.initialized {
		return NewSettlementError(ErrCodeNotInitialized, "engine is not initialized", nil)
	}
	return nil
}
