// Package multipay implements a batch-settlement engine: it atomically moves
// tokens from a payer to many receivers, optionally preceded by a currency
// conversion routed through an external exchange router in one of two
// incompatible protocol shapes.
//
// The engine holds no funds between calls. Payers pre-authorize it to move
// their tokens; every entry point either commits all of its effects or none
// of them. On backends without native transaction semantics, atomicity is
// reproduced through the optional SnapshotBackend interface.
package multipay

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/paydeck/multipay/router"
)

// Engine is one deployed settlement instance.
type Engine struct {
	address common.Address
	backend TokenBackend
	auth    Authorizer
	sink    EventSink

	routerV2 router.V2
	routerV3 router.V3

	guard reentrancyGuard

	cfgMu        sync.RWMutex
	initialized  bool
	router       common.Address
	isSwapV2     bool
	feeRecipient common.Address
	feeRate      *uint256.Int

	beforePaymentHooks  []BeforePaymentHook
	afterPaymentHooks   []AfterPaymentHook
	paymentFailureHooks []PaymentFailureHook
	beforeSwapHooks     []BeforeSwapHook
	afterSwapHooks      []AfterSwapHook
	swapFailureHooks    []SwapFailureHook
}

// EngineOption configures a new engine.
type EngineOption func(*Engine)

// WithAuthorizer replaces the default role-based authorizer.
func WithAuthorizer(auth Authorizer) EngineOption {
	return func(e *Engine) { e.auth = auth }
}

// WithEventSink replaces the default in-memory event sink.
func WithEventSink(sink EventSink) EngineOption {
	return func(e *Engine) { e.sink = sink }
}

// WithRouterV2 wires the V2 router implementation.
func WithRouterV2(r router.V2) EngineOption {
	return func(e *Engine) { e.routerV2 = r }
}

// WithRouterV3 wires the V3 router implementation.
func WithRouterV3(r router.V3) EngineOption {
	return func(e *Engine) { e.routerV3 = r }
}

// NewEngine creates an engine instance identified by address, settling
// against backend. The deployer is granted the admin and payer roles under
// the default role-based authorizer. The instance accepts no payments until
// Initialize has run.
func NewEngine(address, deployer common.Address, backend TokenBackend, opts ...EngineOption) *Engine {
	e := &Engine{
		address: address,
		backend: backend,
		auth:    NewRoleAuthorizer(deployer),
		sink:    NewMemorySink(),
		feeRate: new(uint256.Int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Address returns the engine's own token-holding identity.
func (e *Engine) Address() common.Address {
	return e.address
}

// ApproveTokens grants the configured router unlimited spend authority over
// the engine's balance of each token. Idempotent; a failing grant propagates
// and aborts the call. Admin only.
func (e *Engine) ApproveTokens(ctx context.Context, caller common.Address, tokens []common.Address) error {
	if err := e.guard.enter(); err != nil {
		return err
	}
	defer e.guard.leave()
	if err := e.requireInitialized(); err != nil {
		return err
	}
	if err := e.auth.Authorize(caller, PermissionAdmin); err != nil {
		return err
	}

	spender := e.Config().Router
	snap, hasSnap := e.snapshot()
	for _, token := range tokens {
		if err := e.backend.Approve(ctx, token, e.address, spender, math.MaxBig256); err != nil {
			e.revert(snap, hasSnap)
			return err
		}
	}
	return nil
}

// PerformMultiPayment validates and executes the disbursement instructions
// in order, moving each amount from the caller to its receiver and settling
// the accumulated proportional fee per instruction as one extra transfer.
// Any failure reverts every transfer of the call. Payer only.
func (e *Engine) PerformMultiPayment(ctx context.Context, caller common.Address, instructions []PaymentInstruction) (*PaymentReceipt, error) {
	if err := e.guard.enter(); err != nil {
		return nil, err
	}
	defer e.guard.leave()
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	if err := e.auth.Authorize(caller, PermissionPayer); err != nil {
		return nil, err
	}

	frame := &callFrame{}
	snap, hasSnap := e.snapshot()
	receipt, err := e.runPayment(ctx, frame, caller, instructions)
	if err != nil {
		e.revert(snap, hasSnap)
		return nil, err
	}
	frame.flush(e.sink)
	return receipt, nil
}

// PerformSwap pulls the origin amount from the caller and spends it through
// the configured router protocol, one leg at a time, with swap output going
// directly to the caller. Whatever origin balance remains on the engine
// afterwards is returned to the caller in full. Payer only.
func (e *Engine) PerformSwap(ctx context.Context, caller common.Address, req SwapRequest) (*SwapReceipt, error) {
	if err := e.guard.enter(); err != nil {
		return nil, err
	}
	defer e.guard.leave()
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	if err := e.auth.Authorize(caller, PermissionPayer); err != nil {
		return nil, err
	}
	if req.empty() {
		return &SwapReceipt{TotalAmountIn: new(big.Int), Refunded: new(big.Int)}, nil
	}

	frame := &callFrame{}
	snap, hasSnap := e.snapshot()
	receipt, err := e.runSwap(ctx, frame, caller, req)
	if err != nil {
		e.revert(snap, hasSnap)
		return nil, err
	}
	frame.flush(e.sink)
	return receipt, nil
}

// PerformSwapAndPayment runs the swap step (skipped entirely when swap is
// nil or has no legs) followed by the batch payment, as a single atomic
// unit: a failure in either step unwinds both. Payer only.
func (e *Engine) PerformSwapAndPayment(ctx context.Context, caller common.Address, swap *SwapRequest, instructions []PaymentInstruction) (*SettlementReceipt, error) {
	if err := e.guard.enter(); err != nil {
		return nil, err
	}
	defer e.guard.leave()
	if err := e.requireInitialized(); err != nil {
		return nil, err
	}
	if err := e.auth.Authorize(caller, PermissionPayer); err != nil {
		return nil, err
	}

	frame := &callFrame{}
	snap, hasSnap := e.snapshot()

	receipt := &SettlementReceipt{ID: uuid.NewString()}
	if swap != nil && !swap.empty() {
		swapReceipt, err := e.runSwap(ctx, frame, caller, *swap)
		if err != nil {
			e.revert(snap, hasSnap)
			return nil, err
		}
		receipt.Swap = swapReceipt
	}

	paymentReceipt, err := e.runPayment(ctx, frame, caller, instructions)
	if err != nil {
		e.revert(snap, hasSnap)
		return nil, err
	}
	receipt.Payment = paymentReceipt

	frame.flush(e.sink)
	return receipt, nil
}

// ============================================================================
// Internal execution (called with the guard held)
// ============================================================================

func (e *Engine) runPayment(ctx context.Context, frame *callFrame, caller common.Address, instructions []PaymentInstruction) (*PaymentReceipt, error) {
	hookCtx := PaymentContext{
		Ctx:          ctx,
		Caller:       caller,
		Instructions: instructions,
		Timestamp:    time.Now(),
	}
	for _, hook := range e.beforePaymentHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return nil, NewSettlementError(ErrCodeHookAborted, result.Reason, nil)
		}
	}

	start := time.Now()
	receipt, err := e.performMultiPayment(ctx, frame, caller, instructions)
	if err != nil {
		failureCtx := PaymentFailureContext{PaymentContext: hookCtx, Error: err, Duration: time.Since(start)}
		for _, hook := range e.paymentFailureHooks {
			hook(failureCtx)
		}
		return nil, err
	}

	resultCtx := PaymentResultContext{PaymentContext: hookCtx, Receipt: receipt, Duration: time.Since(start)}
	for _, hook := range e.afterPaymentHooks {
		_ = hook(resultCtx) // observers only, never fail the call
	}
	return receipt, nil
}

func (e *Engine) runSwap(ctx context.Context, frame *callFrame, caller common.Address, req SwapRequest) (*SwapReceipt, error) {
	hookCtx := SwapContext{
		Ctx:       ctx,
		Caller:    caller,
		Request:   req,
		Timestamp: time.Now(),
	}
	for _, hook := range e.beforeSwapHooks {
		result, err := hook(hookCtx)
		if err != nil {
			return nil, err
		}
		if result != nil && result.Abort {
			return nil, NewSettlementError(ErrCodeHookAborted, result.Reason, nil)
		}
	}

	start := time.Now()
	receipt, err := e.performSwap(ctx, frame, caller, req)
	if err != nil {
		failureCtx := SwapFailureContext{SwapContext: hookCtx, Error: err, Duration: time.Since(start)}
		for _, hook := range e.swapFailureHooks {
			hook(failureCtx)
		}
		return nil, err
	}

	resultCtx := SwapResultContext{SwapContext: hookCtx, Receipt: receipt, Duration: time.Since(start)}
	for _, hook := range e.afterSwapHooks {
		_ = hook(resultCtx)
	}
	return receipt, nil
}

func (e *Engine) performMultiPayment(ctx context.Context, frame *callFrame, payer common.Address, instructions []PaymentInstruction) (*PaymentReceipt, error) {
	e.cfgMu.RLock()
	feeRecipient := e.feeRecipient
	feeRate := e.feeRate.Clone()
	e.cfgMu.RUnlock()

	receipt := &PaymentReceipt{Fees: make(map[common.Address]*big.Int)}
	for _, inst := range instructions {
		if err := inst.validate(); err != nil {
			return nil, err
		}

		accumulatedFee := new(big.Int)
		for i := range inst.Receivers {
			receiver := inst.Receivers[i]
			amount := inst.Amounts[i]
			if receiver == (common.Address{}) {
				return nil, NewSettlementError(ErrCodeZeroReceiverAddress, "receiver is the zero address", map[string]interface{}{
					"index": i,
				})
			}
			if err := e.backend.TransferFrom(ctx, inst.Token, e.address, payer, receiver, amount); err != nil {
				return nil, err
			}
			portion, err := feePortion(amount, feeRate)
			if err != nil {
				return nil, err
			}
			accumulatedFee.Add(accumulatedFee, portion)
			receipt.Transfers++
		}

		frame.emit(BatchPaymentFinished{Token: inst.Token, Receivers: inst.Receivers, Amounts: inst.Amounts})

		if accumulatedFee.Sign() > 0 {
			if err := e.backend.TransferFrom(ctx, inst.Token, e.address, payer, feeRecipient, accumulatedFee); err != nil {
				return nil, err
			}
		}
		// Emitted even when the accumulated fee is zero; deployed observers
		// depend on one FeeCharged per instruction.
		frame.emit(FeeCharged{Token: inst.Token, FeeAddress: feeRecipient, Amount: accumulatedFee})
		receipt.addFee(inst.Token, accumulatedFee)
	}
	return receipt, nil
}

func (e *Engine) performSwap(ctx context.Context, frame *callFrame, caller common.Address, req SwapRequest) (*SwapReceipt, error) {
	e.cfgMu.RLock()
	isSwapV2 := e.isSwapV2
	e.cfgMu.RUnlock()

	hasV2 := len(req.V2Legs) > 0
	hasV3 := len(req.V3Legs) > 0
	if hasV2 && hasV3 {
		return nil, NewSettlementError(ErrCodeWrongProtocolVersion, "request mixes V2 and V3 legs", nil)
	}
	if isSwapV2 && hasV3 {
		return nil, NewSettlementError(ErrCodeWrongProtocolVersion, "engine is configured for V2 swaps", nil)
	}
	if !isSwapV2 && hasV2 {
		return nil, NewSettlementError(ErrCodeWrongProtocolVersion, "engine is configured for V3 swaps", nil)
	}
	if req.Origin == (common.Address{}) {
		return nil, NewSettlementError(ErrCodeZeroTokenAddress, "origin token is the zero address", nil)
	}
	if err := req.validate(); err != nil {
		return nil, err
	}

	totalToSwap := bigOrZero(req.TotalAmountIn)
	if totalToSwap.Sign() > 0 {
		if err := e.backend.TransferFrom(ctx, req.Origin, e.address, caller, e.address, totalToSwap); err != nil {
			return nil, err
		}
	}

	totalAmountIn := new(big.Int)
	if isSwapV2 {
		if e.routerV2 == nil {
			return nil, NewSettlementError(ErrCodeRouterNotConfigured, "no V2 router wired", nil)
		}
		for _, leg := range req.V2Legs {
			if len(leg.Path) == 0 || leg.Path[0] != req.Origin {
				return nil, NewSettlementError(ErrCodeWrongSwapOrigin, "swap path does not start at the origin token", nil)
			}
			amounts, err := e.routerV2.SwapTokensForExactTokens(ctx, leg.AmountOut, leg.MaxAmountIn, leg.Path, caller, req.Deadline)
			if err != nil {
				return nil, err
			}
			if len(amounts) == 0 || amounts[0] == nil {
				return nil, NewSettlementError(ErrCodeRouterNotConfigured, "router returned no input amount", nil)
			}
			amountIn := amounts[0]
			totalAmountIn.Add(totalAmountIn, amountIn)
			frame.emit(SwapFinished{TokenIn: req.Origin, TokenOut: leg.Path[len(leg.Path)-1], AmountIn: amountIn})
		}
	} else {
		if e.routerV3 == nil {
			return nil, NewSettlementError(ErrCodeRouterNotConfigured, "no V3 router wired", nil)
		}
		for _, leg := range req.V3Legs {
			amountIn, err := e.routerV3.ExactOutput(ctx, router.ExactOutputParams{
				Path:            leg.EncodedPath,
				Recipient:       caller,
				Deadline:        req.Deadline,
				AmountOut:       leg.AmountOut,
				AmountInMaximum: leg.MaxAmountIn,
			})
			if err != nil {
				return nil, err
			}
			if amountIn == nil {
				return nil, NewSettlementError(ErrCodeRouterNotConfigured, "router returned no input amount", nil)
			}
			totalAmountIn.Add(totalAmountIn, amountIn)
			frame.emit(SwapFinished{TokenIn: req.Origin, TokenOut: leg.TargetToken, AmountIn: amountIn})
		}
	}

	// Whatever origin balance the engine holds after the legs (over-approved,
	// under-spent) goes back to the caller in full.
	refunded := new(big.Int)
	leftover, err := e.backend.BalanceOf(ctx, req.Origin, e.address)
	if err != nil {
		return nil, err
	}
	if leftover.Sign() > 0 {
		if err := e.backend.Transfer(ctx, req.Origin, e.address, caller, leftover); err != nil {
			return nil, err
		}
		refunded = leftover
	}

	return &SwapReceipt{TotalAmountIn: totalAmountIn, Refunded: refunded}, nil
}

func (e *Engine) snapshot() (int, bool) {
	if sb, ok := e.backend.(SnapshotBackend); ok {
		return sb.Snapshot(), true
	}
	return 0, false
}

func (e *Engine) revert(id int, ok bool) {
	if ok {
		e.backend.(SnapshotBackend).RevertToSnapshot(id)
	}
}
