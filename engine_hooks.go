package multipay

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ============================================================================
// Hook Context Types
// ============================================================================

// PaymentContext contains information passed to payment hooks
type PaymentContext struct {
	Ctx          context.Context
	Caller       common.Address
	Instructions []PaymentInstruction
	Timestamp    time.Time
}

// PaymentResultContext contains a payment operation result and context
type PaymentResultContext struct {
	PaymentContext
	Receipt  *PaymentReceipt
	Duration time.Duration
}

// PaymentFailureContext contains a payment operation failure and context
type PaymentFailureContext struct {
	PaymentContext
	Error    error
	Duration time.Duration
}

// SwapContext contains information passed to swap hooks
type SwapContext struct {
	Ctx       context.Context
	Caller    common.Address
	Request   SwapRequest
	Timestamp time.Time
}

// SwapResultContext contains a swap operation result and context
type SwapResultContext struct {
	SwapContext
	Receipt  *SwapReceipt
	Duration time.Duration
}

// SwapFailureContext contains a swap operation failure and context
type SwapFailureContext struct {
	SwapContext
	Error    error
	Duration time.Duration
}

// BeforeHookResult represents the result of a "before" hook.
// If Abort is true, the operation will be aborted with the given Reason.
type BeforeHookResult struct {
	Abort  bool
	Reason string
}

// ============================================================================
// Hook Function Types
// ============================================================================

// BeforePaymentHook runs before a batch payment executes and may abort it
type BeforePaymentHook func(ctx PaymentContext) (*BeforeHookResult, error)

// AfterPaymentHook runs after a batch payment commits; errors are ignored
type AfterPaymentHook func(ctx PaymentResultContext) error

// PaymentFailureHook observes a failed batch payment
type PaymentFailureHook func(ctx PaymentFailureContext)

// BeforeSwapHook runs before a swap executes and may abort it
type BeforeSwapHook func(ctx SwapContext) (*BeforeHookResult, error)

// AfterSwapHook runs after a swap commits; errors are ignored
type AfterSwapHook func(ctx SwapResultContext) error

// SwapFailureHook observes a failed swap
type SwapFailureHook func(ctx SwapFailureContext)

// ============================================================================
// Hook Registration Methods
// ============================================================================

func (e *Engine) OnBeforePayment(hook BeforePaymentHook) *Engine {
	e.beforePaymentHooks = append(e.beforePaymentHooks, hook)
	return e
}

func (e *Engine) OnAfterPayment(hook AfterPaymentHook) *Engine {
	e.afterPaymentHooks = append(e.afterPaymentHooks, hook)
	return e
}

func (e *Engine) OnPaymentFailure(hook PaymentFailureHook) *Engine {
	e.paymentFailureHooks = append(e.paymentFailureHooks, hook)
	return e
}

func (e *Engine) OnBeforeSwap(hook BeforeSwapHook) *Engine {
	e.beforeSwapHooks = append(e.beforeSwapHooks, hook)
	return e
}

func (e *Engine) OnAfterSwap(hook AfterSwapHook) *Engine {
	e.afterSwapHooks = append(e.afterSwapHooks, hook)
	return e
}

func (e *Engine) OnSwapFailure(hook SwapFailureHook) *Engine {
	e.swapFailureHooks = append(e.swapFailureHooks, hook)
	return e
}
