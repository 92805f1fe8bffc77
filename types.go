package multipay

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PaymentInstruction describes one one-to-many disbursement: Amounts[i] of
// Token moves from the payer to Receivers[i]. Constructed per call, never
// persisted.
type PaymentInstruction struct {
	Token     common.Address   `json:"token"`
	Receivers []common.Address `json:"receivers"`
	Amounts   []*big.Int       `json:"amounts"`
}

// validate applies the instruction-level invariants in deterministic order:
// token-zero, then empty amounts, then length mismatch. The per-receiver
// zero check happens inside the transfer loop so the error identifies the
// offending index.
func (p PaymentInstruction) validate() error {
	if p.Token == (common.Address{}) {
		return NewSettlementError(ErrCodeZeroTokenAddress, "instruction token is the zero address", nil)
	}
	if len(p.Amounts) == 0 {
		return NewSettlementError(ErrCodeEmptyAmounts, "instruction has no amounts", nil)
	}
	if len(p.Amounts) != len(p.Receivers) {
		return NewSettlementError(ErrCodeLengthMismatch, "receivers and amounts length mismatch", map[string]interface{}{
			"receivers": len(p.Receivers),
			"amounts":   len(p.Amounts),
		})
	}
	for i, amount := range p.Amounts {
		if amount == nil || amount.Sign() < 0 {
			return NewSettlementError(ErrCodeInvalidAmount, "amount must be a non-negative integer", map[string]interface{}{
				"index": i,
			})
		}
	}
	return nil
}

// SwapLegV2 is one exact-output swap routed over the V2 path-array protocol.
// Path[0] must equal the request's origin token.
type SwapLegV2 struct {
	AmountOut   *big.Int         `json:"amountOut"`
	MaxAmountIn *big.Int         `json:"maxAmountIn"`
	PoolFee     uint32           `json:"poolFee"`
	Path        []common.Address `json:"path"`
}

// SwapLegV3 is one exact-output swap routed over the V3 packed-path protocol.
// EncodedPath is opaque to the engine and forwarded to the router as-is.
type SwapLegV3 struct {
	TargetToken common.Address `json:"targetToken"`
	AmountOut   *big.Int       `json:"amountOut"`
	MaxAmountIn *big.Int       `json:"maxAmountIn"`
	PoolFee     uint32         `json:"poolFee"`
	EncodedPath []byte         `json:"encodedPath"`
}

// SwapRequest bundles the swap step of a settlement. Exactly one of V2Legs
// and V3Legs may be non-empty, and it must match the protocol the engine is
// configured for.
type SwapRequest struct {
	Origin        common.Address `json:"origin"`
	TotalAmountIn *big.Int       `json:"totalAmountIn"`
	Deadline      *big.Int       `json:"deadline"`
	V2Legs        []SwapLegV2    `json:"v2Legs,omitempty"`
	V3Legs        []SwapLegV3    `json:"v3Legs,omitempty"`
}

func (r SwapRequest) empty() bool {
	return len(r.V2Legs) == 0 && len(r.V3Legs) == 0
}

// validate applies the amount-level invariants: TotalAmountIn may be nil
// (meaning zero), but every leg's AmountOut and MaxAmountIn must be a
// non-negative integer.
func (r SwapRequest) validate() error {
	if r.TotalAmountIn != nil && r.TotalAmountIn.Sign() < 0 {
		return NewSettlementError(ErrCodeInvalidAmount, "total amount in must be a non-negative integer", nil)
	}
	for i, leg := range r.V2Legs {
		if err := validateLegAmounts(leg.AmountOut, leg.MaxAmountIn, i); err != nil {
			return err
		}
	}
	for i, leg := range r.V3Legs {
		if err := validateLegAmounts(leg.AmountOut, leg.MaxAmountIn, i); err != nil {
			return err
		}
	}
	return nil
}

func validateLegAmounts(amountOut, maxAmountIn *big.Int, index int) error {
	for _, v := range []*big.Int{amountOut, maxAmountIn} {
		if v == nil || v.Sign() < 0 {
			return NewSettlementError(ErrCodeInvalidAmount, "leg amount must be a non-negative integer", map[string]interface{}{
				"leg": index,
			})
		}
	}
	return nil
}

// InitializeParams is the one-time setup payload for an engine instance.
type InitializeParams struct {
	Router       common.Address `json:"router"`
	IsSwapV2     bool           `json:"isSwapV2"`
	FeeRecipient common.Address `json:"feeRecipient"`
	FeeRate      *big.Int       `json:"feeRate"`
}

// SwapReceipt summarizes a completed swap step.
type SwapReceipt struct {
	TotalAmountIn *big.Int `json:"totalAmountIn"`
	Refunded      *big.Int `json:"refunded"`
}

// PaymentReceipt summarizes a completed batch payment.
type PaymentReceipt struct {
	Transfers int                         `json:"transfers"`
	Fees      map[common.Address]*big.Int `json:"fees"`
}

func (r *PaymentReceipt) addFee(token common.Address, amount *big.Int) {
	if r.Fees == nil {
		r.Fees = make(map[common.Address]*big.Int)
	}
	prev, ok := r.Fees[token]
	if !ok {
		prev = new(big.Int)
	}
	r.Fees[token] = new(big.Int).Add(prev, amount)
}

// SettlementReceipt is the result of a composite swap-and-payment call.
type SettlementReceipt struct {
	ID      string          `json:"id"`
	Swap    *SwapReceipt    `json:"swap,omitempty"`
	Payment *PaymentReceipt `json:"payment"`
}

// bigOrZero normalizes optional amounts so callers may leave them nil.
func bigOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
