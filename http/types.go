package http

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"

	multipay "github.com/paydeck/multipay"
)

// Wire types. Amounts travel as decimal strings, addresses as 0x-hex,
// byte sequences as 0x-hex.

type instructionBody struct {
	Token     string   `json:"token"`
	Receivers []string `json:"receivers"`
	Amounts   []string `json:"amounts"`
}

type swapLegV2Body struct {
	AmountOut   string   `json:"amountOut"`
	MaxAmountIn string   `json:"maxAmountIn"`
	PoolFee     uint32   `json:"poolFee"`
	Path        []string `json:"path"`
}

type swapLegV3Body struct {
	TargetToken string `json:"targetToken"`
	AmountOut   string `json:"amountOut"`
	MaxAmountIn string `json:"maxAmountIn"`
	PoolFee     uint32 `json:"poolFee"`
	EncodedPath string `json:"encodedPath"`
}

type swapBody struct {
	Origin        string          `json:"origin"`
	TotalAmountIn string          `json:"totalAmountIn"`
	Deadline      int64           `json:"deadline,omitempty"`
	V2Legs        []swapLegV2Body `json:"v2Legs,omitempty"`
	V3Legs        []swapLegV3Body `json:"v3Legs,omitempty"`
}

type settlementBody struct {
	Payer        string            `json:"payer"`
	Swap         *swapBody         `json:"swap,omitempty"`
	Instructions []instructionBody `json:"instructions"`
}

type approvalBody struct {
	Caller string   `json:"caller"`
	Tokens []string `json:"tokens"`
}

type setFeeBody struct {
	Caller string `json:"caller"`
	Fee    string `json:"fee"`
}

type setFeeAddressBody struct {
	Caller     string `json:"caller"`
	FeeAddress string `json:"feeAddress"`
}

type setRouterBody struct {
	Caller   string `json:"caller"`
	Router   string `json:"router"`
	IsSwapV2 bool   `json:"isSwapV2"`
}

type initializeBody struct {
	Caller       string `json:"caller"`
	Router       string `json:"router"`
	IsSwapV2     bool   `json:"isSwapV2"`
	FeeRecipient string `json:"feeRecipient"`
	FeeRate      string `json:"feeRate"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type swapReceiptBody struct {
	TotalAmountIn string `json:"totalAmountIn"`
	Refunded      string `json:"refunded"`
}

type paymentReceiptBody struct {
	Transfers int               `json:"transfers"`
	Fees      map[string]string `json:"fees"`
}

type settlementReceiptBody struct {
	ID      string              `json:"id"`
	Swap    *swapReceiptBody    `json:"swap,omitempty"`
	Payment *paymentReceiptBody `json:"payment,omitempty"`
}

type configBody struct {
	FeeRecipient string `json:"feeRecipient"`
	FeeRate      string `json:"feeRate"`
	Router       string `json:"router"`
	IsSwapV2     bool   `json:"isSwapV2"`
}

// ============================================================================
// Conversions
// ============================================================================

func (b instructionBody) toInstruction(field string) (multipay.PaymentInstruction, error) {
	var inst multipay.PaymentInstruction
	token, err := parseAddress(b.Token, field+".token")
	if err != nil {
		return inst, err
	}
	receivers, err := parseAddresses(b.Receivers, field+".receivers")
	if err != nil {
		return inst, err
	}
	amounts, err := parseAmounts(b.Amounts, field+".amounts")
	if err != nil {
		return inst, err
	}
	return multipay.PaymentInstruction{Token: token, Receivers: receivers, Amounts: amounts}, nil
}

func toInstructions(bodies []instructionBody) ([]multipay.PaymentInstruction, error) {
	out := make([]multipay.PaymentInstruction, len(bodies))
	for i, b := range bodies {
		inst, err := b.toInstruction("instructions")
		if err != nil {
			return nil, err
		}
		out[i] = inst
	}
	return out, nil
}

func (b *swapBody) toRequest() (*multipay.SwapRequest, error) {
	if b == nil {
		return nil, nil
	}
	origin, err := parseAddress(b.Origin, "swap.origin")
	if err != nil {
		return nil, err
	}
	total, err := parseAmount(b.TotalAmountIn, "swap.totalAmountIn")
	if err != nil {
		return nil, err
	}
	req := &multipay.SwapRequest{
		Origin:        origin,
		TotalAmountIn: total,
	}
	if b.Deadline > 0 {
		req.Deadline = big.NewInt(b.Deadline)
	}
	for _, leg := range b.V2Legs {
		amountOut, err := parseAmount(leg.AmountOut, "swap.v2Legs.amountOut")
		if err != nil {
			return nil, err
		}
		maxIn, err := parseAmount(leg.MaxAmountIn, "swap.v2Legs.maxAmountIn")
		if err != nil {
			return nil, err
		}
		path, err := parseAddresses(leg.Path, "swap.v2Legs.path")
		if err != nil {
			return nil, err
		}
		req.V2Legs = append(req.V2Legs, multipay.SwapLegV2{
			AmountOut:   amountOut,
			MaxAmountIn: maxIn,
			PoolFee:     leg.PoolFee,
			Path:        path,
		})
	}
	for _, leg := range b.V3Legs {
		target, err := parseAddress(leg.TargetToken, "swap.v3Legs.targetToken")
		if err != nil {
			return nil, err
		}
		amountOut, err := parseAmount(leg.AmountOut, "swap.v3Legs.amountOut")
		if err != nil {
			return nil, err
		}
		maxIn, err := parseAmount(leg.MaxAmountIn, "swap.v3Legs.maxAmountIn")
		if err != nil {
			return nil, err
		}
		encoded, err := hexutil.Decode(leg.EncodedPath)
		if err != nil {
			return nil, err
		}
		req.V3Legs = append(req.V3Legs, multipay.SwapLegV3{
			TargetToken: target,
			AmountOut:   amountOut,
			MaxAmountIn: maxIn,
			PoolFee:     leg.PoolFee,
			EncodedPath: encoded,
		})
	}
	return req, nil
}

func toSwapReceiptBody(r *multipay.SwapReceipt) *swapReceiptBody {
	if r == nil {
		return nil
	}
	return &swapReceiptBody{
		TotalAmountIn: r.TotalAmountIn.String(),
		Refunded:      r.Refunded.String(),
	}
}

func toPaymentReceiptBody(r *multipay.PaymentReceipt) *paymentReceiptBody {
	if r == nil {
		return nil
	}
	fees := make(map[string]string, len(r.Fees))
	for token, amount := range r.Fees {
		fees[token.Hex()] = amount.String()
	}
	return &paymentReceiptBody{Transfers: r.Transfers, Fees: fees}
}

func toSettlementReceiptBody(r *multipay.SettlementReceipt) settlementReceiptBody {
	return settlementReceiptBody{
		ID:      r.ID,
		Swap:    toSwapReceiptBody(r.Swap),
		Payment: toPaymentReceiptBody(r.Payment),
	}
}
