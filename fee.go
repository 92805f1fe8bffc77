package multipay

import (
	"math/big"

	"github.com/holiman/uint256"
)

// feeDenominator is the fixed-point scale (the fee mantissa) fee rates are
// expressed against.
var feeDenominator = uint256.NewInt(1_000_000_000_000_000_000)

// maxFeeRate is the exclusive fee cap: 3e16 scaled 1e18, i.e. 3%.
var maxFeeRate = uint256.NewInt(30_000_000_000_000_000)

// FeeDenominator returns the 1e18 fixed-point scale as a big integer.
func FeeDenominator() *big.Int {
	return feeDenominator.ToBig()
}

// MaxFeeRate returns the exclusive fee-rate cap (3e16) as a big integer.
func MaxFeeRate() *big.Int {
	return maxFeeRate.ToBig()
}

// feePortion computes floor(amount * rate / 1e18) with full 512-bit
// intermediate precision. Truncating division only: the engine never
// over-charges, fractional-unit fees are under-collected.
func feePortion(amount *big.Int, rate *uint256.Int) (*big.Int, error) {
	if rate == nil || rate.IsZero() || amount.Sign() == 0 {
		return new(big.Int), nil
	}
	a, overflow := uint256.FromBig(amount)
	if overflow {
		return nil, NewSettlementError(ErrCodeInvalidAmount, "amount exceeds 256 bits", nil)
	}
	portion, overflow := new(uint256.Int).MulDivOverflow(a, rate, feeDenominator)
	if overflow {
		return nil, NewSettlementError(ErrCodeInvalidAmount, "fee computation overflows 256 bits", nil)
	}
	return portion.ToBig(), nil
}

// parseFeeRate validates and converts a 1e18-scaled fee rate. Rates at or
// above the 3% cap are rejected.
func parseFeeRate(rate *big.Int) (*uint256.Int, error) {
	if rate == nil {
		return new(uint256.Int), nil
	}
	if rate.Sign() < 0 {
		return nil, NewSettlementError(ErrCodeInvalidAmount, "fee rate must be non-negative", nil)
	}
	r, overflow := uint256.FromBig(rate)
	if overflow || !r.Lt(maxFeeRate) {
		return nil, NewSettlementError(ErrCodeFeeTooHigh, "fee rate must be below 3e16 (3%)", map[string]interface{}{
			"fee": rate.String(),
		})
	}
	return r, nil
}
