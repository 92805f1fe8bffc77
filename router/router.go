// Package router defines the two external exchange-router protocols the
// settlement engine can be configured against, plus an in-memory
// implementation for tests and local settlement.
//
// Both protocols are exact-output: the caller names the output amount it
// wants and a ceiling on the input it will spend. The router sends output
// directly to the recipient and reports the input actually spent. Deadlines
// are absolute unix timestamps enforced by the router, not by the engine.
package router

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// V2 is the path-array protocol.
type V2 interface {
	// SwapTokensForExactTokens spends at most amountInMax of path[0] to
	// deliver exactly amountOut of the last path element to recipient.
	// The returned slice mirrors the path; element 0 is the input spent.
	SwapTokensForExactTokens(ctx context.Context, amountOut, amountInMax *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) ([]*big.Int, error)
}

// ExactOutputParams are the arguments of the V3 exact-output operation.
type ExactOutputParams struct {
	Path            []byte
	Recipient       common.Address
	Deadline        *big.Int
	AmountOut       *big.Int
	AmountInMaximum *big.Int
}

// V3 is the packed-path protocol. The path is encoded output-token first,
// per EncodePath, and may span multiple hops.
type V3 interface {
	// ExactOutput delivers params.AmountOut of the path's first token to
	// params.Recipient, spending at most params.AmountInMaximum of the
	// path's last token. Returns the input amount spent.
	ExactOutput(ctx context.Context, params ExactOutputParams) (*big.Int, error)
}
