package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/paydeck/multipay/ledger"
)

var (
	// ErrExpired aborts a swap whose deadline has passed.
	ErrExpired = errors.New("swap deadline expired")
	// ErrExcessiveInput aborts a swap that would spend more than the
	// caller's input ceiling.
	ErrExcessiveInput = errors.New("required input exceeds maximum")
	// ErrNoLiquidity aborts a swap over a pair without a configured price.
	ErrNoLiquidity = errors.New("no liquidity for pair")
)

type pairKey struct {
	in  common.Address
	out common.Address
}

// Memory is a ledger-backed exact-output router implementing both the V2
// and V3 protocols. Prices are fixed per pair: the input cost of one
// 1e18-scaled unit of output. Input is pulled from the configured
// counterparty account (the engine, which approved the router), mirroring
// how the on-chain protocols spend msg.sender's tokens; output is paid from
// the router's own pre-minted liquidity.
type Memory struct {
	mu           sync.Mutex
	address      common.Address
	counterparty common.Address
	ledger       *ledger.Ledger
	prices       map[pairKey]*big.Int
	now          func() time.Time
}

// MemoryOption configures the in-memory router.
type MemoryOption func(*Memory)

// WithClock overrides the deadline clock, for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory creates an in-memory router at address, spending counterparty's
// tokens on l.
func NewMemory(address, counterparty common.Address, l *ledger.Ledger, opts ...MemoryOption) *Memory {
	m := &Memory{
		address:      address,
		counterparty: counterparty,
		ledger:       l,
		prices:       make(map[pairKey]*big.Int),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Address returns the router's token-holding identity.
func (m *Memory) Address() common.Address {
	return m.address
}

// SetPrice fixes the cost, in input units, of 1e18-scaled units of output
// for the tokenIn→tokenOut pair.
func (m *Memory) SetPrice(tokenIn, tokenOut common.Address, price *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[pairKey{tokenIn, tokenOut}] = new(big.Int).Set(price)
}

// SwapTokensForExactTokens implements V2.
func (m *Memory) SwapTokensForExactTokens(ctx context.Context, amountOut, amountInMax *big.Int, path []common.Address, recipient common.Address, deadline *big.Int) ([]*big.Int, error) {
	if len(path) < 2 {
		return nil, fmt.Errorf("path needs at least two tokens, got %d", len(path))
	}
	if amountOut == nil {
		return nil, fmt.Errorf("amountOut is nil")
	}
	if err := m.checkDeadline(deadline); err != nil {
		return nil, err
	}

	// Work backwards from the exact output to the required input.
	amounts := make([]*big.Int, len(path))
	amounts[len(path)-1] = new(big.Int).Set(amountOut)
	for i := len(path) - 2; i >= 0; i-- {
		in, err := m.quote(path[i], path[i+1], amounts[i+1])
		if err != nil {
			return nil, err
		}
		amounts[i] = in
	}
	amountIn := amounts[0]
	if amountInMax != nil && amountIn.Cmp(amountInMax) > 0 {
		return nil, fmt.Errorf("need %s of %s: %w", amountIn, path[0].Hex(), ErrExcessiveInput)
	}

	if err := m.execute(ctx, path[0], path[len(path)-1], amountIn, amountOut, recipient); err != nil {
		return nil, err
	}
	return amounts, nil
}

// ExactOutput implements V3. The packed path is encoded output token first.
func (m *Memory) ExactOutput(ctx context.Context, params ExactOutputParams) (*big.Int, error) {
	tokens, _, err := DecodePath(params.Path)
	if err != nil {
		return nil, err
	}
	if params.AmountOut == nil {
		return nil, fmt.Errorf("amountOut is nil")
	}
	if err := m.checkDeadline(params.Deadline); err != nil {
		return nil, err
	}

	// tokens[0] is the output token; the last element is the input token.
	required := new(big.Int).Set(params.AmountOut)
	for i := 0; i < len(tokens)-1; i++ {
		required, err = m.quote(tokens[i+1], tokens[i], required)
		if err != nil {
			return nil, err
		}
	}
	if params.AmountInMaximum != nil && required.Cmp(params.AmountInMaximum) > 0 {
		return nil, fmt.Errorf("need %s of %s: %w", required, tokens[len(tokens)-1].Hex(), ErrExcessiveInput)
	}

	if err := m.execute(ctx, tokens[len(tokens)-1], tokens[0], required, params.AmountOut, params.Recipient); err != nil {
		return nil, err
	}
	return required, nil
}

// quote returns ceil(amountOut * price / 1e18) for the pair. Rounding up
// keeps the router from underpricing dust-sized outputs.
func (m *Memory) quote(tokenIn, tokenOut common.Address, amountOut *big.Int) (*big.Int, error) {
	m.mu.Lock()
	price, ok := m.prices[pairKey{tokenIn, tokenOut}]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%s -> %s: %w", tokenIn.Hex(), tokenOut.Hex(), ErrNoLiquidity)
	}
	num := new(big.Int).Mul(amountOut, price)
	den := big.NewInt(1_000_000_000_000_000_000)
	in, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() > 0 {
		in.Add(in, big.NewInt(1))
	}
	return in, nil
}

func (m *Memory) checkDeadline(deadline *big.Int) error {
	if deadline == nil || deadline.Sign() == 0 {
		return nil
	}
	if m.now().Unix() > deadline.Int64() {
		return fmt.Errorf("deadline %s: %w", deadline, ErrExpired)
	}
	return nil
}

func (m *Memory) execute(ctx context.Context, tokenIn, tokenOut common.Address, amountIn, amountOut *big.Int, recipient common.Address) error {
	if err := m.ledger.TransferFrom(ctx, tokenIn, m.address, m.counterparty, m.address, amountIn); err != nil {
		return err
	}
	return m.ledger.Transfer(ctx, tokenOut, m.address, recipient, amountOut)
}
