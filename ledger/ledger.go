// Package ledger provides an in-memory fungible-token environment with
// ERC-20 allowance semantics and a snapshot/revert journal. It is the
// reference TokenBackend for tests and local settlement: the journal gives
// the settlement engine the all-or-nothing call semantics an on-chain
// execution environment would provide natively.
//
// The ledger trusts its in-process callers: Transfer asserts control of the
// from account directly, the way a contract controls its own balance, while
// TransferFrom is subject to the spender's allowance.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
)

var (
	// ErrInsufficientBalance aborts a transfer exceeding the sender balance.
	ErrInsufficientBalance = errors.New("insufficient balance")
	// ErrInsufficientAllowance aborts a transferFrom exceeding the
	// spender's allowance.
	ErrInsufficientAllowance = errors.New("insufficient allowance")
)

type balanceKey struct {
	token  common.Address
	holder common.Address
}

type allowanceKey struct {
	token   common.Address
	owner   common.Address
	spender common.Address
}

// Ledger is an in-memory multi-token balance and allowance store. All
// mutations are journaled; Snapshot and RevertToSnapshot expose the journal
// the way a state database would.
type Ledger struct {
	mu         sync.Mutex
	balances   map[balanceKey]*big.Int
	allowances map[allowanceKey]*big.Int
	journal    []func()
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances:   make(map[balanceKey]*big.Int),
		allowances: make(map[allowanceKey]*big.Int),
	}
}

// Snapshot returns a revision id for the current state.
func (l *Ledger) Snapshot() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.journal)
}

// RevertToSnapshot unwinds every mutation made since the given revision.
func (l *Ledger) RevertToSnapshot(id int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id < 0 || id > len(l.journal) {
		panic(fmt.Sprintf("ledger: invalid snapshot id %d (journal length %d)", id, len(l.journal)))
	}
	for i := len(l.journal) - 1; i >= id; i-- {
		l.journal[i]()
	}
	l.journal = l.journal[:id]
}

// Mint credits amount of token to the account.
func (l *Ledger) Mint(token, account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setBalance(balanceKey{token, account}, new(big.Int).Add(l.balance(balanceKey{token, account}), amount))
}

// BalanceOf returns the account's balance of token.
func (l *Ledger) BalanceOf(_ context.Context, token, account common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(balanceKey{token, account})), nil
}

// Allowance returns what spender may still move out of owner's balance.
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.allowance(allowanceKey{token, owner, spender}))
}

// Transfer moves amount of token from an account the caller controls.
func (l *Ledger) Transfer(_ context.Context, token, from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.move(token, from, to, amount)
}

// TransferFrom moves amount of token from from to to on behalf of spender,
// consuming spender's allowance. An allowance of MaxBig256 is unlimited and
// is not decremented.
func (l *Ledger) TransferFrom(_ context.Context, token, spender, from, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if spender != from {
		key := allowanceKey{token, from, spender}
		allowed := l.allowance(key)
		if allowed.Cmp(math.MaxBig256) != 0 {
			if allowed.Cmp(amount) < 0 {
				return fmt.Errorf("transferFrom %s of %s by %s: %w", amount, token.Hex(), spender.Hex(), ErrInsufficientAllowance)
			}
			l.setAllowance(key, new(big.Int).Sub(allowed, amount))
		}
	}
	return l.move(token, from, to, amount)
}

// Approve sets spender's allowance over owner's balance of token.
func (l *Ledger) Approve(_ context.Context, token, owner, spender common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.setAllowance(allowanceKey{token, owner, spender}, new(big.Int).Set(amount))
	return nil
}

func (l *Ledger) move(token, from, to common.Address, amount *big.Int) error {
	if amount.Sign() < 0 {
		return fmt.Errorf("transfer of negative amount %s", amount)
	}
	fromKey := balanceKey{token, from}
	fromBal := l.balance(fromKey)
	if fromBal.Cmp(amount) < 0 {
		return fmt.Errorf("transfer %s of %s from %s: %w", amount, token.Hex(), from.Hex(), ErrInsufficientBalance)
	}
	toKey := balanceKey{token, to}
	l.setBalance(fromKey, new(big.Int).Sub(fromBal, amount))
	l.setBalance(toKey, new(big.Int).Add(l.balance(toKey), amount))
	return nil
}

// balance returns the stored balance without copying. Callers must hold the
// lock and must not mutate the result.
func (l *Ledger) balance(key balanceKey) *big.Int {
	if b, ok := l.balances[key]; ok {
		return b
	}
	return new(big.Int)
}

func (l *Ledger) allowance(key allowanceKey) *big.Int {
	if a, ok := l.allowances[key]; ok {
		return a
	}
	return new(big.Int)
}

func (l *Ledger) setBalance(key balanceKey, value *big.Int) {
	prev, existed := l.balances[key]
	l.journal = append(l.journal, func() {
		if existed {
			l.balances[key] = prev
		} else {
			delete(l.balances, key)
		}
	})
	l.balances[key] = value
}

func (l *Ledger) setAllowance(key allowanceKey, value *big.Int) {
	prev, existed := l.allowances[key]
	l.journal = append(l.journal, func() {
		if existed {
			l.allowances[key] = prev
		} else {
			delete(l.allowances, key)
		}
	})
	l.allowances[key] = value
}
