package multipay

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TokenBackend abstracts the fungible-token environment the engine settles
// against. Implementations are expected to either complete an operation or
// fail it with no partial effect; the engine treats any returned error as a
// call-aborting upstream failure and propagates it verbatim.
//
// Transfer moves tokens out of an account the caller controls (the engine
// uses it only for its own address). TransferFrom moves tokens on behalf of
// spender, subject to the allowance from granted to spender.
type TokenBackend interface {
	BalanceOf(ctx context.Context, token, account common.Address) (*big.Int, error)
	Transfer(ctx context.Context, token, from, to common.Address, amount *big.Int) error
	TransferFrom(ctx context.Context, token, spender, from, to common.Address, amount *big.Int) error
	Approve(ctx context.Context, token, owner, spender common.Address, amount *big.Int) error
}

// SnapshotBackend is optionally implemented by backends that can unwind
// state, such as the in-memory ledger. When available, every mutating entry
// point takes a snapshot on entry and reverts to it on any failure so the
// call is all-or-nothing, including token amounts already pulled from the
// caller. Backends with native transaction semantics (an on-chain execution
// environment) need not implement it.
type SnapshotBackend interface {
	Snapshot() int
	RevertToSnapshot(id int)
}

// EventSink receives the engine's change and settlement events. Events for a
// call are buffered and delivered only after the call commits; a failed call
// emits nothing.
type EventSink interface {
	Emit(event Event)
}
