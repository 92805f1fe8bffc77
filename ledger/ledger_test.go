package ledger

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	token   = common.HexToAddress("0xD000000000000000000000000000000000000001")
	alice   = common.HexToAddress("0xA000000000000000000000000000000000000001")
	bob     = common.HexToAddress("0xB000000000000000000000000000000000000001")
	spender = common.HexToAddress("0xC000000000000000000000000000000000000001")
)

func balance(t *testing.T, l *Ledger, account common.Address) int64 {
	t.Helper()
	b, err := l.BalanceOf(context.Background(), token, account)
	require.NoError(t, err)
	return b.Int64()
}

func TestMintAndTransfer(t *testing.T) {
	l := New()
	l.Mint(token, alice, big.NewInt(100))

	require.NoError(t, l.Transfer(context.Background(), token, alice, bob, big.NewInt(40)))
	assert.Equal(t, int64(60), balance(t, l, alice))
	assert.Equal(t, int64(40), balance(t, l, bob))
}

func TestTransferInsufficientBalance(t *testing.T) {
	l := New()
	l.Mint(token, alice, big.NewInt(10))

	err := l.Transfer(context.Background(), token, alice, bob, big.NewInt(11))
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, int64(10), balance(t, l, alice))
	assert.Equal(t, int64(0), balance(t, l, bob))
}

func TestTransferNegativeAmount(t *testing.T) {
	l := New()
	l.Mint(token, alice, big.NewInt(10))
	require.Error(t, l.Transfer(context.Background(), token, alice, bob, big.NewInt(-1)))
}

func TestTransferFromConsumesAllowance(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Mint(token, alice, big.NewInt(100))
	require.NoError(t, l.Approve(ctx, token, alice, spender, big.NewInt(70)))

	require.NoError(t, l.TransferFrom(ctx, token, spender, alice, bob, big.NewInt(30)))
	assert.Equal(t, int64(40), l.Allowance(token, alice, spender).Int64())

	err := l.TransferFrom(ctx, token, spender, alice, bob, big.NewInt(50))
	require.ErrorIs(t, err, ErrInsufficientAllowance)
	assert.Equal(t, int64(30), balance(t, l, bob))
}

func TestTransferFromUnlimitedAllowance(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Mint(token, alice, big.NewInt(100))
	require.NoError(t, l.Approve(ctx, token, alice, spender, math.MaxBig256))

	require.NoError(t, l.TransferFrom(ctx, token, spender, alice, bob, big.NewInt(60)))
	// Unlimited allowances are never decremented.
	assert.Equal(t, 0, l.Allowance(token, alice, spender).Cmp(math.MaxBig256))
}

func TestTransferFromSelfSkipsAllowance(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Mint(token, alice, big.NewInt(100))

	// spender == from needs no prior approval.
	require.NoError(t, l.TransferFrom(ctx, token, alice, alice, bob, big.NewInt(25)))
	assert.Equal(t, int64(25), balance(t, l, bob))
}

func TestSnapshotRevert(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Mint(token, alice, big.NewInt(100))

	snap := l.Snapshot()
	require.NoError(t, l.Transfer(ctx, token, alice, bob, big.NewInt(40)))
	require.NoError(t, l.Approve(ctx, token, alice, spender, big.NewInt(7)))

	l.RevertToSnapshot(snap)
	assert.Equal(t, int64(100), balance(t, l, alice))
	assert.Equal(t, int64(0), balance(t, l, bob))
	assert.Equal(t, int64(0), l.Allowance(token, alice, spender).Int64())
}

func TestSnapshotRevertRemovesCreatedEntries(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Mint(token, alice, big.NewInt(100))

	snap := l.Snapshot()
	require.NoError(t, l.Transfer(ctx, token, alice, bob, big.NewInt(1)))
	l.RevertToSnapshot(snap)

	// bob had no entry before the snapshot; the revert must not leave a
	// zero-valued one behind.
	l.mu.Lock()
	_, exists := l.balances[balanceKey{token, bob}]
	l.mu.Unlock()
	assert.False(t, exists)
}

func TestNestedSnapshots(t *testing.T) {
	ctx := context.Background()
	l := New()
	l.Mint(token, alice, big.NewInt(100))

	outer := l.Snapshot()
	require.NoError(t, l.Transfer(ctx, token, alice, bob, big.NewInt(10)))
	inner := l.Snapshot()
	require.NoError(t, l.Transfer(ctx, token, alice, bob, big.NewInt(20)))

	l.RevertToSnapshot(inner)
	assert.Equal(t, int64(10), balance(t, l, bob))

	l.RevertToSnapshot(outer)
	assert.Equal(t, int64(0), balance(t, l, bob))
	assert.Equal(t, int64(100), balance(t, l, alice))
}

func TestRevertInvalidSnapshotPanics(t *testing.T) {
	l := New()
	assert.Panics(t, func() { l.RevertToSnapshot(5) })
	assert.Panics(t, func() { l.RevertToSnapshot(-1) })
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	l := New()
	l.Mint(token, alice, big.NewInt(100))

	b, err := l.BalanceOf(context.Background(), token, alice)
	require.NoError(t, err)
	b.SetInt64(0)
	assert.Equal(t, int64(100), balance(t, l, alice))
}
