package ledger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/collection-factory/interfaces"
)

func TestMemory_Transfer(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(slog.Default())

	require.NoError(t, l.Credit("alice.near", interfaces.NewBalance(100)))
	require.NoError(t, l.Open("bob.near"))

	require.NoError(t, l.Transfer(ctx, "alice.near", "bob.near", interfaces.NewBalance(30)))

	alice, err := l.Balance("alice.near")
	require.NoError(t, err)
	assert.Equal(t, interfaces.NewBalance(70), alice)

	bob, err := l.Balance("bob.near")
	require.NoError(t, err)
	assert.Equal(t, interfaces.NewBalance(30), bob)
}

func TestMemory_TransferErrors(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(slog.Default())
	require.NoError(t, l.Credit("alice.near", interfaces.NewBalance(10)))
	require.NoError(t, l.Open("bob.near"))

	err := l.Transfer(ctx, "alice.near", "bob.near", interfaces.NewBalance(11))
	assert.ErrorIs(t, err, interfaces.ErrInsufficientBalance)

	err = l.Transfer(ctx, "alice.near", "carol.near", interfaces.NewBalance(1))
	assert.ErrorIs(t, err, interfaces.ErrAccountNotFound)

	err = l.Transfer(ctx, "carol.near", "alice.near", interfaces.NewBalance(1))
	assert.ErrorIs(t, err, interfaces.ErrAccountNotFound)

	// failed transfers leave balances untouched
	alice, err := l.Balance("alice.near")
	require.NoError(t, err)
	assert.Equal(t, interfaces.NewBalance(10), alice)
}

func TestMemory_SelfTransfer(t *testing.T) {
	l := NewMemory(slog.Default())
	require.NoError(t, l.Credit("alice.near", interfaces.NewBalance(10)))

	require.NoError(t, l.Transfer(context.Background(), "alice.near", "alice.near", interfaces.NewBalance(4)))

	alice, err := l.Balance("alice.near")
	require.NoError(t, err)
	assert.Equal(t, interfaces.NewBalance(10), alice)
}

func TestMemory_OpenRemove(t *testing.T) {
	l := NewMemory(slog.Default())

	require.NoError(t, l.Open("abc.factory"))
	assert.True(t, l.Exists("abc.factory"))
	assert.ErrorIs(t, l.Open("abc.factory"), interfaces.ErrAccountExists)

	require.NoError(t, l.Credit("abc.factory", interfaces.NewBalance(8)))
	held, err := l.Remove("abc.factory")
	require.NoError(t, err)
	assert.Equal(t, interfaces.NewBalance(8), held)
	assert.False(t, l.Exists("abc.factory"))

	_, err = l.Remove("abc.factory")
	assert.ErrorIs(t, err, interfaces.ErrAccountNotFound)

	_, err = l.Balance("abc.factory")
	assert.ErrorIs(t, err, interfaces.ErrAccountNotFound)
}

func TestMemory_Debit(t *testing.T) {
	l := NewMemory(slog.Default())
	require.NoError(t, l.Credit("factory", interfaces.NewBalance(10)))

	require.NoError(t, l.Debit("factory", interfaces.NewBalance(8)))
	assert.ErrorIs(t, l.Debit("factory", interfaces.NewBalance(3)), interfaces.ErrInsufficientBalance)
	assert.ErrorIs(t, l.Debit("nobody", interfaces.NewBalance(1)), interfaces.ErrAccountNotFound)

	balance, err := l.Balance("factory")
	require.NoError(t, err)
	assert.Equal(t, interfaces.NewBalance(2), balance)
}
