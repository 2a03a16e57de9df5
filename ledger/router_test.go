package ledger

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/collection-factory/interfaces"
)

type mockTransferer struct {
	mock.Mock
}

func (m *mockTransferer) Transfer(ctx context.Context, from, to interfaces.AccountID, amount interfaces.Balance) error {
	args := m.Called(ctx, from, to, amount)
	return args.Error(0)
}

func TestRouter_Transfer(t *testing.T) {
	ctx := context.Background()
	ethAccount := interfaces.AccountID("0x52908400098527886e0f7030069857d2e4169ee7")

	named := new(mockTransferer)
	eth := new(mockTransferer)
	named.On("Transfer", ctx, interfaces.AccountID("factory"), interfaces.AccountID("alice"), interfaces.NewBalance(2)).Return(nil).Once()
	eth.On("Transfer", ctx, interfaces.AccountID("factory"), ethAccount, interfaces.NewBalance(3)).Return(nil).Once()

	router := &Router{Named: named, Eth: eth}
	require.NoError(t, router.Transfer(ctx, "factory", "alice", interfaces.NewBalance(2)))
	require.NoError(t, router.Transfer(ctx, "factory", ethAccount, interfaces.NewBalance(3)))

	named.AssertExpectations(t)
	eth.AssertExpectations(t)
}

func TestRouter_WithoutEth(t *testing.T) {
	ctx := context.Background()
	l := NewMemory(slog.Default())
	require.NoError(t, l.Credit("factory", interfaces.NewBalance(5)))
	require.NoError(t, l.Open("0x52908400098527886e0f7030069857d2e4169ee7"))

	router := &Router{Named: l}
	require.NoError(t, router.Transfer(ctx, "factory", "0x52908400098527886e0f7030069857d2e4169ee7", interfaces.NewBalance(5)))

	balance, err := l.Balance("0x52908400098527886e0f7030069857d2e4169ee7")
	require.NoError(t, err)
	assert.Equal(t, interfaces.NewBalance(5), balance)
}
