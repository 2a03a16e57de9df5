package ledger

import (
	"context"
	"crypto/ecdsa"
	"log/slog"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ruteri/collection-factory/interfaces"
)

func TestEthereumTransferer_Transfer(t *testing.T) {
	ctx := context.Background()

	backend, key, err := setupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	client := backend.Client()
	transferer, err := NewEthereumTransferer(ctx, client, key, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), transferer.From())

	recipientKey, err := crypto.GenerateKey()
	require.NoError(t, err)
	recipient := crypto.PubkeyToAddress(recipientKey.PublicKey)
	recipientID := interfaces.AccountID(strings.ToLower(recipient.Hex()))
	require.True(t, recipientID.IsEthImplicit())

	amount := interfaces.MustParseBalance("2000000000000000")
	require.NoError(t, transferer.Transfer(ctx, "factory", recipientID, amount))
	backend.Commit()

	// a second transfer must pick up the next nonce
	require.NoError(t, transferer.Transfer(ctx, "factory", recipientID, amount))
	backend.Commit()

	balance, err := client.BalanceAt(ctx, recipient, nil)
	require.NoError(t, err)
	assert.Equal(t, "4000000000000000", balance.String())
}

func TestEthereumTransferer_RejectsNamedAccounts(t *testing.T) {
	ctx := context.Background()

	backend, key, err := setupTestChain()
	require.NoError(t, err)
	defer backend.Close()

	transferer, err := NewEthereumTransferer(ctx, backend.Client(), key, slog.Default())
	require.NoError(t, err)

	err = transferer.Transfer(ctx, "factory", "alice.near", interfaces.NewBalance(1))
	assert.ErrorIs(t, err, ErrUnsupportedRecipient)
}

func setupTestChain() (*simulated.Backend, *ecdsa.PrivateKey, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, nil, err
	}

	balance := new(big.Int)
	balance.SetString("10000000000000000000", 10) // 10 ETH

	genesisAlloc := map[common.Address]types.Account{
		crypto.PubkeyToAddress(privateKey.PublicKey): {
			Balance: balance,
		},
	}

	backend := simulated.NewBackend(genesisAlloc, simulated.WithBlockGasLimit(8000000))
	return backend, privateKey, nil
}
