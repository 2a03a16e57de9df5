package ledger

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/params"

	"github.com/ruteri/collection-factory/interfaces"
)

// ErrUnsupportedRecipient is returned when a recipient has no Ethereum address.
var ErrUnsupportedRecipient = errors.New("recipient is not an eth-implicit account")

// EthBackend is the subset of an Ethereum client needed to send value transfers.
// Both ethclient.Client and the simulated backend client satisfy it.
type EthBackend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// EthereumTransferer settles transfers as native value transactions on an EVM chain.
// Recipients must be eth-implicit accounts ("0x" followed by 40 lowercase hex characters).
// Transactions are sent, not awaited: a failed transaction is only visible on chain.
type EthereumTransferer struct {
	backend EthBackend
	auth    *bind.TransactOpts
	log     *slog.Logger

	// sends are serialized so pending nonces are not reused
	mutex sync.Mutex
}

// NewEthereumTransferer creates a transferer that signs with key on the backend's chain.
func NewEthereumTransferer(ctx context.Context, backend EthBackend, key *ecdsa.PrivateKey, log *slog.Logger) (*EthereumTransferer, error) {
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}

	return &EthereumTransferer{
		backend: backend,
		auth:    auth,
		log:     log,
	}, nil
}

// From returns the address funds are sent from.
func (t *EthereumTransferer) From() common.Address {
	return t.auth.From
}

// Transfer sends amount to the address encoded in the recipient account id.
// The from account is informational; funds always leave the transactor's address.
func (t *EthereumTransferer) Transfer(ctx context.Context, from, to interfaces.AccountID, amount interfaces.Balance) error {
	if !to.IsEthImplicit() {
		return fmt.Errorf("%w: %s", ErrUnsupportedRecipient, to)
	}
	recipient := common.HexToAddress(string(to))

	t.mutex.Lock()
	defer t.mutex.Unlock()

	nonce, err := t.backend.PendingNonceAt(ctx, t.auth.From)
	if err != nil {
		return fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := t.backend.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &recipient,
		Value:    amount.Big(),
		Gas:      params.TxGas,
		GasPrice: gasPrice,
	})

	signed, err := t.auth.Signer(t.auth.From, tx)
	if err != nil {
		return fmt.Errorf("failed to sign transfer: %w", err)
	}

	if err := t.backend.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("failed to send transfer: %w", err)
	}

	t.log.Info("Sent transfer transaction",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("amount", amount.String()),
		slog.String("txHash", signed.Hash().Hex()))
	return nil
}
