package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/collection-factory/interfaces"
)

// Memory is an in-process ledger of account balances.
type Memory struct {
	mutex    sync.Mutex
	balances map[interfaces.AccountID]interfaces.Balance
	log      *slog.Logger
}

// NewMemory creates an empty ledger.
func NewMemory(log *slog.Logger) *Memory {
	return &Memory{
		balances: make(map[interfaces.AccountID]interfaces.Balance),
		log:      log,
	}
}

// Open creates an account with a zero balance.
func (l *Memory) Open(id interfaces.AccountID) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	if _, exists := l.balances[id]; exists {
		return fmt.Errorf("%w: %s", interfaces.ErrAccountExists, id)
	}
	l.balances[id] = interfaces.Balance{}
	return nil
}

// Remove deletes an account and returns the balance it held.
func (l *Memory) Remove(id interfaces.AccountID) (interfaces.Balance, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	balance, exists := l.balances[id]
	if !exists {
		return interfaces.Balance{}, fmt.Errorf("%w: %s", interfaces.ErrAccountNotFound, id)
	}
	delete(l.balances, id)
	return balance, nil
}

// Credit adds newly issued funds to an account, creating it if needed. Used for genesis balances.
func (l *Memory) Credit(id interfaces.AccountID, amount interfaces.Balance) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	updated, err := l.balances[id].Add(amount)
	if err != nil {
		return fmt.Errorf("credit %s: %w", id, err)
	}
	l.balances[id] = updated
	return nil
}

// Debit removes funds from an account. The funds leave the ledger until credited elsewhere.
func (l *Memory) Debit(id interfaces.AccountID, amount interfaces.Balance) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	balance, exists := l.balances[id]
	if !exists {
		return fmt.Errorf("%w: %s", interfaces.ErrAccountNotFound, id)
	}
	remaining, err := balance.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s has %s, needs %s", interfaces.ErrInsufficientBalance, id, balance, amount)
	}
	l.balances[id] = remaining
	return nil
}

// Balance returns the balance of an account.
func (l *Memory) Balance(id interfaces.AccountID) (interfaces.Balance, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	balance, exists := l.balances[id]
	if !exists {
		return interfaces.Balance{}, fmt.Errorf("%w: %s", interfaces.ErrAccountNotFound, id)
	}
	return balance, nil
}

// Exists reports whether the account is known to the ledger.
func (l *Memory) Exists(id interfaces.AccountID) bool {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	_, exists := l.balances[id]
	return exists
}

// Transfer moves amount between two existing accounts.
func (l *Memory) Transfer(ctx context.Context, from, to interfaces.AccountID, amount interfaces.Balance) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	fromBalance, exists := l.balances[from]
	if !exists {
		return fmt.Errorf("%w: %s", interfaces.ErrAccountNotFound, from)
	}
	toBalance, exists := l.balances[to]
	if !exists {
		return fmt.Errorf("%w: %s", interfaces.ErrAccountNotFound, to)
	}

	remaining, err := fromBalance.Sub(amount)
	if err != nil {
		return fmt.Errorf("%w: %s has %s, needs %s", interfaces.ErrInsufficientBalance, from, fromBalance, amount)
	}
	credited, err := toBalance.Add(amount)
	if err != nil {
		return fmt.Errorf("transfer to %s: %w", to, err)
	}

	if from != to {
		l.balances[from] = remaining
		l.balances[to] = credited
	}

	l.log.Debug("Transferred funds",
		slog.String("from", from.String()),
		slog.String("to", to.String()),
		slog.String("amount", amount.String()))
	return nil
}
