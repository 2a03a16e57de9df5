package chain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/ruteri/collection-factory/interfaces"
	"github.com/ruteri/collection-factory/ledger"
)

var (
	ErrNotSubAccount = errors.New("only a direct sub-account of the predecessor can be created")
	ErrInvalidPlan   = errors.New("invalid provisioning plan")
)

type account struct {
	code []byte
	keys []string
}

// Local is an in-process hosting runtime.
//
// Provision debits the plan's deposit from the predecessor when the plan is accepted and
// executes the plan asynchronously. A plan either fully applies or is rolled back, in
// which case the deposit is credited back to the predecessor. The result is delivered
// exactly once.
type Local struct {
	mutex    sync.Mutex
	accounts map[interfaces.AccountID]*account

	ledger *ledger.Memory
	host   interfaces.ProgramHost
	log    *slog.Logger
}

// NewLocal creates a runtime over ledger that runs initializers on host.
func NewLocal(ledger *ledger.Memory, host interfaces.ProgramHost, log *slog.Logger) *Local {
	return &Local{
		accounts: make(map[interfaces.AccountID]*account),
		ledger:   ledger,
		host:     host,
		log:      log,
	}
}

// Genesis creates a top-level account holding balance.
func (c *Local) Genesis(id interfaces.AccountID, balance interfaces.Balance) error {
	if err := id.Validate(); err != nil {
		return err
	}

	c.mutex.Lock()
	defer c.mutex.Unlock()

	if _, exists := c.accounts[id]; exists {
		return fmt.Errorf("%w: %s", interfaces.ErrAccountExists, id)
	}
	if err := c.ledger.Credit(id, balance); err != nil {
		return err
	}
	c.accounts[id] = &account{}
	return nil
}

// Exists reports whether the account was created.
func (c *Local) Exists(id interfaces.AccountID) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	_, exists := c.accounts[id]
	return exists
}

// Code returns the program image deployed to an account.
func (c *Local) Code(id interfaces.AccountID) ([]byte, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	acc, exists := c.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrAccountNotFound, id)
	}
	return acc.code, nil
}

// AccessKeys returns the full access keys of an account.
func (c *Local) AccessKeys(id interfaces.AccountID) ([]string, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	acc, exists := c.accounts[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", interfaces.ErrAccountNotFound, id)
	}
	return append([]string(nil), acc.keys...), nil
}

// Balance returns the balance of an account.
func (c *Local) Balance(ctx context.Context, id interfaces.AccountID) (interfaces.Balance, error) {
	return c.ledger.Balance(id)
}

// Transfer moves funds between existing accounts.
func (c *Local) Transfer(ctx context.Context, from, to interfaces.AccountID, amount interfaces.Balance) error {
	return c.ledger.Transfer(ctx, from, to, amount)
}

// Provision accepts plan and executes it in the background.
// It rejects the plan synchronously when it is malformed or the predecessor cannot fund the deposit.
func (c *Local) Provision(ctx context.Context, plan interfaces.ProvisioningPlan) (<-chan interfaces.ProvisioningResult, error) {
	if plan.ReceiptID == "" {
		return nil, fmt.Errorf("%w: missing receipt id", ErrInvalidPlan)
	}
	if err := plan.Account.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
	}
	if plan.AccessKey != "" {
		if _, err := ParseAccessKey(plan.AccessKey); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidPlan, err)
		}
	}
	if !c.Exists(plan.Predecessor) {
		return nil, fmt.Errorf("%w: predecessor %s", interfaces.ErrAccountNotFound, plan.Predecessor)
	}

	if err := c.ledger.Debit(plan.Predecessor, plan.Deposit); err != nil {
		return nil, err
	}

	results := make(chan interfaces.ProvisioningResult, 1)
	go func() {
		defer close(results)
		err := c.execute(context.WithoutCancel(ctx), plan)
		results <- interfaces.ProvisioningResult{
			ReceiptID: plan.ReceiptID,
			Err:       err,
			Callback:  plan.Callback,
		}
	}()

	return results, nil
}

func (c *Local) execute(ctx context.Context, plan interfaces.ProvisioningPlan) error {
	if err := c.createAccount(plan); err != nil {
		c.refundPredecessor(plan)
		c.log.Warn("Provisioning plan failed", slog.String("account", plan.Account.String()), "err", err)
		return err
	}

	if plan.Init.Method != "" {
		if err := c.host.Invoke(ctx, plan.Code, plan.Init.Method, plan.Init.Args); err != nil {
			c.rollback(plan)
			c.log.Warn("Provisioning plan rolled back", slog.String("account", plan.Account.String()), "err", err)
			return err
		}
	}

	c.log.Info("Provisioned account",
		slog.String("account", plan.Account.String()),
		slog.String("deposit", plan.Deposit.String()),
		slog.String("receiptID", string(plan.ReceiptID)))
	return nil
}

func (c *Local) createAccount(plan interfaces.ProvisioningPlan) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if !plan.Account.IsDirectSubAccountOf(plan.Predecessor) {
		return fmt.Errorf("%w: %s by %s", ErrNotSubAccount, plan.Account, plan.Predecessor)
	}
	if _, exists := c.accounts[plan.Account]; exists {
		return fmt.Errorf("%w: %s", interfaces.ErrAccountExists, plan.Account)
	}

	if err := c.ledger.Open(plan.Account); err != nil {
		return err
	}
	if err := c.ledger.Credit(plan.Account, plan.Deposit); err != nil {
		_, _ = c.ledger.Remove(plan.Account)
		return err
	}

	acc := &account{code: plan.Code}
	if plan.AccessKey != "" {
		acc.keys = append(acc.keys, plan.AccessKey)
	}
	c.accounts[plan.Account] = acc
	return nil
}

// rollback undoes createAccount and returns the deposit to the predecessor.
func (c *Local) rollback(plan interfaces.ProvisioningPlan) {
	c.mutex.Lock()
	delete(c.accounts, plan.Account)
	_, err := c.ledger.Remove(plan.Account)
	c.mutex.Unlock()

	if err != nil {
		c.log.Error("Could not remove rolled back account", slog.String("account", plan.Account.String()), "err", err)
	}
	c.refundPredecessor(plan)
}

func (c *Local) refundPredecessor(plan interfaces.ProvisioningPlan) {
	if err := c.ledger.Credit(plan.Predecessor, plan.Deposit); err != nil {
		c.log.Error("Could not return deposit to predecessor",
			slog.String("predecessor", plan.Predecessor.String()),
			slog.String("deposit", plan.Deposit.String()),
			"err", err)
	}
}
