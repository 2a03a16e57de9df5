// Package ledger implements the funds-transfer capability used to collect
// deposits and to pay compensating refunds.
//
// Memory keeps balances in process and backs the local hosting runtime.
// EthereumTransferer pays to eth-implicit accounts with native value
// transactions on an EVM chain; it never retries and does not wait for
// inclusion, so a failed refund is visible only on chain and in the logs.
// Router sends each transfer to one of the two based on the recipient.
package ledger
