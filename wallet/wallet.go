// Package wallet provides the TON payment side of the bot.
package wallet

import (
	"context"
	"fmt"

	"stickerhunter/models"
)

// Wallet is the payment primitive consumed by the purchase session and the
// bot controller. Implementations must be safe for sequential use; the bot
// never submits concurrent transfers.
type Wallet interface {
	// Initialize acquires the underlying connection and derives the
	// signing account. Idempotent.
	Initialize(ctx context.Context) error

	// Info returns the wallet address and current balance in TON.
	Info(ctx context.Context) (models.WalletInfo, error)

	// SendPayment broadcasts a transfer of amountNano nanotons to
	// destination with comment as the payload and returns the
	// transaction hash. Blocks until the send completes or errors.
	SendPayment(ctx context.Context, destination string, amountNano int64, comment string) (string, error)

	// Close releases wallet resources. Idempotent.
	Close()
}

// Error indicates a wallet-level failure (initialization, balance query).
type Error struct {
	Op  string
	Err error
}

func (e Error) Error() string {
	return fmt.Sprintf("wallet %s: %v", e.Op, e.Err)
}

func (e Error) Unwrap() error {
	return e.Err
}

// TransactionError indicates a failed transfer broadcast. A session treats
// it as terminal and never retries the transaction.
type TransactionError struct {
	Err error
}

func (e TransactionError) Error() string {
	return fmt.Sprintf("payment failed: %v", e.Err)
}

func (e TransactionError) Unwrap() error {
	return e.Err
}
