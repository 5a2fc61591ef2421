package wallet

import (
	"context"
	"encoding/base64"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xssnick/tonutils-go/address"
	"github.com/xssnick/tonutils-go/liteclient"
	"github.com/xssnick/tonutils-go/tlb"
	"github.com/xssnick/tonutils-go/ton"
	tonwallet "github.com/xssnick/tonutils-go/ton/wallet"

	"stickerhunter/config"
	"stickerhunter/models"
)

const testnetConfigURL = "https://ton-blockchain.github.io/testnet-global.config.json"

// TONWallet pays orders from a mnemonic-derived V4R2 wallet over the TON
// liteclient network.
type TONWallet struct {
	cfg *config.Config

	mu          sync.Mutex
	pool        *liteclient.ConnectionPool
	api         ton.APIClientWrapped
	w           *tonwallet.Wallet
	initialized bool
}

// NewTONWallet builds an uninitialized wallet; Initialize connects it.
func NewTONWallet(cfg *config.Config) *TONWallet {
	return &TONWallet{cfg: cfg}
}

// Initialize connects to the liteserver network and derives the signing
// wallet from the seed phrase. Idempotent.
func (t *TONWallet) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.initialized {
		return nil
	}

	pool := liteclient.NewConnectionPool()
	if err := pool.AddConnectionsFromConfigUrl(ctx, t.configURL()); err != nil {
		return Error{Op: "connect", Err: err}
	}

	api := ton.NewAPIClient(pool).WithRetry()
	words := strings.Fields(t.cfg.SeedPhrase)
	w, err := tonwallet.FromSeed(api, words, tonwallet.V4R2)
	if err != nil {
		pool.Stop()
		return Error{Op: "derive", Err: err}
	}

	t.pool = pool
	t.api = api
	t.w = w
	t.initialized = true
	slog.Info("wallet initialized", slog.String("address", w.WalletAddress().String()))
	return nil
}

func (t *TONWallet) configURL() string {
	if t.cfg.TONEndpoint == "testnet" {
		return testnetConfigURL
	}
	return t.cfg.TONConfigURL
}

// Info returns the wallet address and balance, queried fresh each call.
func (t *TONWallet) Info(ctx context.Context) (models.WalletInfo, error) {
	if err := t.Initialize(ctx); err != nil {
		return models.WalletInfo{}, err
	}

	master, err := t.api.CurrentMasterchainInfo(ctx)
	if err != nil {
		return models.WalletInfo{}, Error{Op: "masterchain info", Err: err}
	}
	balance, err := t.w.GetBalance(ctx, master)
	if err != nil {
		return models.WalletInfo{}, Error{Op: "balance", Err: err}
	}

	nano := balance.Nano()
	return models.WalletInfo{
		Address:  t.w.WalletAddress().String(),
		Balance:  decimal.NewFromBigInt(nano, -9),
		IsActive: nano.Sign() > 0,
	}, nil
}

// SendPayment transfers amountNano nanotons to destination with comment as
// the transfer payload, waits for the send to land, then pauses for the
// configured settle time so the next balance read reflects the spend.
func (t *TONWallet) SendPayment(ctx context.Context, destination string, amountNano int64, comment string) (string, error) {
	if err := t.Initialize(ctx); err != nil {
		return "", err
	}

	to, err := address.ParseAddr(destination)
	if err != nil {
		return "", TransactionError{Err: err}
	}

	amount := tlb.FromNanoTON(big.NewInt(amountNano))
	slog.Info("sending payment",
		slog.String("amount_ton", amount.String()),
		slog.String("destination", destination),
		slog.String("comment", comment),
	)

	transfer, err := t.w.BuildTransfer(to, amount, false, comment)
	if err != nil {
		return "", TransactionError{Err: err}
	}
	tx, _, err := t.w.SendWaitTransaction(ctx, transfer)
	if err != nil {
		return "", TransactionError{Err: err}
	}

	hash := base64.StdEncoding.EncodeToString(tx.Hash)
	slog.Info("transaction sent", slog.String("tx_hash", hash))

	if t.cfg.SettleWait > 0 {
		select {
		case <-ctx.Done():
		case <-time.After(t.cfg.SettleWait):
		}
	}

	// Best effort: the fresh balance is only informational here.
	if info, err := t.Info(ctx); err == nil {
		slog.Info("balance after transaction", slog.String("balance_ton", info.Balance.String()))
	}

	return hash, nil
}

// Close stops the liteclient pool. Idempotent.
func (t *TONWallet) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.initialized {
		return
	}
	t.pool.Stop()
	t.initialized = false
	slog.Info("wallet closed")
}
