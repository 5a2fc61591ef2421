// Package purchase drives bounded sequences of sticker purchases against a
// target already known to be available.
package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/shopspring/decimal"

	"stickerhunter/config"
	"stickerhunter/metrics"
	"stickerhunter/models"
	"stickerhunter/wallet"
)

// ShopAPI is the slice of the shop client the orchestrator needs.
type ShopAPI interface {
	GetCollection(ctx context.Context, collectionID int) (*models.Collection, error)
	GetCharacterPrice(ctx context.Context, collectionID, characterID int, currency string) (decimal.Decimal, error)
	InitiatePurchase(ctx context.Context, collectionID, characterID, count int) (*models.OrderInfo, error)
}

// Orchestrator executes purchase sessions. Transactions within a session are
// strictly sequential: the wallet's sequence number is not safe under
// concurrent submission.
type Orchestrator struct {
	api     ShopAPI
	wallet  wallet.Wallet
	cfg     *config.Config
	metrics *metrics.Metrics

	// Order ids that already had a transfer broadcast. Guards against
	// paying the same order twice if the shop hands it back again.
	paidOrders *expirable.LRU[string, time.Time]
}

// NewOrchestrator builds an orchestrator over the given shop API and wallet.
func NewOrchestrator(api ShopAPI, w wallet.Wallet, cfg *config.Config, m *metrics.Metrics) *Orchestrator {
	return &Orchestrator{
		api:        api,
		wallet:     w,
		cfg:        cfg,
		metrics:    m,
		paidOrders: expirable.NewLRU[string, time.Time](1024, nil, time.Hour),
	}
}

// RunSession buys as many fixed-size batches as the current balance allows,
// stopping on the first failed purchase or on plan exhaustion. Pre-loop
// failures (target unavailable, no price, no affordable plan) propagate;
// once the loop has started every failure is captured as a FAILED result so
// partial progress is never lost. Results are in attempt order.
func (o *Orchestrator) RunSession(ctx context.Context, target models.Target) ([]models.PurchaseResult, error) {
	collection, err := o.api.GetCollection(ctx, target.CollectionID)
	if err != nil {
		return nil, err
	}
	if !collection.IsActive() {
		return nil, &CollectionNotAvailableError{CollectionID: target.CollectionID, Reason: "collection not active"}
	}
	character := collection.Character(target.CharacterID)
	if !character.IsAvailable() {
		return nil, &CollectionNotAvailableError{CollectionID: target.CollectionID, CharacterID: target.CharacterID, Reason: "character out of stock"}
	}

	price, err := o.api.GetCharacterPrice(ctx, target.CollectionID, target.CharacterID, "TON")
	if err != nil {
		return nil, &CollectionNotAvailableError{CollectionID: target.CollectionID, CharacterID: target.CharacterID, Reason: fmt.Sprintf("could not resolve TON price: %v", err)}
	}

	slog.Info("target character",
		slog.String("name", character.Name),
		slog.Int("stock", character.Left),
		slog.String("price_ton", price.String()),
	)

	info, err := o.wallet.Info(ctx)
	if err != nil {
		return nil, err
	}

	plan := CalculatePlan(info.Balance, price, o.cfg.StickersPerPurchase, o.cfg.GasAmount)
	slog.Info("purchase plan",
		slog.String("balance_ton", info.Balance.StringFixed(2)),
		slog.Int("max_purchases", plan.MaxPurchases),
		slog.Int("stickers", plan.MaxPurchases*plan.StickersPerPurchase),
		slog.String("total_cost_ton", plan.TotalCost.StringFixed(2)),
		slog.String("total_gas_ton", plan.TotalGas.StringFixed(2)),
	)
	if plan.MaxPurchases == 0 {
		return nil, &InsufficientBalanceError{Required: plan.CostPerPurchase, Available: info.Balance}
	}

	results := make([]models.PurchaseResult, 0, plan.MaxPurchases)
	for i := 0; i < plan.MaxPurchases; i++ {
		slog.Info("processing purchase", slog.Int("number", i+1), slog.Int("of", plan.MaxPurchases))

		result := o.executePurchase(ctx, target, o.cfg.StickersPerPurchase)
		results = append(results, result)

		if !result.IsSuccessful() {
			o.metrics.IncPurchase("failed")
			slog.Error("purchase failed",
				slog.Int("number", i+1),
				slog.String("error", result.ErrorMessage),
			)
			break
		}
		o.metrics.IncPurchase("confirmed")
		slog.Info("purchase completed",
			slog.Int("number", i+1),
			slog.String("order_id", result.Request.OrderID),
			slog.String("tx_hash", result.TxHash),
		)

		if i < plan.MaxPurchases-1 {
			select {
			case <-ctx.Done():
				return results, nil
			case <-time.After(o.cfg.PurchaseDelay):
			}
		}
	}

	o.logSummary(results, plan)
	return results, nil
}

// executePurchase runs one order-and-pay cycle. It always returns a result;
// failures are folded into a FAILED record rather than returned as errors.
func (o *Orchestrator) executePurchase(ctx context.Context, target models.Target, count int) models.PurchaseResult {
	collection, err := o.api.GetCollection(ctx, target.CollectionID)
	if err != nil {
		return failedResult(nil, err)
	}
	if !collection.IsActive() {
		return failedResult(nil, &CollectionNotAvailableError{CollectionID: target.CollectionID, Reason: "collection not active"})
	}
	character := collection.Character(target.CharacterID)
	if !character.IsAvailable() {
		return failedResult(nil, &CollectionNotAvailableError{CollectionID: target.CollectionID, CharacterID: target.CharacterID, Reason: "character out of stock"})
	}

	// Clamp down to remaining stock, never up.
	if character.Left < count {
		slog.Warn("not enough stock, clamping",
			slog.Int("requested", count),
			slog.Int("available", character.Left),
		)
		count = character.Left
	}

	price, err := o.api.GetCharacterPrice(ctx, target.CollectionID, target.CharacterID, "TON")
	if err != nil {
		return failedResult(nil, &CollectionNotAvailableError{CollectionID: target.CollectionID, CharacterID: target.CharacterID, Reason: fmt.Sprintf("could not resolve TON price: %v", err)})
	}

	info, err := o.wallet.Info(ctx)
	if err != nil {
		return failedResult(nil, err)
	}
	required := price.Mul(decimal.NewFromInt(int64(count))).Add(o.cfg.GasAmount)
	if !info.HasSufficientBalance(required) {
		return failedResult(nil, &InsufficientBalanceError{Required: required, Available: info.Balance})
	}

	order, err := o.api.InitiatePurchase(ctx, target.CollectionID, target.CharacterID, count)
	if err != nil {
		return failedResult(nil, err)
	}
	if _, seen := o.paidOrders.Get(order.OrderID); seen {
		return failedResult(nil, fmt.Errorf("order %s was already paid", order.OrderID))
	}

	request := &models.PurchaseRequest{
		CollectionID:      target.CollectionID,
		CharacterID:       target.CharacterID,
		Count:             count,
		PricePerItem:      price,
		TotalAmountNano:   order.TotalAmountNano,
		OrderID:           order.OrderID,
		DestinationWallet: order.WalletAddress,
		CreatedAt:         time.Now(),
	}

	txHash, err := o.wallet.SendPayment(ctx, order.WalletAddress, order.TotalAmountNano, order.OrderID)
	if err != nil {
		return failedResult(request, err)
	}
	o.paidOrders.Add(order.OrderID, time.Now())

	return models.PurchaseResult{
		Request:     request,
		TxHash:      txHash,
		Status:      models.StatusConfirmed,
		CompletedAt: time.Now(),
	}
}

func failedResult(request *models.PurchaseRequest, err error) models.PurchaseResult {
	return models.PurchaseResult{
		Request:      request,
		Status:       models.StatusFailed,
		CompletedAt:  time.Now(),
		ErrorMessage: err.Error(),
	}
}

func (o *Orchestrator) logSummary(results []models.PurchaseResult, plan models.PurchasePlan) {
	successful := 0
	spent := decimal.Zero
	for _, r := range results {
		if r.IsSuccessful() {
			successful++
			spent = spent.Add(r.Request.TotalAmountTON())
		}
	}
	slog.Info("purchase session completed",
		slog.Int("successful", successful),
		slog.Int("planned", plan.MaxPurchases),
		slog.Int("stickers", successful*plan.StickersPerPurchase),
		slog.String("spent_ton", spent.StringFixed(2)),
	)
}
