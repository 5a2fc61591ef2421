// Package models defines data structures shared across the bot.
package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Target identifies the character being hunted inside a collection.
type Target struct {
	CollectionID int
	CharacterID  int
}

func (t Target) String() string {
	return fmt.Sprintf("%d/%d", t.CharacterID, t.CollectionID)
}

// Character is a purchasable sticker variant within a collection.
type Character struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	Left  int             `json:"left"`
	Price decimal.Decimal `json:"price"`
}

// IsAvailable reports whether the character still has stock.
func (c *Character) IsAvailable() bool {
	return c != nil && c.Left > 0
}

// Collection is a snapshot of a sticker collection as reported by the shop.
// Refreshed on every poll, never persisted.
type Collection struct {
	ID         int
	Name       string
	Status     string
	TotalCount int
	SoldCount  int
	Characters []Character
}

// IsActive reports whether sales are open for the collection.
func (c *Collection) IsActive() bool {
	return c != nil && c.Status == "active"
}

// Character returns the character with the given id, or nil.
func (c *Collection) Character(id int) *Character {
	if c == nil {
		return nil
	}
	for i := range c.Characters {
		if c.Characters[i].ID == id {
			return &c.Characters[i]
		}
	}
	return nil
}

// OrderInfo is the marketplace's answer to a purchase initiation: where to
// send the payment and how much, with the order id used as transfer comment.
type OrderInfo struct {
	OrderID         string
	WalletAddress   string
	TotalAmountNano int64
}

// PurchasePlan describes how many fixed-size purchases the current balance
// affords. Recomputed at the start of every session, never cached.
type PurchasePlan struct {
	StickersPerPurchase int
	MaxPurchases        int
	CostPerPurchase     decimal.Decimal
	TotalCost           decimal.Decimal
	TotalGas            decimal.Decimal
}

// TotalRequired is the full TON amount the plan would spend, gas included.
func (p PurchasePlan) TotalRequired() decimal.Decimal {
	return p.TotalCost.Add(p.TotalGas)
}

// PurchaseRequest records an order accepted by the marketplace. Immutable
// once created; owned by the session until folded into a PurchaseResult.
type PurchaseRequest struct {
	CollectionID      int
	CharacterID       int
	Count             int
	PricePerItem      decimal.Decimal
	TotalAmountNano   int64
	OrderID           string
	DestinationWallet string
	CreatedAt         time.Time
}

// TotalAmountTON converts the order amount from nanotons.
func (r *PurchaseRequest) TotalAmountTON() decimal.Decimal {
	return decimal.New(r.TotalAmountNano, -9)
}

// PurchaseStatus is the terminal state of one purchase attempt.
type PurchaseStatus string

const (
	StatusConfirmed PurchaseStatus = "confirmed"
	StatusFailed    PurchaseStatus = "failed"
)

// PurchaseResult is the terminal record of one purchase attempt. A session
// returns these in attempt order.
type PurchaseResult struct {
	Request      *PurchaseRequest
	TxHash       string
	Status       PurchaseStatus
	CompletedAt  time.Time
	ErrorMessage string
}

// IsSuccessful reports whether the purchase was confirmed.
func (r PurchaseResult) IsSuccessful() bool {
	return r.Status == StatusConfirmed
}

// WalletInfo is an on-demand view of the paying wallet. Balance is in TON.
type WalletInfo struct {
	Address  string
	Balance  decimal.Decimal
	IsActive bool
}

// HasSufficientBalance reports whether the wallet can cover required TON.
func (w WalletInfo) HasSufficientBalance(required decimal.Decimal) bool {
	return w.Balance.GreaterThanOrEqual(required)
}
