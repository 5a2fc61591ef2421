package purchase

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CollectionNotAvailableError indicates the target cannot be purchased right
// now: the collection is missing or inactive, the character is out of stock,
// or no price is listed.
type CollectionNotAvailableError struct {
	CollectionID int
	CharacterID  int
	Reason       string
}

func (e *CollectionNotAvailableError) Error() string {
	if e.CharacterID > 0 {
		return fmt.Sprintf("character %d in collection %d not available: %s", e.CharacterID, e.CollectionID, e.Reason)
	}
	return fmt.Sprintf("collection %d not available: %s", e.CollectionID, e.Reason)
}

// InsufficientBalanceError indicates the wallet cannot cover even one
// purchase. Carries the amounts so callers can report required vs actual.
type InsufficientBalanceError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: need at least %s TON, have %s TON", e.Required.StringFixed(2), e.Available.StringFixed(2))
}
