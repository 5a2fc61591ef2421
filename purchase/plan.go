package purchase

import (
	"github.com/shopspring/decimal"

	"stickerhunter/models"
)

// CalculatePlan computes how many fixed-size purchases the balance affords:
// floor(balance / (price*stickersPerPurchase + gas)). Pure function,
// recomputed at the start of every session because balance and price are
// read fresh.
func CalculatePlan(balance, pricePerSticker decimal.Decimal, stickersPerPurchase int, gasPerPurchase decimal.Decimal) models.PurchasePlan {
	costPerPurchase := pricePerSticker.Mul(decimal.NewFromInt(int64(stickersPerPurchase)))
	costWithGas := costPerPurchase.Add(gasPerPurchase)

	maxPurchases := 0
	if costWithGas.IsPositive() {
		quotient, _ := balance.QuoRem(costWithGas, 0)
		if n := quotient.IntPart(); n > 0 {
			maxPurchases = int(n)
		}
	}

	count := decimal.NewFromInt(int64(maxPurchases))
	return models.PurchasePlan{
		StickersPerPurchase: stickersPerPurchase,
		MaxPurchases:        maxPurchases,
		CostPerPurchase:     costWithGas,
		TotalCost:           costPerPurchase.Mul(count),
		TotalGas:            gasPerPurchase.Mul(count),
	}
}
