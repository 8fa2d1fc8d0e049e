// Package costing derives a product's stock level and weighted average cost
// from its lots. Stores call Apply inside the same transaction as every lot
// write so the derived fields never drift from the lot table between commits.
package costing

import (
	"github.com/shopspring/decimal"

	"laplayita/backend/internal/domain"
)

// Summary is the recomputed derived state for one product.
type Summary struct {
	StockOnHand  int
	AverageCost  decimal.Decimal
	HasLiveStock bool
}

// Summarize computes the live stock total and the quantity-weighted average
// unit cost across lots. Exhausted lots carry no weight. When nothing is
// live, HasLiveStock is false and AverageCost is zero; the caller decides
// what to retain.
func Summarize(lots []domain.Lot) Summary {
	total := 0
	weighted := decimal.Zero
	for _, lot := range lots {
		if lot.QtyRemaining <= 0 {
			continue
		}
		total += lot.QtyRemaining
		weighted = weighted.Add(lot.UnitCost.Mul(decimal.NewFromInt(int64(lot.QtyRemaining))))
	}
	if total == 0 {
		return Summary{}
	}
	avg := weighted.DivRound(decimal.NewFromInt(int64(total)), 2)
	return Summary{StockOnHand: total, AverageCost: avg, HasLiveStock: true}
}

// Apply writes a summary onto the product. With no live stock the stock
// drops to zero but the last known average cost stays, so valuation of
// historical movements keeps a reference price.
func Apply(product *domain.Product, s Summary) {
	product.StockOnHand = s.StockOnHand
	if s.HasLiveStock {
		product.AverageCost = s.AverageCost
	}
}

// OrderTotals sums a restock order's lines into subtotal and tax total.
// Tax per line is unitCost * qty * rate / 100, rounded to cents per line.
func OrderTotals(lines []domain.RestockLine, taxRates map[string]decimal.Decimal) (subtotal, taxTotal decimal.Decimal) {
	subtotal = decimal.Zero
	taxTotal = decimal.Zero
	hundred := decimal.NewFromInt(100)
	for _, line := range lines {
		lineTotal := line.UnitCost.Mul(decimal.NewFromInt(int64(line.QtyRequested)))
		subtotal = subtotal.Add(lineTotal)
		rate, ok := taxRates[line.ProductID]
		if !ok {
			continue
		}
		taxTotal = taxTotal.Add(lineTotal.Mul(rate).DivRound(hundred, 2))
	}
	return subtotal, taxTotal
}

// LineTax computes one line's tax amount at the given percent rate.
func LineTax(unitCost decimal.Decimal, qty int, ratePercent decimal.Decimal) decimal.Decimal {
	return unitCost.Mul(decimal.NewFromInt(int64(qty))).Mul(ratePercent).DivRound(decimal.NewFromInt(100), 2)
}
