package costing

import (
	"testing"

	"github.com/shopspring/decimal"

	"laplayita/backend/internal/domain"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestSummarizeWeightsByRemainingQty(t *testing.T) {
	lots := []domain.Lot{
		{QtyRemaining: 10, UnitCost: dec("2.00")},
		{QtyRemaining: 5, UnitCost: dec("3.50")},
		{QtyRemaining: 0, UnitCost: dec("99.00")},
	}
	s := Summarize(lots)
	if s.StockOnHand != 15 {
		t.Fatalf("stock = %d, want 15", s.StockOnHand)
	}
	if !s.HasLiveStock {
		t.Fatal("expected live stock")
	}
	// (10*2.00 + 5*3.50) / 15 = 37.50 / 15 = 2.50
	if !s.AverageCost.Equal(dec("2.50")) {
		t.Fatalf("avg = %s, want 2.50", s.AverageCost)
	}
}

func TestSummarizeRoundsHalfUp(t *testing.T) {
	lots := []domain.Lot{
		{QtyRemaining: 3, UnitCost: dec("1.00")},
		{QtyRemaining: 3, UnitCost: dec("1.01")},
	}
	s := Summarize(lots)
	// 6.03 / 6 = 1.005 -> 1.01
	if !s.AverageCost.Equal(dec("1.01")) {
		t.Fatalf("avg = %s, want 1.01", s.AverageCost)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.HasLiveStock || s.StockOnHand != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestApplyRetainsAverageCostAtZeroStock(t *testing.T) {
	p := domain.Product{StockOnHand: 8, AverageCost: dec("4.20")}
	Apply(&p, Summarize([]domain.Lot{{QtyRemaining: 0, UnitCost: dec("4.20")}}))
	if p.StockOnHand != 0 {
		t.Fatalf("stock = %d, want 0", p.StockOnHand)
	}
	if !p.AverageCost.Equal(dec("4.20")) {
		t.Fatalf("avg = %s, want retained 4.20", p.AverageCost)
	}
}

func TestOrderTotals(t *testing.T) {
	lines := []domain.RestockLine{
		{ProductID: "prod-a", QtyRequested: 10, UnitCost: dec("1.50")},
		{ProductID: "prod-b", QtyRequested: 4, UnitCost: dec("2.25")},
	}
	rates := map[string]decimal.Decimal{
		"prod-a": dec("19"),
		"prod-b": dec("0"),
	}
	subtotal, tax := OrderTotals(lines, rates)
	if !subtotal.Equal(dec("24.00")) {
		t.Fatalf("subtotal = %s, want 24.00", subtotal)
	}
	// 15.00 * 19% = 2.85
	if !tax.Equal(dec("2.85")) {
		t.Fatalf("tax = %s, want 2.85", tax)
	}
}

func TestLineTax(t *testing.T) {
	got := LineTax(dec("3.33"), 3, dec("19"))
	// 9.99 * 0.19 = 1.8981 -> 1.90
	if !got.Equal(dec("1.90")) {
		t.Fatalf("tax = %s, want 1.90", got)
	}
}
