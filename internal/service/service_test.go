package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"

	"laplayita/backend/internal/domain"
	"laplayita/backend/internal/store"
	"laplayita/backend/internal/store/memory"
)

func newTestService() *Service {
	return New(memory.New(), nil)
}

func adminCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "admin", Role: "admin"})
}

func sellerCtx() context.Context {
	return WithActor(context.Background(), domain.Actor{Username: "vendedora", Role: "seller"})
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func mustCreateProduct(t *testing.T, svc *Service, name string) domain.Product {
	t.Helper()
	product, err := svc.CreateProduct(adminCtx(), domain.ProductCreateRequest{
		Name:           name,
		Category:       "abarrotes",
		UnitPrice:      dec("5000"),
		TaxRatePercent: dec("19"),
		StockMinimum:   5,
	})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

func mustCreateLot(t *testing.T, svc *Service, productID string, qty int, unitCost string, expiration string) domain.Lot {
	t.Helper()
	lot, err := svc.CreateManualLot(adminCtx(), domain.LotCreateRequest{
		ProductID:      productID,
		Qty:            qty,
		UnitCost:       dec(unitCost),
		ExpirationDate: expiration,
	})
	if err != nil {
		t.Fatalf("create lot: %v", err)
	}
	return lot
}

func mustCreateSupplier(t *testing.T, svc *Service) domain.Supplier {
	t.Helper()
	supplier, err := svc.CreateSupplier(adminCtx(), domain.SupplierCreateRequest{
		DocumentType: "nit",
		DocumentID:   "900111222-3",
		Name:         "Distribuidora Test",
	})
	if err != nil {
		t.Fatalf("create supplier: %v", err)
	}
	return supplier
}

func TestCreateManualLotRecomputesProduct(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Leche Entera 1L")

	mustCreateLot(t, svc, product.ID, 10, "3200", "2026-12-01")

	got, err := svc.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.StockOnHand != 10 {
		t.Fatalf("stock on hand = %d, want 10", got.StockOnHand)
	}
	if !got.AverageCost.Equal(dec("3200")) {
		t.Fatalf("average cost = %s, want 3200", got.AverageCost)
	}
}

func TestAverageCostIsWeightedByRemainingQty(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Arroz 1kg")

	mustCreateLot(t, svc, product.ID, 5, "100", "")
	mustCreateLot(t, svc, product.ID, 5, "200", "")

	got, err := svc.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.StockOnHand != 10 {
		t.Fatalf("stock on hand = %d, want 10", got.StockOnHand)
	}
	if !got.AverageCost.Equal(dec("150")) {
		t.Fatalf("average cost = %s, want 150", got.AverageCost)
	}
}

func TestConsumeDrawsEarliestExpiryFirst(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Queso Campesino")

	later := mustCreateLot(t, svc, product.ID, 10, "9000", "2026-12-31")
	sooner := mustCreateLot(t, svc, product.ID, 4, "8500", "2026-10-01")

	resp, err := svc.ReserveAndConsume(sellerCtx(), domain.ConsumeRequest{
		ProductID: product.ID,
		Qty:       6,
		SaleRef:   "sale-0001",
	})
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	if len(resp.Movements) != 2 {
		t.Fatalf("movements = %d, want 2", len(resp.Movements))
	}
	if resp.Movements[0].LotID != sooner.ID || resp.Movements[0].Delta != -4 {
		t.Fatalf("first draw lot=%s delta=%d, want lot %s delta -4", resp.Movements[0].LotID, resp.Movements[0].Delta, sooner.ID)
	}
	if resp.Movements[1].LotID != later.ID || resp.Movements[1].Delta != -2 {
		t.Fatalf("second draw lot=%s delta=%d, want lot %s delta -2", resp.Movements[1].LotID, resp.Movements[1].Delta, later.ID)
	}
	if resp.Product.StockOnHand != 8 {
		t.Fatalf("stock on hand = %d, want 8", resp.Product.StockOnHand)
	}

	soonerAfter, err := svc.GetLot(context.Background(), sooner.ID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if soonerAfter.QtyRemaining != 0 {
		t.Fatalf("sooner lot remaining = %d, want 0", soonerAfter.QtyRemaining)
	}
}

func TestConsumeInsufficientStockLeavesStateUntouched(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Pan Tajado")
	lot := mustCreateLot(t, svc, product.ID, 3, "4000", "2026-11-15")

	_, err := svc.ReserveAndConsume(sellerCtx(), domain.ConsumeRequest{
		ProductID: product.ID,
		Qty:       5,
	})
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	after, err := svc.GetLot(context.Background(), lot.ID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if after.QtyRemaining != 3 {
		t.Fatalf("lot remaining = %d, want 3 after failed consume", after.QtyRemaining)
	}
	movements, err := svc.ListMovements(context.Background(), product.ID, 50)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 1 {
		t.Fatalf("movements = %d, want only the entry", len(movements))
	}
}

func TestPlanConsumptionHasNoSideEffects(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Gaseosa 1.5L")
	mustCreateLot(t, svc, product.ID, 8, "6000", "2026-09-30")

	plan, err := svc.PlanConsumption(context.Background(), product.ID, 5)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if len(plan) != 1 || plan[0].Qty != 5 {
		t.Fatalf("plan = %+v, want one draw of 5", plan)
	}

	got, err := svc.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.StockOnHand != 8 {
		t.Fatalf("stock on hand = %d, want 8 after planning", got.StockOnHand)
	}
}

func TestDiscardFromLot(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Yogur Fresa")
	lot := mustCreateLot(t, svc, product.ID, 6, "2800", "2026-09-01")

	mov, err := svc.DiscardFromLot(adminCtx(), domain.DiscardRequest{
		LotID: lot.ID,
		Qty:   2,
		Note:  "vencidos",
	})
	if err != nil {
		t.Fatalf("discard: %v", err)
	}
	if mov.Reason != domain.MovementDiscard || mov.Delta != -2 {
		t.Fatalf("movement reason=%s delta=%d, want discard -2", mov.Reason, mov.Delta)
	}

	after, err := svc.GetLot(context.Background(), lot.ID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if after.QtyRemaining != 4 {
		t.Fatalf("lot remaining = %d, want 4", after.QtyRemaining)
	}
}

func TestAverageCostRetainedAtZeroStock(t *testing.T) {
	svc := newTestService()
	product := mustCreateProduct(t, svc, "Mantequilla 250g")
	mustCreateLot(t, svc, product.ID, 4, "7500", "2026-10-10")

	if _, err := svc.ReserveAndConsume(sellerCtx(), domain.ConsumeRequest{ProductID: product.ID, Qty: 4}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	got, err := svc.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if got.StockOnHand != 0 {
		t.Fatalf("stock on hand = %d, want 0", got.StockOnHand)
	}
	if !got.AverageCost.Equal(dec("7500")) {
		t.Fatalf("average cost = %s, want last known 7500", got.AverageCost)
	}
}

func submitTestOrder(t *testing.T, svc *Service, supplierID string, lines []domain.RestockLineInput) domain.RestockOrder {
	t.Helper()
	draft, err := svc.CreateRestockDraft(adminCtx(), domain.RestockDraftRequest{
		SupplierID: supplierID,
		Lines:      lines,
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	order, err := svc.SubmitRestockOrder(adminCtx(), draft.ID)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if order.Status != domain.OrderStatusRequested {
		t.Fatalf("status = %s, want requested", order.Status)
	}
	return order
}

func TestRestockLifecycleHappyPath(t *testing.T) {
	svc := newTestService()
	supplier := mustCreateSupplier(t, svc)
	milk := mustCreateProduct(t, svc, "Leche Deslactosada 1L")
	rice := mustCreateProduct(t, svc, "Arroz 5kg")

	order := submitTestOrder(t, svc, supplier.ID, []domain.RestockLineInput{
		{ProductID: milk.ID, QtyRequested: 12, UnitCost: dec("3100")},
		{ProductID: rice.ID, QtyRequested: 6, UnitCost: dec("19000")},
	})
	if !order.Subtotal.Equal(dec("151200")) {
		t.Fatalf("subtotal = %s, want 151200", order.Subtotal)
	}

	inputs := make([]domain.ReceiveLineInput, 0, len(order.Lines))
	for _, line := range order.Lines {
		inputs = append(inputs, domain.ReceiveLineInput{
			LineID:         line.ID,
			QtyReceived:    line.QtyRequested,
			ExpirationDate: "2026-12-20",
		})
	}

	result, err := svc.ReceiveRestockOrder(adminCtx(), order.ID, domain.ReceiveRequest{Lines: inputs})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if result.Order.Status != domain.OrderStatusReceived {
		t.Fatalf("status = %s, want received", result.Order.Status)
	}
	if len(result.LotsCreated) != 2 {
		t.Fatalf("lots created = %d, want 2", len(result.LotsCreated))
	}
	if len(result.Discrepancies) != 0 {
		t.Fatalf("discrepancies = %d, want 0", len(result.Discrepancies))
	}

	for _, lot := range result.LotsCreated {
		want := fmt.Sprintf("%s-%s-%s", order.ID, lot.ProductID, lot.RestockLineID)
		if lot.LotCode != want {
			t.Fatalf("lot code = %s, want %s", lot.LotCode, want)
		}
	}

	milkAfter, err := svc.GetProduct(context.Background(), milk.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if milkAfter.StockOnHand != 12 {
		t.Fatalf("milk stock = %d, want 12", milkAfter.StockOnHand)
	}

	audit, err := svc.ListRestockAudit(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("list audit: %v", err)
	}
	if len(audit) < 3 {
		t.Fatalf("audit entries = %d, want created + submitted + received", len(audit))
	}
}

func TestReceiveShortReportsDiscrepancies(t *testing.T) {
	svc := newTestService()
	supplier := mustCreateSupplier(t, svc)
	milk := mustCreateProduct(t, svc, "Leche Entera 1L")
	bread := mustCreateProduct(t, svc, "Pan Integral")

	order := submitTestOrder(t, svc, supplier.ID, []domain.RestockLineInput{
		{ProductID: milk.ID, QtyRequested: 10, UnitCost: dec("3200")},
		{ProductID: bread.ID, QtyRequested: 5, UnitCost: dec("5500")},
	})

	inputs := []domain.ReceiveLineInput{
		{LineID: order.Lines[0].ID, QtyReceived: 6, ExpirationDate: "2026-11-01"},
		{LineID: order.Lines[1].ID, QtyReceived: 0},
	}
	result, err := svc.ReceiveRestockOrder(adminCtx(), order.ID, domain.ReceiveRequest{Lines: inputs})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if result.Order.Status != domain.OrderStatusReceived {
		t.Fatalf("status = %s, want received even when short", result.Order.Status)
	}
	// Only partially received lines count; a line received at zero stays out.
	if len(result.Discrepancies) != 1 {
		t.Fatalf("discrepancies = %d, want 1", len(result.Discrepancies))
	}
	d := result.Discrepancies[0]
	if d.ProductID != milk.ID || d.QtyRequested != 10 || d.QtyReceived != 6 {
		t.Fatalf("discrepancy = %+v, want milk 6 of 10", d)
	}
	if len(result.LotsCreated) != 1 {
		t.Fatalf("lots created = %d, want 1 (zero-qty line makes no lot)", len(result.LotsCreated))
	}
}

func TestReceiveRejectsOverReceipt(t *testing.T) {
	svc := newTestService()
	supplier := mustCreateSupplier(t, svc)
	product := mustCreateProduct(t, svc, "Aceite 1L")

	order := submitTestOrder(t, svc, supplier.ID, []domain.RestockLineInput{
		{ProductID: product.ID, QtyRequested: 4, UnitCost: dec("11000")},
	})

	_, err := svc.ReceiveRestockOrder(adminCtx(), order.ID, domain.ReceiveRequest{Lines: []domain.ReceiveLineInput{
		{LineID: order.Lines[0].ID, QtyReceived: 6, ExpirationDate: "2026-12-01"},
	}})
	if !errors.Is(err, store.ErrOverReceipt) {
		t.Fatalf("err = %v, want ErrOverReceipt", err)
	}

	after, err := svc.GetRestockOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if after.Status != domain.OrderStatusRequested {
		t.Fatalf("status = %s, want requested after rejected receive", after.Status)
	}
}

func TestReceiveRequiresExpirationDate(t *testing.T) {
	svc := newTestService()
	supplier := mustCreateSupplier(t, svc)
	product := mustCreateProduct(t, svc, "Huevos x30")

	order := submitTestOrder(t, svc, supplier.ID, []domain.RestockLineInput{
		{ProductID: product.ID, QtyRequested: 3, UnitCost: dec("15000")},
	})

	_, err := svc.ReceiveRestockOrder(adminCtx(), order.ID, domain.ReceiveRequest{Lines: []domain.ReceiveLineInput{
		{LineID: order.Lines[0].ID, QtyReceived: 3},
	}})
	if !errors.Is(err, store.ErrMissingExpirationDate) {
		t.Fatalf("err = %v, want ErrMissingExpirationDate", err)
	}
}

func TestSubmitEmptyOrderRejected(t *testing.T) {
	svc := newTestService()
	supplier := mustCreateSupplier(t, svc)
	product := mustCreateProduct(t, svc, "Cafe Molido 500g")

	draft, err := svc.CreateRestockDraft(adminCtx(), domain.RestockDraftRequest{
		SupplierID: supplier.ID,
		Lines: []domain.RestockLineInput{
			{ProductID: product.ID, QtyRequested: 0, UnitCost: dec("18000")},
		},
	})
	if err != nil {
		t.Fatalf("drafts may hold zero-qty lines: %v", err)
	}

	_, err = svc.SubmitRestockOrder(adminCtx(), draft.ID)
	if !errors.Is(err, store.ErrEmptyOrder) {
		t.Fatalf("err = %v, want ErrEmptyOrder", err)
	}
}

func TestStatusTransitionRejectsEmptyOrderUnderLock(t *testing.T) {
	repo := memory.New()
	svc := New(repo, nil)
	supplier := mustCreateSupplier(t, svc)
	product := mustCreateProduct(t, svc, "Sal Marina 500g")

	draft, err := svc.CreateRestockDraft(adminCtx(), domain.RestockDraftRequest{
		SupplierID: supplier.ID,
		Lines: []domain.RestockLineInput{
			{ProductID: product.ID, QtyRequested: 0, UnitCost: dec("2300")},
		},
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}

	// The store enforces the rule itself, so a transition raced against an
	// edit that zeroed the lines still cannot reach requested.
	_, err = repo.UpdateRestockStatus(context.Background(), draft.ID,
		[]string{domain.OrderStatusDraft}, domain.OrderStatusRequested,
		domain.RestockAudit{Action: domain.AuditEdited, Actor: "admin"})
	if !errors.Is(err, store.ErrEmptyOrder) {
		t.Fatalf("err = %v, want ErrEmptyOrder", err)
	}

	after, err := svc.GetRestockOrder(context.Background(), draft.ID)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if after.Status != domain.OrderStatusDraft {
		t.Fatalf("status = %s, want draft after rejected transition", after.Status)
	}
}

func TestEditRefusedOnceReceived(t *testing.T) {
	svc := newTestService()
	supplier := mustCreateSupplier(t, svc)
	product := mustCreateProduct(t, svc, "Atun en Lata")

	order := submitTestOrder(t, svc, supplier.ID, []domain.RestockLineInput{
		{ProductID: product.ID, QtyRequested: 5, UnitCost: dec("4200")},
	})

	edited, err := svc.EditRestockOrder(adminCtx(), order.ID, domain.RestockEditRequest{
		Lines: []domain.RestockLineInput{
			{ProductID: product.ID, QtyRequested: 8, UnitCost: dec("4200")},
		},
	})
	if err != nil {
		t.Fatalf("edit of requested order: %v", err)
	}
	if edited.Lines[0].QtyRequested != 8 {
		t.Fatalf("qty requested = %d, want 8", edited.Lines[0].QtyRequested)
	}

	_, err = svc.ReceiveRestockOrder(adminCtx(), order.ID, domain.ReceiveRequest{Lines: []domain.ReceiveLineInput{
		{LineID: edited.Lines[0].ID, QtyReceived: 8, ExpirationDate: "2027-03-01"},
	}})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	_, err = svc.EditRestockOrder(adminCtx(), order.ID, domain.RestockEditRequest{
		Lines: []domain.RestockLineInput{
			{ProductID: product.ID, QtyRequested: 2, UnitCost: dec("4200")},
		},
	})
	if !errors.Is(err, store.ErrOrderAlreadyReceiving) {
		t.Fatalf("err = %v, want ErrOrderAlreadyReceiving", err)
	}
}

func TestCancelReceivedOrderRefused(t *testing.T) {
	svc := newTestService()
	supplier := mustCreateSupplier(t, svc)
	product := mustCreateProduct(t, svc, "Harina de Maiz")

	order := submitTestOrder(t, svc, supplier.ID, []domain.RestockLineInput{
		{ProductID: product.ID, QtyRequested: 2, UnitCost: dec("3500")},
	})
	_, err := svc.ReceiveRestockOrder(adminCtx(), order.ID, domain.ReceiveRequest{Lines: []domain.ReceiveLineInput{
		{LineID: order.Lines[0].ID, QtyReceived: 2, ExpirationDate: "2027-01-15"},
	}})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	_, err = svc.CancelRestockOrder(adminCtx(), order.ID)
	if !errors.Is(err, store.ErrOrderAlreadyReceiving) {
		t.Fatalf("err = %v, want ErrOrderAlreadyReceiving", err)
	}
}

func TestDeleteOrderReversesStockUnlessSold(t *testing.T) {
	svc := newTestService()
	supplier := mustCreateSupplier(t, svc)
	product := mustCreateProduct(t, svc, "Galletas Surtidas")

	order := submitTestOrder(t, svc, supplier.ID, []domain.RestockLineInput{
		{ProductID: product.ID, QtyRequested: 10, UnitCost: dec("2100")},
	})
	_, err := svc.ReceiveRestockOrder(adminCtx(), order.ID, domain.ReceiveRequest{Lines: []domain.ReceiveLineInput{
		{LineID: order.Lines[0].ID, QtyReceived: 10, ExpirationDate: "2027-02-01"},
	}})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	if err := svc.DeleteRestockOrder(adminCtx(), order.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	after, err := svc.GetProduct(context.Background(), product.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if after.StockOnHand != 0 {
		t.Fatalf("stock on hand = %d, want 0 after delete", after.StockOnHand)
	}
	if _, err := svc.GetRestockOrder(context.Background(), order.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for deleted order", err)
	}
}

func TestDeleteOrderRefusedAfterSale(t *testing.T) {
	svc := newTestService()
	supplier := mustCreateSupplier(t, svc)
	product := mustCreateProduct(t, svc, "Jugo de Naranja 1L")

	order := submitTestOrder(t, svc, supplier.ID, []domain.RestockLineInput{
		{ProductID: product.ID, QtyRequested: 6, UnitCost: dec("4800")},
	})
	_, err := svc.ReceiveRestockOrder(adminCtx(), order.ID, domain.ReceiveRequest{Lines: []domain.ReceiveLineInput{
		{LineID: order.Lines[0].ID, QtyReceived: 6, ExpirationDate: "2026-10-20"},
	}})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	if _, err := svc.ReserveAndConsume(sellerCtx(), domain.ConsumeRequest{ProductID: product.ID, Qty: 1, SaleRef: "sale-77"}); err != nil {
		t.Fatalf("consume: %v", err)
	}

	err = svc.DeleteRestockOrder(adminCtx(), order.ID)
	if !errors.Is(err, store.ErrOrderHasSales) {
		t.Fatalf("err = %v, want ErrOrderHasSales", err)
	}
}

func TestAmendReceivedLineUpdatesLot(t *testing.T) {
	svc := newTestService()
	supplier := mustCreateSupplier(t, svc)
	product := mustCreateProduct(t, svc, "Crema de Leche")

	order := submitTestOrder(t, svc, supplier.ID, []domain.RestockLineInput{
		{ProductID: product.ID, QtyRequested: 4, UnitCost: dec("5900")},
	})
	result, err := svc.ReceiveRestockOrder(adminCtx(), order.ID, domain.ReceiveRequest{Lines: []domain.ReceiveLineInput{
		{LineID: order.Lines[0].ID, QtyReceived: 4, ExpirationDate: "2026-09-15"},
	}})
	if err != nil {
		t.Fatalf("receive: %v", err)
	}

	line, err := svc.AmendReceivedLine(adminCtx(), order.ID, result.Order.Lines[0].ID, domain.AmendLineRequest{
		ExpirationDate: "2026-10-15",
		LotCode:        "CORRECTED-01",
	})
	if err != nil {
		t.Fatalf("amend: %v", err)
	}
	if line.LotCode != "CORRECTED-01" {
		t.Fatalf("lot code = %s, want CORRECTED-01", line.LotCode)
	}
	if line.ExpirationDate == nil || line.ExpirationDate.Format("2006-01-02") != "2026-10-15" {
		t.Fatalf("expiration = %v, want 2026-10-15", line.ExpirationDate)
	}

	lot, err := svc.GetLot(context.Background(), result.LotsCreated[0].ID)
	if err != nil {
		t.Fatalf("get lot: %v", err)
	}
	if lot.LotCode != "CORRECTED-01" {
		t.Fatalf("lot code on lot = %s, want CORRECTED-01", lot.LotCode)
	}
}

func TestMutationsRequireAdmin(t *testing.T) {
	svc := newTestService()

	if _, err := svc.CreateProduct(sellerCtx(), domain.ProductCreateRequest{Name: "X", Category: "y"}); err == nil {
		t.Fatalf("expected seller product create to be rejected")
	}
	if _, err := svc.CreateRestockDraft(sellerCtx(), domain.RestockDraftRequest{}); err == nil {
		t.Fatalf("expected seller draft create to be rejected")
	}
	if _, err := svc.CreateManualLot(sellerCtx(), domain.LotCreateRequest{Qty: 1}); err == nil {
		t.Fatalf("expected seller lot create to be rejected")
	}
}
