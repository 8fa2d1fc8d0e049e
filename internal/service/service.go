package service

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"laplayita/backend/internal/domain"
	"laplayita/backend/internal/notify"
	"laplayita/backend/internal/store"
	"laplayita/backend/internal/xid"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo     store.Repository
	notifier notify.Notifier
}

func New(repo store.Repository, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.LogNotifier{}
	}
	return &Service{repo: repo, notifier: notifier}
}

func (s *Service) actorName(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return "system"
	}
	return actor.Username
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != "admin" {
		return fmt.Errorf("admin role required")
	}
	return nil
}

// --- products ---

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx)
}

func (s *Service) GetProduct(ctx context.Context, id string) (domain.Product, error) {
	product, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}
	return *product, nil
}

func (s *Service) GetProductDetail(ctx context.Context, id string) (domain.ProductDetail, error) {
	detail, err := s.repo.GetProductDetail(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.ProductDetail{}, err
	}
	if !detail.LedgerConsistent {
		log.Printf("[service] WARN: ledger gap product=%s stock_on_hand=%d live_lot_qty=%d", detail.Product.ID, detail.Product.StockOnHand, detail.LiveLotQty)
	}
	return *detail, nil
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Name == "" || req.Category == "" {
		return domain.Product{}, fmt.Errorf("%w: name and category required", store.ErrInvalidQuantity)
	}
	if req.UnitPrice.IsNegative() || req.TaxRatePercent.IsNegative() || req.StockMinimum < 0 {
		return domain.Product{}, fmt.Errorf("%w: negative price, tax rate or stock minimum", store.ErrInvalidQuantity)
	}

	created, err := s.repo.CreateProduct(ctx, domain.Product{
		Name:           req.Name,
		Category:       req.Category,
		Description:    strings.TrimSpace(req.Description),
		UnitPrice:      req.UnitPrice,
		TaxRatePercent: req.TaxRatePercent,
		StockMinimum:   req.StockMinimum,
	})
	if err != nil {
		return domain.Product{}, err
	}
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	existing, err := s.repo.GetProductByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Product{}, err
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, fmt.Errorf("%w: empty name", store.ErrInvalidQuantity)
		}
		updated.Name = name
	}
	if req.Category != nil {
		category := strings.TrimSpace(*req.Category)
		if category == "" {
			return domain.Product{}, fmt.Errorf("%w: empty category", store.ErrInvalidQuantity)
		}
		updated.Category = category
	}
	if req.Description != nil {
		updated.Description = strings.TrimSpace(*req.Description)
	}
	if req.UnitPrice != nil {
		if req.UnitPrice.IsNegative() {
			return domain.Product{}, fmt.Errorf("%w: negative price", store.ErrInvalidQuantity)
		}
		updated.UnitPrice = *req.UnitPrice
	}
	if req.TaxRatePercent != nil {
		if req.TaxRatePercent.IsNegative() {
			return domain.Product{}, fmt.Errorf("%w: negative tax rate", store.ErrInvalidQuantity)
		}
		updated.TaxRatePercent = *req.TaxRatePercent
	}
	if req.StockMinimum != nil {
		if *req.StockMinimum < 0 {
			return domain.Product{}, fmt.Errorf("%w: negative stock minimum", store.ErrInvalidQuantity)
		}
		updated.StockMinimum = *req.StockMinimum
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}
	return *saved, nil
}

// --- lots, consumption, movements ---

// CreateManualLot registers stock outside the restock flow (corrections,
// opening balances). The lot's entry movement carries the note.
func (s *Service) CreateManualLot(ctx context.Context, req domain.LotCreateRequest) (domain.Lot, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Lot{}, err
	}
	if req.Qty < 1 {
		return domain.Lot{}, fmt.Errorf("%w: %d", store.ErrInvalidQuantity, req.Qty)
	}
	if req.UnitCost.IsNegative() {
		return domain.Lot{}, fmt.Errorf("%w: negative unit cost", store.ErrInvalidQuantity)
	}

	lot := domain.Lot{
		ProductID:    strings.TrimSpace(req.ProductID),
		LotCode:      strings.TrimSpace(req.LotCode),
		QtyRemaining: req.Qty,
		UnitCost:     req.UnitCost,
		ReceivedAt:   time.Now().UTC(),
	}
	if expiry := strings.TrimSpace(req.ExpirationDate); expiry != "" {
		parsed, err := time.Parse("2006-01-02", expiry)
		if err != nil {
			return domain.Lot{}, fmt.Errorf("%w: bad expiration date %q", store.ErrMissingExpirationDate, expiry)
		}
		lot.ExpirationDate = &parsed
	}

	description := strings.TrimSpace(req.Note)
	if description == "" {
		description = "manual lot entry"
	}
	created, err := s.repo.CreateLot(ctx, lot, domain.Movement{
		Delta:       req.Qty,
		Reason:      domain.MovementEntry,
		Description: fmt.Sprintf("%s (by %s)", description, s.actorName(ctx)),
	})
	if err != nil {
		return domain.Lot{}, err
	}
	return *created, nil
}

func (s *Service) GetLot(ctx context.Context, id string) (domain.Lot, error) {
	lot, err := s.repo.GetLot(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Lot{}, err
	}
	return *lot, nil
}

func (s *Service) ListLots(ctx context.Context, productID string, includeExhausted bool) ([]domain.Lot, error) {
	return s.repo.ListLots(ctx, strings.TrimSpace(productID), includeExhausted)
}

func (s *Service) ListExpiringLots(ctx context.Context, daysAhead int) ([]domain.Lot, error) {
	if daysAhead < 1 {
		daysAhead = 30
	}
	horizon := time.Now().UTC().AddDate(0, 0, daysAhead)
	return s.repo.ListExpiringLots(ctx, horizon)
}

// PlanConsumption returns the earliest-expiry-first draw order that would
// satisfy qty, without touching any state. The plan is advisory; the actual
// consume re-derives it under locks.
func (s *Service) PlanConsumption(ctx context.Context, productID string, qty int) ([]domain.LotDraw, error) {
	if qty < 1 {
		return nil, fmt.Errorf("%w: %d", store.ErrInvalidQuantity, qty)
	}
	if _, err := s.repo.GetProductByID(ctx, productID); err != nil {
		return nil, err
	}
	lots, err := s.repo.ListLiveLots(ctx, productID)
	if err != nil {
		return nil, err
	}

	available := 0
	for _, lot := range lots {
		available += lot.QtyRemaining
	}
	if available < qty {
		return nil, fmt.Errorf("%w: requested %d, available %d", store.ErrInsufficientStock, qty, available)
	}

	plan := make([]domain.LotDraw, 0, len(lots))
	remaining := qty
	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		take := remaining
		if take > lot.QtyRemaining {
			take = lot.QtyRemaining
		}
		plan = append(plan, domain.LotDraw{Lot: lot, Qty: take})
		remaining -= take
	}
	return plan, nil
}

// ReserveAndConsume is the checkout entry point: draw qty across the
// product's lots, earliest expiry first, atomically.
func (s *Service) ReserveAndConsume(ctx context.Context, req domain.ConsumeRequest) (domain.ConsumeResponse, error) {
	if req.Qty < 1 {
		return domain.ConsumeResponse{}, fmt.Errorf("%w: %d", store.ErrInvalidQuantity, req.Qty)
	}
	description := "sale"
	if req.SaleRef != "" {
		description = "sale " + req.SaleRef
	}
	movements, product, err := s.repo.ConsumeFromProduct(ctx, strings.TrimSpace(req.ProductID), req.Qty, domain.MovementSaleExit, strings.TrimSpace(req.SaleRef), description, time.Now().UTC())
	if err != nil {
		return domain.ConsumeResponse{}, err
	}
	return domain.ConsumeResponse{Movements: movements, Product: *product}, nil
}

// DiscardFromLot removes spoiled or expired stock from one specific lot.
func (s *Service) DiscardFromLot(ctx context.Context, req domain.DiscardRequest) (domain.Movement, error) {
	if req.Qty < 1 {
		return domain.Movement{}, fmt.Errorf("%w: %d", store.ErrInvalidQuantity, req.Qty)
	}
	note := strings.TrimSpace(req.Note)
	if note == "" {
		note = "discard"
	}
	mov, _, err := s.repo.ConsumeFromLot(ctx, strings.TrimSpace(req.LotID), req.Qty, domain.MovementDiscard, fmt.Sprintf("%s (by %s)", note, s.actorName(ctx)), time.Now().UTC())
	if err != nil {
		return domain.Movement{}, err
	}
	return *mov, nil
}

func (s *Service) ListMovements(ctx context.Context, productID string, limit int) ([]domain.Movement, error) {
	return s.repo.ListMovements(ctx, strings.TrimSpace(productID), limit)
}

// --- restock workflow ---

func (s *Service) CreateRestockDraft(ctx context.Context, req domain.RestockDraftRequest) (domain.RestockOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.RestockOrder{}, err
	}
	lines, err := buildLines(req.Lines)
	if err != nil {
		return domain.RestockOrder{}, err
	}
	method, err := normalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.RestockOrder{}, err
	}

	order := domain.RestockOrder{
		SupplierID:    strings.TrimSpace(req.SupplierID),
		Status:        domain.OrderStatusDraft,
		PaymentMethod: method,
		Notes:         strings.TrimSpace(req.Notes),
		Lines:         lines,
	}
	created, err := s.repo.CreateRestockOrder(ctx, order, domain.RestockAudit{
		ID:          xid.New("audit"),
		Action:      domain.AuditCreated,
		Actor:       s.actorName(ctx),
		Description: fmt.Sprintf("draft created with %d lines", len(lines)),
	})
	if err != nil {
		return domain.RestockOrder{}, err
	}
	return *created, nil
}

// Submit moves a draft to requested and asks the supplier for the goods.
// The supplier notification is dispatched after the commit and never blocks
// the transition.
func (s *Service) SubmitRestockOrder(ctx context.Context, orderID string) (domain.RestockOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.RestockOrder{}, err
	}

	order, err := s.repo.GetRestockOrder(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.RestockOrder{}, err
	}
	hasQty := false
	for _, line := range order.Lines {
		if line.QtyRequested > 0 {
			hasQty = true
			break
		}
	}
	if !hasQty {
		return domain.RestockOrder{}, fmt.Errorf("%w: order %s", store.ErrEmptyOrder, order.ID)
	}

	updated, err := s.repo.UpdateRestockStatus(ctx, order.ID, []string{domain.OrderStatusDraft}, domain.OrderStatusRequested, domain.RestockAudit{
		ID:          xid.New("audit"),
		Action:      domain.AuditEdited,
		Actor:       s.actorName(ctx),
		Description: "submitted to supplier",
	})
	if err != nil {
		return domain.RestockOrder{}, err
	}

	supplier, err := s.repo.GetSupplierByID(ctx, updated.SupplierID)
	if err != nil {
		log.Printf("[service] WARN: supplier lookup for notification order=%s: %v", updated.ID, err)
	} else if err := s.notifier.SupplierOrderRequested(ctx, *updated, *supplier); err != nil {
		log.Printf("[notify] WARN: supplier order notification order=%s: %v", updated.ID, err)
	}
	return *updated, nil
}

func (s *Service) EditRestockOrder(ctx context.Context, orderID string, req domain.RestockEditRequest) (domain.RestockOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.RestockOrder{}, err
	}
	lines, err := buildLines(req.Lines)
	if err != nil {
		return domain.RestockOrder{}, err
	}
	method, err := normalizePaymentMethod(req.PaymentMethod)
	if err != nil {
		return domain.RestockOrder{}, err
	}

	updated, err := s.repo.ReplaceRestockLines(ctx, domain.RestockOrder{
		ID:            strings.TrimSpace(orderID),
		PaymentMethod: method,
		Notes:         strings.TrimSpace(req.Notes),
		Lines:         lines,
	}, domain.RestockAudit{
		ID:          xid.New("audit"),
		Action:      domain.AuditEdited,
		Actor:       s.actorName(ctx),
		Description: fmt.Sprintf("lines replaced, %d lines", len(lines)),
	})
	if err != nil {
		return domain.RestockOrder{}, err
	}
	return *updated, nil
}

func (s *Service) ReceiveRestockOrder(ctx context.Context, orderID string, req domain.ReceiveRequest) (domain.ReceptionResult, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ReceptionResult{}, err
	}
	orderID = strings.TrimSpace(orderID)

	order, err := s.repo.GetRestockOrder(ctx, orderID)
	if err != nil {
		return domain.ReceptionResult{}, err
	}
	byLineID := make(map[string]domain.RestockLine, len(order.Lines))
	for _, line := range order.Lines {
		byLineID[line.ID] = line
	}

	actor := s.actorName(ctx)
	receivedCount := 0
	audits := make([]domain.RestockAudit, 0, len(req.Lines)+1)
	for _, in := range req.Lines {
		line, ok := byLineID[in.LineID]
		if !ok {
			continue
		}
		if in.QtyReceived > 0 {
			receivedCount++
		}
		if in.QtyReceived != line.QtyRequested {
			before := line.QtyRequested
			after := in.QtyReceived
			audits = append(audits, domain.RestockAudit{
				ID:          xid.New("audit"),
				Action:      domain.AuditReceived,
				Actor:       actor,
				Description: fmt.Sprintf("line %s short received", in.LineID),
				QtyBefore:   &before,
				QtyAfter:    &after,
			})
		}
	}
	audits = append(audits, domain.RestockAudit{
		ID:          xid.New("audit"),
		Action:      domain.AuditReceived,
		Actor:       actor,
		Description: fmt.Sprintf("reception: %d of %d lines with stock", receivedCount, len(order.Lines)),
	})

	result, err := s.repo.ReceiveRestockOrder(ctx, orderID, req.Lines, actor, time.Now().UTC(), audits)
	if err != nil {
		return domain.ReceptionResult{}, err
	}

	if len(result.Discrepancies) > 0 {
		if err := s.notifier.ReceptionDiscrepancies(ctx, orderID, result.Discrepancies); err != nil {
			log.Printf("[notify] WARN: discrepancy notification order=%s: %v", orderID, err)
		}
	}
	return *result, nil
}

func (s *Service) CancelRestockOrder(ctx context.Context, orderID string) (domain.RestockOrder, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.RestockOrder{}, err
	}
	updated, err := s.repo.UpdateRestockStatus(ctx, strings.TrimSpace(orderID),
		[]string{domain.OrderStatusDraft, domain.OrderStatusRequested},
		domain.OrderStatusCancelled,
		domain.RestockAudit{
			ID:     xid.New("audit"),
			Action: domain.AuditCancelled,
			Actor:  s.actorName(ctx),
		})
	if err != nil {
		return domain.RestockOrder{}, err
	}
	return *updated, nil
}

// DeleteRestockOrder is the error-correction hard delete. It fails once any
// lot created by the order has been sold.
func (s *Service) DeleteRestockOrder(ctx context.Context, orderID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	return s.repo.DeleteRestockOrder(ctx, strings.TrimSpace(orderID))
}

// AmendReceivedLine fixes the expiration date or lot code recorded at
// reception. Quantities and costs stay frozen once received.
func (s *Service) AmendReceivedLine(ctx context.Context, orderID string, lineID string, req domain.AmendLineRequest) (domain.RestockLine, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.RestockLine{}, err
	}

	var expiration *time.Time
	if raw := strings.TrimSpace(req.ExpirationDate); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return domain.RestockLine{}, fmt.Errorf("%w: bad expiration date %q", store.ErrMissingExpirationDate, raw)
		}
		expiration = &parsed
	}
	lotCode := strings.TrimSpace(req.LotCode)
	if expiration == nil && lotCode == "" {
		return domain.RestockLine{}, fmt.Errorf("%w: nothing to amend", store.ErrInvalidQuantity)
	}

	changes := make([]string, 0, 2)
	if expiration != nil {
		changes = append(changes, "expiration="+expiration.Format("2006-01-02"))
	}
	if lotCode != "" {
		changes = append(changes, "lot_code="+lotCode)
	}

	line, err := s.repo.AmendReceivedLine(ctx, strings.TrimSpace(orderID), strings.TrimSpace(lineID), expiration, lotCode, domain.RestockAudit{
		ID:          xid.New("audit"),
		Action:      domain.AuditEdited,
		Actor:       s.actorName(ctx),
		Description: fmt.Sprintf("line %s amended: %s", lineID, strings.Join(changes, " ")),
	})
	if err != nil {
		return domain.RestockLine{}, err
	}
	return *line, nil
}

func (s *Service) GetRestockOrder(ctx context.Context, orderID string) (domain.RestockOrder, error) {
	order, err := s.repo.GetRestockOrder(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.RestockOrder{}, err
	}
	return *order, nil
}

func (s *Service) ListRestockOrders(ctx context.Context, status string, limit int) ([]domain.RestockOrder, error) {
	return s.repo.ListRestockOrders(ctx, status, limit)
}

func (s *Service) ListRestockAudit(ctx context.Context, orderID string) ([]domain.RestockAudit, error) {
	return s.repo.ListRestockAudit(ctx, strings.TrimSpace(orderID))
}

// --- suppliers ---

func (s *Service) CreateSupplier(ctx context.Context, req domain.SupplierCreateRequest) (domain.Supplier, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Supplier{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Supplier{}, fmt.Errorf("%w: supplier name required", store.ErrInvalidQuantity)
	}

	created, err := s.repo.CreateSupplier(ctx, domain.Supplier{
		DocumentType: strings.ToUpper(strings.TrimSpace(req.DocumentType)),
		DocumentID:   strings.TrimSpace(req.DocumentID),
		Name:         name,
		Phone:        strings.TrimSpace(req.Phone),
		Email:        strings.TrimSpace(req.Email),
		Address:      strings.TrimSpace(req.Address),
	})
	if err != nil {
		return domain.Supplier{}, err
	}
	return *created, nil
}

func (s *Service) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	return s.repo.ListSuppliers(ctx)
}

func (s *Service) GetSupplier(ctx context.Context, id string) (domain.Supplier, error) {
	supplier, err := s.repo.GetSupplierByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Supplier{}, err
	}
	return *supplier, nil
}

// --- helpers ---

// buildLines validates draft line input. Zero quantities are allowed while
// drafting; Submit enforces at least one positive line.
func buildLines(inputs []domain.RestockLineInput) ([]domain.RestockLine, error) {
	lines := make([]domain.RestockLine, 0, len(inputs))
	for _, in := range inputs {
		productID := strings.TrimSpace(in.ProductID)
		if productID == "" {
			return nil, fmt.Errorf("%w: line without product", store.ErrInvalidQuantity)
		}
		if in.QtyRequested < 0 {
			return nil, fmt.Errorf("%w: %d", store.ErrInvalidQuantity, in.QtyRequested)
		}
		if in.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: negative unit cost", store.ErrInvalidQuantity)
		}
		lines = append(lines, domain.RestockLine{
			ProductID:    productID,
			QtyRequested: in.QtyRequested,
			UnitCost:     in.UnitCost,
		})
	}
	return lines, nil
}

func normalizePaymentMethod(method string) (string, error) {
	method = strings.ToLower(strings.TrimSpace(method))
	if method == "" {
		method = domain.PayTransfer
	}
	if !domain.IsValidPaymentMethod(method) {
		return "", fmt.Errorf("%w: unknown payment method %q", store.ErrInvalidQuantity, method)
	}
	return method, nil
}
