package memory

import (
	"context"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"

	"laplayita/backend/internal/costing"
	"laplayita/backend/internal/domain"
	"laplayita/backend/internal/store"
	"laplayita/backend/internal/xid"
)

type Store struct {
	mu              sync.RWMutex
	products        map[string]domain.Product
	lotsByID        map[string]domain.Lot
	movements       []domain.Movement
	ordersByID      map[string]domain.RestockOrder
	restockAudits   []domain.RestockAudit
	suppliersByID   map[string]domain.Supplier
	usersByUsername map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory user accounts for dev/demo mode.
// Credentials are read from SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD
// environment variables. If unset, hardcoded dev defaults are used with a
// warning. These credentials are never used in production (the backend uses
// PostgreSQL when DATABASE_URL is set).
func seedUsers() map[string]domain.UserAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	sellerPwd := envOr("SEED_SELLER_PASSWORD", "seller123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_SELLER_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_SELLER_PASSWORD to override.")
	}

	now := time.Now().UTC()
	users := map[string]domain.UserAccount{}
	for _, u := range []struct {
		username string
		password string
		role     string
	}{
		{"admin", adminPwd, "admin"},
		{"seller", sellerPwd, "seller"},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", u.username, err)
		}
		users[u.username] = domain.UserAccount{
			Username:  u.username,
			Password:  string(hash),
			Role:      u.role,
			Active:    true,
			CreatedAt: now,
		}
	}
	return users
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func New() *Store {
	return &Store{
		products:        map[string]domain.Product{},
		lotsByID:        map[string]domain.Lot{},
		movements:       make([]domain.Movement, 0, 128),
		ordersByID:      map[string]domain.RestockOrder{},
		restockAudits:   make([]domain.RestockAudit, 0, 64),
		suppliersByID:   map[string]domain.Supplier{},
		usersByUsername: seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	products := []domain.Product{
		{ID: "prod-leche-01", Name: "Leche Entera 1L", Category: "lacteos", UnitPrice: dec("4500"), TaxRatePercent: dec("19"), StockMinimum: 12, CreatedAt: now},
		{ID: "prod-pan-01", Name: "Pan Tajado", Category: "panaderia", UnitPrice: dec("6200"), TaxRatePercent: dec("19"), StockMinimum: 8, CreatedAt: now},
		{ID: "prod-arroz-01", Name: "Arroz 1kg", Category: "granos", UnitPrice: dec("5300"), TaxRatePercent: dec("0"), StockMinimum: 20, CreatedAt: now},
		{ID: "prod-gaseosa-01", Name: "Gaseosa 1.5L", Category: "bebidas", UnitPrice: dec("7800"), TaxRatePercent: dec("19"), StockMinimum: 10, CreatedAt: now},
		{ID: "prod-queso-01", Name: "Queso Campesino 500g", Category: "lacteos", UnitPrice: dec("12500"), TaxRatePercent: dec("5"), StockMinimum: 6, CreatedAt: now},
	}
	for _, p := range products {
		s.products[p.ID] = p
	}

	suppliers := []domain.Supplier{
		{ID: "sup-alpina-01", DocumentType: "NIT", DocumentID: "860025900-2", Name: "Alpina S.A.", Phone: "6013778000", Email: "pedidos@alpina.example", CreatedAt: now},
		{ID: "sup-abarrotes-01", DocumentType: "NIT", DocumentID: "900123456-7", Name: "Distribuidora El Centro", Phone: "3104567890", Email: "ventas@elcentro.example", CreatedAt: now},
	}
	for _, sup := range suppliers {
		s.suppliersByID[sup.ID] = sup
	}

	expiry := now.AddDate(0, 1, 0)
	lots := []domain.Lot{
		{ID: "lot-seed-01", ProductID: "prod-leche-01", LotCode: "SEED-L01", QtyRemaining: 24, UnitCost: dec("3200"), ExpirationDate: &expiry, ReceivedAt: now.AddDate(0, 0, -7)},
		{ID: "lot-seed-02", ProductID: "prod-arroz-01", LotCode: "SEED-A01", QtyRemaining: 40, UnitCost: dec("4100"), ReceivedAt: now.AddDate(0, 0, -14)},
	}
	for _, lot := range lots {
		s.lotsByID[lot.ID] = lot
		s.movements = append(s.movements, domain.Movement{
			ID:          xid.New("mov"),
			ProductID:   lot.ProductID,
			LotID:       lot.ID,
			Delta:       lot.QtyRemaining,
			Reason:      domain.MovementEntry,
			Description: "seed stock",
			CreatedAt:   lot.ReceivedAt,
		})
		s.recomputeProductLocked(lot.ProductID)
	}
	return s
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// recomputeProductLocked refreshes a product's derived stock and average
// cost from its lots. Caller must hold the write lock.
func (s *Store) recomputeProductLocked(productID string) {
	product, ok := s.products[productID]
	if !ok {
		return
	}
	lots := make([]domain.Lot, 0, 8)
	for _, lot := range s.lotsByID {
		if lot.ProductID == productID {
			lots = append(lots, lot)
		}
	}
	costing.Apply(&product, costing.Summarize(lots))
	s.products[productID] = product
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category == b.Category {
			return cmpString(a.Name, b.Name)
		}
		return cmpString(a.Category, b.Category)
	})
	return products, nil
}

func (s *Store) ListLowStockProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if p.StockOnHand < p.StockMinimum {
			products = append(products, p)
		}
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return cmpString(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Name == "" || product.Category == "" {
		return nil, store.ErrInvalidQuantity
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	if _, exists := s.products[product.ID]; exists {
		return nil, store.ErrDuplicate
	}
	product.StockOnHand = 0
	product.AverageCost = decimal.Zero
	s.products[product.ID] = product
	created := product
	return &created, nil
}

func (s *Store) GetProductByID(_ context.Context, id string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyProduct := product
	return &copyProduct, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.products[product.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	// Derived fields are owned by the recompute, never by the caller.
	product.StockOnHand = existing.StockOnHand
	product.AverageCost = existing.AverageCost
	product.CreatedAt = existing.CreatedAt
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) GetProductDetail(_ context.Context, id string) (*domain.ProductDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, exists := s.products[id]
	if !exists {
		return nil, store.ErrNotFound
	}

	lots := make([]domain.Lot, 0, 8)
	liveQty := 0
	for _, lot := range s.lotsByID {
		if lot.ProductID != id {
			continue
		}
		lots = append(lots, cloneLot(lot))
		if lot.QtyRemaining > 0 {
			liveQty += lot.QtyRemaining
		}
	}
	slices.SortFunc(lots, compareLotFEFO)

	movements := make([]domain.Movement, 0, 16)
	for _, mov := range s.movements {
		if mov.ProductID == id {
			movements = append(movements, mov)
		}
	}
	sortMovementsNewestFirst(movements)

	return &domain.ProductDetail{
		Product:          product,
		Lots:             lots,
		Movements:        movements,
		LiveLotQty:       liveQty,
		LedgerConsistent: product.StockOnHand == liveQty,
	}, nil
}

func (s *Store) CreateLot(_ context.Context, lot domain.Lot, movement domain.Movement) (*domain.Lot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if lot.QtyRemaining < 1 {
		return nil, fmt.Errorf("%w: lot quantity %d", store.ErrInvalidQuantity, lot.QtyRemaining)
	}
	if _, exists := s.products[lot.ProductID]; !exists {
		return nil, store.ErrNotFound
	}
	if lot.ID == "" {
		lot.ID = xid.New("lot")
	}
	if strings.TrimSpace(lot.LotCode) == "" {
		lot.LotCode = "MANUAL-" + lot.ID
	}
	if lot.ReceivedAt.IsZero() {
		lot.ReceivedAt = time.Now().UTC()
	}

	movement.LotID = lot.ID
	movement.ProductID = lot.ProductID
	if movement.Delta == 0 {
		movement.Delta = lot.QtyRemaining
	}
	if err := s.appendMovementLocked(&movement); err != nil {
		return nil, err
	}

	s.lotsByID[lot.ID] = lot
	s.recomputeProductLocked(lot.ProductID)
	created := cloneLot(lot)
	return &created, nil
}

func (s *Store) GetLot(_ context.Context, id string) (*domain.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	lot, exists := s.lotsByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyLot := cloneLot(lot)
	return &copyLot, nil
}

func (s *Store) ListLots(_ context.Context, productID string, includeExhausted bool) ([]domain.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Lot, 0, 16)
	for _, lot := range s.lotsByID {
		if productID != "" && lot.ProductID != productID {
			continue
		}
		if !includeExhausted && lot.QtyRemaining < 1 {
			continue
		}
		result = append(result, cloneLot(lot))
	}
	slices.SortFunc(result, compareLotFEFO)
	return result, nil
}

func (s *Store) ListLiveLots(_ context.Context, productID string) ([]domain.Lot, error) {
	return s.ListLots(context.Background(), productID, false)
}

func (s *Store) ListExpiringLots(_ context.Context, before time.Time) ([]domain.Lot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Lot, 0, 16)
	for _, lot := range s.lotsByID {
		if lot.QtyRemaining < 1 || lot.ExpirationDate == nil {
			continue
		}
		if lot.ExpirationDate.After(before) {
			continue
		}
		result = append(result, cloneLot(lot))
	}
	slices.SortFunc(result, compareLotFEFO)
	return result, nil
}

func (s *Store) ConsumeFromProduct(_ context.Context, productID string, qty int, reason string, saleRef string, description string, at time.Time) ([]domain.Movement, *domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 {
		return nil, nil, fmt.Errorf("%w: %d", store.ErrInvalidQuantity, qty)
	}
	if _, exists := s.products[productID]; !exists {
		return nil, nil, store.ErrNotFound
	}

	live := make([]domain.Lot, 0, 8)
	available := 0
	for _, lot := range s.lotsByID {
		if lot.ProductID != productID || lot.QtyRemaining < 1 {
			continue
		}
		live = append(live, lot)
		available += lot.QtyRemaining
	}
	if available < qty {
		return nil, nil, fmt.Errorf("%w: requested %d, available %d", store.ErrInsufficientStock, qty, available)
	}
	slices.SortFunc(live, compareLotFEFO)

	if at.IsZero() {
		at = time.Now().UTC()
	}
	movements := make([]domain.Movement, 0, len(live))
	remaining := qty
	for _, lot := range live {
		if remaining == 0 {
			break
		}
		used := remaining
		if used > lot.QtyRemaining {
			used = lot.QtyRemaining
		}
		lot.QtyRemaining -= used
		remaining -= used
		s.lotsByID[lot.ID] = lot

		mov := domain.Movement{
			ID:          xid.New("mov"),
			ProductID:   productID,
			LotID:       lot.ID,
			Delta:       -used,
			Reason:      reason,
			Description: description,
			SaleRef:     saleRef,
			CreatedAt:   at,
		}
		s.movements = append(s.movements, mov)
		movements = append(movements, mov)
	}

	s.recomputeProductLocked(productID)
	product := s.products[productID]
	return movements, &product, nil
}

func (s *Store) ConsumeFromLot(_ context.Context, lotID string, qty int, reason string, description string, at time.Time) (*domain.Movement, *domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if qty < 1 {
		return nil, nil, fmt.Errorf("%w: %d", store.ErrInvalidQuantity, qty)
	}
	lot, exists := s.lotsByID[lotID]
	if !exists {
		return nil, nil, store.ErrNotFound
	}
	if qty > lot.QtyRemaining {
		return nil, nil, fmt.Errorf("%w: requested %d, available %d", store.ErrInsufficientStock, qty, lot.QtyRemaining)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	lot.QtyRemaining -= qty
	s.lotsByID[lotID] = lot

	mov := domain.Movement{
		ID:          xid.New("mov"),
		ProductID:   lot.ProductID,
		LotID:       lot.ID,
		Delta:       -qty,
		Reason:      reason,
		Description: description,
		CreatedAt:   at,
	}
	s.movements = append(s.movements, mov)
	s.recomputeProductLocked(lot.ProductID)
	product := s.products[lot.ProductID]
	return &mov, &product, nil
}

func (s *Store) ListMovements(_ context.Context, productID string, limit int) ([]domain.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Movement, 0, 32)
	for _, mov := range s.movements {
		if productID != "" && mov.ProductID != productID {
			continue
		}
		result = append(result, mov)
	}
	sortMovementsNewestFirst(result)
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) appendMovementLocked(mov *domain.Movement) error {
	if mov.Delta == 0 {
		return fmt.Errorf("%w: movement delta must be non-zero", store.ErrInvalidQuantity)
	}
	if mov.ID == "" {
		mov.ID = xid.New("mov")
	}
	if mov.CreatedAt.IsZero() {
		mov.CreatedAt = time.Now().UTC()
	}
	s.movements = append(s.movements, *mov)
	return nil
}

func (s *Store) CreateRestockOrder(_ context.Context, order domain.RestockOrder, audit domain.RestockAudit) (*domain.RestockOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.suppliersByID[order.SupplierID]; !exists {
		return nil, store.ErrNotFound
	}
	if order.ID == "" {
		order.ID = xid.New("ro")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusDraft
	}
	for i := range order.Lines {
		if order.Lines[i].ID == "" {
			order.Lines[i].ID = xid.New("line")
		}
		order.Lines[i].OrderID = order.ID
		if _, exists := s.products[order.Lines[i].ProductID]; !exists {
			return nil, store.ErrNotFound
		}
	}
	s.computeOrderTotalsLocked(&order)

	s.ordersByID[order.ID] = cloneOrder(order)
	audit.OrderID = order.ID
	s.appendAuditLocked(audit)
	saved := cloneOrder(order)
	return &saved, nil
}

func (s *Store) GetRestockOrder(_ context.Context, id string) (*domain.RestockOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, exists := s.ordersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copyOrder := cloneOrder(order)
	return &copyOrder, nil
}

func (s *Store) ListRestockOrders(_ context.Context, status string, limit int) ([]domain.RestockOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status = strings.ToLower(strings.TrimSpace(status))
	result := make([]domain.RestockOrder, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		if status != "" && order.Status != status {
			continue
		}
		result = append(result, cloneOrder(order))
	}
	slices.SortFunc(result, func(a, b domain.RestockOrder) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ReplaceRestockLines(_ context.Context, order domain.RestockOrder, audit domain.RestockAudit) (*domain.RestockOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.ordersByID[order.ID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if existing.Status != domain.OrderStatusDraft && existing.Status != domain.OrderStatusRequested {
		return nil, fmt.Errorf("%w: order is %s", store.ErrOrderAlreadyReceiving, existing.Status)
	}
	if s.orderHasLotsLocked(existing) {
		return nil, fmt.Errorf("%w: lots already created", store.ErrOrderAlreadyReceiving)
	}

	existing.PaymentMethod = order.PaymentMethod
	existing.Notes = order.Notes
	existing.Lines = make([]domain.RestockLine, 0, len(order.Lines))
	for _, line := range order.Lines {
		if line.ID == "" {
			line.ID = xid.New("line")
		}
		line.OrderID = existing.ID
		if _, ok := s.products[line.ProductID]; !ok {
			return nil, store.ErrNotFound
		}
		existing.Lines = append(existing.Lines, line)
	}
	s.computeOrderTotalsLocked(&existing)

	s.ordersByID[existing.ID] = cloneOrder(existing)
	audit.OrderID = existing.ID
	s.appendAuditLocked(audit)
	saved := cloneOrder(existing)
	return &saved, nil
}

func (s *Store) UpdateRestockStatus(_ context.Context, orderID string, from []string, to string, audit domain.RestockAudit) (*domain.RestockOrder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if !slices.Contains(from, order.Status) {
		return nil, fmt.Errorf("%w: order is %s", store.ErrOrderAlreadyReceiving, order.Status)
	}
	// Re-checked under the lock: a concurrent edit must not let an order
	// without a single positive line reach the supplier.
	if to == domain.OrderStatusRequested && !orderHasQty(order) {
		return nil, fmt.Errorf("%w: order %s", store.ErrEmptyOrder, orderID)
	}
	order.Status = to
	if to == domain.OrderStatusRequested {
		s.computeOrderTotalsLocked(&order)
	}
	s.ordersByID[orderID] = cloneOrder(order)
	audit.OrderID = orderID
	s.appendAuditLocked(audit)
	saved := cloneOrder(order)
	return &saved, nil
}

func (s *Store) ReceiveRestockOrder(_ context.Context, orderID string, lines []domain.ReceiveLineInput, receivedBy string, at time.Time, audits []domain.RestockAudit) (*domain.ReceptionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderStatusRequested {
		return nil, fmt.Errorf("%w: order is %s", store.ErrOrderAlreadyReceiving, order.Status)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	byLineID := make(map[string]*domain.RestockLine, len(order.Lines))
	for i := range order.Lines {
		byLineID[order.Lines[i].ID] = &order.Lines[i]
	}

	// Validate everything before touching state: a failed line leaves the
	// order untouched.
	inputs := make(map[string]domain.ReceiveLineInput, len(lines))
	expirations := make(map[string]time.Time, len(lines))
	for _, in := range lines {
		line, ok := byLineID[in.LineID]
		if !ok {
			return nil, fmt.Errorf("%w: line %s", store.ErrNotFound, in.LineID)
		}
		if in.QtyReceived < 0 {
			return nil, fmt.Errorf("%w: %d", store.ErrInvalidQuantity, in.QtyReceived)
		}
		if in.QtyReceived > line.QtyRequested {
			return nil, fmt.Errorf("%w: received %d, requested %d", store.ErrOverReceipt, in.QtyReceived, line.QtyRequested)
		}
		if in.QtyReceived > 0 {
			if strings.TrimSpace(in.ExpirationDate) == "" {
				return nil, fmt.Errorf("%w: line %s", store.ErrMissingExpirationDate, in.LineID)
			}
			expiry, err := time.Parse("2006-01-02", in.ExpirationDate)
			if err != nil {
				return nil, fmt.Errorf("%w: line %s: bad expiration date %q", store.ErrMissingExpirationDate, in.LineID, in.ExpirationDate)
			}
			expirations[in.LineID] = expiry
		}
		inputs[in.LineID] = in
	}

	result := &domain.ReceptionResult{}
	affected := map[string]struct{}{}
	for i := range order.Lines {
		line := &order.Lines[i]
		in, ok := inputs[line.ID]
		if !ok {
			continue
		}
		line.QtyReceived = in.QtyReceived
		line.ReceivedBy = receivedBy
		receivedAt := at
		line.ReceivedAt = &receivedAt

		product := s.products[line.ProductID]
		if in.QtyReceived > 0 && in.QtyReceived < line.QtyRequested {
			result.Discrepancies = append(result.Discrepancies, domain.Discrepancy{
				ProductID:    line.ProductID,
				ProductName:  product.Name,
				QtyRequested: line.QtyRequested,
				QtyReceived:  in.QtyReceived,
			})
		}
		if in.QtyReceived == 0 {
			continue
		}

		lotCode := strings.TrimSpace(in.LotCode)
		if lotCode == "" {
			lotCode = fmt.Sprintf("%s-%s-%s", order.ID, line.ProductID, line.ID)
		}
		expiry := expirations[line.ID]
		line.ExpirationDate = &expiry
		line.LotCode = lotCode

		lot := domain.Lot{
			ID:             xid.New("lot"),
			ProductID:      line.ProductID,
			RestockLineID:  line.ID,
			LotCode:        lotCode,
			QtyRemaining:   in.QtyReceived,
			UnitCost:       line.UnitCost,
			ExpirationDate: &expiry,
			ReceivedAt:     at,
		}
		s.lotsByID[lot.ID] = lot
		s.movements = append(s.movements, domain.Movement{
			ID:             xid.New("mov"),
			ProductID:      line.ProductID,
			LotID:          lot.ID,
			Delta:          in.QtyReceived,
			Reason:         domain.MovementEntry,
			Description:    fmt.Sprintf("restock reception lot %s", lotCode),
			RestockOrderID: order.ID,
			CreatedAt:      at,
		})
		result.LotsCreated = append(result.LotsCreated, cloneLot(lot))
		affected[line.ProductID] = struct{}{}
	}

	for productID := range affected {
		s.recomputeProductLocked(productID)
	}

	order.Status = domain.OrderStatusReceived
	s.ordersByID[orderID] = cloneOrder(order)
	for _, audit := range audits {
		audit.OrderID = orderID
		s.appendAuditLocked(audit)
	}
	result.Order = cloneOrder(order)
	return result, nil
}

func (s *Store) DeleteRestockOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return store.ErrNotFound
	}

	lotIDs := map[string]struct{}{}
	affected := map[string]struct{}{}
	lineIDs := map[string]struct{}{}
	for _, line := range order.Lines {
		lineIDs[line.ID] = struct{}{}
	}
	for id, lot := range s.lotsByID {
		if _, ok := lineIDs[lot.RestockLineID]; ok {
			lotIDs[id] = struct{}{}
			affected[lot.ProductID] = struct{}{}
		}
	}

	for _, mov := range s.movements {
		if _, ok := lotIDs[mov.LotID]; ok && mov.Reason == domain.MovementSaleExit {
			return fmt.Errorf("%w: lot %s", store.ErrOrderHasSales, mov.LotID)
		}
	}

	kept := s.movements[:0]
	for _, mov := range s.movements {
		if mov.RestockOrderID == orderID {
			continue
		}
		if _, ok := lotIDs[mov.LotID]; ok {
			continue
		}
		kept = append(kept, mov)
	}
	s.movements = kept
	for id := range lotIDs {
		delete(s.lotsByID, id)
	}
	delete(s.ordersByID, orderID)
	for productID := range affected {
		s.recomputeProductLocked(productID)
	}
	return nil
}

func (s *Store) AmendReceivedLine(_ context.Context, orderID string, lineID string, expiration *time.Time, lotCode string, audit domain.RestockAudit) (*domain.RestockLine, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, exists := s.ordersByID[orderID]
	if !exists {
		return nil, store.ErrNotFound
	}
	if order.Status != domain.OrderStatusReceived {
		return nil, fmt.Errorf("%w: order is %s", store.ErrOrderAlreadyReceiving, order.Status)
	}

	var line *domain.RestockLine
	for i := range order.Lines {
		if order.Lines[i].ID == lineID {
			line = &order.Lines[i]
			break
		}
	}
	if line == nil {
		return nil, fmt.Errorf("%w: line %s", store.ErrNotFound, lineID)
	}

	if expiration != nil {
		expiry := *expiration
		line.ExpirationDate = &expiry
	}
	if strings.TrimSpace(lotCode) != "" {
		line.LotCode = strings.TrimSpace(lotCode)
	}
	for id, lot := range s.lotsByID {
		if lot.RestockLineID != lineID {
			continue
		}
		if expiration != nil {
			expiry := *expiration
			lot.ExpirationDate = &expiry
		}
		if strings.TrimSpace(lotCode) != "" {
			lot.LotCode = strings.TrimSpace(lotCode)
		}
		s.lotsByID[id] = lot
	}

	s.ordersByID[orderID] = cloneOrder(order)
	audit.OrderID = orderID
	s.appendAuditLocked(audit)
	amended := *line
	return &amended, nil
}

func (s *Store) ListRestockAudit(_ context.Context, orderID string) ([]domain.RestockAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.RestockAudit, 0, 8)
	for _, entry := range s.restockAudits {
		if entry.OrderID == orderID {
			result = append(result, entry)
		}
	}
	slices.SortFunc(result, func(a, b domain.RestockAudit) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(a.ID, b.ID)
		}
		if a.CreatedAt.Before(b.CreatedAt) {
			return -1
		}
		return 1
	})
	return result, nil
}

func (s *Store) appendAuditLocked(entry domain.RestockAudit) {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	s.restockAudits = append(s.restockAudits, entry)
}

func orderHasQty(order domain.RestockOrder) bool {
	for _, line := range order.Lines {
		if line.QtyRequested > 0 {
			return true
		}
	}
	return false
}

// orderHasLotsLocked reports whether any lot was ever created from the
// order's line items, received or not.
func (s *Store) orderHasLotsLocked(order domain.RestockOrder) bool {
	lineIDs := map[string]struct{}{}
	for _, line := range order.Lines {
		lineIDs[line.ID] = struct{}{}
	}
	for _, lot := range s.lotsByID {
		if _, ok := lineIDs[lot.RestockLineID]; ok {
			return true
		}
	}
	return false
}

func (s *Store) computeOrderTotalsLocked(order *domain.RestockOrder) {
	rates := make(map[string]decimal.Decimal, len(order.Lines))
	for i := range order.Lines {
		product, ok := s.products[order.Lines[i].ProductID]
		if !ok {
			continue
		}
		rates[order.Lines[i].ProductID] = product.TaxRatePercent
		order.Lines[i].TaxAmount = costing.LineTax(order.Lines[i].UnitCost, order.Lines[i].QtyRequested, product.TaxRatePercent)
	}
	order.Subtotal, order.TaxTotal = costing.OrderTotals(order.Lines, rates)
}

func (s *Store) CreateSupplier(_ context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.Name == "" {
		return nil, fmt.Errorf("%w: supplier name required", store.ErrInvalidQuantity)
	}
	for _, existing := range s.suppliersByID {
		if existing.DocumentID != "" && existing.DocumentID == supplier.DocumentID {
			return nil, fmt.Errorf("%w: document %s", store.ErrDuplicate, supplier.DocumentID)
		}
	}
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}
	s.suppliersByID[supplier.ID] = supplier
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) ListSuppliers(_ context.Context) ([]domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	suppliers := make([]domain.Supplier, 0, len(s.suppliersByID))
	for _, supplier := range s.suppliersByID {
		suppliers = append(suppliers, supplier)
	}
	slices.SortFunc(suppliers, func(a, b domain.Supplier) int {
		return cmpString(a.Name, b.Name)
	})
	return suppliers, nil
}

func (s *Store) GetSupplierByID(_ context.Context, id string) (*domain.Supplier, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	supplier, exists := s.suppliersByID[id]
	if !exists {
		return nil, store.ErrNotFound
	}
	copySupplier := supplier
	return &copySupplier, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidQuantity
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrDuplicate
	}
	user.Username = username
	if user.Role == "" {
		user.Role = "seller"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.Active = true
	s.usersByUsername[user.Username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return cmpString(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidQuantity
	}
	user, exists := s.usersByUsername[username]
	if !exists {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}

func cmpString(a string, b string) int {
	if a == b {
		return 0
	}
	if a < b {
		return -1
	}
	return 1
}

func compareLotFEFO(a domain.Lot, b domain.Lot) int {
	if a.ExpirationDate == nil && b.ExpirationDate != nil {
		return 1
	}
	if a.ExpirationDate != nil && b.ExpirationDate == nil {
		return -1
	}
	if a.ExpirationDate != nil && b.ExpirationDate != nil {
		if a.ExpirationDate.Before(*b.ExpirationDate) {
			return -1
		}
		if a.ExpirationDate.After(*b.ExpirationDate) {
			return 1
		}
	}
	if a.ReceivedAt.Before(b.ReceivedAt) {
		return -1
	}
	if a.ReceivedAt.After(b.ReceivedAt) {
		return 1
	}
	return cmpString(a.ID, b.ID)
}

func sortMovementsNewestFirst(movements []domain.Movement) {
	slices.SortFunc(movements, func(a, b domain.Movement) int {
		if a.CreatedAt.Equal(b.CreatedAt) {
			return cmpString(b.ID, a.ID)
		}
		if a.CreatedAt.After(b.CreatedAt) {
			return -1
		}
		return 1
	})
}

func cloneLot(src domain.Lot) domain.Lot {
	dup := src
	if src.ExpirationDate != nil {
		expiry := src.ExpirationDate.UTC()
		dup.ExpirationDate = &expiry
	}
	return dup
}

func cloneOrder(src domain.RestockOrder) domain.RestockOrder {
	dup := src
	lines := make([]domain.RestockLine, len(src.Lines))
	copy(lines, src.Lines)
	for i := range lines {
		if lines[i].ExpirationDate != nil {
			expiry := lines[i].ExpirationDate.UTC()
			lines[i].ExpirationDate = &expiry
		}
		if lines[i].ReceivedAt != nil {
			at := lines[i].ReceivedAt.UTC()
			lines[i].ReceivedAt = &at
		}
	}
	dup.Lines = lines
	return dup
}
