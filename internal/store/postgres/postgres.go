package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"laplayita/backend/internal/costing"
	"laplayita/backend/internal/domain"
	"laplayita/backend/internal/store"
	"laplayita/backend/internal/xid"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const productColumns = `id, name, category, COALESCE(description, ''), unit_price, tax_rate_percent, stock_minimum, stock_on_hand, average_cost, created_at`

func scanProduct(row interface{ Scan(...any) error }) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.Name, &p.Category, &p.Description, &p.UnitPrice, &p.TaxRatePercent, &p.StockMinimum, &p.StockOnHand, &p.AverageCost, &p.CreatedAt)
	return p, err
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 128)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE stock_on_hand < stock_minimum
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]domain.Product, 0, 32)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}
	product.StockOnHand = 0
	product.AverageCost = decimal.Zero

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, description, unit_price, tax_rate_percent, stock_minimum, stock_on_hand, average_cost, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,0,0,$8,now())
	`, product.ID, product.Name, product.Category, nullIfEmpty(product.Description), product.UnitPrice, product.TaxRatePercent, product.StockMinimum, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrDuplicate
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, id)
	product, err := scanProduct(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	// Derived columns stay untouched; they belong to the recompute.
	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, category = $3, description = $4, unit_price = $5, tax_rate_percent = $6, stock_minimum = $7, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, product.Category, nullIfEmpty(product.Description), product.UnitPrice, product.TaxRatePercent, product.StockMinimum)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}
	return s.GetProductByID(ctx, product.ID)
}

func (s *Store) GetProductDetail(ctx context.Context, id string) (*domain.ProductDetail, error) {
	product, err := s.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	lots, err := s.ListLots(ctx, id, true)
	if err != nil {
		return nil, err
	}
	movements, err := s.ListMovements(ctx, id, 200)
	if err != nil {
		return nil, err
	}

	liveQty := 0
	for _, lot := range lots {
		if lot.QtyRemaining > 0 {
			liveQty += lot.QtyRemaining
		}
	}

	return &domain.ProductDetail{
		Product:          *product,
		Lots:             lots,
		Movements:        movements,
		LiveLotQty:       liveQty,
		LedgerConsistent: product.StockOnHand == liveQty,
	}, nil
}

const lotColumns = `id, product_id, COALESCE(restock_line_id, ''), lot_code, qty_remaining, unit_cost, expiration_date, received_at`

func scanLot(row interface{ Scan(...any) error }) (domain.Lot, error) {
	var lot domain.Lot
	var expiry sql.NullTime
	err := row.Scan(&lot.ID, &lot.ProductID, &lot.RestockLineID, &lot.LotCode, &lot.QtyRemaining, &lot.UnitCost, &expiry, &lot.ReceivedAt)
	if err != nil {
		return lot, err
	}
	if expiry.Valid {
		t := expiry.Time.UTC()
		lot.ExpirationDate = &t
	}
	return lot, nil
}

func (s *Store) CreateLot(ctx context.Context, lot domain.Lot, movement domain.Movement) (*domain.Lot, error) {
	if lot.QtyRemaining < 1 {
		return nil, fmt.Errorf("%w: lot quantity %d", store.ErrInvalidQuantity, lot.QtyRemaining)
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

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT true FROM products WHERE id = $1 FOR UPDATE`, lot.ProductID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO lots (id, product_id, restock_line_id, lot_code, qty_remaining, unit_cost, expiration_date, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, lot.ID, lot.ProductID, nullIfEmpty(lot.RestockLineID), lot.LotCode, lot.QtyRemaining, lot.UnitCost, nullDate(lot.ExpirationDate), lot.ReceivedAt)
	if err != nil {
		return nil, err
	}

	movement.LotID = lot.ID
	movement.ProductID = lot.ProductID
	if movement.Delta == 0 {
		movement.Delta = lot.QtyRemaining
	}
	if err := insertMovementTx(ctx, tx, &movement); err != nil {
		return nil, err
	}
	if err := recomputeProductTx(ctx, tx, lot.ProductID); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := lot
	return &created, nil
}

func (s *Store) GetLot(ctx context.Context, id string) (*domain.Lot, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+lotColumns+`
		FROM lots
		WHERE id = $1
	`, id)
	lot, err := scanLot(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &lot, nil
}

func (s *Store) ListLots(ctx context.Context, productID string, includeExhausted bool) ([]domain.Lot, error) {
	query := `
		SELECT ` + lotColumns + `
		FROM lots
		WHERE ($1 = '' OR product_id = $1)
	`
	if !includeExhausted {
		query += ` AND qty_remaining > 0`
	}
	query += ` ORDER BY expiration_date ASC NULLS LAST, received_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]domain.Lot, 0, 32)
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

func (s *Store) ListLiveLots(ctx context.Context, productID string) ([]domain.Lot, error) {
	return s.ListLots(ctx, productID, false)
}

func (s *Store) ListExpiringLots(ctx context.Context, before time.Time) ([]domain.Lot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lotColumns+`
		FROM lots
		WHERE qty_remaining > 0 AND expiration_date IS NOT NULL AND expiration_date <= $1
		ORDER BY expiration_date ASC, received_at ASC, id ASC
	`, nowDateUTC(before))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lots := make([]domain.Lot, 0, 32)
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lots, nil
}

func (s *Store) ConsumeFromProduct(ctx context.Context, productID string, qty int, reason string, saleRef string, description string, at time.Time) ([]domain.Movement, *domain.Product, error) {
	if qty < 1 {
		return nil, nil, fmt.Errorf("%w: %d", store.ErrInvalidQuantity, qty)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT true FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}

	// The earlier planning call is advisory only. The draw order is
	// re-derived here under row locks so a stale plan can never oversell.
	lotRows, err := tx.QueryContext(ctx, `
		SELECT id, qty_remaining
		FROM lots
		WHERE product_id = $1 AND qty_remaining > 0
		ORDER BY expiration_date ASC NULLS LAST, received_at ASC, id ASC
		FOR UPDATE
	`, productID)
	if err != nil {
		return nil, nil, err
	}
	type lotState struct {
		id        string
		remaining int
	}
	lots := make([]lotState, 0, 8)
	available := 0
	for lotRows.Next() {
		var ls lotState
		if err := lotRows.Scan(&ls.id, &ls.remaining); err != nil {
			_ = lotRows.Close()
			return nil, nil, err
		}
		lots = append(lots, ls)
		available += ls.remaining
	}
	if err := lotRows.Err(); err != nil {
		_ = lotRows.Close()
		return nil, nil, err
	}
	_ = lotRows.Close()

	if available < qty {
		return nil, nil, fmt.Errorf("%w: requested %d, available %d", store.ErrInsufficientStock, qty, available)
	}

	movements := make([]domain.Movement, 0, len(lots))
	remaining := qty
	for _, ls := range lots {
		if remaining == 0 {
			break
		}
		used := remaining
		if used > ls.remaining {
			used = ls.remaining
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE lots SET qty_remaining = qty_remaining - $2 WHERE id = $1
		`, ls.id, used)
		if err != nil {
			return nil, nil, err
		}
		mov := domain.Movement{
			ProductID:   productID,
			LotID:       ls.id,
			Delta:       -used,
			Reason:      reason,
			Description: description,
			SaleRef:     saleRef,
			CreatedAt:   at,
		}
		if err := insertMovementTx(ctx, tx, &mov); err != nil {
			return nil, nil, err
		}
		movements = append(movements, mov)
		remaining -= used
	}

	if err := recomputeProductTx(ctx, tx, productID); err != nil {
		return nil, nil, err
	}
	product, err := getProductTx(ctx, tx, productID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return movements, product, nil
}

func (s *Store) ConsumeFromLot(ctx context.Context, lotID string, qty int, reason string, description string, at time.Time) (*domain.Movement, *domain.Product, error) {
	if qty < 1 {
		return nil, nil, fmt.Errorf("%w: %d", store.ErrInvalidQuantity, qty)
	}
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var productID string
	var remaining int
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, qty_remaining
		FROM lots
		WHERE id = $1
		FOR UPDATE
	`, lotID).Scan(&productID, &remaining)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, store.ErrNotFound
		}
		return nil, nil, err
	}
	if qty > remaining {
		return nil, nil, fmt.Errorf("%w: requested %d, available %d", store.ErrInsufficientStock, qty, remaining)
	}

	_, err = tx.ExecContext(ctx, `UPDATE lots SET qty_remaining = qty_remaining - $2 WHERE id = $1`, lotID, qty)
	if err != nil {
		return nil, nil, err
	}

	mov := domain.Movement{
		ProductID:   productID,
		LotID:       lotID,
		Delta:       -qty,
		Reason:      reason,
		Description: description,
		CreatedAt:   at,
	}
	if err := insertMovementTx(ctx, tx, &mov); err != nil {
		return nil, nil, err
	}
	if err := recomputeProductTx(ctx, tx, productID); err != nil {
		return nil, nil, err
	}
	product, err := getProductTx(ctx, tx, productID)
	if err != nil {
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &mov, product, nil
}

func (s *Store) ListMovements(ctx context.Context, productID string, limit int) ([]domain.Movement, error) {
	if limit < 1 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, COALESCE(lot_id, ''), delta, reason, COALESCE(description, ''), COALESCE(sale_ref, ''), COALESCE(restock_order_id, ''), created_at
		FROM inventory_movements
		WHERE ($1 = '' OR product_id = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.Movement, 0, limit)
	for rows.Next() {
		var mov domain.Movement
		if err := rows.Scan(&mov.ID, &mov.ProductID, &mov.LotID, &mov.Delta, &mov.Reason, &mov.Description, &mov.SaleRef, &mov.RestockOrderID, &mov.CreatedAt); err != nil {
			return nil, err
		}
		mov.CreatedAt = mov.CreatedAt.UTC()
		movements = append(movements, mov)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return movements, nil
}

func (s *Store) CreateRestockOrder(ctx context.Context, order domain.RestockOrder, audit domain.RestockAudit) (*domain.RestockOrder, error) {
	if order.ID == "" {
		order.ID = xid.New("ro")
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusDraft
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT true FROM suppliers WHERE id = $1`, order.SupplierID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	if err := computeOrderTotalsTx(ctx, tx, &order); err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO restock_orders (id, supplier_id, status, payment_method, notes, subtotal, tax_total, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,now())
	`, order.ID, order.SupplierID, order.Status, order.PaymentMethod, nullIfEmpty(order.Notes), order.Subtotal, order.TaxTotal, order.CreatedAt)
	if err != nil {
		return nil, err
	}

	for i := range order.Lines {
		if order.Lines[i].ID == "" {
			order.Lines[i].ID = xid.New("line")
		}
		order.Lines[i].OrderID = order.ID
		if err := insertLineTx(ctx, tx, order.Lines[i]); err != nil {
			return nil, err
		}
	}

	audit.OrderID = order.ID
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	saved := order
	return &saved, nil
}

func (s *Store) GetRestockOrder(ctx context.Context, id string) (*domain.RestockOrder, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, supplier_id, status, payment_method, COALESCE(notes, ''), subtotal, tax_total, created_at
		FROM restock_orders
		WHERE id = $1
	`, id)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	lines, err := s.loadLines(ctx, id)
	if err != nil {
		return nil, err
	}
	order.Lines = lines
	return &order, nil
}

func (s *Store) ListRestockOrders(ctx context.Context, status string, limit int) ([]domain.RestockOrder, error) {
	if limit < 1 {
		limit = 50
	}
	status = strings.ToLower(strings.TrimSpace(status))
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, supplier_id, status, payment_method, COALESCE(notes, ''), subtotal, tax_total, created_at
		FROM restock_orders
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, status, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.RestockOrder, 0, limit)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range orders {
		lines, err := s.loadLines(ctx, orders[i].ID)
		if err != nil {
			return nil, err
		}
		orders[i].Lines = lines
	}
	return orders, nil
}

func (s *Store) ReplaceRestockLines(ctx context.Context, order domain.RestockOrder, audit domain.RestockAudit) (*domain.RestockOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM restock_orders WHERE id = $1 FOR UPDATE`, order.ID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.OrderStatusDraft && status != domain.OrderStatusRequested {
		return nil, fmt.Errorf("%w: order is %s", store.ErrOrderAlreadyReceiving, status)
	}

	var lotCount int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*)
		FROM lots
		WHERE restock_line_id IN (SELECT id FROM restock_lines WHERE order_id = $1)
	`, order.ID).Scan(&lotCount)
	if err != nil {
		return nil, err
	}
	if lotCount > 0 {
		return nil, fmt.Errorf("%w: lots already created", store.ErrOrderAlreadyReceiving)
	}

	if err := computeOrderTotalsTx(ctx, tx, &order); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM restock_lines WHERE order_id = $1`, order.ID); err != nil {
		return nil, err
	}
	for i := range order.Lines {
		if order.Lines[i].ID == "" {
			order.Lines[i].ID = xid.New("line")
		}
		order.Lines[i].OrderID = order.ID
		if err := insertLineTx(ctx, tx, order.Lines[i]); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE restock_orders
		SET payment_method = $2, notes = $3, subtotal = $4, tax_total = $5, updated_at = now()
		WHERE id = $1
	`, order.ID, order.PaymentMethod, nullIfEmpty(order.Notes), order.Subtotal, order.TaxTotal)
	if err != nil {
		return nil, err
	}

	audit.OrderID = order.ID
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	order.Status = status
	saved := order
	return &saved, nil
}

func (s *Store) UpdateRestockStatus(ctx context.Context, orderID string, from []string, to string, audit domain.RestockAudit) (*domain.RestockOrder, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM restock_orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	allowed := false
	for _, st := range from {
		if st == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w: order is %s", store.ErrOrderAlreadyReceiving, status)
	}

	if to == domain.OrderStatusRequested {
		order, err := loadOrderTx(ctx, tx, orderID)
		if err != nil {
			return nil, err
		}
		// Re-checked under the row lock: a concurrent edit must not let an
		// order without a single positive line reach the supplier.
		hasQty := false
		for _, line := range order.Lines {
			if line.QtyRequested > 0 {
				hasQty = true
				break
			}
		}
		if !hasQty {
			return nil, fmt.Errorf("%w: order %s", store.ErrEmptyOrder, orderID)
		}
		if err := computeOrderTotalsTx(ctx, tx, order); err != nil {
			return nil, err
		}
		for _, line := range order.Lines {
			_, err = tx.ExecContext(ctx, `UPDATE restock_lines SET tax_amount = $2 WHERE id = $1`, line.ID, line.TaxAmount)
			if err != nil {
				return nil, err
			}
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE restock_orders SET subtotal = $2, tax_total = $3, updated_at = now() WHERE id = $1
		`, orderID, order.Subtotal, order.TaxTotal)
		if err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE restock_orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, to)
	if err != nil {
		return nil, err
	}

	audit.OrderID = orderID
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return s.GetRestockOrder(ctx, orderID)
}

func (s *Store) ReceiveRestockOrder(ctx context.Context, orderID string, lines []domain.ReceiveLineInput, receivedBy string, at time.Time, audits []domain.RestockAudit) (*domain.ReceptionResult, error) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM restock_orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.OrderStatusRequested {
		return nil, fmt.Errorf("%w: order is %s", store.ErrOrderAlreadyReceiving, status)
	}

	order, err := loadOrderTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}

	byLineID := make(map[string]*domain.RestockLine, len(order.Lines))
	for i := range order.Lines {
		byLineID[order.Lines[i].ID] = &order.Lines[i]
	}

	// All lines are validated before any write so a bad line cannot leave
	// a half-received order behind.
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
	}

	result := &domain.ReceptionResult{}
	affected := map[string]struct{}{}
	productNames := map[string]string{}
	for _, in := range lines {
		line := byLineID[in.LineID]
		name, ok := productNames[line.ProductID]
		if !ok {
			err = tx.QueryRowContext(ctx, `SELECT name FROM products WHERE id = $1 FOR UPDATE`, line.ProductID).Scan(&name)
			if err != nil {
				return nil, err
			}
			productNames[line.ProductID] = name
		}

		if in.QtyReceived > 0 && in.QtyReceived < line.QtyRequested {
			result.Discrepancies = append(result.Discrepancies, domain.Discrepancy{
				ProductID:    line.ProductID,
				ProductName:  name,
				QtyRequested: line.QtyRequested,
				QtyReceived:  in.QtyReceived,
			})
		}

		var expiryArg any
		lotCode := strings.TrimSpace(in.LotCode)
		if in.QtyReceived > 0 {
			if lotCode == "" {
				lotCode = fmt.Sprintf("%s-%s-%s", orderID, line.ProductID, line.ID)
			}
			expiry := expirations[line.ID]
			expiryArg = nowDateUTC(expiry)

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
			_, err = tx.ExecContext(ctx, `
				INSERT INTO lots (id, product_id, restock_line_id, lot_code, qty_remaining, unit_cost, expiration_date, received_at)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			`, lot.ID, lot.ProductID, lot.RestockLineID, lot.LotCode, lot.QtyRemaining, lot.UnitCost, expiryArg, lot.ReceivedAt)
			if err != nil {
				return nil, err
			}

			mov := domain.Movement{
				ProductID:      line.ProductID,
				LotID:          lot.ID,
				Delta:          in.QtyReceived,
				Reason:         domain.MovementEntry,
				Description:    fmt.Sprintf("restock reception lot %s", lotCode),
				RestockOrderID: orderID,
				CreatedAt:      at,
			}
			if err := insertMovementTx(ctx, tx, &mov); err != nil {
				return nil, err
			}
			result.LotsCreated = append(result.LotsCreated, lot)
			affected[line.ProductID] = struct{}{}
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE restock_lines
			SET qty_received = $2, lot_code = $3, expiration_date = $4, received_by = $5, received_at = $6
			WHERE id = $1
		`, line.ID, in.QtyReceived, nullIfEmpty(lotCode), expiryArg, receivedBy, at)
		if err != nil {
			return nil, err
		}
	}

	for productID := range affected {
		if err := recomputeProductTx(ctx, tx, productID); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx, `UPDATE restock_orders SET status = $2, updated_at = now() WHERE id = $1`, orderID, domain.OrderStatusReceived)
	if err != nil {
		return nil, err
	}
	for _, audit := range audits {
		audit.OrderID = orderID
		if err := insertAuditTx(ctx, tx, audit); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	final, err := s.GetRestockOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	result.Order = *final
	return result, nil
}

func (s *Store) DeleteRestockOrder(ctx context.Context, orderID string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	err = tx.QueryRowContext(ctx, `SELECT true FROM restock_orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}

	var saleCount int
	err = tx.QueryRowContext(ctx, `
		SELECT count(*)
		FROM inventory_movements
		WHERE reason = $2
		  AND lot_id IN (
			SELECT id FROM lots
			WHERE restock_line_id IN (SELECT id FROM restock_lines WHERE order_id = $1)
		  )
	`, orderID, domain.MovementSaleExit).Scan(&saleCount)
	if err != nil {
		return err
	}
	if saleCount > 0 {
		return fmt.Errorf("%w: %d sale movements", store.ErrOrderHasSales, saleCount)
	}

	affectedRows, err := tx.QueryContext(ctx, `
		SELECT DISTINCT product_id FROM lots
		WHERE restock_line_id IN (SELECT id FROM restock_lines WHERE order_id = $1)
	`, orderID)
	if err != nil {
		return err
	}
	affected := make([]string, 0, 8)
	for affectedRows.Next() {
		var productID string
		if err := affectedRows.Scan(&productID); err != nil {
			_ = affectedRows.Close()
			return err
		}
		affected = append(affected, productID)
	}
	if err := affectedRows.Err(); err != nil {
		_ = affectedRows.Close()
		return err
	}
	_ = affectedRows.Close()

	_, err = tx.ExecContext(ctx, `
		DELETE FROM inventory_movements
		WHERE restock_order_id = $1
		   OR lot_id IN (
			SELECT id FROM lots
			WHERE restock_line_id IN (SELECT id FROM restock_lines WHERE order_id = $1)
		  )
	`, orderID)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		DELETE FROM lots
		WHERE restock_line_id IN (SELECT id FROM restock_lines WHERE order_id = $1)
	`, orderID)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM restock_audit WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM restock_lines WHERE order_id = $1`, orderID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM restock_orders WHERE id = $1`, orderID); err != nil {
		return err
	}

	for _, productID := range affected {
		var locked bool
		err = tx.QueryRowContext(ctx, `SELECT true FROM products WHERE id = $1 FOR UPDATE`, productID).Scan(&locked)
		if err != nil {
			return err
		}
		if err := recomputeProductTx(ctx, tx, productID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Store) AmendReceivedLine(ctx context.Context, orderID string, lineID string, expiration *time.Time, lotCode string, audit domain.RestockAudit) (*domain.RestockLine, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var status string
	err = tx.QueryRowContext(ctx, `SELECT status FROM restock_orders WHERE id = $1 FOR UPDATE`, orderID).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if status != domain.OrderStatusReceived {
		return nil, fmt.Errorf("%w: order is %s", store.ErrOrderAlreadyReceiving, status)
	}

	var lineExists bool
	err = tx.QueryRowContext(ctx, `SELECT true FROM restock_lines WHERE id = $1 AND order_id = $2 FOR UPDATE`, lineID, orderID).Scan(&lineExists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: line %s", store.ErrNotFound, lineID)
		}
		return nil, err
	}

	lotCode = strings.TrimSpace(lotCode)
	if expiration != nil {
		_, err = tx.ExecContext(ctx, `UPDATE restock_lines SET expiration_date = $2 WHERE id = $1`, lineID, nowDateUTC(*expiration))
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `UPDATE lots SET expiration_date = $2 WHERE restock_line_id = $1`, lineID, nowDateUTC(*expiration))
		if err != nil {
			return nil, err
		}
	}
	if lotCode != "" {
		_, err = tx.ExecContext(ctx, `UPDATE restock_lines SET lot_code = $2 WHERE id = $1`, lineID, lotCode)
		if err != nil {
			return nil, err
		}
		_, err = tx.ExecContext(ctx, `UPDATE lots SET lot_code = $2 WHERE restock_line_id = $1`, lineID, lotCode)
		if err != nil {
			return nil, err
		}
	}

	audit.OrderID = orderID
	if err := insertAuditTx(ctx, tx, audit); err != nil {
		return nil, err
	}

	line, err := scanLineRow(tx.QueryRowContext(ctx, `
		SELECT `+lineColumns+`
		FROM restock_lines
		WHERE id = $1
	`, lineID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &line, nil
}

func (s *Store) ListRestockAudit(ctx context.Context, orderID string) ([]domain.RestockAudit, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, order_id, action, actor, COALESCE(description, ''), qty_before, qty_after, created_at
		FROM restock_audit
		WHERE order_id = $1
		ORDER BY created_at ASC, id ASC
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.RestockAudit, 0, 8)
	for rows.Next() {
		var entry domain.RestockAudit
		var before, after sql.NullInt64
		if err := rows.Scan(&entry.ID, &entry.OrderID, &entry.Action, &entry.Actor, &entry.Description, &before, &after, &entry.CreatedAt); err != nil {
			return nil, err
		}
		if before.Valid {
			v := int(before.Int64)
			entry.QtyBefore = &v
		}
		if after.Valid {
			v := int(after.Int64)
			entry.QtyAfter = &v
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) CreateSupplier(ctx context.Context, supplier domain.Supplier) (*domain.Supplier, error) {
	supplier.Name = strings.TrimSpace(supplier.Name)
	if supplier.ID == "" {
		supplier.ID = xid.New("sup")
	}
	if supplier.CreatedAt.IsZero() {
		supplier.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, document_type, document_id, name, phone, email, address, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, supplier.ID, supplier.DocumentType, supplier.DocumentID, supplier.Name, nullIfEmpty(supplier.Phone), nullIfEmpty(supplier.Email), nullIfEmpty(supplier.Address), supplier.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: document %s", store.ErrDuplicate, supplier.DocumentID)
		}
		return nil, err
	}
	created := supplier
	return &created, nil
}

func (s *Store) ListSuppliers(ctx context.Context) ([]domain.Supplier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_type, document_id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''), created_at
		FROM suppliers
		ORDER BY name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	suppliers := make([]domain.Supplier, 0, 32)
	for rows.Next() {
		var sup domain.Supplier
		if err := rows.Scan(&sup.ID, &sup.DocumentType, &sup.DocumentID, &sup.Name, &sup.Phone, &sup.Email, &sup.Address, &sup.CreatedAt); err != nil {
			return nil, err
		}
		suppliers = append(suppliers, sup)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return suppliers, nil
}

func (s *Store) GetSupplierByID(ctx context.Context, id string) (*domain.Supplier, error) {
	var sup domain.Supplier
	err := s.db.QueryRowContext(ctx, `
		SELECT id, document_type, document_id, name, COALESCE(phone, ''), COALESCE(email, ''), COALESCE(address, ''), created_at
		FROM suppliers
		WHERE id = $1
	`, id).Scan(&sup.ID, &sup.DocumentType, &sup.DocumentID, &sup.Name, &sup.Phone, &sup.Email, &sup.Address, &sup.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &sup, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" || strings.TrimSpace(user.Password) == "" {
		return store.ErrInvalidQuantity
	}
	if user.Role == "" {
		user.Role = "seller"
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1,$2,$3,true,$4)
	`, username, user.Password, user.Role, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return err
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 16)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	username = strings.ToLower(strings.TrimSpace(username))
	if username == "" || strings.TrimSpace(password) == "" {
		return store.ErrInvalidQuantity
	}
	res, err := s.db.ExecContext(ctx, `UPDATE users SET password = $2 WHERE username = $1`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

const lineColumns = `id, order_id, product_id, qty_requested, qty_received, unit_cost, tax_amount, expiration_date, COALESCE(lot_code, ''), COALESCE(received_by, ''), received_at`

func scanLineRow(row interface{ Scan(...any) error }) (domain.RestockLine, error) {
	var line domain.RestockLine
	var expiry, receivedAt sql.NullTime
	err := row.Scan(&line.ID, &line.OrderID, &line.ProductID, &line.QtyRequested, &line.QtyReceived, &line.UnitCost, &line.TaxAmount, &expiry, &line.LotCode, &line.ReceivedBy, &receivedAt)
	if err != nil {
		return line, err
	}
	if expiry.Valid {
		t := expiry.Time.UTC()
		line.ExpirationDate = &t
	}
	if receivedAt.Valid {
		t := receivedAt.Time.UTC()
		line.ReceivedAt = &t
	}
	return line, nil
}

func scanOrder(row interface{ Scan(...any) error }) (domain.RestockOrder, error) {
	var order domain.RestockOrder
	err := row.Scan(&order.ID, &order.SupplierID, &order.Status, &order.PaymentMethod, &order.Notes, &order.Subtotal, &order.TaxTotal, &order.CreatedAt)
	if err != nil {
		return order, err
	}
	order.CreatedAt = order.CreatedAt.UTC()
	return order, nil
}

func (s *Store) loadLines(ctx context.Context, orderID string) ([]domain.RestockLine, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lineColumns+`
		FROM restock_lines
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	lines := make([]domain.RestockLine, 0, 8)
	for rows.Next() {
		line, err := scanLineRow(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func loadOrderTx(ctx context.Context, tx *sql.Tx, orderID string) (*domain.RestockOrder, error) {
	order, err := scanOrder(tx.QueryRowContext(ctx, `
		SELECT id, supplier_id, status, payment_method, COALESCE(notes, ''), subtotal, tax_total, created_at
		FROM restock_orders
		WHERE id = $1
	`, orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT `+lineColumns+`
		FROM restock_lines
		WHERE order_id = $1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		line, err := scanLineRow(rows)
		if err != nil {
			return nil, err
		}
		order.Lines = append(order.Lines, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &order, nil
}

func insertLineTx(ctx context.Context, tx *sql.Tx, line domain.RestockLine) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO restock_lines (id, order_id, product_id, qty_requested, qty_received, unit_cost, tax_amount, expiration_date, lot_code, received_by, received_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
	`, line.ID, line.OrderID, line.ProductID, line.QtyRequested, line.QtyReceived, line.UnitCost, line.TaxAmount,
		nullDate(line.ExpirationDate), nullIfEmpty(line.LotCode), nullIfEmpty(line.ReceivedBy), nullTimePtr(line.ReceivedAt))
	return err
}

func insertMovementTx(ctx context.Context, tx *sql.Tx, mov *domain.Movement) error {
	if mov.Delta == 0 {
		return fmt.Errorf("%w: movement delta must be non-zero", store.ErrInvalidQuantity)
	}
	if mov.ID == "" {
		mov.ID = xid.New("mov")
	}
	if mov.CreatedAt.IsZero() {
		mov.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO inventory_movements (id, product_id, lot_id, delta, reason, description, sale_ref, restock_order_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, mov.ID, mov.ProductID, nullIfEmpty(mov.LotID), mov.Delta, mov.Reason, nullIfEmpty(mov.Description), nullIfEmpty(mov.SaleRef), nullIfEmpty(mov.RestockOrderID), mov.CreatedAt)
	return err
}

func insertAuditTx(ctx context.Context, tx *sql.Tx, entry domain.RestockAudit) error {
	if entry.ID == "" {
		entry.ID = xid.New("audit")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO restock_audit (id, order_id, action, actor, description, qty_before, qty_after, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, entry.ID, entry.OrderID, entry.Action, entry.Actor, nullIfEmpty(entry.Description), nullIntPtr(entry.QtyBefore), nullIntPtr(entry.QtyAfter), entry.CreatedAt)
	return err
}

// recomputeProductTx rederives stock_on_hand and average_cost from the
// product's lots. Runs inside the caller's transaction; the caller must
// already hold the product row lock.
func recomputeProductTx(ctx context.Context, tx *sql.Tx, productID string) error {
	rows, err := tx.QueryContext(ctx, `
		SELECT qty_remaining, unit_cost
		FROM lots
		WHERE product_id = $1
	`, productID)
	if err != nil {
		return err
	}

	lots := make([]domain.Lot, 0, 16)
	for rows.Next() {
		var lot domain.Lot
		if err := rows.Scan(&lot.QtyRemaining, &lot.UnitCost); err != nil {
			_ = rows.Close()
			return err
		}
		lots = append(lots, lot)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return err
	}
	_ = rows.Close()

	summary := costing.Summarize(lots)
	if summary.HasLiveStock {
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET stock_on_hand = $2, average_cost = $3, updated_at = now() WHERE id = $1
		`, productID, summary.StockOnHand, summary.AverageCost)
	} else {
		// Last known average cost is retained once the stock runs out.
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET stock_on_hand = 0, updated_at = now() WHERE id = $1
		`, productID)
	}
	return err
}

func getProductTx(ctx context.Context, tx *sql.Tx, productID string) (*domain.Product, error) {
	product, err := scanProduct(tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, productID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &product, nil
}

func computeOrderTotalsTx(ctx context.Context, tx *sql.Tx, order *domain.RestockOrder) error {
	rates := make(map[string]decimal.Decimal, len(order.Lines))
	for i := range order.Lines {
		productID := order.Lines[i].ProductID
		if _, ok := rates[productID]; !ok {
			var rate decimal.Decimal
			err := tx.QueryRowContext(ctx, `SELECT tax_rate_percent FROM products WHERE id = $1`, productID).Scan(&rate)
			if err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return store.ErrNotFound
				}
				return err
			}
			rates[productID] = rate
		}
		order.Lines[i].TaxAmount = costing.LineTax(order.Lines[i].UnitCost, order.Lines[i].QtyRequested, rates[productID])
	}
	order.Subtotal, order.TaxTotal = costing.OrderTotals(order.Lines, rates)
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nowDateUTC(t time.Time) time.Time {
	return time.Date(t.UTC().Year(), t.UTC().Month(), t.UTC().Day(), 0, 0, 0, 0, time.UTC)
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullDate(val *time.Time) any {
	if val == nil {
		return nil
	}
	return nowDateUTC(*val)
}

func nullTimePtr(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func nullIntPtr(val *int) any {
	if val == nil {
		return nil
	}
	return *val
}
