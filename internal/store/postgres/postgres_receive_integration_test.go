package postgres

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"laplayita/backend/internal/domain"
)

func TestReceiveRestockOrderCreatesLotsAndRecomputesStock(t *testing.T) {
	databaseURL := os.Getenv("LAPLAYITA_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set LAPLAYITA_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := New(ctx, databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	stamp := time.Now().UnixNano()
	productID := fmt.Sprintf("prod-recv-it-%d", stamp)
	supplierID := fmt.Sprintf("sup-recv-it-%d", stamp)
	orderID := fmt.Sprintf("ro-recv-it-%d", stamp)
	lineID := fmt.Sprintf("line-recv-it-%d", stamp)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM inventory_movements WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM lots WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM restock_audit WHERE order_id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM restock_lines WHERE order_id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM restock_orders WHERE id = $1`, orderID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM suppliers WHERE id = $1`, supplierID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, name, category, unit_price, tax_rate_percent, stock_minimum, stock_on_hand, average_cost, created_at, updated_at)
		VALUES ($1, 'Producto Recepcion IT', 'abarrotes', 5000, 19, 2, 0, 0, now(), now())
	`, productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO suppliers (id, document_type, document_id, name, created_at)
		VALUES ($1, 'NIT', '999000111-2', 'Proveedor IT', now())
	`, supplierID); err != nil {
		t.Fatalf("insert supplier: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO restock_orders (id, supplier_id, status, payment_method, subtotal, tax_total, created_at, updated_at)
		VALUES ($1, $2, 'requested', 'transfer', 32000, 6080, now(), now())
	`, orderID, supplierID); err != nil {
		t.Fatalf("insert order: %v", err)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO restock_lines (id, order_id, product_id, qty_requested, qty_received, unit_cost, tax_amount)
		VALUES ($1, $2, $3, 8, 0, 4000, 6080)
	`, lineID, orderID, productID); err != nil {
		t.Fatalf("insert line: %v", err)
	}

	at := time.Now().UTC()
	result, err := s.ReceiveRestockOrder(ctx, orderID, []domain.ReceiveLineInput{
		{LineID: lineID, QtyReceived: 8, ExpirationDate: "2027-01-31"},
	}, "integration-test", at, []domain.RestockAudit{
		{Action: domain.AuditReceived, Actor: "integration-test", Description: "reception: 1 of 1 lines with stock"},
	})
	if err != nil {
		t.Fatalf("receive order: %v", err)
	}
	if result.Order.Status != domain.OrderStatusReceived {
		t.Fatalf("expected order status received, got %s", result.Order.Status)
	}
	if len(result.LotsCreated) != 1 {
		t.Fatalf("expected 1 lot created, got %d", len(result.LotsCreated))
	}
	if len(result.Discrepancies) != 0 {
		t.Fatalf("expected no discrepancies, got %d", len(result.Discrepancies))
	}

	var stock int
	var avgCost string
	if err := s.db.QueryRowContext(ctx, `
		SELECT stock_on_hand, average_cost::text
		FROM products
		WHERE id = $1
	`, productID).Scan(&stock, &avgCost); err != nil {
		t.Fatalf("query product: %v", err)
	}
	if stock != 8 {
		t.Fatalf("expected stock 8 after reception, got %d", stock)
	}

	var qtyRemaining int
	if err := s.db.QueryRowContext(ctx, `
		SELECT qty_remaining
		FROM lots
		WHERE restock_line_id = $1
	`, lineID).Scan(&qtyRemaining); err != nil {
		t.Fatalf("query lot: %v", err)
	}
	if qtyRemaining != 8 {
		t.Fatalf("expected lot qty 8, got %d", qtyRemaining)
	}
}
