// Package notify is the outbound notification side-channel. Dispatch happens
// after the owning transaction has committed and is best-effort: a failed
// notification is logged by the caller, never retried in the request path.
package notify

import (
	"context"
	"log"
	"time"

	"github.com/google/uuid"

	"laplayita/backend/internal/domain"
)

const (
	KindSupplierOrder = "supplier_order_requested"
	KindDiscrepancy   = "reception_discrepancy"
)

// Envelope is the wire form handed to whatever consumes the outbox.
type Envelope struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
	Payload   any       `json:"payload"`
}

type SupplierOrderPayload struct {
	Order    domain.RestockOrder `json:"order"`
	Supplier domain.Supplier     `json:"supplier"`
}

type DiscrepancyPayload struct {
	OrderID       string               `json:"order_id"`
	Discrepancies []domain.Discrepancy `json:"discrepancies"`
}

type Notifier interface {
	SupplierOrderRequested(ctx context.Context, order domain.RestockOrder, supplier domain.Supplier) error
	ReceptionDiscrepancies(ctx context.Context, orderID string, discrepancies []domain.Discrepancy) error
}

func newEnvelope(kind string, payload any) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
}

// LogNotifier writes notifications to the process log. Used when no queue
// backend is configured.
type LogNotifier struct{}

func (LogNotifier) SupplierOrderRequested(_ context.Context, order domain.RestockOrder, supplier domain.Supplier) error {
	log.Printf("[notify] supplier order requested order=%s supplier=%s lines=%d total=%s", order.ID, supplier.Name, len(order.Lines), order.Subtotal.Add(order.TaxTotal))
	return nil
}

func (LogNotifier) ReceptionDiscrepancies(_ context.Context, orderID string, discrepancies []domain.Discrepancy) error {
	for _, d := range discrepancies {
		log.Printf("[notify] reception discrepancy order=%s product=%s requested=%d received=%d", orderID, d.ProductName, d.QtyRequested, d.QtyReceived)
	}
	return nil
}
