package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product carries two derived fields, StockOnHand and AverageCost, that are
// recomputed from the product's lots on every lot mutation. Callers never
// write them directly.
type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Description    string          `json:"description,omitempty"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	StockMinimum   int             `json:"stock_minimum"`
	StockOnHand    int             `json:"stock_on_hand"`
	AverageCost    decimal.Decimal `json:"average_cost"`
	CreatedAt      time.Time       `json:"created_at"`
}

type ProductCreateRequest struct {
	Name           string          `json:"name"`
	Category       string          `json:"category"`
	Description    string          `json:"description"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	TaxRatePercent decimal.Decimal `json:"tax_rate_percent"`
	StockMinimum   int             `json:"stock_minimum"`
}

type ProductUpdateRequest struct {
	Name           *string          `json:"name,omitempty"`
	Category       *string          `json:"category,omitempty"`
	Description    *string          `json:"description,omitempty"`
	UnitPrice      *decimal.Decimal `json:"unit_price,omitempty"`
	TaxRatePercent *decimal.Decimal `json:"tax_rate_percent,omitempty"`
	StockMinimum   *int             `json:"stock_minimum,omitempty"`
}

// Lot is a receipt batch: quantity on hand, the cost it was bought at, and
// when it expires. UnitCost is fixed at creation. A lot whose QtyRemaining
// reaches zero is exhausted but never deleted while movements reference it.
type Lot struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	RestockLineID  string          `json:"restock_line_id,omitempty"`
	LotCode        string          `json:"lot_code"`
	QtyRemaining   int             `json:"qty_remaining"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	ReceivedAt     time.Time       `json:"received_at"`
}

type LotCreateRequest struct {
	ProductID      string          `json:"product_id"`
	LotCode        string          `json:"lot_code"`
	Qty            int             `json:"qty"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	ExpirationDate string          `json:"expiration_date"`
	Note           string          `json:"note"`
}

// Movement is one immutable quantity change. Positive delta is an entry,
// negative an exit. Corrections are made by recording an offsetting movement,
// never by editing history.
type Movement struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	LotID          string    `json:"lot_id,omitempty"`
	Delta          int       `json:"delta"`
	Reason         string    `json:"reason"`
	Description    string    `json:"description,omitempty"`
	SaleRef        string    `json:"sale_ref,omitempty"`
	RestockOrderID string    `json:"restock_order_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// LotDraw is one step of a consumption plan: take Qty units from Lot.
type LotDraw struct {
	Lot Lot `json:"lot"`
	Qty int `json:"qty"`
}

type ConsumeRequest struct {
	ProductID string `json:"product_id"`
	Qty       int    `json:"qty"`
	SaleRef   string `json:"sale_ref"`
}

type ConsumeResponse struct {
	Movements []Movement `json:"movements"`
	Product   Product    `json:"product"`
}

type DiscardRequest struct {
	LotID string `json:"lot_id"`
	Qty   int    `json:"qty"`
	Note  string `json:"note"`
}

// ProductDetail is the traceability view: the product, its lots, its
// movement history, and whether the derived stock agrees with the lot sum.
// When LedgerConsistent is false the caller is looking at a historical data
// inconsistency; the core surfaces it and does not patch it.
type ProductDetail struct {
	Product          Product    `json:"product"`
	Lots             []Lot      `json:"lots"`
	Movements        []Movement `json:"movements"`
	LiveLotQty       int        `json:"live_lot_qty"`
	LedgerConsistent bool       `json:"ledger_consistent"`
}

type Supplier struct {
	ID           string    `json:"id"`
	DocumentType string    `json:"document_type"`
	DocumentID   string    `json:"document_id"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Email        string    `json:"email,omitempty"`
	Address      string    `json:"address,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type SupplierCreateRequest struct {
	DocumentType string `json:"document_type"`
	DocumentID   string `json:"document_id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	Address      string `json:"address"`
}

type RestockOrder struct {
	ID            string          `json:"id"`
	SupplierID    string          `json:"supplier_id"`
	Status        string          `json:"status"`
	PaymentMethod string          `json:"payment_method"`
	Notes         string          `json:"notes,omitempty"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	CreatedAt     time.Time       `json:"created_at"`
	Lines         []RestockLine   `json:"lines"`
}

type RestockLine struct {
	ID             string          `json:"id"`
	OrderID        string          `json:"order_id"`
	ProductID      string          `json:"product_id"`
	QtyRequested   int             `json:"qty_requested"`
	QtyReceived    int             `json:"qty_received"`
	UnitCost       decimal.Decimal `json:"unit_cost"`
	TaxAmount      decimal.Decimal `json:"tax_amount"`
	ExpirationDate *time.Time      `json:"expiration_date,omitempty"`
	LotCode        string          `json:"lot_code,omitempty"`
	ReceivedBy     string          `json:"received_by,omitempty"`
	ReceivedAt     *time.Time      `json:"received_at,omitempty"`
}

type RestockLineInput struct {
	ProductID    string          `json:"product_id"`
	QtyRequested int             `json:"qty_requested"`
	UnitCost     decimal.Decimal `json:"unit_cost"`
}

type RestockDraftRequest struct {
	SupplierID    string             `json:"supplier_id"`
	PaymentMethod string             `json:"payment_method"`
	Notes         string             `json:"notes"`
	Lines         []RestockLineInput `json:"lines"`
}

type RestockEditRequest struct {
	PaymentMethod string             `json:"payment_method"`
	Notes         string             `json:"notes"`
	Lines         []RestockLineInput `json:"lines"`
}

type ReceiveLineInput struct {
	LineID         string `json:"line_id"`
	QtyReceived    int    `json:"qty_received"`
	LotCode        string `json:"lot_code,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
}

type ReceiveRequest struct {
	Lines []ReceiveLineInput `json:"lines"`
}

// Discrepancy reports a line received short. It is an informational outcome
// of a successful reception, not an error.
type Discrepancy struct {
	ProductID    string `json:"product_id"`
	ProductName  string `json:"product_name"`
	QtyRequested int    `json:"qty_requested"`
	QtyReceived  int    `json:"qty_received"`
}

type ReceptionResult struct {
	Order         RestockOrder  `json:"order"`
	LotsCreated   []Lot         `json:"lots_created"`
	Discrepancies []Discrepancy `json:"discrepancies"`
}

type AmendLineRequest struct {
	ExpirationDate string `json:"expiration_date,omitempty"`
	LotCode        string `json:"lot_code,omitempty"`
}

// RestockAudit is an append-only record of an action taken against a restock
// order. QtyBefore/QtyAfter are set when the action changed a quantity.
type RestockAudit struct {
	ID          string    `json:"id"`
	OrderID     string    `json:"order_id"`
	Action      string    `json:"action"`
	Actor       string    `json:"actor"`
	Description string    `json:"description,omitempty"`
	QtyBefore   *int      `json:"qty_before,omitempty"`
	QtyAfter    *int      `json:"qty_after,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the opaque acting-user reference threaded through every mutating
// call and stored verbatim on audit entries. The core does not check
// permissions; that is the HTTP layer's job.
type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	MovementEntry      = "entry"
	MovementSaleExit   = "sale_exit"
	MovementDiscard    = "discard"
	MovementAdjustment = "adjustment"
)

const (
	OrderStatusDraft     = "draft"
	OrderStatusRequested = "requested"
	OrderStatusReceived  = "received"
	OrderStatusCancelled = "cancelled"
)

const (
	AuditCreated   = "created"
	AuditReceived  = "received"
	AuditEdited    = "edited"
	AuditCancelled = "cancelled"
)

// Payment-method tags accepted on restock orders.
const (
	PayTransfer    = "transfer"
	PayCash        = "cash"
	PayCheque      = "cheque"
	PayPSE         = "pse"
	PayCreditCard  = "credit_card"
	PayConsignment = "consignment"
)

func IsValidMovementReason(reason string) bool {
	switch reason {
	case MovementEntry, MovementSaleExit, MovementDiscard, MovementAdjustment:
		return true
	default:
		return false
	}
}

func IsValidPaymentMethod(method string) bool {
	switch method {
	case PayTransfer, PayCash, PayCheque, PayPSE, PayCreditCard, PayConsignment:
		return true
	default:
		return false
	}
}

// IsTerminalOrderStatus reports whether no transition may leave the status.
func IsTerminalOrderStatus(status string) bool {
	return status == OrderStatusReceived || status == OrderStatusCancelled
}
