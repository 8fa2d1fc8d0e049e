package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"laplayita/backend/internal/domain"
	"laplayita/backend/internal/service"
	"laplayita/backend/internal/store"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	csrfSecret    []byte
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks the current and previous hour bucket, giving a
// 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts, "seller", "admin"))
	mux.HandleFunc("/api/v1/products/low-stock", a.requireAuth(a.handleLowStock, "seller", "admin"))
	mux.HandleFunc("/api/v1/products/", a.requireAuth(a.handleProductActions, "seller", "admin"))
	mux.HandleFunc("/api/v1/consume", a.requireAuth(a.handleConsume, "seller", "admin"))
	mux.HandleFunc("/api/v1/lots", a.requireAuth(a.handleLots, "admin"))
	mux.HandleFunc("/api/v1/lots/expiring", a.requireAuth(a.handleExpiringLots, "seller", "admin"))
	mux.HandleFunc("/api/v1/lots/discard", a.requireAuth(a.handleDiscard, "admin"))
	mux.HandleFunc("/api/v1/suppliers", a.requireAuth(a.handleSuppliers, "admin"))
	mux.HandleFunc("/api/v1/suppliers/", a.requireAuth(a.handleSupplierActions, "admin"))
	mux.HandleFunc("/api/v1/restock-orders", a.requireAuth(a.handleRestockOrders, "admin"))
	mux.HandleFunc("/api/v1/restock-orders/", a.requireAuth(a.handleRestockOrderActions, "admin"))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			writeError(w, http.StatusForbidden, errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		products, err := a.service.ListProducts(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": products})
	case http.MethodPost:
		var req domain.ProductCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.CreateProduct(r.Context(), req)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleLowStock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	products, err := a.service.ListLowStockProducts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"products": products})
}

// handleProductActions routes /api/v1/products/{id}[/detail|/movements|/consumption-plan].
func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	parts := strings.SplitN(rest, "/", 2)
	productID := parts[0]
	action := ""
	if len(parts) == 2 {
		action = parts[1]
	}
	if productID == "" {
		writeError(w, http.StatusNotFound, errors.New("missing product id"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		product, err := a.service.GetProduct(r.Context(), productID)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case action == "" && r.Method == http.MethodPatch:
		var req domain.ProductUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		product, err := a.service.UpdateProduct(r.Context(), productID, req)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"product": product})
	case action == "detail" && r.Method == http.MethodGet:
		detail, err := a.service.GetProductDetail(r.Context(), productID)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	case action == "movements" && r.Method == http.MethodGet:
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 100, 500)
		movements, err := a.service.ListMovements(r.Context(), productID, limit)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"movements": movements})
	case action == "consumption-plan" && r.Method == http.MethodGet:
		qty := parsePositiveLimit(r.URL.Query().Get("qty"), 0, 0)
		plan, err := a.service.PlanConsumption(r.Context(), productID, qty)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"plan": plan})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleConsume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.ConsumeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	resp, err := a.service.ReserveAndConsume(r.Context(), req)
	if err != nil {
		writeError(w, statusFromErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		productID := r.URL.Query().Get("product_id")
		includeExhausted := r.URL.Query().Get("include_exhausted") == "true"
		lots, err := a.service.ListLots(r.Context(), productID, includeExhausted)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"lots": lots})
	case http.MethodPost:
		var req domain.LotCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		lot, err := a.service.CreateManualLot(r.Context(), req)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"lot": lot})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleExpiringLots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	days := parsePositiveLimit(r.URL.Query().Get("days"), 30, 365)
	lots, err := a.service.ListExpiringLots(r.Context(), days)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"lots": lots})
}

func (a *API) handleDiscard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	var req domain.DiscardRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	mov, err := a.service.DiscardFromLot(r.Context(), req)
	if err != nil {
		writeError(w, statusFromErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"movement": mov})
}

func (a *API) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		suppliers, err := a.service.ListSuppliers(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"suppliers": suppliers})
	case http.MethodPost:
		var req domain.SupplierCreateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		supplier, err := a.service.CreateSupplier(r.Context(), req)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"supplier": supplier})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleSupplierActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	supplierID := strings.TrimPrefix(r.URL.Path, "/api/v1/suppliers/")
	supplier, err := a.service.GetSupplier(r.Context(), supplierID)
	if err != nil {
		writeError(w, statusFromErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"supplier": supplier})
}

func (a *API) handleRestockOrders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		status := r.URL.Query().Get("status")
		limit := parsePositiveLimit(r.URL.Query().Get("limit"), 50, 200)
		orders, err := a.service.ListRestockOrders(r.Context(), status, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"orders": orders})
	case http.MethodPost:
		var req domain.RestockDraftRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.CreateRestockDraft(r.Context(), req)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"order": order})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleRestockOrderActions routes
// /api/v1/restock-orders/{id}[/submit|/receive|/cancel|/audit|/lines/{lineID}].
func (a *API) handleRestockOrderActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/restock-orders/")
	parts := strings.SplitN(rest, "/", 3)
	orderID := parts[0]
	action := ""
	if len(parts) >= 2 {
		action = parts[1]
	}
	if orderID == "" {
		writeError(w, http.StatusNotFound, errors.New("missing order id"))
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		order, err := a.service.GetRestockOrder(r.Context(), orderID)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case action == "" && r.Method == http.MethodPatch:
		var req domain.RestockEditRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		order, err := a.service.EditRestockOrder(r.Context(), orderID, req)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case action == "" && r.Method == http.MethodDelete:
		if err := a.service.DeleteRestockOrder(r.Context(), orderID); err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"deleted": orderID})
	case action == "submit" && r.Method == http.MethodPost:
		order, err := a.service.SubmitRestockOrder(r.Context(), orderID)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case action == "receive" && r.Method == http.MethodPost:
		var req domain.ReceiveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		result, err := a.service.ReceiveRestockOrder(r.Context(), orderID, req)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, result)
	case action == "cancel" && r.Method == http.MethodPost:
		order, err := a.service.CancelRestockOrder(r.Context(), orderID)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
	case action == "audit" && r.Method == http.MethodGet:
		entries, err := a.service.ListRestockAudit(r.Context(), orderID)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"audit": entries})
	case action == "lines" && len(parts) == 3 && r.Method == http.MethodPatch:
		var req domain.AmendLineRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		line, err := a.service.AmendReceivedLine(r.Context(), orderID, parts[2], req)
		if err != nil {
			writeError(w, statusFromErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"line": line})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

// statusFromErr maps the core's sentinel errors onto HTTP statuses.
func statusFromErr(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInvalidQuantity),
		errors.Is(err, store.ErrMissingExpirationDate),
		errors.Is(err, store.ErrEmptyOrder):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrInsufficientStock),
		errors.Is(err, store.ErrOverReceipt),
		errors.Is(err, store.ErrOrderAlreadyReceiving),
		errors.Is(err, store.ErrOrderHasSales),
		errors.Is(err, store.ErrDuplicate):
		return http.StatusConflict
	case strings.Contains(strings.ToLower(err.Error()), "admin role required"):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func parsePositiveLimit(raw string, fallback int, max int) int {
	limit := fallback
	trimmed := strings.TrimSpace(raw)
	if trimmed != "" {
		if parsed, err := strconv.Atoi(trimmed); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if max > 0 && limit > max {
		return max
	}
	return limit
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the original error goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
