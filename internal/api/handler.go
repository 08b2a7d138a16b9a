package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tmarchetti/goalbook/internal/domain"
	"github.com/tmarchetti/goalbook/internal/service"
	"github.com/tmarchetti/goalbook/internal/store"
)

// Metrics
var (
	httpReqTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "goalbook_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "endpoint", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "goalbook_http_request_duration_seconds",
		Help:    "Request latency",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1},
	}, []string{"method", "endpoint"})
)

type contextKey string

const accountIDKey contextKey = "account_id"

type Handler struct {
	store        store.Store
	goals        *service.GoalEngine
	transactions *service.TransactionEngine
	summary      *service.SummaryService
}

func NewHandler(st store.Store, goals *service.GoalEngine, transactions *service.TransactionEngine, summary *service.SummaryService) *Handler {
	return &Handler{store: st, goals: goals, transactions: transactions, summary: summary}
}

// WithIdentity extracts the verified account id set by the external auth
// collaborator. The value is trusted unconditionally; requests without one
// are rejected before any handler runs.
func (h *Handler) WithIdentity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get("X-Account-ID")
		accountID, err := strconv.ParseInt(raw, 10, 64)
		if raw == "" || err != nil || accountID <= 0 {
			h.respondError(w, http.StatusUnauthorized, "Missing or invalid identity", r.Method, r.URL.Path)
			return
		}
		ctx := context.WithValue(r.Context(), accountIDKey, accountID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func accountFrom(r *http.Request) int64 {
	id, _ := r.Context().Value(accountIDKey).(int64)
	return id
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"}, "GET", "/health")
}

func (h *Handler) AddExpense(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/dashboard/expenses"))
	defer timer.ObserveDuration()

	var req domain.ExpenseRequest
	idem, ok := h.decodeBody(w, r, &req, "POST", "/dashboard/expenses")
	if !ok {
		return
	}

	expense, replay, err := h.transactions.AddExpense(r.Context(), accountFrom(r), req, idem)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/dashboard/expenses")
		return
	}
	if replay != nil {
		h.respondStored(w, replay, "POST", "/dashboard/expenses")
		return
	}
	h.respondJSON(w, http.StatusCreated, domain.ExpenseResponse{Expense: *expense}, "POST", "/dashboard/expenses")
}

func (h *Handler) AddIncome(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/dashboard/incomes"))
	defer timer.ObserveDuration()

	var req domain.IncomeRequest
	idem, ok := h.decodeBody(w, r, &req, "POST", "/dashboard/incomes")
	if !ok {
		return
	}

	entry, replay, err := h.transactions.AddIncome(r.Context(), accountFrom(r), req, idem)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/dashboard/incomes")
		return
	}
	if replay != nil {
		h.respondStored(w, replay, "POST", "/dashboard/incomes")
		return
	}
	h.respondJSON(w, http.StatusCreated, domain.IncomeResponse{Income: domain.NewIncomeView(entry)}, "POST", "/dashboard/incomes")
}

func (h *Handler) CreateGoal(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/dashboard/goals"))
	defer timer.ObserveDuration()

	var req domain.CreateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", "POST", "/dashboard/goals")
		return
	}

	goal, err := h.goals.CreateGoal(r.Context(), accountFrom(r), req)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/dashboard/goals")
		return
	}
	h.respondJSON(w, http.StatusCreated, map[string]any{"goal": domain.NewGoalView(goal)}, "POST", "/dashboard/goals")
}

func (h *Handler) ListGoals(w http.ResponseWriter, r *http.Request) {
	goals, err := h.goals.ListGoals(r.Context(), accountFrom(r))
	if err != nil {
		h.respondServiceError(w, err, "GET", "/dashboard/goals")
		return
	}
	views := make([]domain.GoalView, 0, len(goals))
	for i := range goals {
		views = append(views, domain.NewGoalView(&goals[i]))
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"goals": views}, "GET", "/dashboard/goals")
}

func (h *Handler) GetGoal(w http.ResponseWriter, r *http.Request) {
	goalID, ok := h.pathID(w, r, "GET", "/dashboard/goals/{id}")
	if !ok {
		return
	}
	goal, err := h.goals.GetGoal(r.Context(), accountFrom(r), goalID)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/dashboard/goals/{id}")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{"goal": domain.NewGoalView(goal)}, "GET", "/dashboard/goals/{id}")
}

func (h *Handler) FundGoal(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/dashboard/goals/{id}/fund"))
	defer timer.ObserveDuration()

	goalID, ok := h.pathID(w, r, "POST", "/dashboard/goals/{id}/fund")
	if !ok {
		return
	}
	var req domain.FundGoalRequest
	idem, ok := h.decodeBody(w, r, &req, "POST", "/dashboard/goals/{id}/fund")
	if !ok {
		return
	}

	goal, replay, err := h.goals.FundGoal(r.Context(), accountFrom(r), goalID, req.Amount, idem)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/dashboard/goals/{id}/fund")
		return
	}
	if replay != nil {
		h.respondStored(w, replay, "POST", "/dashboard/goals/{id}/fund")
		return
	}
	h.respondJSON(w, http.StatusCreated, domain.FundGoalResponse{Goal: domain.NewGoalView(goal)}, "POST", "/dashboard/goals/{id}/fund")
}

func (h *Handler) WithdrawGoal(w http.ResponseWriter, r *http.Request) {
	timer := prometheus.NewTimer(httpLatency.WithLabelValues("POST", "/dashboard/goals/{id}/withdraw"))
	defer timer.ObserveDuration()

	goalID, ok := h.pathID(w, r, "POST", "/dashboard/goals/{id}/withdraw")
	if !ok {
		return
	}
	var req domain.WithdrawGoalRequest
	idem, ok := h.decodeBody(w, r, &req, "POST", "/dashboard/goals/{id}/withdraw")
	if !ok {
		return
	}

	result, goal, replay, err := h.goals.WithdrawFromGoal(r.Context(), accountFrom(r), goalID, req.Amount, req.IsFullWithdrawal, idem)
	if err != nil {
		h.respondServiceError(w, err, "POST", "/dashboard/goals/{id}/withdraw")
		return
	}
	if replay != nil {
		h.respondStored(w, replay, "POST", "/dashboard/goals/{id}/withdraw")
		return
	}
	h.respondJSON(w, http.StatusOK, domain.WithdrawGoalResponse{
		Data: *result,
		Goal: domain.NewGoalView(goal),
	}, "POST", "/dashboard/goals/{id}/withdraw")
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	acc, err := h.store.GetAccount(r.Context(), accountFrom(r))
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			h.respondError(w, http.StatusNotFound, "Account not found", "GET", "/dashboard/balance")
			return
		}
		log.Printf("balance read failed: %v", err)
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", "GET", "/dashboard/balance")
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"accountId": acc.ID,
		"balance":   acc.Balance,
	}, "GET", "/dashboard/balance")
}

func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	year, month := now.Year(), int(now.Month())
	if v := r.URL.Query().Get("year"); v != "" {
		if y, err := strconv.Atoi(v); err == nil {
			year = y
		}
	}
	if v := r.URL.Query().Get("month"); v != "" {
		if m, err := strconv.Atoi(v); err == nil {
			month = m
		}
	}

	summary, err := h.summary.Summary(r.Context(), accountFrom(r), year, month)
	if err != nil {
		h.respondServiceError(w, err, "GET", "/dashboard/summary")
		return
	}
	h.respondJSON(w, http.StatusOK, summary, "GET", "/dashboard/summary")
}

// Helpers

// decodeBody reads and decodes the request body and derives the idempotency
// key from the Idempotency-Key header plus a digest of the raw bytes. An
// absent header yields a zero key, which disables replay protection.
func (h *Handler) decodeBody(w http.ResponseWriter, r *http.Request, dst any, method, endpoint string) (service.IdemKey, bool) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid request body", method, endpoint)
		return service.IdemKey{}, false
	}
	if err := json.Unmarshal(body, dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "Invalid JSON", method, endpoint)
		return service.IdemKey{}, false
	}

	idem := service.IdemKey{Key: r.Header.Get("Idempotency-Key")}
	if idem.Key != "" {
		sum := sha256.Sum256(body)
		idem.RequestHash = hex.EncodeToString(sum[:])
	}
	return idem, true
}

// respondStored replays the response recorded for a repeated idempotency key.
func (h *Handler) respondStored(w http.ResponseWriter, rec *domain.IdempotencyRecord, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(rec.ResponseStatus)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rec.ResponseStatus)
	w.Write(rec.ResponseBody)
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, method, endpoint string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil || id <= 0 {
		h.respondError(w, http.StatusNotFound, "Not Found", method, endpoint)
		return 0, false
	}
	return id, true
}

func (h *Handler) respondServiceError(w http.ResponseWriter, err error, method, endpoint string) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		h.respondJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "Validation failed",
			"errors": verr.Fields,
		}, method, endpoint)
	case errors.Is(err, service.ErrInsufficientBalance):
		h.respondError(w, http.StatusBadRequest, "Insufficient balance", method, endpoint)
	case errors.Is(err, service.ErrNotFound):
		h.respondError(w, http.StatusNotFound, "Not Found", method, endpoint)
	case errors.Is(err, service.ErrForbidden):
		h.respondError(w, http.StatusForbidden, "Forbidden", method, endpoint)
	case errors.Is(err, service.ErrConflict):
		h.respondError(w, http.StatusConflict, "Conflict, retry the request", method, endpoint)
	case errors.Is(err, service.ErrIdempotencyConflict):
		h.respondError(w, http.StatusConflict, "Request with this idempotency key is in progress", method, endpoint)
	case errors.Is(err, service.ErrIdempotencyMismatch):
		h.respondError(w, http.StatusUnprocessableEntity, "Idempotency key reused with a different payload", method, endpoint)
	default:
		log.Printf("%s %s failed: %v", method, endpoint, err)
		h.respondError(w, http.StatusInternalServerError, "Internal Server Error", method, endpoint)
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, code int, payload interface{}, method, endpoint string) {
	httpReqTotal.WithLabelValues(method, endpoint, strconv.Itoa(code)).Inc()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func (h *Handler) respondError(w http.ResponseWriter, code int, msg, method, endpoint string) {
	h.respondJSON(w, code, map[string]string{"error": msg}, method, endpoint)
}
