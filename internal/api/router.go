package api

import (
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the HTTP surface. Everything under /dashboard requires
// the identity header; /health and /metrics do not.
func NewRouter(h *Handler) *mux.Router {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", h.HealthCheck).Methods("GET")

	dashboard := r.PathPrefix("/dashboard").Subrouter()
	dashboard.Use(mux.MiddlewareFunc(h.WithIdentity))

	dashboard.HandleFunc("/expenses", h.AddExpense).Methods("POST")
	dashboard.HandleFunc("/incomes", h.AddIncome).Methods("POST")
	dashboard.HandleFunc("/goals", h.CreateGoal).Methods("POST")
	dashboard.HandleFunc("/goals", h.ListGoals).Methods("GET")
	dashboard.HandleFunc("/goals/{id}", h.GetGoal).Methods("GET")
	dashboard.HandleFunc("/goals/{id}/fund", h.FundGoal).Methods("POST")
	dashboard.HandleFunc("/goals/{id}/withdraw", h.WithdrawGoal).Methods("POST")
	dashboard.HandleFunc("/balance", h.GetBalance).Methods("GET")
	dashboard.HandleFunc("/summary", h.GetSummary).Methods("GET")

	return r
}
