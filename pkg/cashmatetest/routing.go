package cashmatetest

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

func (s *Server) buildRouter() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.metrics.middleware)

	r.HandleFunc("/auth/login", s.login).Methods("POST").Name("login")
	r.HandleFunc("/auth/register", s.register).Methods("POST").Name("register")
	r.HandleFunc("/auth/activate", s.activate).Methods("POST").Name("activate")
	r.HandleFunc("/auth/resend-activation", s.resendActivation).Methods("POST").Name("resend-activation")
	r.HandleFunc("/auth/refresh", s.refreshTokens).Methods("POST").Name("refresh")

	api := r.NewRoute().Subrouter()
	api.Use(s.authenticate)

	api.HandleFunc("/categories", s.listCategories).Methods("GET").Name("categories")
	api.HandleFunc("/categories", s.createCategory).Methods("POST").Name("create-category")
	api.HandleFunc("/categories/{id:[0-9]+}", s.getCategory).Methods("GET").Name("category")
	api.HandleFunc("/categories/{id:[0-9]+}", s.updateCategory).Methods("PUT").Name("update-category")
	api.HandleFunc("/categories/{id:[0-9]+}", s.deleteCategory).Methods("DELETE").Name("delete-category")

	api.HandleFunc("/user", s.requireAdmin(s.listUsers)).Methods("GET").Name("users")
	api.HandleFunc("/user/{id:[0-9]+}", s.requireAdmin(s.deleteUser)).Methods("DELETE").Name("delete-user")

	api.HandleFunc("/transactions", s.listTransactions).Methods("GET").Name("transactions")
	api.HandleFunc("/transactions", s.createTransaction).Methods("POST").Name("create-transaction")
	api.HandleFunc("/transactions/{id:[0-9]+}", s.getTransaction).Methods("GET").Name("transaction")
	api.HandleFunc("/transactions/{id:[0-9]+}", s.updateTransaction).Methods("PUT").Name("update-transaction")
	api.HandleFunc("/transactions/{id:[0-9]+}", s.deleteTransaction).Methods("DELETE").Name("delete-transaction")

	return r
}

type errorResponse struct {
	Message string            `json:"message"`
	Errors  map[string]string `json:"errors,omitempty"`
}

type dataResponse struct {
	Data any `json:"data"`
}

func decodeRequest[T any](req *T, w http.ResponseWriter, r *http.Request) bool {
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		returnError(w, http.StatusBadRequest, "bad json request", nil)
		return false
	}
	return true
}

func returnJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func returnData(w http.ResponseWriter, status int, data any) {
	returnJSON(w, status, dataResponse{Data: data})
}

func returnError(w http.ResponseWriter, status int, message string, fields map[string]string) {
	returnJSON(w, status, errorResponse{Message: message, Errors: fields})
}
