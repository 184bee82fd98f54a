package cashmatetest

import (
	"net/http"
	"slices"
	"strconv"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/client"
	"github.com/gorilla/mux"
)

type categoryRequest struct {
	Name        string `json:"name" validate:"required"`
	Type        string `json:"type" validate:"required,oneof=income expense"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
}

type categoryUpdateRequest struct {
	Name        *string `json:"name" validate:"omitnil,min=1"`
	Type        *string `json:"type" validate:"omitnil,oneof=income expense"`
	Description *string `json:"description"`
	Icon        *string `json:"icon"`
	Color       *string `json:"color"`
}

type transactionRequest struct {
	CategoryID  int64     `json:"category_id" validate:"required"`
	Amount      float64   `json:"amount" validate:"gt=0"`
	Description string    `json:"description"`
	Date        time.Time `json:"date"`
}

type transactionUpdateRequest struct {
	CategoryID  *int64     `json:"category_id"`
	Amount      *float64   `json:"amount" validate:"omitnil,gt=0"`
	Description *string    `json:"description"`
	Date        *time.Time `json:"date"`
}

func pathID(r *http.Request) int64 {
	id, _ := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id
}

func sortedValues[T any](m map[int64]*T) []T {
	ids := make([]int64, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	values := make([]T, 0, len(ids))
	for _, id := range ids {
		values = append(values, *m[id])
	}
	return values
}

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	returnData(w, http.StatusOK, sortedValues(s.categories))
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	category, ok := s.categories[pathID(r)]
	if !ok {
		returnError(w, http.StatusNotFound, "category not found", nil)
		return
	}
	returnData(w, http.StatusOK, category)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if fields := fieldErrors(req); fields != nil {
		returnError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextCategoryID++
	category := &client.Category{
		ID:          s.nextCategoryID,
		Name:        req.Name,
		Type:        client.CategoryType(req.Type),
		Description: req.Description,
		Icon:        req.Icon,
		Color:       req.Color,
	}
	s.categories[category.ID] = category
	returnData(w, http.StatusCreated, category)
}

func (s *Server) updateCategory(w http.ResponseWriter, r *http.Request) {
	var req categoryUpdateRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if fields := fieldErrors(req); fields != nil {
		returnError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	category, ok := s.categories[pathID(r)]
	if !ok {
		returnError(w, http.StatusNotFound, "category not found", nil)
		return
	}
	if req.Name != nil {
		category.Name = *req.Name
	}
	if req.Type != nil {
		category.Type = client.CategoryType(*req.Type)
	}
	if req.Description != nil {
		category.Description = *req.Description
	}
	if req.Icon != nil {
		category.Icon = *req.Icon
	}
	if req.Color != nil {
		category.Color = *req.Color
	}
	returnData(w, http.StatusOK, category)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := pathID(r)
	if _, ok := s.categories[id]; !ok {
		returnError(w, http.StatusNotFound, "category not found", nil)
		return
	}
	delete(s.categories, id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]client.User, 0, len(s.accounts))
	for _, a := range s.accounts {
		users = append(users, a.user())
	}
	slices.SortFunc(users, func(a, b client.User) int {
		return int(a.ID - b.ID)
	})
	returnData(w, http.StatusOK, users)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.accountByID(pathID(r))
	if a == nil {
		returnError(w, http.StatusNotFound, "user not found", nil)
		return
	}
	delete(s.accounts, a.email)
	for token, owner := range s.refresh {
		if owner == a.id {
			delete(s.refresh, token)
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTransactions(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	returnData(w, http.StatusOK, sortedValues(s.transactions))
}

func (s *Server) getTransaction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	transaction, ok := s.transactions[pathID(r)]
	if !ok {
		returnError(w, http.StatusNotFound, "transaction not found", nil)
		return
	}
	returnData(w, http.StatusOK, transaction)
}

func (s *Server) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if fields := fieldErrors(req); fields != nil {
		returnError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.categories[req.CategoryID]; !ok {
		returnError(w, http.StatusBadRequest, "validation failed",
			map[string]string{"category_id": "does not exist"})
		return
	}
	if req.Date.IsZero() {
		req.Date = time.Now().UTC().Truncate(time.Second)
	}

	s.nextTxID++
	transaction := &client.Transaction{
		ID:          s.nextTxID,
		CategoryID:  req.CategoryID,
		Amount:      req.Amount,
		Description: req.Description,
		Date:        req.Date,
	}
	s.transactions[transaction.ID] = transaction
	returnData(w, http.StatusCreated, transaction)
}

func (s *Server) updateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionUpdateRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if fields := fieldErrors(req); fields != nil {
		returnError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	transaction, ok := s.transactions[pathID(r)]
	if !ok {
		returnError(w, http.StatusNotFound, "transaction not found", nil)
		return
	}
	if req.CategoryID != nil {
		if _, ok := s.categories[*req.CategoryID]; !ok {
			returnError(w, http.StatusBadRequest, "validation failed",
				map[string]string{"category_id": "does not exist"})
			return
		}
		transaction.CategoryID = *req.CategoryID
	}
	if req.Amount != nil {
		transaction.Amount = *req.Amount
	}
	if req.Description != nil {
		transaction.Description = *req.Description
	}
	if req.Date != nil {
		transaction.Date = *req.Date
	}
	returnData(w, http.StatusOK, transaction)
}

func (s *Server) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := pathID(r)
	if _, ok := s.transactions[id]; !ok {
		returnError(w, http.StatusNotFound, "transaction not found", nil)
		return
	}
	delete(s.transactions, id)
	w.WriteHeader(http.StatusNoContent)
}
