package cashmatetest

import (
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type registerRequest struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type activateRequest struct {
	Email string `json:"email" validate:"required,email"`
	Code  string `json:"code" validate:"required,len=6,numeric"`
}

type resendRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if fields := fieldErrors(req); fields != nil {
		returnError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[normalizeEmail(req.Email)]
	if !ok || bcrypt.CompareHashAndPassword(a.hash, []byte(req.Password)) != nil {
		returnError(w, http.StatusUnauthorized, "invalid email or password", nil)
		return
	}
	if !a.activated {
		returnError(w, http.StatusUnauthorized, "account not activated", nil)
		return
	}

	pair, err := s.issuePair(a)
	if err != nil {
		returnError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	returnData(w, http.StatusOK, pair)
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if fields := fieldErrors(req); fields != nil {
		returnError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		returnError(w, http.StatusInternalServerError, "failed to hash password", nil)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email := normalizeEmail(req.Email)
	if _, ok := s.accounts[email]; ok {
		returnError(w, http.StatusBadRequest, "validation failed",
			map[string]string{"email": "is already registered"})
		return
	}

	a := s.insertAccount(req.Username, email, RoleUser, hash)
	a.code = newActivationCode()
	s.opts.Logger.Info("activation code issued",
		slog.String("email", email),
		slog.String("code", a.code))

	returnJSON(w, http.StatusCreated, map[string]string{"message": "registered, check your email"})
}

func (s *Server) activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if fields := fieldErrors(req); fields != nil {
		returnError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[normalizeEmail(req.Email)]
	if !ok {
		returnError(w, http.StatusNotFound, "account not found", nil)
		return
	}
	if a.activated {
		returnError(w, http.StatusBadRequest, "account already activated", nil)
		return
	}
	if req.Code != a.code {
		returnError(w, http.StatusBadRequest, "validation failed",
			map[string]string{"code": "is incorrect"})
		return
	}

	a.activated = true
	a.code = ""

	if !s.opts.ActivationIssuesTokens {
		returnJSON(w, http.StatusOK, map[string]string{"message": "account activated"})
		return
	}
	pair, err := s.issuePair(a)
	if err != nil {
		returnError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	returnData(w, http.StatusOK, pair)
}

func (s *Server) resendActivation(w http.ResponseWriter, r *http.Request) {
	var req resendRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if fields := fieldErrors(req); fields != nil {
		returnError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[normalizeEmail(req.Email)]
	if !ok {
		returnError(w, http.StatusNotFound, "account not found", nil)
		return
	}
	if a.activated {
		returnError(w, http.StatusBadRequest, "account already activated", nil)
		return
	}

	a.code = newActivationCode()
	s.opts.Logger.Info("activation code reissued",
		slog.String("email", a.email),
		slog.String("code", a.code))

	returnJSON(w, http.StatusOK, map[string]string{"message": "activation code sent"})
}

// refreshTokens answers with a bare token object rather than a data
// envelope; clients accept both.
func (s *Server) refreshTokens(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if ok := decodeRequest(&req, w, r); !ok {
		return
	}
	if fields := fieldErrors(req); fields != nil {
		returnError(w, http.StatusBadRequest, "validation failed", fields)
		return
	}

	s.wait(r.Context())

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failRefresh > 0 {
		s.failRefresh--
		returnError(w, http.StatusUnauthorized, "refresh token rejected", nil)
		return
	}

	// consume the token
	id, ok := s.refresh[req.RefreshToken]
	if !ok {
		returnError(w, http.StatusUnauthorized, "refresh token rejected", nil)
		return
	}
	delete(s.refresh, req.RefreshToken)

	a := s.accountByID(id)
	if a == nil {
		returnError(w, http.StatusUnauthorized, "refresh token rejected", nil)
		return
	}

	pair, err := s.issuePair(a)
	if err != nil {
		returnError(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	returnJSON(w, http.StatusOK, pair)
}
