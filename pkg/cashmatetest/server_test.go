package cashmatetest

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/tokens"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func do(t *testing.T, s *Server, method, path, bearer string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewReader(buf)
	}
	req := httptest.NewRequest(method, path, payload)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
}

func TestLogin_IssuesDecodableTokens(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})
	_, err := s.AddUser("ada@example.com", "hunter22", RoleAdmin)
	require.NoError(t, err)

	rec := do(t, s, "POST", "/auth/login", "", loginRequest{Email: "ada@example.com", Password: "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data struct {
			AccessToken  string `json:"access_token"`
			RefreshToken string `json:"refresh_token"`
		} `json:"data"`
	}
	decodeBody(t, rec, &body)
	require.NotEmpty(t, body.Data.RefreshToken)

	identity, err := tokens.Decode(body.Data.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", identity.Email)
	assert.Equal(t, "ada", identity.Username)
	assert.Equal(t, RoleAdmin, identity.Role)
	assert.Equal(t, "1", identity.Subject)
	assert.False(t, identity.Expired(time.Now()))
}

func TestLogin_WrongPassword(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})
	_, err := s.AddUser("ada@example.com", "hunter22", "")
	require.NoError(t, err)

	rec := do(t, s, "POST", "/auth/login", "", loginRequest{Email: "ada@example.com", Password: "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_ValidationErrors(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})

	rec := do(t, s, "POST", "/auth/login", "", loginRequest{Email: "not-an-email"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "must be a valid email address", body.Errors["email"])
	assert.Equal(t, "is required", body.Errors["password"])
}

func TestRegisterActivateLogin(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})

	rec := do(t, s, "POST", "/auth/register", "", registerRequest{
		Username: "grace",
		Email:    "grace@example.com",
		Password: "cobol1959",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	// login before activation is refused with the dedicated message
	rec = do(t, s, "POST", "/auth/login", "", loginRequest{Email: "grace@example.com", Password: "cobol1959"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	var refused errorResponse
	decodeBody(t, rec, &refused)
	assert.Equal(t, "account not activated", refused.Message)

	code, ok := s.ActivationCode("grace@example.com")
	require.True(t, ok)
	require.Len(t, code, 6)

	rec = do(t, s, "POST", "/auth/activate", "", activateRequest{Email: "grace@example.com", Code: "999999x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, s, "POST", "/auth/activate", "", activateRequest{Email: "grace@example.com", Code: code})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "access_token")

	_, ok = s.ActivationCode("grace@example.com")
	assert.False(t, ok)

	rec = do(t, s, "POST", "/auth/login", "", loginRequest{Email: "grace@example.com", Password: "cobol1959"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestActivate_IssuesTokensWhenConfigured(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{ActivationIssuesTokens: true})

	do(t, s, "POST", "/auth/register", "", registerRequest{Username: "g", Email: "g@example.com", Password: "pw"})
	code, _ := s.ActivationCode("g@example.com")

	rec := do(t, s, "POST", "/auth/activate", "", activateRequest{Email: "g@example.com", Code: code})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "access_token")
}

func TestRegister_DuplicateEmail(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})
	_, err := s.AddUser("ada@example.com", "pw", "")
	require.NoError(t, err)

	rec := do(t, s, "POST", "/auth/register", "", registerRequest{Username: "ada", Email: "ADA@example.com", Password: "pw"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	var body errorResponse
	decodeBody(t, rec, &body)
	assert.Equal(t, "is already registered", body.Errors["email"])
}

func TestResendActivation_RotatesCode(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})
	do(t, s, "POST", "/auth/register", "", registerRequest{Username: "g", Email: "g@example.com", Password: "pw"})

	rec := do(t, s, "POST", "/auth/resend-activation", "", resendRequest{Email: "g@example.com"})
	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := s.ActivationCode("g@example.com")
	assert.True(t, ok)

	rec = do(t, s, "POST", "/auth/resend-activation", "", resendRequest{Email: "nobody@example.com"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRefresh_RotatesRefreshToken(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})
	_, err := s.AddUser("ada@example.com", "pw", "")
	require.NoError(t, err)
	pair, err := s.IssueTokens("ada@example.com")
	require.NoError(t, err)

	rec := do(t, s, "POST", "/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
	require.Equal(t, http.StatusOK, rec.Code)

	var rotated struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
	}
	decodeBody(t, rec, &rotated)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	// the consumed token is single use
	rec = do(t, s, "POST", "/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 2, s.Hits("refresh"))
}

func TestFailRefresh(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})
	_, err := s.AddUser("ada@example.com", "pw", "")
	require.NoError(t, err)
	pair, err := s.IssueTokens("ada@example.com")
	require.NoError(t, err)

	s.FailRefresh(1)
	rec := do(t, s, "POST", "/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, s, "POST", "/auth/refresh", "", refreshRequest{RefreshToken: pair.RefreshToken})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, s.Metrics().Responses("refresh", http.StatusUnauthorized))
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})
	_, err := s.AddUser("ada@example.com", "pw", "")
	require.NoError(t, err)
	pair, err := s.IssueTokens("ada@example.com")
	require.NoError(t, err)

	cases := []struct {
		name   string
		bearer string
		want   int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"garbage token", "not.a.jwt", http.StatusUnauthorized},
		{"valid token", pair.AccessToken, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, s, "GET", "/categories", tc.bearer, nil)
			assert.Equal(t, tc.want, rec.Code)
		})
	}

	s.RevokeAccessTokens()
	rec := do(t, s, "GET", "/categories", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestExpiredAccessToken(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{AccessLifetime: -time.Minute})
	_, err := s.AddUser("ada@example.com", "pw", "")
	require.NoError(t, err)
	pair, err := s.IssueTokens("ada@example.com")
	require.NoError(t, err)

	rec := do(t, s, "GET", "/transactions", pair.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUsers_AdminOnly(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})
	_, err := s.AddUser("admin@example.com", "pw", RoleAdmin)
	require.NoError(t, err)
	user, err := s.AddUser("user@example.com", "pw", RoleUser)
	require.NoError(t, err)

	userTokens, _ := s.IssueTokens("user@example.com")
	adminTokens, _ := s.IssueTokens("admin@example.com")

	rec := do(t, s, "GET", "/user", userTokens.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, s, "GET", "/user", adminTokens.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "user@example.com")

	rec = do(t, s, "DELETE", "/user/"+strconv.FormatInt(user.ID, 10), adminTokens.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// a deleted user's tokens stop working
	rec = do(t, s, "GET", "/categories", userTokens.AccessToken, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCategoriesCRUD(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})
	_, err := s.AddUser("ada@example.com", "pw", "")
	require.NoError(t, err)
	pair, _ := s.IssueTokens("ada@example.com")

	rec := do(t, s, "POST", "/categories", pair.AccessToken, categoryRequest{Name: "Rent", Type: "bogus"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "must be one of")

	rec = do(t, s, "POST", "/categories", pair.AccessToken, categoryRequest{Name: "Rent", Type: "expense"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), `"id":3`)

	rename := "Housing"
	rec = do(t, s, "PUT", "/categories/3", pair.AccessToken, categoryUpdateRequest{Name: &rename})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Housing")

	rec = do(t, s, "DELETE", "/categories/3", pair.AccessToken, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = do(t, s, "GET", "/categories/3", pair.AccessToken, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetricsHandler(t *testing.T) {
	t.Parallel()
	s := NewServer(Options{})
	do(t, s, "GET", "/categories", "", nil)

	rec := httptest.NewRecorder()
	s.Metrics().Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `cashmatetest_route_hits_total{route="categories"} 1`))
}
