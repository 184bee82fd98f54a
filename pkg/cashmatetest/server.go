// Package cashmatetest runs an in-process CashMate backend for tests.
//
// The fake implements the REST contract the client speaks: the auth
// endpoints, categories, users and transactions. It signs real HS256 access
// tokens and rotates opaque refresh tokens, and it exposes controls for the
// situations a client must survive: revoked access tokens, refused
// refreshes and slow refreshes.
//
//	backend := cashmatetest.NewServer(cashmatetest.Options{})
//	backend.AddUser("ada@example.com", "hunter22", cashmatetest.RoleAdmin)
//	baseURL := backend.Serve(t)
package cashmatetest

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"git.sr.ht/~jakintosh/cashmate/pkg/client"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Options configures a fake backend. The zero value is usable.
type Options struct {
	// AccessLifetime defaults to 30 minutes.
	AccessLifetime time.Duration
	// ActivationIssuesTokens signs the user in on a successful activation.
	ActivationIssuesTokens bool
	// Secret signs access tokens; a random one is generated when empty.
	Secret []byte
	Logger *slog.Logger
}

type account struct {
	id        int64
	username  string
	email     string
	role      string
	hash      []byte
	activated bool
	code      string
}

// Server is the fake backend. All methods are safe for concurrent use.
type Server struct {
	opts    Options
	router  *mux.Router
	metrics *Metrics

	mu           sync.Mutex
	accounts     map[string]*account
	nextUserID   int64
	refresh      map[string]int64
	generation   int64
	failRefresh  int
	refreshDelay time.Duration

	categories     map[int64]*client.Category
	nextCategoryID int64
	transactions   map[int64]*client.Transaction
	nextTxID       int64
}

func NewServer(opts Options) *Server {
	if opts.AccessLifetime == 0 {
		opts.AccessLifetime = 30 * time.Minute
	}
	if len(opts.Secret) == 0 {
		opts.Secret = []byte(rand.Text())
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		opts:         opts,
		metrics:      NewMetrics(),
		accounts:     make(map[string]*account),
		refresh:      make(map[string]int64),
		categories:   make(map[int64]*client.Category),
		transactions: make(map[int64]*client.Transaction),
	}
	s.seedCategories()
	s.router = s.buildRouter()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Serve starts the backend on a loopback listener for the duration of the
// test and returns its base URL.
func (s *Server) Serve(t testing.TB) string {
	t.Helper()
	server := httptest.NewServer(s.Handler())
	t.Cleanup(server.Close)
	return server.URL
}

// AddUser seeds an activated account.
func (s *Server) AddUser(email, password, role string) (client.User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return client.User{}, fmt.Errorf("failed to hash password: %v", err)
	}
	if role == "" {
		role = RoleUser
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	email = normalizeEmail(email)
	if _, ok := s.accounts[email]; ok {
		return client.User{}, fmt.Errorf("account %s already exists", email)
	}
	a := s.insertAccount(usernameFor(email), email, role, hash)
	a.activated = true
	return a.user(), nil
}

// ActivationCode returns the code issued to a pending account.
func (s *Server) ActivationCode(email string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[normalizeEmail(email)]
	if !ok || a.activated {
		return "", false
	}
	return a.code, true
}

// IssueTokens signs a token pair for an existing account without a login
// round trip.
func (s *Server) IssueTokens(email string) (*client.TokenPair, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[normalizeEmail(email)]
	if !ok {
		return nil, fmt.Errorf("no account %s", email)
	}
	return s.issuePair(a)
}

// RevokeAccessTokens invalidates every access token issued so far. Refresh
// tokens stay valid.
func (s *Server) RevokeAccessTokens() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
}

// FailRefresh makes the next n refresh requests answer 401.
func (s *Server) FailRefresh(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failRefresh = n
}

// SetRefreshDelay holds every refresh response for d.
func (s *Server) SetRefreshDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshDelay = d
}

// Hits returns how many requests reached the named route.
func (s *Server) Hits(route string) int {
	return s.metrics.Hits(route)
}

func (s *Server) insertAccount(username, email, role string, hash []byte) *account {
	s.nextUserID++
	a := &account{
		id:       s.nextUserID,
		username: username,
		email:    email,
		role:     role,
		hash:     hash,
	}
	s.accounts[email] = a
	return a
}

func (s *Server) accountByID(id int64) *account {
	for _, a := range s.accounts {
		if a.id == id {
			return a
		}
	}
	return nil
}

func (s *Server) seedCategories() {
	for _, c := range []client.Category{
		{Name: "Salary", Type: client.CategoryIncome, Description: "Monthly pay", Icon: "wallet", Color: "#16a34a"},
		{Name: "Groceries", Type: client.CategoryExpense, Description: "Food and household", Icon: "cart", Color: "#dc2626"},
	} {
		s.nextCategoryID++
		c.ID = s.nextCategoryID
		s.categories[c.ID] = &c
	}
}

func (s *Server) wait(ctx context.Context) {
	s.mu.Lock()
	delay := s.refreshDelay
	s.mu.Unlock()
	if delay == 0 {
		return
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

func (a *account) user() client.User {
	return client.User{
		ID:       a.id,
		Username: a.username,
		Email:    a.email,
		Role:     a.role,
	}
}

func newActivationCode() string {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%06d", n.Int64())
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func usernameFor(email string) string {
	name, _, _ := strings.Cut(email, "@")
	return name
}
