package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"splitbudget/internal/budget"
	"splitbudget/internal/core"
	"splitbudget/internal/services"
)

// Repo is the slice of the repository the HTTP layer touches directly.
type Repo interface {
	GetUser(ctx context.Context, id string) (core.User, error)
	ListSettlements(ctx context.Context, groupID string) ([]core.Settlement, error)
	SetBudget(ctx context.Context, userID string, value decimal.Decimal) error
}

type Server struct {
	http.Server
	dashboard *services.DashboardService
	expenses  *services.ExpenseService
	repo      Repo

	rateLimiter *rateLimiter

	// One budget controller per user, created lazily on first edit.
	ctrlMu      sync.Mutex
	controllers map[string]*budget.Controller

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		close(rl.stopCleanup)
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 60 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 60
}

// NewServer configures routes, returning a ready-to-run http.Server.
func NewServer(addr string, dashboard *services.DashboardService, expenses *services.ExpenseService, repo Repo) *Server {
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		dashboard:   dashboard,
		expenses:    expenses,
		repo:        repo,
		rateLimiter: newRateLimiter(),
		controllers: make(map[string]*budget.Controller),
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/dashboard", s.withTrace(s.handleDashboard))
	mux.HandleFunc("GET /api/months", s.withTrace(s.handleMonths))
	mux.HandleFunc("POST /api/expenses", s.withTrace(s.handleCreateExpense))
	mux.HandleFunc("PUT /api/users/{id}/budget", s.withTrace(s.handleSetBudget))
	mux.HandleFunc("GET /api/groups/{id}/settlements", s.withTrace(s.handleSettlements))

	return s
}

// controllerFor returns the user's budget controller, creating it from
// the persisted budget on first use.
func (s *Server) controllerFor(ctx context.Context, userID string) (*budget.Controller, error) {
	s.ctrlMu.Lock()
	defer s.ctrlMu.Unlock()

	if ctrl, ok := s.controllers[userID]; ok {
		return ctrl, nil
	}

	user, err := s.repo.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	ctrl := budget.NewController(userID, user.MonthlyBudget, s.repo)
	s.controllers[userID] = ctrl
	return ctrl, nil
}

// Shutdown stops the cleanup goroutines and drains the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		return forwarded
	}
	return r.RemoteAddr
}
