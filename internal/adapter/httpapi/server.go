package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/joaopcs/fundledger-backend/internal/adapter/valuation"
	"github.com/joaopcs/fundledger-backend/internal/usecase/conversion"
	"github.com/joaopcs/fundledger-backend/internal/usecase/holdings"
	"github.com/joaopcs/fundledger-backend/internal/usecase/nav"
	"github.com/joaopcs/fundledger-backend/internal/usecase/recalc"
	"github.com/joaopcs/fundledger-backend/internal/usecase/redemption"
	"github.com/joaopcs/fundledger-backend/internal/usecase/subscription"
)

// Services bundles the use case layer the REST API exposes.
type Services struct {
	Nav          *nav.Service
	Subscription *subscription.Service
	Redemption   *redemption.Service
	Recalc       *recalc.Service
	Conversion   *conversion.Service
	Holdings     *holdings.Service
	Valuation    *valuation.MarketValueSource
}

// Server wraps the HTTP server and the wired services.
type Server struct {
	services Services
	server   *http.Server
	logger   *zap.Logger
}

// NewServer creates a new HTTP REST API server.
func NewServer(addr, authToken string, services Services, logger *zap.Logger) *Server {
	s := &Server{
		services: services,
		logger:   logger,
	}

	mux := http.NewServeMux()
	s.registerRoutes(mux)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      applyMiddleware(mux, logger, authToken),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/health", s.handleHealth)

	// Funds
	mux.HandleFunc("/api/funds/", s.routeFunds)

	// Portfolio <-> fund conversion
	mux.HandleFunc("/api/portfolios/", s.routePortfolios)

	// Holdings
	mux.HandleFunc("/api/holdings/", s.handleHoldingDetail)

	// Ledger entry edits
	mux.HandleFunc("/api/transactions/", s.handleTransaction)
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the HTTP server (blocking).
func (s *Server) Start() error {
	s.logger.Info("starting REST API server", zap.String("addr", s.server.Addr))
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
