package web

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"alphascreen/internal/common"
	"alphascreen/internal/pipeline"
	"alphascreen/pkg/model"
)

// Results is the read side of a pipeline
type Results interface {
	Report() *model.RunReport
	TopBuys(n int) []model.Result
	BySignal(sig model.Signal) []model.Result
	BySector(sector string) []model.Result
	AnalyzeOne(ctx context.Context, symbol string) (*model.Result, error)
	CacheStats() pipeline.CacheStats
}

// Trigger starts scans out of band and reports schedule state
type Trigger interface {
	RunScanNow()
	Next() time.Time
	Runs() int
	LastScan() time.Time
}

// Server exposes the latest screen over JSON
type Server struct {
	results Results
	trigger Trigger
	logger  arbor.ILogger

	mu  sync.Mutex
	srv *http.Server
}

// NewServer creates a new web server. trigger may be nil, which disables POST /api/scan.
func NewServer(results Results, trigger Trigger, logger arbor.ILogger) *Server {
	if logger == nil {
		logger = common.GetLogger()
	}
	return &Server{
		results: results,
		trigger: trigger,
		logger:  logger,
	}
}

// Handler returns the routed API
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/summary", s.handleSummary)
	mux.HandleFunc("/api/results", s.handleResults)
	mux.HandleFunc("/api/top", s.handleTop)
	mux.HandleFunc("/api/stock/", s.handleStock)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/scan", s.handleScan)
	mux.HandleFunc("/api/health", s.handleHealth)

	return corsMiddleware(mux)
}

// Start serves on port until Shutdown is called
func (s *Server) Start(port int) error {
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info().Int("port", port).Msg("Serving results API")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// corsMiddleware adds CORS headers for local dashboards
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
