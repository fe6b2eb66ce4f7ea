package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"alphascreen/internal/pipeline"
	"alphascreen/internal/symbols"
	"alphascreen/pkg/model"
)

const analyzeTimeout = 60 * time.Second

// ScheduleStatus is the trigger state reported by /api/stats
type ScheduleStatus struct {
	Runs     int    `json:"runs"`
	LastScan string `json:"last_scan,omitempty"`
	NextScan string `json:"next_scan,omitempty"`
}

// StatsResponse bundles cache and schedule state
type StatsResponse struct {
	Cache    pipeline.CacheStats `json:"cache"`
	Schedule *ScheduleStatus     `json:"schedule,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func allowGet(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "use GET")
		return false
	}
	return true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.results.Report().Summary)
}

// handleResults returns the scored results, optionally filtered by ?signal= and ?sector=
func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	q := r.URL.Query()

	var results []model.Result
	switch {
	case q.Get("signal") != "":
		sig := model.Signal(strings.ToUpper(q.Get("signal")))
		if sig != model.SignalBuy && sig != model.SignalHold && sig != model.SignalAvoid {
			writeError(w, http.StatusBadRequest, "signal must be BUY, HOLD or AVOID")
			return
		}
		results = s.results.BySignal(sig)
	case q.Get("sector") != "":
		results = s.results.BySector(q.Get("sector"))
	default:
		results = s.results.Report().Results
	}

	if limit, err := strconv.Atoi(q.Get("limit")); err == nil && limit > 0 && limit < len(results) {
		results = results[:limit]
	}
	if results == nil {
		results = []model.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(results),
		"results": results,
	})
}

func (s *Server) handleTop(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	n := 10
	if v, err := strconv.Atoi(r.URL.Query().Get("n")); err == nil && v > 0 {
		n = v
	}
	top := s.results.TopBuys(n)
	if top == nil {
		top = []model.Result{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(top),
		"results": top,
	})
}

// handleStock returns the stored result for /api/stock/{SYMBOL}, analyzing on demand when absent
func (s *Server) handleStock(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/api/stock/")
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, "symbol required")
		return
	}
	sym := symbols.Sanitize(raw)
	if sym == "" {
		writeError(w, http.StatusBadRequest, "invalid symbol "+strconv.Quote(raw))
		return
	}

	for _, res := range s.results.Report().Results {
		if res.Symbol == sym {
			writeJSON(w, http.StatusOK, res)
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), analyzeTimeout)
	defer cancel()
	res, err := s.results.AnalyzeOne(ctx, sym)
	switch {
	case errors.Is(err, pipeline.ErrInvalidSymbol):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrInsufficientData):
		writeError(w, http.StatusNotFound, err.Error())
	case err != nil:
		s.logger.Warn().Str("symbol", sym).Err(err).Msg("On-demand analysis failed")
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeJSON(w, http.StatusOK, res)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !allowGet(w, r) {
		return
	}
	resp := StatsResponse{Cache: s.results.CacheStats()}
	if s.trigger != nil {
		st := &ScheduleStatus{Runs: s.trigger.Runs()}
		if t := s.trigger.LastScan(); !t.IsZero() {
			st.LastScan = t.Format(time.RFC3339)
		}
		if t := s.trigger.Next(); !t.IsZero() {
			st.NextScan = t.Format(time.RFC3339)
		}
		resp.Schedule = st
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleScan queues an immediate scan (POST)
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "use POST")
		return
	}
	if s.trigger == nil {
		writeError(w, http.StatusServiceUnavailable, "scheduler not running")
		return
	}
	go s.trigger.RunScanNow()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
