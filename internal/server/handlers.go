package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/forecaster/internal/modules/prediction"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cpuPercent, ramPercent := s.systemStats()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "healthy",
		"version":     s.cfg.Version,
		"service":     "forecaster",
		"cpu_percent": cpuPercent,
		"ram_percent": ramPercent,
	})
}

// systemStats returns CPU and RAM usage percentages
func (s *Server) systemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil || len(cpuPercent) == 0 {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return cpuPercent[0], 0
	}
	return cpuPercent[0], memStat.UsedPercent
}

// handlePrediction serves GET /api/prediction/{symbol}
func (s *Server) handlePrediction(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	if symbol == "" {
		s.writeJSON(w, http.StatusBadRequest, prediction.Fail("No symbol provided"))
		return
	}

	res := s.cfg.Predictor.Predict(r.Context(), symbol)
	s.writeJSON(w, statusFor(res), res)
}

// handleMarket serves GET /api/market
func (s *Server) handleMarket(w http.ResponseWriter, r *http.Request) {
	res := s.cfg.Predictor.MarketOverview(r.Context())
	s.writeJSON(w, statusFor(res), res)
}

// handleNews serves GET /api/news/{symbol}
func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	if s.cfg.News == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, prediction.Fail("news is not configured"))
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))
	s.writeJSON(w, http.StatusOK, s.cfg.News.Digest(r.Context(), symbol, s.cfg.NewsTTL))
}

// handleLedger serves GET /api/ledger/{symbol}?limit=N
func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ledger == nil {
		s.writeJSON(w, http.StatusServiceUnavailable, prediction.Fail("ledger is disabled"))
		return
	}
	symbol := strings.ToUpper(strings.TrimSpace(chi.URLParam(r, "symbol")))

	limit := 30
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			s.writeJSON(w, http.StatusBadRequest, prediction.Fail("limit must be between 1 and 500"))
			return
		}
		limit = n
	}

	summary, err := s.cfg.Ledger.Summarize(r.Context(), symbol)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to summarize ledger")
		s.writeJSON(w, http.StatusInternalServerError, prediction.Fail(err.Error()))
		return
	}
	recent, err := s.cfg.Ledger.Recent(r.Context(), symbol, limit)
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to read ledger")
		s.writeJSON(w, http.StatusInternalServerError, prediction.Fail(err.Error()))
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"summary":   summary,
		"forecasts": recent,
	})
}

// statusFor maps a result to an HTTP status
func statusFor(res prediction.Result) int {
	switch {
	case res.Failure == nil:
		return http.StatusOK
	case res.Failure.Training:
		return http.StatusServiceUnavailable
	case res.Failure.Error == prediction.ErrNoData.Error():
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
