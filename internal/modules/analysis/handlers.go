package analysis

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/events"
	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/pkg/jsonutil"
)

// Handler serves the valuation and analytics endpoints for one portfolio.
type Handler struct {
	service *Service
	events  *events.Manager
	log     zerolog.Logger
}

// NewHandler creates an analysis handler.
func NewHandler(service *Service, eventManager *events.Manager, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		events:  eventManager,
		log:     log.With().Str("handler", "analysis").Logger(),
	}
}

// RegisterRoutes registers analysis routes under a portfolio.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/nav", h.HandleNAV)
	r.Get("/indicators", h.HandleBasicIndicators)
	r.Get("/indicators/all", h.HandleAllIndicators)
	r.Get("/technicals", h.HandleTechnicals)
	r.Get("/stale-tickers", h.HandleDetectStaleTickers)
	r.Post("/stale-tickers", h.HandleResolveStaleTickers)
	r.Get("/compare", h.HandleCompare)
	r.Get("/frontier", h.HandleFrontier)
	r.Get("/analyze/stream", h.HandleAnalyzeStream)
}

// HandleNAV returns the reconstructed NAV history.
func (h *Handler) HandleNAV(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.NAV(r.Context(), chi.URLParam(r, "portfolioID"))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleBasicIndicators returns the headline indicator set.
func (h *Handler) HandleBasicIndicators(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.BasicIndicators(r.Context(), chi.URLParam(r, "portfolioID"))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleAllIndicators returns the full indicator catalog.
func (h *Handler) HandleAllIndicators(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.AllIndicators(r.Context(), chi.URLParam(r, "portfolioID"))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleTechnicals returns per-symbol technical indicator snapshots.
func (h *Handler) HandleTechnicals(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.Technicals(r.Context(), chi.URLParam(r, "portfolioID"))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleDetectStaleTickers lists symbols whose price history ends early.
func (h *Handler) HandleDetectStaleTickers(w http.ResponseWriter, r *http.Request) {
	stale, err := h.service.StaleTickers(r.Context(), chi.URLParam(r, "portfolioID"))
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"stale_tickers": stale})
}

// HandleResolveStaleTickers stores stale-ticker decisions.
func (h *Handler) HandleResolveStaleTickers(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handling []engine.StaleTickerHandling `json:"handling"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Handling) == 0 {
		h.writeError(w, http.StatusBadRequest, "No handling decisions provided")
		return
	}

	if err := h.service.ResolveStaleTickers(chi.URLParam(r, "portfolioID"), req.Handling); err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleCompare benchmarks the portfolio. ?benchmarks=SPY,QQQ narrows the
// set; default is the whole catalog.
func (h *Handler) HandleCompare(w http.ResponseWriter, r *http.Request) {
	var symbols []string
	if v := r.URL.Query().Get("benchmarks"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				symbols = append(symbols, strings.ToUpper(s))
			}
		}
	}

	result, err := h.service.Compare(r.Context(), chi.URLParam(r, "portfolioID"), symbols)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleFrontier runs the efficient-frontier analysis.
// ?allow_short=true permits negative weights; ?points=N sets the sweep size.
func (h *Handler) HandleFrontier(w http.ResponseWriter, r *http.Request) {
	allowShort, _ := strconv.ParseBool(r.URL.Query().Get("allow_short"))
	points, _ := strconv.Atoi(r.URL.Query().Get("points"))

	result, err := h.service.Frontier(r.Context(), chi.URLParam(r, "portfolioID"), allowShort, points)
	if err != nil {
		h.writeError(w, statusFor(err), err.Error())
		return
	}
	if result == nil {
		h.writeJSON(w, http.StatusOK, map[string]any{
			"frontier": nil,
			"reason":   "insufficient history for optimization",
		})
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

// HandleAnalyzeStream runs the full pipeline and streams progress as
// server-sent events, ending with the complete report.
func (h *Handler) HandleAnalyzeStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "Streaming unsupported")
		return
	}

	var benchmarkSymbols []string
	if v := r.URL.Query().Get("benchmarks"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				benchmarkSymbols = append(benchmarkSymbols, strings.ToUpper(s))
			}
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub, cancel := h.events.Subscribe()
	defer cancel()

	type analyzeResult struct {
		report *Report
		err    error
	}
	done := make(chan analyzeResult, 1)
	go func() {
		report, err := h.service.Analyze(r.Context(), chi.URLParam(r, "portfolioID"), benchmarkSymbols)
		done <- analyzeResult{report, err}
	}()

	for {
		select {
		case <-r.Context().Done():
			return

		case event := <-sub:
			h.writeSSE(w, string(event.Type), event)
			flusher.Flush()

		case result := <-done:
			// Drain whatever the pipeline emitted before finishing.
			for {
				select {
				case event := <-sub:
					h.writeSSE(w, string(event.Type), event)
				default:
					if result.err != nil {
						h.writeSSE(w, "error", map[string]string{"error": result.err.Error()})
					} else {
						h.writeSSE(w, "result", result.report)
					}
					flusher.Flush()
					return
				}
			}
		}
	}
}

func (h *Handler) writeSSE(w http.ResponseWriter, event string, data any) {
	payload, err := json.Marshal(jsonutil.Sanitize(data))
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to encode SSE payload")
		return
	}
	if _, err := w.Write([]byte("event: " + event + "\ndata: " + string(payload) + "\n\n")); err != nil {
		h.log.Debug().Err(err).Msg("SSE write failed")
	}
}

func statusFor(err error) int {
	if strings.Contains(err.Error(), "not found") {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(jsonutil.Sanitize(data)); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
