package portfolio

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/quantfolio/quantfolio/internal/modules/bonds"
	"github.com/quantfolio/quantfolio/internal/modules/engine"
	"github.com/quantfolio/quantfolio/pkg/timeseries"
)

// Handler serves portfolio CRUD and record/bond upload endpoints.
type Handler struct {
	service *Service
	log     zerolog.Logger
}

// NewHandler creates a portfolio handler.
func NewHandler(service *Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

// RegisterRoutes registers portfolio routes on the given router. Nested
// registrations (analysis endpoints) mount inside the /{portfolioID} scope,
// since chi allows each route pattern to be defined only once.
func (h *Handler) RegisterRoutes(r chi.Router, nested ...func(chi.Router)) {
	r.Get("/", h.HandleList)
	r.Post("/", h.HandleCreate)
	r.Route("/{portfolioID}", func(r chi.Router) {
		for _, register := range nested {
			register(r)
		}
		r.Get("/", h.HandleGet)
		r.Put("/", h.HandleUpdate)
		r.Delete("/", h.HandleDelete)
		r.Get("/records", h.HandleGetRecords)
		r.Post("/records", h.HandleUploadRecords)
		r.Get("/bonds", h.HandleGetBonds)
		r.Post("/bonds", h.HandleAddBond)
		r.Delete("/bonds/{bondID}", h.HandleDeleteBond)
	})
}

type portfolioRequest struct {
	Name           string   `json:"name"`
	Mode           string   `json:"mode"`
	BaseCurrency   string   `json:"base_currency"`
	InitialDeposit *float64 `json:"initial_deposit"`
}

// HandleList returns all portfolios.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	portfolios, err := h.service.List()
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"portfolios": portfolios})
}

// HandleCreate creates a portfolio.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p := &Portfolio{
		Name:           req.Name,
		Mode:           engine.Mode(strings.ToLower(strings.TrimSpace(req.Mode))),
		BaseCurrency:   strings.ToUpper(strings.TrimSpace(req.BaseCurrency)),
		InitialDeposit: req.InitialDeposit,
	}
	if err := h.service.Create(p); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, p)
}

// HandleGet returns one portfolio.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.Get(chi.URLParam(r, "portfolioID"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if p == nil {
		h.writeError(w, http.StatusNotFound, "Portfolio not found")
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// HandleUpdate updates a portfolio's header fields.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req portfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p := &Portfolio{
		ID:             chi.URLParam(r, "portfolioID"),
		Name:           req.Name,
		Mode:           engine.Mode(strings.ToLower(strings.TrimSpace(req.Mode))),
		BaseCurrency:   strings.ToUpper(strings.TrimSpace(req.BaseCurrency)),
		InitialDeposit: req.InitialDeposit,
	}
	if err := h.service.Update(p); err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, p)
}

// HandleDelete removes a portfolio.
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(chi.URLParam(r, "portfolioID")); err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// HandleGetRecords returns the portfolio's ledger.
func (h *Handler) HandleGetRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.Records(chi.URLParam(r, "portfolioID"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

type recordUpload struct {
	Records []recordRequest `json:"records"`
	Replace bool            `json:"replace"`
}

type recordRequest struct {
	Date     string  `json:"date"`
	Type     string  `json:"type"`
	Ticker   string  `json:"ticker"`
	Quantity float64 `json:"quantity"`
	Price    float64 `json:"price"`
	Fee      float64 `json:"fee"`
}

// HandleUploadRecords appends (or replaces) ledger records.
func (h *Handler) HandleUploadRecords(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	var req recordUpload
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.Records) == 0 {
		h.writeError(w, http.StatusBadRequest, "No records provided")
		return
	}

	records := make([]Record, 0, len(req.Records))
	for _, in := range req.Records {
		when, err := parseRecordDate(in.Date)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		records = append(records, Record{
			Date:     when,
			Type:     strings.ToUpper(strings.TrimSpace(in.Type)),
			Ticker:   strings.ToUpper(strings.TrimSpace(in.Ticker)),
			Quantity: in.Quantity,
			Price:    in.Price,
			Fee:      in.Fee,
		})
	}

	var err error
	if req.Replace {
		err = h.service.ReplaceRecords(portfolioID, records)
	} else {
		err = h.service.AddRecords(portfolioID, records)
	}
	if err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		h.writeError(w, status, err.Error())
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{
		"status": "ok",
		"count":  len(records),
	})
}

// HandleGetBonds returns the portfolio's bond positions.
func (h *Handler) HandleGetBonds(w http.ResponseWriter, r *http.Request) {
	positions, err := h.service.Bonds(chi.URLParam(r, "portfolioID"))
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"bonds": positions})
}

type bondRequest struct {
	Name             string   `json:"name"`
	FaceValue        float64  `json:"face_value"`
	Quantity         float64  `json:"quantity"`
	CouponRate       float64  `json:"coupon_rate"`
	PaymentFrequency int      `json:"payment_frequency"`
	PurchaseDate     string   `json:"purchase_date"`
	MaturityDate     string   `json:"maturity_date"`
	PurchasePrice    float64  `json:"purchase_price"`
	CurrentPrice     *float64 `json:"current_price"`
	PriceOverride    *float64 `json:"price_override"`
}

// HandleAddBond stores a bond position.
func (h *Handler) HandleAddBond(w http.ResponseWriter, r *http.Request) {
	portfolioID := chi.URLParam(r, "portfolioID")

	var req bondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	purchase, err := timeseries.ParseDate(req.PurchaseDate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid purchase_date")
		return
	}
	maturity, err := timeseries.ParseDate(req.MaturityDate)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid maturity_date")
		return
	}

	b := &bonds.Position{
		Name:             req.Name,
		FaceValue:        req.FaceValue,
		PurchaseQuantity: req.Quantity,
		CouponRate:       req.CouponRate,
		PaymentFrequency: bonds.PaymentFrequency(req.PaymentFrequency),
		PurchaseDate:     purchase,
		MaturityDate:     maturity,
		PurchasePrice:    req.PurchasePrice,
		CurrentPrice:     req.CurrentPrice,
	}
	if err := h.service.AddBond(portfolioID, b, req.PriceOverride); err != nil {
		status := http.StatusBadRequest
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusCreated, b)
}

// HandleDeleteBond removes one bond position.
func (h *Handler) HandleDeleteBond(w http.ResponseWriter, r *http.Request) {
	err := h.service.DeleteBond(chi.URLParam(r, "portfolioID"), chi.URLParam(r, "bondID"))
	if err != nil {
		status := http.StatusInternalServerError
		if strings.Contains(err.Error(), "not found") {
			status = http.StatusNotFound
		}
		h.writeError(w, status, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// parseRecordDate accepts a bare date or an RFC 3339 timestamp, plus the
// space-separated variant spreadsheets tend to export.
func parseRecordDate(s string) (t time.Time, err error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
		if t, err = time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable record date %q", s)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
