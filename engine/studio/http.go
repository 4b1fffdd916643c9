package studio

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/pinstripe-labs/carart/engine/catalog"
	"github.com/pinstripe-labs/carart/engine/domain"
	"github.com/pinstripe-labs/carart/pkg/logging"
	"github.com/pinstripe-labs/carart/pkg/mid"
)

// maxBody bounds request bodies; a captured photo arrives as a data URL.
const maxBody = 15 << 20

// Routes mounts the studio API on mux. limit wraps every endpoint that
// triggers model calls; nil means no limit.
func (s *Service) Routes(mux *http.ServeMux, limit mid.Middleware) {
	if limit == nil {
		limit = func(h http.Handler) http.Handler { return h }
	}
	gen := func(h http.HandlerFunc) http.Handler { return limit(h) }

	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/session", s.handleSession)
	mux.HandleFunc("GET /api/styles/rank", handleRank)
	mux.HandleFunc("PUT /api/cars/{car}/vehicle", s.handleVehicle)
	mux.HandleFunc("POST /api/cars/{car}/orders", s.handleOrder)
	mux.Handle("POST /api/cars", gen(s.handleStart))
	mux.Handle("POST /api/cars/{car}/styles/more", gen(s.handleMore))
	mux.Handle("POST /api/cars/{car}/styles", gen(s.handleSelected))
	mux.Handle("POST /api/cars/{car}/mockups", gen(s.handleMockup))
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Service) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Session(r.Context(), logging.UserID(r.Context())))
}

// RankResponse is the body of GET /api/styles/rank.
type RankResponse struct {
	Category domain.Category `json:"category"`
	Styles   []domain.Style  `json:"styles"`
}

// handleRank takes either a free-text q ("'70 chevy impala") or separate
// year, make and model parameters.
func handleRank(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	v := domain.VehicleIdentity{Year: q.Get("year"), Make: q.Get("make"), Model: q.Get("model")}
	if text := q.Get("q"); text != "" {
		var ok bool
		if v, ok = catalog.ParseIdentity(text); !ok {
			writeError(w, http.StatusBadRequest, "no known make in q")
			return
		}
	}
	writeJSON(w, http.StatusOK, RankResponse{Category: catalog.Classify(v), Styles: catalog.Rank(v)})
}

// StartRequest is the body of POST /api/cars.
type StartRequest struct {
	Photo string `json:"photo"`
}

func (s *Service) handleStart(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Photo == "" {
		writeError(w, http.StatusBadRequest, "photo is required")
		return
	}
	out, err := s.StartCar(r.Context(), logging.UserID(r.Context()), req.Photo)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

func (s *Service) handleVehicle(w http.ResponseWriter, r *http.Request) {
	var v domain.VehicleIdentity
	if !decode(w, r, &v) {
		return
	}
	car, err := s.UpdateVehicle(r.Context(), logging.UserID(r.Context()), r.PathValue("car"), v)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

// StylesResponse lists the style ids a generation request queued.
type StylesResponse struct {
	Styles []string `json:"styles"`
}

func (s *Service) handleMore(w http.ResponseWriter, r *http.Request) {
	ids, err := s.GenerateMore(r.Context(), logging.UserID(r.Context()), r.PathValue("car"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StylesResponse{Styles: ids})
}

func (s *Service) handleSelected(w http.ResponseWriter, r *http.Request) {
	var req StylesResponse
	if !decode(w, r, &req) {
		return
	}
	if len(req.Styles) == 0 {
		writeError(w, http.StatusBadRequest, "styles is required")
		return
	}
	ids, err := s.GenerateSelected(r.Context(), logging.UserID(r.Context()), r.PathValue("car"), req.Styles)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, StylesResponse{Styles: ids})
}

// MockupRequest is the body of POST /api/cars/{car}/mockups.
type MockupRequest struct {
	StyleID string `json:"style_id"`
	Product string `json:"product"`
}

func (s *Service) handleMockup(w http.ResponseWriter, r *http.Request) {
	var req MockupRequest
	if !decode(w, r, &req) {
		return
	}
	m, err := s.CreateMockup(r.Context(), logging.UserID(r.Context()), r.PathValue("car"), req.StyleID, req.Product)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (s *Service) handleOrder(w http.ResponseWriter, r *http.Request) {
	var o domain.Order
	if !decode(w, r, &o) {
		return
	}
	o, err := s.AddOrder(r.Context(), logging.UserID(r.Context()), r.PathValue("car"), o)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// fail maps domain errors to a status; anything else is logged as a 500.
func (s *Service) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrCarNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAlreadyGenerating), errors.Is(err, domain.ErrStyleNotReady):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &ve), errors.Is(err, domain.ErrUnknownStyle), errors.Is(err, domain.ErrUnknownProduct):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody)).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("write response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
