package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"tripdeals/internal/app"
	"tripdeals/internal/domain"
	"tripdeals/internal/scheduler"
)

// ScanTrigger is the part of the scheduler the admin and status routes use.
type ScanTrigger interface {
	TriggerNow(ctx context.Context) (app.ScanSummary, error)
	Last() (scheduler.LastRun, bool)
}

type ConnCounter interface{ ConnectionCount() int }

type Handlers struct {
	Q       *app.QueryService
	Bundles *app.BundleService
	Parser  domain.IntentParser
	Chat    *app.ChatService
	Watches *app.WatchService
	Scans   ScanTrigger
	Live    ConnCounter
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

const maxBody = 1 << 20

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(requestTimeout))

		r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })
		r.Get("/v1/status", h.status)

		r.Get("/v1/deals/flights", h.flightDeals)
		r.Get("/v1/deals/hotels", h.hotelDeals)
		r.Get("/v1/listings/{id}", h.getListing)

		r.Post("/v1/bundles", h.findBundles)
		r.Post("/v1/chat", h.chat)

		r.Post("/v1/watches", h.createWatch)
		r.Get("/v1/users/{userID}/watches", h.userWatches)
		r.Delete("/v1/watches/{id}", h.deleteWatch)
	})

	// a manual scan may outlive the request timeout
	s.mux.Post("/admin/scan", h.triggerScan)
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// writeErr maps domain errors to problem responses.
func writeErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeProblem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, domain.ErrInvalidWatch):
		writeProblem(w, http.StatusBadRequest, "Invalid Watch", err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeProblem(w, http.StatusGatewayTimeout, "Timeout", "request timed out")
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "unexpected error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("write JSON response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeCached writes a GET response with a weak ETag and honours If-None-Match.
func writeCached(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Error", "could not encode response")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	return true
}

// queryLimit returns 0 when absent so the service default applies.
func queryLimit(w http.ResponseWriter, r *http.Request) (int, bool) {
	ls := r.URL.Query().Get("limit")
	if ls == "" {
		return 0, true
	}
	n, err := strconv.Atoi(ls)
	if err != nil || n <= 0 || n > 50 {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be an integer between 1 and 50")
		return 0, false
	}
	return n, true
}

// ---- status ----

func (h *Handlers) status(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"service":   "tripdeals",
		"timestamp": time.Now().UTC(),
	}
	if h.Live != nil {
		resp["connections"] = h.Live.ConnectionCount()
	}
	if h.Scans != nil {
		if last, ok := h.Scans.Last(); ok {
			resp["last_scan"] = last
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- deals ----

type dealsResponse struct {
	Deals []domain.Listing `json:"deals"`
	Count int              `json:"count"`
}

func (h *Handlers) flightDeals(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	out, err := h.Q.TopFlights(r.Context(), q.Get("origin"), q.Get("destination"), limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeCached(w, r, dealsResponse{Deals: nonNil(out), Count: len(out)})
}

func (h *Handlers) hotelDeals(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryLimit(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	pet := false
	if v := q.Get("pet_friendly"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid pet_friendly", "pet_friendly must be a boolean")
			return
		}
		pet = b
	}
	out, err := h.Q.TopHotels(r.Context(), q.Get("city"), pet, limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeCached(w, r, dealsResponse{Deals: nonNil(out), Count: len(out)})
}

func (h *Handlers) getListing(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid ID", "id is required")
		return
	}
	l, err := h.Q.GetListing(r.Context(), id)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeCached(w, r, l)
}

func nonNil(ls []domain.Listing) []domain.Listing {
	if ls == nil {
		return []domain.Listing{}
	}
	return ls
}

// ---- bundles ----

type bundlesRequest struct {
	Query               string   `json:"query"`
	Origin              *string  `json:"origin"`
	Destination         *string  `json:"destination"`
	DepartureDate       *string  `json:"departure_date"`
	ReturnDate          *string  `json:"return_date"`
	Budget              *float64 `json:"budget"`
	Travelers           *int     `json:"travelers"`
	PetFriendly         *bool    `json:"pet_friendly"`
	AvoidRedEye         *bool    `json:"avoid_red_eye"`
	BreakfastRequired   *bool    `json:"breakfast_required"`
	RefundablePreferred *bool    `json:"refundable_preferred"`
	NearTransit         *bool    `json:"near_transit"`
	Limit               int      `json:"limit"`
}

func parseDate(p *string) (*time.Time, error) {
	if p == nil || strings.TrimSpace(*p) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*p))
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func upperPtr(p *string) *string {
	if p == nil {
		return nil
	}
	v := strings.ToUpper(strings.TrimSpace(*p))
	if v == "" {
		return nil
	}
	return &v
}

func (req bundlesRequest) intent() (domain.Intent, error) {
	dep, err := parseDate(req.DepartureDate)
	if err != nil {
		return domain.Intent{}, errors.New("departure_date must be YYYY-MM-DD")
	}
	ret, err := parseDate(req.ReturnDate)
	if err != nil {
		return domain.Intent{}, errors.New("return_date must be YYYY-MM-DD")
	}
	if dep != nil && ret != nil && !ret.After(*dep) {
		return domain.Intent{}, errors.New("return_date must be after departure_date")
	}
	return domain.Intent{
		Origin:              upperPtr(req.Origin),
		Destination:         upperPtr(req.Destination),
		DepartureDate:       dep,
		ReturnDate:          ret,
		Budget:              req.Budget,
		Travelers:           req.Travelers,
		PetFriendly:         req.PetFriendly,
		AvoidRedEye:         req.AvoidRedEye,
		BreakfastRequired:   req.BreakfastRequired,
		RefundablePreferred: req.RefundablePreferred,
		NearTransit:         req.NearTransit,
	}, nil
}

func (h *Handlers) findBundles(w http.ResponseWriter, r *http.Request) {
	var req bundlesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	in, err := req.intent()
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	if req.Budget != nil && *req.Budget <= 0 {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "budget must be positive")
		return
	}
	if req.Limit < 0 || req.Limit > 20 {
		writeProblem(w, http.StatusBadRequest, "Invalid limit", "limit must be between 1 and 20")
		return
	}
	res, err := h.Bundles.Search(r.Context(), h.Parser, req.Query, in, req.Limit)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---- chat ----

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

func (h *Handlers) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		writeProblem(w, http.StatusBadRequest, "Invalid Request", "message is required")
		return
	}
	resp, err := h.Chat.Handle(r.Context(), req.SessionID, req.Message)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// ---- watches ----

func (h *Handlers) createWatch(w http.ResponseWriter, r *http.Request) {
	var in app.CreateWatchInput
	if !decodeBody(w, r, &in) {
		return
	}
	wt, err := h.Watches.Create(r.Context(), in)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"watch_id": wt.ID,
		"message":  "Watch created successfully",
		"watch":    wt,
	})
}

func (h *Handlers) userWatches(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	ws, err := h.Watches.ListByUser(r.Context(), userID)
	if err != nil {
		writeErr(w, r, err)
		return
	}
	if ws == nil {
		ws = []domain.Watch{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"user_id": userID, "watches": ws})
}

func (h *Handlers) deleteWatch(w http.ResponseWriter, r *http.Request) {
	if err := h.Watches.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeErr(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- admin ----

func (h *Handlers) triggerScan(w http.ResponseWriter, r *http.Request) {
	if h.Scans == nil {
		writeProblem(w, http.StatusServiceUnavailable, "Unavailable", "scanner not configured")
		return
	}
	sum, err := h.Scans.TriggerNow(r.Context())
	switch {
	case errors.Is(err, scheduler.ErrScanInProgress):
		writeProblem(w, http.StatusConflict, "Scan In Progress", "a scan is already running")
		return
	case err != nil:
		log.Error().Err(err).Msg("manual scan failed")
		writeProblem(w, http.StatusBadGateway, "Scan Failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
