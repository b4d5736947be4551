package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"DroughtLedger/internal/core"
	"DroughtLedger/internal/domain"
	"DroughtLedger/internal/observability"
	"DroughtLedger/internal/query"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PrincipalHeader carries the caller's identity. Authentication happens
// upstream (gateway); this service trusts the header and enforces
// authorization per operation.
const PrincipalHeader = "X-Principal-Id"

// Server is the HTTP API. Mutations and authoritative reads go through the
// engine; audit and read-model queries go to Postgres.
type Server struct {
	engine  *core.Engine
	queries *query.Service
	health  *observability.HealthChecker
	metrics *observability.Metrics
	log     zerolog.Logger
}

func New(
	engine *core.Engine,
	queries *query.Service,
	health *observability.HealthChecker,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Server {
	return &Server{
		engine:  engine,
		queries: queries,
		health:  health,
		metrics: metrics,
		log:     log.With().Str("component", "http").Logger(),
	}
}

// Router builds the chi router with all API routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.instrument)

	r.Get("/healthz", s.health.LivenessHandler)
	r.Get("/readyz", s.health.ReadinessHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/policies", s.handlePurchase)
		r.Get("/policies/{policyID}", s.handleGetPolicy)
		r.Post("/policies/{policyID}/claim", s.handleClaim)
		r.Post("/policies/{policyID}/deactivate", s.handleDeactivate)
		r.Get("/owners/{ownerID}/policies", s.handleOwnerPolicies)

		r.Post("/measurements", s.handlePublishMeasurement)
		r.Get("/measurements/{location}", s.handleGetReading)

		r.Get("/pool", s.handlePoolBalance)
		r.Post("/pool/withdraw", s.handleWithdraw)

		r.Get("/events", s.handleEvents)
		r.Get("/locations/{location}/events", s.handleLocationEvents)
		r.Get("/integrity", s.handleIntegrity)
	})

	return r
}

// --- Request/response shapes ---

type purchaseRequest struct {
	Coverage     int64  `json:"coverage"`
	DurationDays int    `json:"duration_days"`
	Location     string `json:"location"`
	Paid         int64  `json:"paid"`
}

type purchaseResponse struct {
	PolicyID int64     `json:"policy_id"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

type claimResponse struct {
	PolicyID int64 `json:"policy_id"`
	Payout   int64 `json:"payout"`
}

type measurementRequest struct {
	PublicationID string `json:"publication_id,omitempty"`
	Location      string `json:"location"`
	Value         int64  `json:"value"`
}

type poolResponse struct {
	Balance int64 `json:"balance"`
}

type withdrawResponse struct {
	Amount int64 `json:"amount"`
}

type policyResponse struct {
	PolicyID int64     `json:"policy_id"`
	Owner    uuid.UUID `json:"owner"`
	Premium  int64     `json:"premium"`
	Coverage int64     `json:"coverage"`
	Location string    `json:"location"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Active   bool      `json:"active"`
	Settled  bool      `json:"settled"`
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// --- Handlers ---

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.Errorf(domain.CodeInvalidParameters, "invalid request body: %v", err))
		return
	}

	id, err := s.engine.Purchase(r.Context(), core.PurchasePolicy{
		Buyer:        principal,
		Coverage:     req.Coverage,
		DurationDays: req.DurationDays,
		Location:     req.Location,
		Paid:         req.Paid,
		Now:          time.Now().UTC(),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	p, err := s.engine.Policy(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Info().
		Int64("policy_id", id).
		Str("owner", principal.String()).
		Int64("coverage", req.Coverage).
		Int64("premium", req.Paid).
		Str("location", req.Location).
		Msg("policy purchased")

	s.writeJSON(w, http.StatusCreated, purchaseResponse{PolicyID: id, Start: p.Start, End: p.End})
}

func (s *Server) handleGetPolicy(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "policyID"), 10, 64)
	if err != nil {
		s.writeError(w, domain.Errorf(domain.CodeInvalidParameters, "invalid policy id"))
		return
	}

	p, err := s.engine.Policy(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, policyResponse{
		PolicyID: p.ID,
		Owner:    p.Owner,
		Premium:  p.Premium,
		Coverage: p.Coverage,
		Location: p.Location,
		Start:    p.Start,
		End:      p.End,
		Active:   p.Active,
		Settled:  p.Settled,
	})
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "policyID"), 10, 64)
	if err != nil {
		s.writeError(w, domain.Errorf(domain.CodeInvalidParameters, "invalid policy id"))
		return
	}

	payout, err := s.engine.Claim(r.Context(), core.ProcessClaim{
		Caller:   principal,
		PolicyID: id,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Info().
		Int64("policy_id", id).
		Str("owner", principal.String()).
		Int64("payout", payout).
		Msg("claim settled")

	s.writeJSON(w, http.StatusOK, claimResponse{PolicyID: id, Payout: payout})
}

func (s *Server) handleDeactivate(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	id, err := strconv.ParseInt(chi.URLParam(r, "policyID"), 10, 64)
	if err != nil {
		s.writeError(w, domain.Errorf(domain.CodeInvalidParameters, "invalid policy id"))
		return
	}

	err = s.engine.Deactivate(r.Context(), core.DeactivatePolicy{
		Caller:   principal,
		PolicyID: id,
		Now:      time.Now().UTC(),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Info().Int64("policy_id", id).Msg("policy deactivated")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOwnerPolicies(w http.ResponseWriter, r *http.Request) {
	owner, err := uuid.Parse(chi.URLParam(r, "ownerID"))
	if err != nil {
		s.writeError(w, domain.Errorf(domain.CodeInvalidParameters, "invalid owner id"))
		return
	}

	ids, err := s.engine.PoliciesForOwner(r.Context(), owner)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"owner": owner, "policy_ids": ids})
}

func (s *Server) handlePublishMeasurement(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	var req measurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, domain.Errorf(domain.CodeInvalidParameters, "invalid request body: %v", err))
		return
	}

	// Direct API publications get a fresh id unless the caller supplies one
	// for retry-safe publishing.
	pubID := uuid.New()
	if req.PublicationID != "" {
		var err error
		pubID, err = uuid.Parse(req.PublicationID)
		if err != nil {
			s.writeError(w, domain.Errorf(domain.CodeInvalidParameters, "invalid publication id"))
			return
		}
	}

	err := s.engine.PublishMeasurement(r.Context(), core.UpdateMeasurement{
		Caller:        principal,
		PublicationID: pubID,
		Location:      req.Location,
		Value:         req.Value,
		Now:           time.Now().UTC(),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusAccepted, map[string]any{"publication_id": pubID})
}

func (s *Server) handleGetReading(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "location")

	reading, err := s.queries.GetReading(r.Context(), location)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if reading == nil {
		s.writeError(w, domain.Errorf(domain.CodeNotFound, "no reading for location %q", location))
		return
	}

	s.writeJSON(w, http.StatusOK, reading)
}

func (s *Server) handlePoolBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.engine.PoolBalance(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, poolResponse{Balance: balance})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	principal, ok := s.principal(w, r)
	if !ok {
		return
	}

	amount, err := s.engine.Withdraw(r.Context(), core.WithdrawExcess{
		Caller:       principal,
		WithdrawalID: uuid.New(),
		Now:          time.Now().UTC(),
	})
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.log.Info().Int64("amount", amount).Msg("excess withdrawn")
	s.writeJSON(w, http.StatusOK, withdrawResponse{Amount: amount})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	from := int64(1)
	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			s.writeError(w, domain.Errorf(domain.CodeInvalidParameters, "invalid from sequence"))
			return
		}
		from = parsed
	}

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, domain.Errorf(domain.CodeInvalidParameters, "invalid limit"))
			return
		}
		limit = parsed
	}

	events, err := s.queries.GetEvents(r.Context(), from, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

func (s *Server) handleLocationEvents(w http.ResponseWriter, r *http.Request) {
	location := chi.URLParam(r, "location")

	limit := 100
	if v := r.URL.Query().Get("limit"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			s.writeError(w, domain.Errorf(domain.CodeInvalidParameters, "invalid limit"))
			return
		}
		limit = parsed
	}

	events, err := s.queries.GetEventsForLocation(r.Context(), location, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"location": location, "events": events})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.queries.VerifyIntegrity(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, report)
}

// --- Helpers ---

func (s *Server) principal(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	raw := r.Header.Get(PrincipalHeader)
	if raw == "" {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{
			Code:    string(domain.CodeUnauthorized),
			Message: "missing " + PrincipalHeader + " header",
		})
		return uuid.UUID{}, false
	}

	principal, err := uuid.Parse(raw)
	if err != nil {
		s.writeJSON(w, http.StatusUnauthorized, errorResponse{
			Code:    string(domain.CodeUnauthorized),
			Message: "malformed " + PrincipalHeader + " header",
		})
		return uuid.UUID{}, false
	}

	return principal, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warn().Err(err).Msg("write response failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	status := statusForCode(code)

	msg := err.Error()
	var de *domain.Error
	if errors.As(err, &de) {
		msg = de.Message
	}

	s.writeJSON(w, status, errorResponse{Code: string(code), Message: msg})
}

func statusForCode(code domain.Code) int {
	switch code {
	case domain.CodeInvalidParameters:
		return http.StatusBadRequest
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeUnauthorized:
		return http.StatusForbidden
	case domain.CodePolicyInactive,
		domain.CodeAlreadySettled,
		domain.CodeNothingToWithdraw:
		return http.StatusConflict
	case domain.CodeNotYetActive,
		domain.CodeExpired,
		domain.CodeThresholdNotMet,
		domain.CodeInsufficientFunds:
		return http.StatusUnprocessableEntity
	case "":
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// instrument records request counts and latency per route.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		if s.metrics != nil {
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = "unmatched"
			}
			s.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(ww.Status())).Inc()
			s.metrics.HTTPDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		}
	})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.Router(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.ListenAndServe()
	}()

	s.log.Info().Str("addr", addr).Msg("HTTP API listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}
