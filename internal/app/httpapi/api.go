// Package httpapi exposes the REST handlers and translates HTTP requests into
// the tabulation and finalization services.
package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/openpolls/tabulator/internal/app/voting"
	"github.com/openpolls/tabulator/internal/domain"
	"github.com/openpolls/tabulator/internal/platform/metrics"
)

// API bundles the HTTP handlers bound to the tabulation services and the
// logger.
type API struct {
	service   domain.TabulationService
	finalizer domain.FinalizationService
	logger    *slog.Logger
}

func New(service domain.TabulationService, finalizer domain.FinalizationService, logger *slog.Logger) *API {
	return &API{service: service, finalizer: finalizer, logger: logger}
}

func (a *API) Register(mux *http.ServeMux) {
	// Routes stay centralized so tests and alternative servers mount the
	// same surface.
	mux.HandleFunc("GET /healthz", a.handleHealthz)
	mux.HandleFunc("POST /polls", a.createPoll)
	mux.HandleFunc("GET /polls", a.listOpenPolls)
	mux.HandleFunc("GET /polls/{id}", a.getPoll)
	mux.HandleFunc("POST /polls/{id}/ballots", a.submitBallot)
	mux.HandleFunc("POST /polls/{id}/close", a.closePoll)
	mux.HandleFunc("POST /polls/{id}/finalize", a.finalizePoll)
	mux.HandleFunc("GET /polls/{id}/result", a.getResult)
	mux.HandleFunc("GET /polls/{id}/live", a.getLiveTally)
}

// WithRequestLog tags every request with an id and logs its completion.
func (a *API) WithRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(w, r)

		a.logger.Info("request completed",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type createPollRequest struct {
	Question            string   `json:"question"`
	Method              string   `json:"method"`
	Options             []string `json:"options"`
	MaxSelections       int      `json:"max_selections"`
	AllowPartialRanking bool     `json:"allow_partial_ranking"`
	MinScore            int64    `json:"min_score"`
	MaxScore            int64    `json:"max_score"`
	DefaultScore        int64    `json:"default_score"`
	CreditBudget        int64    `json:"credit_budget"`
}

func (a *API) createPoll(w http.ResponseWriter, r *http.Request) {
	var req createPollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.logger.Warn("invalid payload creating poll", "err", err)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	method, ok := domain.ParseMethod(req.Method)
	if !ok {
		writeError(w, fmt.Errorf("%w: unknown method %q", voting.ErrInvalidPoll, req.Method))
		return
	}

	poll := domain.Poll{
		Question:            req.Question,
		Method:              method,
		MaxSelections:       req.MaxSelections,
		AllowPartialRanking: req.AllowPartialRanking,
		MinScore:            req.MinScore,
		MaxScore:            req.MaxScore,
		DefaultScore:        req.DefaultScore,
		CreditBudget:        req.CreditBudget,
	}

	created, err := a.service.CreatePoll(r.Context(), poll, req.Options)
	if err != nil {
		a.logger.Warn("poll rejected", "err", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
	a.logger.Info("poll created", "poll", created.ID, "method", created.Method)
}

func (a *API) listOpenPolls(w http.ResponseWriter, r *http.Request) {
	polls, err := a.service.ListOpen(r.Context())
	if err != nil {
		a.logger.Error("error listing open polls", "err", err)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, polls)
}

func (a *API) getPoll(w http.ResponseWriter, r *http.Request) {
	id := domain.PollID(r.PathValue("id"))

	poll, err := a.service.GetPoll(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, poll)
}

func (a *API) submitBallot(w http.ResponseWriter, r *http.Request) {
	pollID := domain.PollID(r.PathValue("id"))

	voterID := domain.VoterID(r.Header.Get("X-Voter-ID"))
	if voterID == "" {
		metrics.ObserveBallotRequest("unauthenticated")
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "X-Voter-ID header required"})
		return
	}

	var payload domain.Payload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		metrics.ObserveBallotRequest("invalid_payload")
		a.logger.Warn("invalid payload submitting ballot", "err", err, "poll", pollID)
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	ballot, err := a.service.Submit(r.Context(), pollID, voterID, payload)
	if err != nil {
		status := statusFromError(err)
		metrics.ObserveBallotRequest(status)
		a.logger.Warn("ballot rejected", "err", err, "poll", pollID, "voter", voterID, "status", status)
		writeError(w, err)
		return
	}

	metrics.ObserveBallotRequest("accepted")
	writeJSON(w, http.StatusCreated, ballot)
	a.logger.Info("ballot recorded", "poll", pollID, "voter", voterID, "ballot", ballot.ID)
}

func (a *API) closePoll(w http.ResponseWriter, r *http.Request) {
	pollID := domain.PollID(r.PathValue("id"))

	if err := a.service.ClosePoll(r.Context(), pollID); err != nil {
		a.logger.Warn("close rejected", "err", err, "poll", pollID)
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
	a.logger.Info("poll closed", "poll", pollID)
}

func (a *API) finalizePoll(w http.ResponseWriter, r *http.Request) {
	pollID := domain.PollID(r.PathValue("id"))

	result, err := a.finalizer.Finalize(r.Context(), pollID)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, result)
		a.logger.Info("poll finalized", "poll", pollID, "ballots", result.BallotCount)
	case errors.Is(err, domain.ErrAlreadyFinalized):
		// The losing caller still gets the committed numbers.
		writeJSON(w, http.StatusConflict, result)
	default:
		a.logger.Warn("finalize rejected", "err", err, "poll", pollID)
		writeError(w, err)
	}
}

func (a *API) getResult(w http.ResponseWriter, r *http.Request) {
	pollID := domain.PollID(r.PathValue("id"))

	result, err := a.finalizer.Result(r.Context(), pollID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (a *API) getLiveTally(w http.ResponseWriter, r *http.Request) {
	pollID := domain.PollID(r.PathValue("id"))

	live, err := a.service.LiveTally(r.Context(), pollID)
	if err != nil {
		if !errors.Is(err, voting.ErrPollNotFound) {
			a.logger.Error("error reading live tally", "err", err, "poll", pollID)
		}
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, live)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, voting.ErrInvalidPoll):
		status = http.StatusBadRequest
	case errors.Is(err, voting.ErrMalformedPayload):
		status = http.StatusBadRequest
	case errors.Is(err, voting.ErrUnknownOption):
		status = http.StatusBadRequest
	case errors.Is(err, voting.ErrDuplicateOption):
		status = http.StatusBadRequest
	case errors.Is(err, voting.ErrBoundsExceeded):
		status = http.StatusBadRequest
	case errors.Is(err, voting.ErrIncompleteRanking):
		status = http.StatusBadRequest
	case errors.Is(err, voting.ErrPollClosed):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrPollStillOpen):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrAlreadyFinalized):
		status = http.StatusConflict
	case errors.Is(err, voting.ErrPollNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func statusFromError(err error) string {
	switch {
	case errors.Is(err, voting.ErrPollClosed):
		return "closed"
	case errors.Is(err, voting.ErrPollNotFound):
		return "not_found"
	case errors.Is(err, voting.ErrMalformedPayload),
		errors.Is(err, voting.ErrUnknownOption),
		errors.Is(err, voting.ErrDuplicateOption),
		errors.Is(err, voting.ErrBoundsExceeded),
		errors.Is(err, voting.ErrIncompleteRanking):
		return "invalid"
	default:
		return "error"
	}
}
