// Package valuation exposes the valuation kernel over HTTP.
package valuation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"

	"valuation_kernel/pkg/core/assumption"
	"valuation_kernel/pkg/core/report"
	"valuation_kernel/pkg/core/scenario"
	"valuation_kernel/pkg/core/store"
	kernel "valuation_kernel/pkg/core/valuation"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// runIDHeader carries the run id on responses that are not JSON.
const runIDHeader = "X-Run-Id"

// RunStore persists completed runs. *store.RunRepo satisfies it.
type RunStore interface {
	Save(ctx context.Context, rec store.RunRecord) error
	Get(ctx context.Context, id uuid.UUID) (store.RunRecord, error)
	ListByTicker(ctx context.Context, ticker string, limit int) ([]store.RunRecord, error)
}

// Handler holds dependencies for the valuation endpoints.
type Handler struct {
	engine *scenario.Engine
	runs   RunStore // nil disables the audit trail
	logger *zap.Logger
}

// NewHandler creates a handler. runs may be nil.
func NewHandler(engine *scenario.Engine, runs RunStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{engine: engine, runs: runs, logger: logger}
}

// SensitivityRequest is the body of POST /api/valuation/sensitivity.
type SensitivityRequest struct {
	Inputs    assumption.Record `json:"inputs"`
	Parameter string            `json:"parameter"`
	Values    []float64         `json:"values"`
}

// Response is the JSON body of every successful valuation call. Only the
// fields relevant to the endpoint are set.
type Response struct {
	RunID       string                     `json:"run_id,omitempty"`
	Valuation   *kernel.Valuation          `json:"valuation,omitempty"`
	Series      *kernel.Series             `json:"series,omitempty"`
	Sensitivity *scenario.SensitivityTable `json:"sensitivity,omitempty"`
	Scenarios   *scenario.ScenarioResult   `json:"scenarios,omitempty"`
}

// ErrorResponse is the JSON body of every failed call. Kernel validation
// failures echo the offending field and value.
type ErrorResponse struct {
	Error  string           `json:"error"`
	Kind   kernel.ErrorKind `json:"kind,omitempty"`
	Field  string           `json:"field,omitempty"`
	Value  any              `json:"value,omitempty"`
	Reason string           `json:"reason,omitempty"`
}

// Register mounts the valuation routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api/valuation", func(r chi.Router) {
		r.Post("/calculate", h.HandleCalculate)
		r.Post("/series", h.HandleSeries)
		r.Post("/sensitivity", h.HandleSensitivity)
		r.Post("/scenarios", h.HandleScenarios)
		r.Post("/report", h.HandleReport)
		r.Get("/runs", h.HandleListRuns)
		r.Get("/runs/{id}", h.HandleGetRun)
	})
}

// HandleCalculate values one record and returns the bridge.
func (h *Handler) HandleCalculate(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.decodeRecord(w, r)
	if !ok {
		return
	}
	v, _, err := evaluate(rec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, store.KindCalculate, rec.Ticker, rec, Response{Valuation: &v}, &v.ValuePerShare)
}

// HandleSeries values one record and returns the bridge with its audit series.
func (h *Handler) HandleSeries(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.decodeRecord(w, r)
	if !ok {
		return
	}
	v, s, err := evaluate(rec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, store.KindSeries, rec.Ticker, rec, Response{Valuation: &v, Series: &s}, &v.ValuePerShare)
}

// HandleSensitivity runs a one-parameter sweep.
func (h *Handler) HandleSensitivity(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	var req SensitivityRequest
	if err := assumption.Unmarshal(body, assumption.FormatJSON, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	p, err := scenario.ParseParameter(req.Parameter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	in, err := req.Inputs.Inputs()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	table, err := h.engine.RunSensitivity(r.Context(), in, p, req.Values)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, store.KindSensitivity, req.Inputs.Ticker, req, Response{Sensitivity: &table}, nil)
}

// HandleScenarios blends a probability-weighted scenario set.
func (h *Handler) HandleScenarios(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}
	set, err := assumption.DecodeScenarioSet(body, assumption.FormatJSON)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	branches, err := set.Build()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	res, err := h.engine.RunScenarios(r.Context(), branches)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.respond(w, r, store.KindScenarios, set.Ticker, set, Response{Scenarios: &res}, &res.ExpectedValuePerShare)
}

// HandleReport renders the audit report as Markdown, or HTML with ?format=html.
// The recorded run id, if any, is returned in the X-Run-Id header.
func (h *Handler) HandleReport(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.decodeRecord(w, r)
	if !ok {
		return
	}
	v, s, err := evaluate(rec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	md := report.Markdown(rec.Ticker, v, s)

	runID, err := h.record(r, store.KindReport, rec.Ticker, rec, Response{Valuation: &v}, &v.ValuePerShare)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if runID != "" {
		w.Header().Set(runIDHeader, runID)
	}

	if r.URL.Query().Get("format") == "html" {
		html, err := report.HTML(md)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, html)
		return
	}
	w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
	io.WriteString(w, md)
}

// HandleGetRun returns a stored run.
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "run store not configured"})
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid run id: %v", err)})
		return
	}
	rec, err := h.runs.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleListRuns returns the latest runs for ?ticker=, newest first.
// ?limit= defaults to the store's own cap.
func (h *Handler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "run store not configured"})
		return
	}
	ticker := r.URL.Query().Get("ticker")
	if ticker == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "ticker is required"})
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("invalid limit %q", raw)})
			return
		}
		limit = n
	}
	runs, err := h.runs.ListByTicker(r.Context(), ticker, limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []store.RunRecord{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// HandleHealth reports liveness.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func evaluate(rec assumption.Record) (kernel.Valuation, kernel.Series, error) {
	in, err := rec.Inputs()
	if err != nil {
		return kernel.Valuation{}, kernel.Series{}, err
	}
	return kernel.Evaluate(in)
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: fmt.Sprintf("failed to read body: %v", err)})
		return nil, false
	}
	return body, true
}

func (h *Handler) decodeRecord(w http.ResponseWriter, r *http.Request) (assumption.Record, bool) {
	body, ok := h.readBody(w, r)
	if !ok {
		return assumption.Record{}, false
	}
	rec, err := assumption.Decode(body, assumption.FormatJSON)
	if err != nil {
		h.writeError(w, r, err)
		return assumption.Record{}, false
	}
	return rec, true
}

// record saves the run when a store is configured and returns its id, or ""
// without a store. The decoded request is stored rather than the raw body,
// which need not be valid JSON.
func (h *Handler) record(r *http.Request, kind store.RunKind, ticker string, request, result any, headline *float64) (string, error) {
	if h.runs == nil {
		return "", nil
	}
	rec, err := store.NewRunRecord(kind, ticker, request, result, headline)
	if err == nil {
		err = h.runs.Save(r.Context(), rec)
	}
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return rec.ID.String(), nil
}

// respond records the run and writes resp.
func (h *Handler) respond(w http.ResponseWriter, r *http.Request, kind store.RunKind, ticker string, request any, resp Response, headline *float64) {
	runID, err := h.record(r, kind, ticker, request, resp, headline)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp.RunID = runID
	writeJSON(w, http.StatusOK, resp)
}

// writeError maps err to a status code:
// kernel validation → 422, undecodable body → 400, unknown run → 404,
// anything else → 500.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var ve *kernel.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error:  err.Error(),
			Kind:   ve.Kind,
			Field:  ve.Field,
			Value:  jsonSafe(ve.Value),
			Reason: ve.Reason,
		})
	case errors.Is(err, assumption.ErrDecode):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrRunNotFound):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	default:
		h.logger.Error("valuation request failed",
			zap.String("route", r.URL.Path),
			zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

// jsonSafe replaces values encoding/json cannot represent (NaN, ±Inf).
func jsonSafe(v any) any {
	if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
		return fmt.Sprint(f)
	}
	return v
}

// writeJSON encodes v before committing status, so an unencodable value
// becomes a 500 with a body rather than an empty 200.
func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body, _ = json.Marshal(ErrorResponse{Error: fmt.Sprintf("failed to encode response: %v", err)})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(append(body, '\n'))
}
