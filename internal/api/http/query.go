package http

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/nirv/nirv/internal/engine"
	"github.com/nirv/nirv/pkg/types"
)

// Engine is the part of the query engine the API serves.
type Engine interface {
	Query(ctx context.Context, sql string) (*engine.Result, error)
	DescribeSources() []engine.SourceInfo
	Schema(ctx context.Context, source string) (*types.Schema, error)
	Stats() engine.Stats
}

// QueryRequest represents a query request.
type QueryRequest struct {
	SQL string `json:"sql"`
}

// QueryResponse represents the query response.
type QueryResponse struct {
	QueryID         string                 `json:"query_id"`
	Columns         []types.ColumnMetadata `json:"columns"`
	Rows            []types.Row            `json:"rows"`
	RowCount        int                    `json:"row_count"`
	ExecutionTimeMs int64                  `json:"execution_time_ms"`
	RequestID       string                 `json:"request_id"`
}

// SourcesResponse lists the registered object types.
type SourcesResponse struct {
	Sources []engine.SourceInfo `json:"sources"`
}

// Handlers serves the /v1 endpoints.
type Handlers struct {
	engine Engine
	logger *slog.Logger
}

// NewHandlers creates handlers backed by eng.
func NewHandlers(eng Engine, logger *slog.Logger) *Handlers {
	return &Handlers{engine: eng, logger: logger}
}

// Query handles POST /v1/query.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, badRequest(fmt.Sprintf("invalid request body: %v", err)), requestID)
		return
	}
	if req.SQL == "" {
		writeError(w, http.StatusBadRequest, badRequest("sql is required"), requestID)
		return
	}

	result, err := h.engine.Query(r.Context(), req.SQL)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	resp := QueryResponse{
		QueryID:         result.QueryID,
		Columns:         result.Columns,
		Rows:            result.Rows,
		RowCount:        result.RowCount(),
		ExecutionTimeMs: result.ExecutionTime.Milliseconds(),
		RequestID:       requestID,
	}
	// Ensure empty arrays rather than null
	if resp.Rows == nil {
		resp.Rows = []types.Row{}
	}
	if resp.Columns == nil {
		resp.Columns = []types.ColumnMetadata{}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Sources handles GET /v1/sources.
func (h *Handlers) Sources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SourcesResponse{Sources: h.engine.DescribeSources()})
}

// Schema handles GET /v1/schema?source=type.identifier.
func (h *Handlers) Schema(w http.ResponseWriter, r *http.Request) {
	source := r.URL.Query().Get("source")
	if source == "" {
		writeError(w, http.StatusBadRequest, badRequest("source query parameter is required"), GetRequestID(r.Context()))
		return
	}

	schema, err := h.engine.Schema(r.Context(), source)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, schema)
}

// Stats handles GET /v1/stats.
func (h *Handlers) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.engine.Stats())
}

func (h *Handlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	requestID := GetRequestID(r.Context())
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "request_id", requestID, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, errorBody(err), requestID)
}

func badRequest(msg string) ErrorBody {
	return ErrorBody{Category: "REQUEST", Code: "INVALID_REQUEST", Message: msg}
}
