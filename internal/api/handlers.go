// Package api exposes the capability facades over HTTP and MCP. Every
// capability response is a result envelope: outcome, serving tier, payload,
// and a diagnostic when something went wrong along the way.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/penny-assistant/penny/internal/calendar"
	"github.com/penny-assistant/penny/internal/ingest"
	"github.com/penny-assistant/penny/internal/lists"
	"github.com/penny-assistant/penny/internal/resolver"
	"github.com/penny-assistant/penny/internal/retrieval"
	"github.com/penny-assistant/penny/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB

// Capabilities hands out the current facades. The daemon swaps them on
// config reload, so handlers must fetch rather than hold them.
type Capabilities interface {
	Lists() *lists.Service
	Retrieval() *retrieval.Service
	Calendar() *calendar.Service
}

// AppDeps holds dependencies for the HTTP API.
type AppDeps struct {
	Caps   Capabilities
	Store  *storage.Store
	Token  string
	Reload func() // re-reads config and rebuilds the facades
}

// NewAppHandler builds the HTTP router.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/v1/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}

		r.Get("/v1/status", handleStatus(deps))
		r.Post("/v1/config/reload", handleReload(deps))

		r.Post("/v1/lists", handleCreateList(deps))
		r.Get("/v1/lists", handleGetLists(deps))
		r.Put("/v1/lists/{id}/items", handleUpdateItems(deps))
		r.Delete("/v1/lists/{id}", handleDeleteList(deps))

		r.Post("/v1/query", handleQuery(deps))
		r.Post("/v1/context", handleAddContext(deps))
		r.Post("/v1/documents", handleIngestDocument(deps))

		r.Get("/v1/calendar/events", handleUpcomingEvents(deps))
		r.Post("/v1/calendar/events", handleCreateEvent(deps))
	})

	return r
}

// BearerAuth rejects requests without the expected bearer token.
func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			auth := r.Header.Get("Authorization")
			const prefix = "Bearer "
			if !strings.HasPrefix(auth, prefix) || subtle.ConstantTimeCompare([]byte(auth[len(prefix):]), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		status := map[string][]resolver.TierStatus{
			"lists":     deps.Caps.Lists().Status(ctx),
			"retrieval": deps.Caps.Retrieval().Status(ctx),
			"calendar":  deps.Caps.Calendar().Status(ctx),
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(status)
	}
}

func handleReload(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Reload == nil {
			httpError(w, http.StatusNotImplemented, "api_error", "reload not available")
			return
		}
		deps.Reload()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "reloaded"})
	}
}

type createListRequest struct {
	OwnerID string `json:"owner_id"`
	Name    string `json:"name"`
}

func handleCreateList(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createListRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.OwnerID == "" || req.Name == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner_id and name are required")
			return
		}
		writeEnvelope(w, deps.Caps.Lists().Create(r.Context(), req.OwnerID, req.Name))
	}
}

func handleGetLists(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.URL.Query().Get("owner_id")
		if ownerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner_id is required")
			return
		}
		writeEnvelope(w, deps.Caps.Lists().ForOwner(r.Context(), ownerID))
	}
}

type updateItemsRequest struct {
	Items []string `json:"items"`
}

func handleUpdateItems(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		var req updateItemsRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Items == nil {
			req.Items = []string{}
		}
		writeEnvelope(w, deps.Caps.Lists().UpdateItems(r.Context(), id, req.Items))
	}
}

func handleDeleteList(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		writeEnvelope(w, deps.Caps.Lists().Delete(r.Context(), id))
	}
}

type queryRequest struct {
	Question string `json:"question"`
	OwnerID  string `json:"owner_id"`
}

func handleQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req queryRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.Question == "" || req.OwnerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question and owner_id are required")
			return
		}
		writeEnvelope(w, deps.Caps.Retrieval().Query(r.Context(), req.Question, req.OwnerID))
	}
}

type addContextRequest struct {
	OwnerID string `json:"owner_id"`
	Source  string `json:"source"`
	Content string `json:"content"`
}

// handleAddContext embeds and stores a piece of text synchronously.
func handleAddContext(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req addContextRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.OwnerID == "" || req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner_id and content are required")
			return
		}
		if req.Source == "" {
			req.Source = "api"
		}

		rs := deps.Caps.Retrieval()
		embedded := rs.Embed(r.Context(), []string{req.Content})
		if !embedded.OK() {
			writeEnvelope(w, embedded)
			return
		}
		meta := make([]retrieval.Meta, len(embedded.Payload))
		for i := range meta {
			meta[i] = retrieval.Meta{OwnerID: req.OwnerID, Source: req.Source}
		}
		writeEnvelope(w, rs.Store(r.Context(), embedded.Payload, meta))
	}
}

type ingestDocumentRequest struct {
	OwnerID string `json:"owner_id"`
	Path    string `json:"path"`
}

// handleIngestDocument queues a file for background ingestion.
func handleIngestDocument(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ingestDocumentRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.OwnerID == "" || req.Path == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner_id and path are required")
			return
		}
		jobID, err := ingest.EnqueueDocument(deps.Store, req.Path, req.OwnerID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue document: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":     jobID,
			"status": "queued",
		})
	}
}

func handleUpcomingEvents(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := r.URL.Query().Get("owner_id")
		if ownerID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner_id is required")
			return
		}
		max := parseIntParam(r, "max", 5, 50)
		writeEnvelope(w, deps.Caps.Calendar().Upcoming(r.Context(), ownerID, max))
	}
}

type createEventRequest struct {
	OwnerID     string    `json:"owner_id"`
	Title       string    `json:"title"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Location    string    `json:"location"`
	Description string    `json:"description"`
}

func handleCreateEvent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createEventRequest
		if !decodeBody(w, r, &req) {
			return
		}
		if req.OwnerID == "" || req.Title == "" || req.Start.IsZero() {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "owner_id, title and start are required")
			return
		}
		writeEnvelope(w, deps.Caps.Calendar().Create(r.Context(), req.OwnerID, calendar.Event{
			Title:       req.Title,
			Start:       req.Start,
			End:         req.End,
			Location:    req.Location,
			Description: req.Description,
		}))
	}
}

// decodeBody decodes the JSON request body, writing an error response and
// returning false on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	return true
}

// writeEnvelope serializes a result envelope. Failures map to 502 since the
// whole chain was exhausted; everything else is a 200 with the outcome and
// serving tier in the body.
func writeEnvelope[T any](w http.ResponseWriter, env resolver.Envelope[T]) {
	w.Header().Set("Content-Type", "application/json")
	if env.Outcome == resolver.Failure {
		w.WriteHeader(http.StatusBadGateway)
	}
	json.NewEncoder(w).Encode(env)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
