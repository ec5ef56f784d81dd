package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tidewatch-io/tidewatch/internal/broadcast"
	"github.com/tidewatch-io/tidewatch/internal/domain"
	"github.com/tidewatch-io/tidewatch/internal/query"
	"github.com/tidewatch-io/tidewatch/internal/scheduler"
)

// Pagination defaults and limits.
const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// maxRequestBodySize is the maximum allowed request body size (1MB).
const maxRequestBodySize = 1 << 20

// Core is the scheduler surface the API drives: reloads after CRUD,
// manual triggers, cache hydration and the monitoring snapshot.
type Core interface {
	Reload(ctx context.Context) error
	TriggerByName(name string) error
	CachedData(id uuid.UUID) (domain.CacheEntry, bool)
	CachedDataByName(name string) (domain.CacheEntry, bool)
	MemoryStats() []scheduler.SourceMemoryStats
	Sleeping() bool
}

// TestExecutor runs a one-shot ad-hoc query with a larger row cap than
// scheduled polls get.
type TestExecutor interface {
	Execute(ctx context.Context, queryText string, maxRows int) (domain.ResultSet, error)
}

// SubscriberCounter reports connected real-time clients for /health and
// /stats.
type SubscriberCounter interface {
	SubscriberCount() int
}

// HealthChecker provides database health status for the /health endpoint.
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// MetricsSink records hydration serving. Optional; nil disables.
type MetricsSink interface {
	HydrationServed(fromCache bool)
}

type Handler struct {
	store        Store
	core         Core
	executor     TestExecutor
	subs         SubscriberCounter
	testRowLimit int
	clock        func() time.Time
	db           HealthChecker
	metrics      MetricsSink
}

func NewHandler(store Store, core Core, executor TestExecutor, subs SubscriberCounter, testRowLimit int) *Handler {
	if testRowLimit <= 0 {
		testRowLimit = query.DefaultTestRowLimit
	}
	return &Handler{
		store:        store,
		core:         core,
		executor:     executor,
		subs:         subs,
		testRowLimit: testRowLimit,
		clock:        time.Now,
	}
}

// WithHealthChecker sets the database health checker for verbose /health responses.
func (h *Handler) WithHealthChecker(db HealthChecker) *Handler {
	h.db = db
	return h
}

// WithMetrics attaches a metrics sink.
func (h *Handler) WithMetrics(sink MetricsSink) *Handler {
	h.metrics = sink
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path

	switch {
	case path == "/health" && r.Method == http.MethodGet:
		h.health(w, r)

	case path == "/sources" && r.Method == http.MethodPost:
		h.createSource(w, r)

	case path == "/sources" && r.Method == http.MethodGet:
		h.listSources(w, r)

	case path == "/sources/test" && r.Method == http.MethodPost:
		h.testQuery(w, r)

	case strings.HasSuffix(path, "/data") && strings.HasPrefix(path, "/sources/") && r.Method == http.MethodGet:
		h.sourceData(w, r)

	case strings.HasPrefix(path, "/sources/") && r.Method == http.MethodGet:
		h.getSource(w, r)

	case strings.HasPrefix(path, "/sources/") && r.Method == http.MethodPut:
		h.updateSource(w, r)

	case strings.HasPrefix(path, "/sources/") && r.Method == http.MethodDelete:
		h.deleteSource(w, r)

	case path == "/trigger" && r.Method == http.MethodPost:
		h.trigger(w, r)

	case path == "/stats" && r.Method == http.MethodGet:
		h.stats(w, r)

	case path == "/reload" && r.Method == http.MethodPost:
		h.reload(w, r)

	default:
		writeError(w, http.StatusNotFound, "not found")
	}
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	verbose := r.URL.Query().Get("verbose") == "true"

	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock().UTC().Format(time.RFC3339),
	}

	if !verbose {
		writeJSON(w, http.StatusOK, resp)
		return
	}

	resp.Sources = len(h.core.MemoryStats())
	resp.Subscribers = h.subs.SubscriberCount()
	resp.Sleeping = h.core.Sleeping()

	statusCode := http.StatusOK
	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := h.db.PingContext(ctx); err != nil {
			resp.Status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, statusCode, resp)
}

func (h *Handler) createSource(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeSourceRequest(w, r)
	if !ok {
		return
	}

	warnings, err := validateSourceRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := h.clock().UTC()
	src := domain.Source{
		ID:             uuid.New(),
		Name:           req.Name,
		Query:          req.Query,
		Interval:       time.Duration(req.IntervalMs) * time.Millisecond,
		CronExpression: req.CronExpression,
		Enabled:        req.Enabled == nil || *req.Enabled,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	if err := h.store.CreateSource(r.Context(), src); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			writeError(w, http.StatusConflict, "source name already exists")
			return
		}
		log.Printf("api: create source error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to create source")
		return
	}

	h.reloadAfterWrite(r.Context())

	resp := toSourceResponse(src)
	resp.Warnings = warnings
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) listSources(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := parsePagination(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	sources, err := h.store.ListSources(r.Context(), limit, offset)
	if err != nil {
		log.Printf("api: list sources error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to list sources")
		return
	}

	resp := make([]sourceResponse, len(sources))
	for i, src := range sources {
		resp[i] = toSourceResponse(src)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getSource(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceIDFromPath(w, r, 2)
	if !ok {
		return
	}

	src, err := h.store.GetSourceByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		log.Printf("api: get source error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to get source")
		return
	}

	writeJSON(w, http.StatusOK, toSourceResponse(src))
}

func (h *Handler) updateSource(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceIDFromPath(w, r, 2)
	if !ok {
		return
	}

	req, ok := decodeSourceRequest(w, r)
	if !ok {
		return
	}

	warnings, err := validateSourceRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	existing, err := h.store.GetSourceByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		log.Printf("api: update source error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update source")
		return
	}

	src := domain.Source{
		ID:             id,
		Name:           req.Name,
		Query:          req.Query,
		Interval:       time.Duration(req.IntervalMs) * time.Millisecond,
		CronExpression: req.CronExpression,
		Enabled:        req.Enabled == nil || *req.Enabled,
		CreatedAt:      existing.CreatedAt,
		UpdatedAt:      h.clock().UTC(),
	}

	if err := h.store.UpdateSource(r.Context(), src); err != nil {
		if errors.Is(err, ErrDuplicateName) {
			writeError(w, http.StatusConflict, "source name already exists")
			return
		}
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		log.Printf("api: update source error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to update source")
		return
	}

	h.reloadAfterWrite(r.Context())

	resp := toSourceResponse(src)
	resp.Warnings = warnings
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) deleteSource(w http.ResponseWriter, r *http.Request) {
	id, ok := sourceIDFromPath(w, r, 2)
	if !ok {
		return
	}

	if err := h.store.DeleteSource(r.Context(), id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		log.Printf("api: delete source error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to delete source")
		return
	}

	h.reloadAfterWrite(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// testQuery runs an ad-hoc query once, outside the schedule, with the test
// row cap instead of the poll cap. Nothing is cached or broadcast.
func (h *Handler) testQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req testRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	warnings, err := query.Validate(req.Query)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.executor.Execute(r.Context(), req.Query, h.testRowLimit)
	if err != nil {
		log.Printf("api: test query error: %v", err)
		writeError(w, http.StatusBadRequest, "query execution failed")
		return
	}

	rows := res.Rows
	if rows == nil {
		rows = []domain.Row{}
	}
	writeJSON(w, http.StatusOK, testResponse{
		Rows:          rows,
		RowCount:      len(rows),
		ExecutionTime: res.Duration.Milliseconds(),
		Warnings:      warnings,
	})
}

// sourceData serves the cached rows for a source as a hydration payload.
// It never triggers an execution; a cold cache is a 404.
func (h *Handler) sourceData(w http.ResponseWriter, r *http.Request) {
	// Path: /sources/{id}/data
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != 3 || parts[0] != "sources" || parts[2] != "data" {
		writeError(w, http.StatusNotFound, "not found")
		return
	}

	var entry domain.CacheEntry
	var name string
	var ok bool

	if id, err := uuid.Parse(parts[1]); err == nil {
		src, serr := h.store.GetSourceByID(r.Context(), id)
		if serr != nil {
			if errors.Is(serr, sql.ErrNoRows) {
				writeError(w, http.StatusNotFound, "source not found")
				return
			}
			log.Printf("api: source data error: %v", serr)
			writeError(w, http.StatusInternalServerError, "failed to get source")
			return
		}
		name = src.Name
		entry, ok = h.core.CachedData(id)
	} else {
		// Fall back to display-name lookup.
		name = parts[1]
		entry, ok = h.core.CachedDataByName(name)
	}

	if !ok {
		if h.metrics != nil {
			h.metrics.HydrationServed(false)
		}
		writeError(w, http.StatusNotFound, "no cached data yet")
		return
	}

	if h.metrics != nil {
		h.metrics.HydrationServed(true)
	}
	writeJSON(w, http.StatusOK, broadcast.Hydration(name, entry, h.clock()))
}

func (h *Handler) trigger(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	if err := h.core.TriggerByName(name); err != nil {
		if errors.Is(err, scheduler.ErrUnknownSource) {
			writeError(w, http.StatusNotFound, "source not found")
			return
		}
		log.Printf("api: trigger error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to trigger")
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	now := h.clock()
	memory := h.core.MemoryStats()

	resp := statsResponse{
		Sources:     make([]statsEntry, len(memory)),
		Subscribers: h.subs.SubscriberCount(),
		Sleeping:    h.core.Sleeping(),
		Timestamp:   now.UTC().Format(time.RFC3339),
	}

	for i, ms := range memory {
		entry := statsEntry{
			ID:             ms.ID,
			Name:           ms.Name,
			Channel:        broadcast.ChannelName(ms.Name),
			IntervalMs:     ms.Interval.Milliseconds(),
			CronExpression: ms.CronExpression,
			Running:        ms.Running,
			Sleeping:       ms.Sleeping,

			TotalExecutions: ms.Stats.TotalExecutions,
			Successes:       ms.Stats.Successes,
			Failures:        ms.Stats.Failures,
			Skipped:         ms.Stats.Skipped,
			Broadcasts:      ms.Stats.Broadcasts,
			LastDurationMs:  ms.Stats.LastDuration.Milliseconds(),
			LastStatus:      ms.Stats.LastStatus,
			LastError:       ms.Stats.LastError,

			HasCache:       ms.HasCache,
			CacheSizeBytes: ms.CacheSizeBytes,
			CacheAgeMs:     ms.CacheAge.Milliseconds(),
			CacheTruncated: ms.CacheTruncated,
		}
		if !ms.Stats.LastRunAt.IsZero() {
			entry.LastRunAt = ms.Stats.LastRunAt.UTC().Format(time.RFC3339)
		}
		resp.Sources[i] = entry
	}

	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) reload(w http.ResponseWriter, r *http.Request) {
	if err := h.core.Reload(r.Context()); err != nil {
		log.Printf("api: reload error: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to reload")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// reloadAfterWrite propagates source CRUD into the running scheduler. A
// failed reload leaves the database as the source of truth for the next
// reload; the write itself already succeeded.
func (h *Handler) reloadAfterWrite(ctx context.Context) {
	if err := h.core.Reload(ctx); err != nil {
		log.Printf("api: reload after write failed: %v", err)
	}
}

func decodeSourceRequest(w http.ResponseWriter, r *http.Request) (sourceRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req sourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return sourceRequest{}, false
		}
		writeError(w, http.StatusBadRequest, "invalid json")
		return sourceRequest{}, false
	}
	return req, true
}

// sourceIDFromPath extracts the UUID from /sources/{id} style paths with
// the given expected segment count.
func sourceIDFromPath(w http.ResponseWriter, r *http.Request, segments int) (uuid.UUID, bool) {
	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) != segments || parts[0] != "sources" {
		writeError(w, http.StatusNotFound, "not found")
		return uuid.Nil, false
	}

	id, err := uuid.Parse(parts[1])
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid source id")
		return uuid.Nil, false
	}
	return id, true
}

func toSourceResponse(src domain.Source) sourceResponse {
	return sourceResponse{
		ID:             src.ID,
		Name:           src.Name,
		Channel:        broadcast.ChannelName(src.Name),
		Query:          src.Query,
		IntervalMs:     src.Interval.Milliseconds(),
		CronExpression: src.CronExpression,
		Enabled:        src.Enabled,
		CreatedAt:      src.CreatedAt,
		UpdatedAt:      src.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: json encode error: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// parsePagination extracts and validates limit/offset query parameters.
// Returns DefaultLimit if limit is not specified, and 0 for offset if not specified.
// Returns an error if limit exceeds MaxLimit or if values are negative/invalid.
func parsePagination(r *http.Request) (limit, offset int, err error) {
	limit = DefaultLimit
	offset = 0

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return 0, 0, err
		}
		if limit < 0 {
			return 0, 0, strconv.ErrRange
		}
		if limit > MaxLimit {
			return 0, 0, &limitExceededError{max: MaxLimit}
		}
		if limit == 0 {
			limit = DefaultLimit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		offset, err = strconv.Atoi(offsetStr)
		if err != nil {
			return 0, 0, err
		}
		if offset < 0 {
			return 0, 0, strconv.ErrRange
		}
	}

	return limit, offset, nil
}

type limitExceededError struct {
	max int
}

func (e *limitExceededError) Error() string {
	return "limit exceeds maximum of " + strconv.Itoa(e.max)
}
