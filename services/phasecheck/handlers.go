// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package phasecheck exposes the phase consistency checker over HTTP.
package phasecheck

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/AleutianAI/obcheck/services/phasecheck/diag"
	"github.com/AleutianAI/obcheck/services/phasecheck/layout"
	"github.com/AleutianAI/obcheck/services/phasecheck/session"
	"github.com/AleutianAI/obcheck/services/phasecheck/snapshot"
	snapstore "github.com/AleutianAI/obcheck/services/phasecheck/storage/badger"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Handlers contains the HTTP handlers for the phase check service.
//
// Thread Safety: Safe for concurrent use. Every check runs in its own
// session.Session; nothing is cached across requests. Concurrent checks of
// the same stored snapshot share one store read.
type Handlers struct {
	store   *snapstore.SnapshotStore
	metrics diag.Sink
	version string
	limiter *rate.Limiter

	loads singleflight.Group
}

// HandlerOption configures Handlers.
type HandlerOption func(*Handlers)

// WithStore enables the named snapshot endpoints.
func WithStore(s *snapstore.SnapshotStore) HandlerOption {
	return func(h *Handlers) { h.store = s }
}

// WithMetricsSink adds a sink that receives the events of every check,
// typically a *diag.OTelSink.
func WithMetricsSink(s diag.Sink) HandlerOption {
	return func(h *Handlers) { h.metrics = s }
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) HandlerOption {
	return func(h *Handlers) { h.version = v }
}

// WithRateLimit caps check requests at perSecond with the given burst.
// A non-positive perSecond disables the limit.
func WithRateLimit(perSecond float64, burst int) HandlerOption {
	return func(h *Handlers) {
		if perSecond <= 0 {
			h.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewHandlers creates handlers.
func NewHandlers(opts ...HandlerOption) *Handlers {
	h := &Handlers{version: "dev"}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// HandleHealth handles GET /v1/phasecheck/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: "healthy", Version: h.version})
}

// HandleCheck handles POST /v1/phasecheck/check.
//
// Description:
//
//	Resolves the snapshot (inline or stored), builds its model, traverses
//	it, and processes every class table of the layout in a fresh session.
//
// Request Body:
//
//	CheckRequest
//
// Response:
//
//	200 OK: CheckResponse
//	400 Bad Request: Invalid body, snapshot, or layout
//	404 Not Found: Named snapshot does not exist
//	500 Internal Server Error: Model query failed
//	503 Service Unavailable: Named snapshot requested without a store
func (h *Handlers) HandleCheck(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCheck")
	ctx := c.Request.Context()

	var req CheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "invalid request body: " + err.Error(),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	doc, ok := h.resolveDocument(ctx, c, logger, &req)
	if !ok {
		return
	}

	l := layout.Default()
	if req.Layout != nil {
		if err := req.Layout.Validate(); err != nil {
			logger.Warn("invalid layout", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_LAYOUT"})
			return
		}
		l = *req.Layout
	}

	m, err := snapshot.Build(doc)
	if err != nil {
		logger.Warn("snapshot does not build", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SNAPSHOT"})
		return
	}

	counters := diag.NewCounters()
	sink := diag.Sink(counters)
	if h.metrics != nil {
		sink = diag.Multi{counters, h.metrics}
	}
	s := session.New(session.WithSink(sink), session.WithLogger(logger))

	set, err := s.Traverse(ctx, m.Roots(), nil)
	if err != nil {
		logger.Error("traversal failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "CHECK_FAILED"})
		return
	}
	report, err := s.Process(ctx, set, l)
	if err != nil {
		logger.Error("processing failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "CHECK_FAILED"})
		return
	}

	resp := CheckResponse{
		RequestID: requestID,
		Report:    report,
		Queries:   m.Stats(),
	}
	if req.Diagnostics {
		resp.Diagnostics = counters.Snapshot()
		resp.DiagnosticsByClass = counters.ScopedSnapshot()
	}

	logger.Info("check complete",
		slog.Int("objects", set.Count()),
		slog.Int("others", len(report.Others)),
		slog.Int64("duration_ms", report.DurationMs))
	c.JSON(http.StatusOK, resp)
}

// resolveDocument picks the inline or stored snapshot of req. It writes the
// error response itself and returns false on failure.
func (h *Handlers) resolveDocument(ctx context.Context, c *gin.Context, logger *slog.Logger, req *CheckRequest) (*snapshot.Document, bool) {
	if (req.Snapshot == nil) == (req.Name == "") {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: ErrNoSource.Error(), Code: "INVALID_REQUEST"})
		return nil, false
	}

	if req.Snapshot != nil {
		if err := req.Snapshot.Validate(); err != nil {
			logger.Warn("invalid snapshot", slog.String("error", err.Error()))
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SNAPSHOT"})
			return nil, false
		}
		return req.Snapshot, true
	}

	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: ErrStoreDisabled.Error(), Code: "STORE_DISABLED"})
		return nil, false
	}
	doc, shared, err := h.loadShared(ctx, req.Name)
	if err != nil {
		h.writeStoreError(c, logger, err)
		return nil, false
	}
	if shared {
		logger.Debug("stored snapshot load shared", slog.String("name", req.Name))
	}
	return doc, true
}

// loadShared reads a stored snapshot, collapsing concurrent reads of the
// same name into one. The document is read-only after loading, so callers
// may share it.
func (h *Handlers) loadShared(ctx context.Context, name string) (*snapshot.Document, bool, error) {
	v, err, shared := h.loads.Do(name, func() (interface{}, error) {
		entry, err := h.store.Load(ctx, name)
		if err != nil {
			return nil, err
		}
		return entry.Document, nil
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*snapshot.Document), shared, nil
}

// RateLimit rejects requests over the configured check rate with 429.
// Without WithRateLimit every request passes.
func (h *Handlers) RateLimit(c *gin.Context) {
	if h.limiter == nil || h.limiter.Allow() {
		c.Next()
		return
	}
	slog.Warn("check rate limited",
		slog.String("request_id", getOrCreateRequestID(c)),
		slog.String("path", c.FullPath()))
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{
		Error: "too many check requests",
		Code:  "RATE_LIMITED",
	})
}

// HandleListSnapshots handles GET /v1/phasecheck/snapshots.
func (h *Handlers) HandleListSnapshots(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListSnapshots")

	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: ErrStoreDisabled.Error(), Code: "STORE_DISABLED"})
		return
	}
	infos, err := h.store.List(c.Request.Context())
	if err != nil {
		h.writeStoreError(c, logger, err)
		return
	}
	if infos == nil {
		infos = []snapstore.Info{}
	}
	c.JSON(http.StatusOK, SnapshotListResponse{Snapshots: infos})
}

// HandleSaveSnapshot handles PUT /v1/phasecheck/snapshots/:name.
//
// Response:
//
//	201 Created: snapstore.Info of the stored snapshot
//	400 Bad Request: Invalid name or snapshot
func (h *Handlers) HandleSaveSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleSaveSnapshot")
	name := c.Param("name")

	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: ErrStoreDisabled.Error(), Code: "STORE_DISABLED"})
		return
	}

	var doc snapshot.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error(), Code: "INVALID_REQUEST"})
		return
	}
	if err := doc.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SNAPSHOT"})
		return
	}

	if err := h.store.Save(c.Request.Context(), name, &doc); err != nil {
		h.writeStoreError(c, logger, err)
		return
	}

	logger.Info("snapshot saved", slog.String("name", name), slog.Int("objects", len(doc.Objects)))
	c.JSON(http.StatusCreated, snapstore.Info{
		Name:       name,
		SavedAt:    time.Now().UTC(),
		Objects:    len(doc.Objects),
		Assemblies: len(doc.Assemblies),
	})
}

// HandleDeleteSnapshot handles DELETE /v1/phasecheck/snapshots/:name.
func (h *Handlers) HandleDeleteSnapshot(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteSnapshot")

	if h.store == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{Error: ErrStoreDisabled.Error(), Code: "STORE_DISABLED"})
		return
	}
	if err := h.store.Delete(c.Request.Context(), c.Param("name")); err != nil {
		h.writeStoreError(c, logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// writeStoreError maps store and snapshot errors to responses.
func (h *Handlers) writeStoreError(c *gin.Context, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, snapstore.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "SNAPSHOT_NOT_FOUND"})
	case errors.Is(err, snapstore.ErrInvalidName):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_NAME"})
	case isSnapshotError(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SNAPSHOT"})
	default:
		logger.Error("snapshot store failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "STORE_ERROR"})
	}
}

func isSnapshotError(err error) bool {
	return errors.Is(err, snapshot.ErrInvalidSnapshot) ||
		errors.Is(err, snapshot.ErrDuplicateRef) ||
		errors.Is(err, snapshot.ErrUnknownRef) ||
		errors.Is(err, snapshot.ErrInvalidGUID)
}

// getOrCreateRequestID extracts or generates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
