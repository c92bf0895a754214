package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/adpulse/perftracker/internal/deepdive"
	"github.com/adpulse/perftracker/internal/pkg/httputil"
	"github.com/adpulse/perftracker/internal/pkg/logger"
)

// DeepDiveService runs the comparison pipeline.
type DeepDiveService interface {
	Compare(ctx context.Context, req deepdive.CompareRequest) (*deepdive.CompareResult, error)
}

// LookupService serves distinct filter values.
type LookupService interface {
	Values(ctx context.Context, field string) ([]string, error)
}

// Handlers holds the HTTP handlers and their dependencies.
type Handlers struct {
	tracker      DeepDiveService
	lookups      LookupService
	snapshots    *SnapshotStore
	queryTimeout time.Duration
	startTime    time.Time
}

// NewHandlers creates the handler set.
func NewHandlers(tracker DeepDiveService, lookups LookupService, snapshots *SnapshotStore, queryTimeout time.Duration) *Handlers {
	return &Handlers{
		tracker:      tracker,
		lookups:      lookups,
		snapshots:    snapshots,
		queryTimeout: queryTimeout,
		startTime:    time.Now(),
	}
}

// HealthCheck reports service liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startTime).Round(time.Second).String(),
	})
}

// DeepDive runs a two-period comparison and returns tiered records plus
// the portfolio summary.
func (h *Handlers) DeepDive(w http.ResponseWriter, r *http.Request) {
	var req deepdive.CompareRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	if h.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}

	res, err := h.tracker.Compare(ctx, req)
	if err != nil {
		writeCompareError(w, err)
		return
	}
	httputil.OK(w, res)
}

// writeCompareError maps the pipeline error taxonomy onto status codes:
// validation failures are the caller's fault, warehouse failures are a
// gateway problem the caller may retry.
func writeCompareError(w http.ResponseWriter, err error) {
	var verr *deepdive.ValidationError
	if errors.As(err, &verr) {
		httputil.ErrorWithCode(w, http.StatusBadRequest, "validation", verr.Error())
		return
	}
	var dsErr *deepdive.DataSourceError
	if errors.As(err, &dsErr) {
		logger.Error("warehouse query failed", "op", dsErr.Op, "error", dsErr.Error())
		httputil.BadGateway(w, "data source unavailable: "+dsErr.Op)
		return
	}
	httputil.InternalError(w, err)
}

// GetPerspectives lists the grouping dimensions the UI can offer.
func (h *Handlers) GetPerspectives(w http.ResponseWriter, r *http.Request) {
	httputil.OK(w, map[string]any{
		"perspectives": deepdive.Perspectives(),
	})
}

// GetFilterOperators lists the operators the filter builder supports.
func (h *Handlers) GetFilterOperators(w http.ResponseWriter, r *http.Request) {
	fields := make([]string, 0, len(deepdive.FilterableColumns))
	for field := range deepdive.FilterableColumns {
		fields = append(fields, field)
	}
	sort.Strings(fields)
	httputil.OK(w, map[string]any{
		"operators": deepdive.GetOperatorMetadata(),
		"fields":    fields,
	})
}

// GetLookupValues serves the distinct values of one filterable field.
func (h *Handlers) GetLookupValues(w http.ResponseWriter, r *http.Request) {
	field := chi.URLParam(r, "field")

	values, err := h.lookups.Values(r.Context(), field)
	if err != nil {
		var verr *deepdive.ValidationError
		if errors.As(err, &verr) {
			httputil.BadRequest(w, verr.Error())
			return
		}
		var dsErr *deepdive.DataSourceError
		if errors.As(err, &dsErr) {
			httputil.BadGateway(w, "data source unavailable: "+dsErr.Op)
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, map[string]any{
		"field":  field,
		"values": values,
	})
}

// CreateSnapshot runs a comparison and stores the result under a
// shareable id, so one analyst's deep-dive can be linked to another.
func (h *Handlers) CreateSnapshot(w http.ResponseWriter, r *http.Request) {
	var req deepdive.CompareRequest
	if !httputil.Decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	if h.queryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.queryTimeout)
		defer cancel()
	}

	res, err := h.tracker.Compare(ctx, req)
	if err != nil {
		writeCompareError(w, err)
		return
	}

	snap, err := h.snapshots.Save(ctx, req, res)
	if err != nil {
		httputil.InternalError(w, err)
		return
	}
	httputil.Created(w, snap)
}

// GetSnapshot returns a previously shared deep-dive result.
func (h *Handlers) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap, err := h.snapshots.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrSnapshotNotFound) {
			httputil.NotFound(w, "snapshot not found or expired")
			return
		}
		httputil.InternalError(w, err)
		return
	}
	httputil.OK(w, snap)
}
