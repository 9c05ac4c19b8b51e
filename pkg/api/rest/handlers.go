package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/annexlabs/annex/pkg/hnsw"
	"github.com/annexlabs/annex/pkg/observability"
	"github.com/annexlabs/annex/pkg/search"
)

// Handler serves the index over JSON endpoints.
type Handler struct {
	cached       *search.CachedIndex
	metrics      *observability.Metrics
	logger       *observability.Logger
	snapshotPath string
}

// NewHandler creates a handler around the cached index.
func NewHandler(cached *search.CachedIndex, metrics *observability.Metrics, logger *observability.Logger, snapshotPath string) *Handler {
	return &Handler{
		cached:       cached,
		metrics:      metrics,
		logger:       logger,
		snapshotPath: snapshotPath,
	}
}

type insertRequest struct {
	Name       string    `json:"name"`
	Descriptor []float64 `json:"descriptor"`
}

type insertResponse struct {
	Size int `json:"size"`
}

type batchInsertRequest struct {
	Items []insertRequest `json:"items"`
}

type batchInsertResponse struct {
	TotalProcessed int      `json:"total_processed"`
	SuccessCount   int      `json:"success_count"`
	FailureCount   int      `json:"failure_count"`
	Errors         []string `json:"errors,omitempty"`
}

type searchRequest struct {
	Descriptor []float64 `json:"descriptor"`
	K          int       `json:"k"`
}

type searchHit struct {
	Name       string    `json:"name"`
	Descriptor []float64 `json:"descriptor"`
	Distance   float64   `json:"distance"`
}

type searchResponse struct {
	Results []searchHit `json:"results"`
	Cached  bool        `json:"cached"`
}

type snapshotRequest struct {
	Path string `json:"path"`
}

type statsResponse struct {
	Index hnsw.Stats        `json:"index"`
	Cache search.CacheStats `json:"cache"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status int    `json:"status"`
}

// HandleInsert handles POST /v1/vectors
func (h *Handler) HandleInsert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req insertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "insert", "bad_request", "invalid JSON body", http.StatusBadRequest)
		return
	}

	if err := h.cached.Insert(req.Name, req.Descriptor); err != nil {
		h.writeIndexError(w, "insert", err)
		return
	}

	index := h.cached.Index()
	h.metrics.RecordInsert(1)
	h.metrics.UpdateIndex(index.Size(), index.MaxLayer())
	h.metrics.RecordRequest("insert", "ok", time.Since(start))

	h.writeJSON(w, http.StatusCreated, insertResponse{Size: index.Size()})
}

// HandleBatchInsert handles POST /v1/vectors/batch
func (h *Handler) HandleBatchInsert(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req batchInsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "batch_insert", "bad_request", "invalid JSON body", http.StatusBadRequest)
		return
	}

	items := make([]hnsw.Item, len(req.Items))
	for i, item := range req.Items {
		items[i] = hnsw.Item{Name: item.Name, Descriptor: item.Descriptor}
	}

	result := h.cached.BatchInsert(items, nil)

	resp := batchInsertResponse{
		TotalProcessed: result.TotalProcessed,
		SuccessCount:   result.SuccessCount,
		FailureCount:   result.FailureCount,
	}
	for _, err := range result.Errors {
		resp.Errors = append(resp.Errors, err.Error())
	}

	index := h.cached.Index()
	h.metrics.RecordInsert(result.SuccessCount)
	h.metrics.UpdateIndex(index.Size(), index.MaxLayer())
	h.metrics.RecordRequest("batch_insert", "ok", time.Since(start))

	h.logger.Info("Batch insert finished", map[string]interface{}{
		"total":   result.TotalProcessed,
		"success": result.SuccessCount,
		"failure": result.FailureCount,
	})

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleSearch handles POST /v1/search
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, "search", "bad_request", "invalid JSON body", http.StatusBadRequest)
		return
	}

	results, cached, err := h.cached.Search(req.Descriptor, req.K)
	if err != nil {
		h.writeIndexError(w, "search", err)
		return
	}

	if cached {
		h.metrics.RecordCacheHit()
	} else {
		h.metrics.RecordCacheMiss()
	}
	h.metrics.UpdateCacheSize(h.cached.CacheStats().Entries)
	h.metrics.RecordSearch(time.Since(start), len(results))
	h.metrics.RecordRequest("search", "ok", time.Since(start))

	resp := searchResponse{Results: make([]searchHit, len(results)), Cached: cached}
	for i, result := range results {
		resp.Results[i] = searchHit{
			Name:       result.Name,
			Descriptor: result.Descriptor,
			Distance:   result.Distance,
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// HandleSnapshot handles POST /v1/snapshot
func (h *Handler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req snapshotRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			h.writeError(w, "snapshot", "bad_request", "invalid JSON body", http.StatusBadRequest)
			return
		}
	}

	path := req.Path
	if path == "" {
		path = h.snapshotPath
	}

	if err := h.cached.Index().Save(path); err != nil {
		h.writeIndexError(w, "snapshot", err)
		return
	}

	h.metrics.RecordSnapshotSave(time.Since(start))
	h.metrics.RecordRequest("snapshot", "ok", time.Since(start))

	h.logger.Info("Snapshot written", map[string]interface{}{"path": path})

	h.writeJSON(w, http.StatusOK, map[string]string{"path": path})
}

// HandleStats handles GET /v1/stats
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, statsResponse{
		Index: h.cached.Index().GetStats(),
		Cache: h.cached.CacheStats(),
	})
}

// HandleHealth handles GET /healthz
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeIndexError maps index error kinds onto HTTP status codes.
func (h *Handler) writeIndexError(w http.ResponseWriter, method string, err error) {
	switch {
	case errors.Is(err, hnsw.ErrBadDimension):
		h.writeError(w, method, "bad_dimension", err.Error(), http.StatusBadRequest)
	case errors.Is(err, hnsw.ErrBadName):
		h.writeError(w, method, "bad_name", err.Error(), http.StatusBadRequest)
	case errors.Is(err, hnsw.ErrBadSetting):
		h.writeError(w, method, "bad_setting", err.Error(), http.StatusBadRequest)
	case errors.Is(err, hnsw.ErrMalformedDump):
		h.writeError(w, method, "malformed_dump", err.Error(), http.StatusUnprocessableEntity)
	default:
		h.writeError(w, method, "internal", err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, method, kind, message string, status int) {
	h.metrics.RecordError(method, kind)
	h.logger.Warn("Request failed", map[string]interface{}{
		"method": method,
		"kind":   kind,
		"error":  message,
	})
	h.writeJSON(w, status, errorResponse{Error: message, Status: status})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("Failed to encode response", map[string]interface{}{"error": err.Error()})
	}
}
