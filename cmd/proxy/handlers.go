package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"retlister/internal/models"
	"retlister/internal/restostore"
	"retlister/internal/sync"
	"retlister/internal/upstream"
)

// proxyServer holds the shared state the offline-first handlers read from:
// the local store, the sync gateway (local read/write + queueing), the
// upstream client used for the online attempt, and the logger.
type proxyServer struct {
	store    *restostore.Store
	gateway  *sync.Gateway
	upstream *upstream.Client
	logger   *slog.Logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, models.GetHTTPStatusCode(err), models.NewErrorResponse(err))
}

func (s *proxyServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *proxyServer) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleList tries upstream first; on any failure it falls back to the
// local mirror ordered by created_at DESC. A successful upstream list also
// warms the mirror asynchronously so the next offline window serves fresh
// data.
func (s *proxyServer) handleList(w http.ResponseWriter, r *http.Request) {
	planks, err := s.upstream.ListPlanks(r.Context())
	if err != nil {
		s.logger.Info("list falling back to local mirror", "error", err)
		planks, err = s.gateway.List()
		if err != nil {
			writeError(w, err)
			return
		}
	} else {
		go func(rows []models.Plank) {
			if err := s.store.CacheWarm(rows); err != nil {
				s.logger.Error("cache warm after list failed", "error", err)
			}
		}(planks)
	}
	writeJSON(w, http.StatusOK, planks)
}

// handleSearch tries upstream, filtering the local mirror on failure.
func (s *proxyServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, models.NewValidationError("malformed request body"))
		return
	}

	planks, err := s.upstream.SearchPlanks(r.Context(), q)
	if err != nil {
		s.logger.Info("search falling back to local mirror", "error", err)
		planks, err = s.gateway.Search(q)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, planks)
}

// handleAdd tries upstream first; on success it mirrors the
// upstream-assigned row into local, on failure it inserts locally with a
// locally issued id and enqueues an INSERT for the engine to reconcile
// later.
func (s *proxyServer) handleAdd(w http.ResponseWriter, r *http.Request) {
	var p models.Plank
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, models.NewValidationError("malformed request body"))
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, err)
		return
	}

	created, err := s.upstream.CreatePlank(r.Context(), p)
	if err == nil {
		if mirrorErr := s.store.CreatePlankWithID(*created); mirrorErr != nil {
			writeError(w, mirrorErr)
			return
		}
		writeJSON(w, http.StatusCreated, created)
		return
	}

	s.logger.Info("add falling back to local queue", "error", err)
	if err := s.gateway.Add(&p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// handleRemove tries upstream, then deletes locally regardless of the
// outcome; if upstream failed and the row was local-only (an unsynced
// INSERT still references it), a DELETE is enqueued so the engine retries
// once connectivity returns.
func (s *proxyServer) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}

	upstreamErr := s.upstream.DeletePlank(r.Context(), id)

	localOnly := false
	if upstreamErr != nil {
		if referenced, refErr := s.store.UnsyncedReferencedIDs(); refErr == nil {
			localOnly = referenced[id]
		}
	}

	if delErr := s.store.DeletePlank(id); delErr != nil {
		writeError(w, delErr)
		return
	}

	if upstreamErr != nil {
		s.logger.Info("remove failed upstream, deleted locally", "id", id, "error", upstreamErr)
		if localOnly {
			if _, err := s.store.EnqueueSyncEntry(models.SyncOpDelete, id, ""); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleDeleteBatch is upstream-only: no local fallback, to avoid
// partial-batch divergence between the mirror and the source of truth.
func (s *proxyServer) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	body, err := readDeleteBatchBody(r)
	if err != nil {
		writeError(w, err)
		return
	}

	resp, err := s.upstream.DeleteBatch(r.Context(), body.IDs)
	if err != nil {
		writeError(w, models.NewUpstreamError("delete_batch requires upstream connectivity", err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type deleteBatchRequest struct {
	IDs []int64 `json:"ids"`
}

func readDeleteBatchBody(r *http.Request) (*deleteBatchRequest, error) {
	var body deleteBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		return nil, models.NewValidationError("malformed request body")
	}
	return &body, nil
}

func idFromPath(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, models.NewValidationFieldError("id", "id must be an integer")
	}
	return id, nil
}
