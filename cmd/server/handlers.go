package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"retlister/internal/cutting"
	"retlister/internal/loading"
	"retlister/internal/models"
	"retlister/internal/restostore"
)

// server holds the shared state central request handlers read from: the
// local store pool, the two pure-CPU optimizers, the startup instant, and
// the logger. Passed explicitly to every handler via the receiver, never as
// package-level mutable state.
type server struct {
	store   *restostore.Store
	cutting *cutting.Optimizer
	loading *loading.Optimizer
	logger  *slog.Logger
	started time.Time
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, models.GetHTTPStatusCode(err), models.NewErrorResponse(err))
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	})
}

// handleReady pings the database, unlike /health which is a pure liveness
// check.
func (s *server) handleReady(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *server) handleList(w http.ResponseWriter, r *http.Request) {
	planks, err := s.store.ListPlanks()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, planks)
}

func (s *server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var p models.Plank
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, models.NewValidationError("malformed request body"))
		return
	}
	if err := p.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.CreatePlank(&p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.store.GetPlank(id); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.DeletePlank(id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := idFromPath(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var patch models.Plank
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, models.NewValidationError("malformed request body"))
		return
	}
	updated, err := s.store.UpdatePlank(id, patch)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func idFromPath(r *http.Request) (int64, error) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, models.NewValidationFieldError("id", "id must be an integer")
	}
	return id, nil
}

// handleSearch returns the full candidate list sorted by area ascending, so
// the closest usable plank comes first.
func (s *server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var q models.SearchQuery
	if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
		writeError(w, models.NewValidationError("malformed request body"))
		return
	}
	planks, err := s.store.SearchPlanks(q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, planks)
}

func (s *server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleDeleteBatch is online-only: the proxy never falls back to a local
// batch delete, so the mirror and the source of truth cannot diverge on a
// partial batch.
func (s *server) handleDeleteBatch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDs []int64 `json:"ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.NewValidationError("malformed request body"))
		return
	}
	if err := s.store.DeleteBatch(req.IDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"deleted": len(req.IDs)})
}

// handleOptimizeCuts runs the beam-search cutting optimizer on its own
// goroutine so CPU-bound placement work never stalls the handler's caller
// pool.
func (s *server) handleOptimizeCuts(w http.ResponseWriter, r *http.Request) {
	var req models.OptimizeCutsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.NewValidationError("malformed request body"))
		return
	}
	if err := cutting.ValidateRequest(req); err != nil {
		writeError(w, err)
		return
	}

	inventory, err := s.inventoryForCuts(req.Cuts)
	if err != nil {
		writeError(w, err)
		return
	}

	type result struct {
		resp models.OptimizeCutsResponse
	}
	done := make(chan result, 1)
	go func() {
		done <- result{resp: s.cutting.Run(req, inventory)}
	}()
	res := <-done

	writeJSON(w, http.StatusOK, res.resp)
}

// inventoryForCuts fetches planks for every distinct (material, thickness)
// group the request touches — the cutting optimizer groups placements by
// group internally, but the store query is per-group, so a multi-material
// cut list needs the union across all of them.
func (s *server) inventoryForCuts(cuts []models.CutRequest) ([]models.Plank, error) {
	type key struct {
		material  string
		thickness int
	}
	seen := map[key]bool{}
	var inventory []models.Plank
	for _, c := range cuts {
		k := key{material: c.Material, thickness: c.ThicknessMM}
		if seen[k] {
			continue
		}
		seen[k] = true
		planks, err := s.store.ListPlanksByGroup(c.Material, c.ThicknessMM)
		if err != nil {
			return nil, err
		}
		inventory = append(inventory, planks...)
	}
	return inventory, nil
}

// handleOptimize runs the 3D loading optimizer, likewise offloaded to its
// own goroutine.
func (s *server) handleOptimize(w http.ResponseWriter, r *http.Request) {
	var req models.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, models.NewValidationError("malformed request body"))
		return
	}

	van, err := s.store.GetVan(req.VanID)
	if err != nil {
		writeError(w, err)
		return
	}

	for _, item := range req.Items {
		if err := item.Validate(); err != nil {
			writeError(w, err)
			return
		}
	}

	type result struct {
		resp models.OptimizeResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := s.loading.Run(*van, req.Items)
		done <- result{resp: resp, err: err}
	}()
	res := <-done
	if res.err != nil {
		writeError(w, res.err)
		return
	}
	writeJSON(w, http.StatusOK, res.resp)
}

// handleVans exposes minimal van CRUD so /optimize has something to resolve
// a van_id against.
func (s *server) handleVans(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		vans, err := s.store.ListVans()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, vans)
	case http.MethodPost:
		var v models.Van
		if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
			writeError(w, models.NewValidationError("malformed request body"))
			return
		}
		v.Active = true
		if err := v.Validate(); err != nil {
			writeError(w, err)
			return
		}
		if err := s.store.CreateVan(&v); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, v)
	}
}
