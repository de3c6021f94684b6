package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"retlister/internal/cutting"
	"retlister/internal/loading"
	"retlister/internal/models"
	"retlister/internal/restostore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T) (*server, *mux.Router) {
	t.Helper()
	db, err := restostore.InitializeDatabase(":memory:", testLogger())
	if err != nil {
		t.Fatalf("failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := &server{
		store:   restostore.New(db, testLogger()),
		cutting: cutting.New(testLogger()),
		loading: loading.New(testLogger()),
		logger:  testLogger(),
		started: time.Now(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth)
	r.HandleFunc("/ready", s.handleReady)
	r.HandleFunc("/list", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/add", s.handleAdd).Methods(http.MethodPost)
	r.HandleFunc("/remove/{id}", s.handleRemove).Methods(http.MethodDelete)
	r.HandleFunc("/update/{id}", s.handleUpdate).Methods(http.MethodPost)
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	r.HandleFunc("/stats", s.handleStats).Methods(http.MethodGet)
	r.HandleFunc("/delete_batch", s.handleDeleteBatch).Methods(http.MethodPost)
	r.HandleFunc("/optimize_cuts", s.handleOptimizeCuts).Methods(http.MethodPost)
	r.HandleFunc("/optimize", s.handleOptimize).Methods(http.MethodPost)
	r.HandleFunc("/vans", s.handleVans).Methods(http.MethodGet, http.MethodPost)
	return s, r
}

func doJSON(t *testing.T, router *mux.Router, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		reader = bytes.NewReader(buf)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleAddAndList(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/add", models.Plank{
		WidthMM: 500, HeightMM: 400, ThicknessMM: 18, Material: "Oak",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/list", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var planks []models.Plank
	if err := json.Unmarshal(rec.Body.Bytes(), &planks); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(planks) != 1 {
		t.Fatalf("expected 1 plank, got %d", len(planks))
	}
}

func TestHandleAddRejectsInvalidDimensions(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/add", models.Plank{
		WidthMM: 1, HeightMM: 400, ThicknessMM: 18, Material: "Oak",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleRemoveMissingReturns404(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodDelete, "/remove/999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleOptimizeCutsEndToEnd(t *testing.T) {
	s, router := newTestServer(t)

	plank := models.Plank{WidthMM: 1000, HeightMM: 1000, ThicknessMM: 18, Material: "oak"}
	if err := s.store.CreatePlank(&plank); err != nil {
		t.Fatalf("failed to seed plank: %v", err)
	}

	rec := doJSON(t, router, http.MethodPost, "/optimize_cuts", models.OptimizeCutsRequest{
		Cuts: []models.CutRequest{
			{WidthMM: 200, HeightMM: 200, ThicknessMM: 18, Material: "oak", Quantity: 1},
		},
		KerfWidthMM: 3,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp models.OptimizeCutsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(resp.UsedPlanks) != 1 || len(resp.UnplacedCuts) != 0 {
		t.Errorf("unexpected optimization result: %+v", resp)
	}
}

func TestHandleOptimizeUnknownVanIs404(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/optimize", models.OptimizeRequest{
		VanID: 42,
		Items: []models.CargoItem{{Description: "box", LengthMM: 100, WidthMM: 100, HeightMM: 100, WeightKG: 5}},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHandleVansCreateAndOptimize(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/vans", models.Van{
		Name: "Transit", LengthMM: 3000, WidthMM: 1700, HeightMM: 1800,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var van models.Van
	if err := json.Unmarshal(rec.Body.Bytes(), &van); err != nil {
		t.Fatalf("failed to decode van: %v", err)
	}

	rec = doJSON(t, router, http.MethodPost, "/optimize", models.OptimizeRequest{
		VanID: van.ID,
		Items: []models.CargoItem{{Description: "crate", LengthMM: 500, WidthMM: 500, HeightMM: 500, WeightKG: 20}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp models.OptimizeResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Success || resp.Plan == nil || len(resp.Plan.PositionedItems) != 1 {
		t.Errorf("expected one item placed, got %+v", resp)
	}
}

func TestHandleStats(t *testing.T) {
	s, router := newTestServer(t)
	for i := 0; i < 3; i++ {
		p := models.Plank{WidthMM: 500, HeightMM: 500, ThicknessMM: 18, Material: "oak"}
		if err := s.store.CreatePlank(&p); err != nil {
			t.Fatalf("failed to seed plank: %v", err)
		}
	}

	rec := doJSON(t, router, http.MethodGet, "/stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var stats models.StatsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if stats.TotalCount != 3 {
		t.Errorf("expected total count 3, got %d", stats.TotalCount)
	}
}
