package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"retlister/internal/models"
	"retlister/internal/restostore"
	"retlister/internal/sync"
	"retlister/internal/upstream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestProxy(t *testing.T, upstreamURL string) (*proxyServer, *mux.Router) {
	t.Helper()
	db, err := restostore.InitializeDatabase(":memory:", testLogger())
	if err != nil {
		t.Fatalf("failed to initialize test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := restostore.New(db, testLogger())
	s := &proxyServer{
		store:    store,
		gateway:  sync.NewGateway(store, testLogger()),
		upstream: upstream.New(upstreamURL, "test-token"),
		logger:   testLogger(),
	}

	r := mux.NewRouter()
	r.HandleFunc("/health", s.handleHealth)
	r.HandleFunc("/list", s.handleList).Methods(http.MethodGet)
	r.HandleFunc("/add", s.handleAdd).Methods(http.MethodPost)
	r.HandleFunc("/remove/{id}", s.handleRemove).Methods(http.MethodDelete)
	r.HandleFunc("/search", s.handleSearch).Methods(http.MethodPost)
	r.HandleFunc("/delete_batch", s.handleDeleteBatch).Methods(http.MethodPost)
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
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleAddFallsBackToLocalWhenUpstreamDown(t *testing.T) {
	// An unreachable port: upstream calls fail fast.
	_, router := newTestProxy(t, "http://127.0.0.1:1")

	rec := doJSON(t, router, http.MethodPost, "/add", models.Plank{
		WidthMM: 600, HeightMM: 400, ThicknessMM: 18, Material: "Pine",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, http.MethodGet, "/list", nil)
	var planks []models.Plank
	if err := json.Unmarshal(rec.Body.Bytes(), &planks); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(planks) != 1 {
		t.Fatalf("expected the plank to be visible from the local mirror, got %+v", planks)
	}
}

func TestHandleAddMirrorsUpstreamOnSuccess(t *testing.T) {
	upstreamSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/add":
			var p models.Plank
			json.NewDecoder(r.Body).Decode(&p)
			p.ID = 555
			p.CreatedAt = "2026-01-01T00:00:00Z"
			json.NewEncoder(w).Encode(p)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer upstreamSrv.Close()

	_, router := newTestProxy(t, upstreamSrv.URL)

	rec := doJSON(t, router, http.MethodPost, "/add", models.Plank{
		WidthMM: 600, HeightMM: 400, ThicknessMM: 18, Material: "Pine",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}

	var created models.Plank
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if created.ID != 555 {
		t.Errorf("expected the upstream-assigned id to be mirrored, got %d", created.ID)
	}
}

func TestHandleListFallsBackOffline(t *testing.T) {
	s, router := newTestProxy(t, "http://127.0.0.1:1")

	seed := &models.Plank{WidthMM: 500, HeightMM: 500, ThicknessMM: 18, Material: "oak"}
	if err := s.store.CreatePlank(seed); err != nil {
		t.Fatalf("failed to seed local store: %v", err)
	}

	rec := doJSON(t, router, http.MethodGet, "/list", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var planks []models.Plank
	if err := json.Unmarshal(rec.Body.Bytes(), &planks); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(planks) != 1 {
		t.Fatalf("expected the local mirror's one row, got %+v", planks)
	}
}

func TestHandleDeleteBatchFailsGatewayWhenOffline(t *testing.T) {
	_, router := newTestProxy(t, "http://127.0.0.1:1")

	rec := doJSON(t, router, http.MethodPost, "/delete_batch", map[string][]int64{"ids": {1, 2}})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d: %s", rec.Code, rec.Body.String())
	}
}
