// Command server is the central upstream HTTP API: the canonical
// restos/vans inventory, the cutting and loading optimizers, and the
// endpoints the edge proxy (cmd/proxy) mirrors for offline-first use.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"retlister/internal/cutting"
	"retlister/internal/httpmw"
	"retlister/internal/loading"
	"retlister/internal/restostore"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dbPath := getEnv("DB_PATH", "./data/retlister.db")
	os.MkdirAll("./data", 0755)

	db, err := restostore.InitializeDatabase(dbPath, logger)
	if err != nil {
		logger.Error("failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := restostore.New(db, logger)
	srv := &server{
		store:   store,
		cutting: cutting.New(logger),
		loading: loading.New(logger),
		logger:  logger,
		started: time.Now(),
	}

	authToken := os.Getenv("AUTH_TOKEN")
	mw := httpmw.New(authToken, logger)

	router := mux.NewRouter()
	router.HandleFunc("/health", srv.handleHealth).Methods(http.MethodGet)
	router.HandleFunc("/ready", srv.handleReady).Methods(http.MethodGet)

	api := router.NewRoute().Subrouter()
	api.Use(mw.RequireAuth)
	api.HandleFunc("/list", srv.handleList).Methods(http.MethodGet)
	api.HandleFunc("/add", srv.handleAdd).Methods(http.MethodPost)
	api.HandleFunc("/remove/{id}", srv.handleRemove).Methods(http.MethodDelete)
	api.HandleFunc("/update/{id}", srv.handleUpdate).Methods(http.MethodPost)
	api.HandleFunc("/search", srv.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/stats", srv.handleStats).Methods(http.MethodGet)
	api.HandleFunc("/delete_batch", srv.handleDeleteBatch).Methods(http.MethodPost)
	api.HandleFunc("/optimize_cuts", srv.handleOptimizeCuts).Methods(http.MethodPost)
	api.HandleFunc("/optimize", srv.handleOptimize).Methods(http.MethodPost)
	api.HandleFunc("/vans", srv.handleVans).Methods(http.MethodGet, http.MethodPost)

	handler := mw.SecurityHeaders(mw.CORS(mw.Logging(router)))

	port := getEnv("PORT", "8000")
	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}

	go func() {
		logger.Info("central server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	httpServer.Shutdown(ctx)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
