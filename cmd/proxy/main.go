// Command proxy is the edge proxy: a local mirror of the restos inventory that keeps the end-user application usable when the
// central server is unreachable, backed by a durable sync queue and a
// background SyncEngine that reconciles once connectivity returns.
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

	"retlister/internal/httpmw"
	"retlister/internal/restostore"
	"retlister/internal/sync"
	"retlister/internal/upstream"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	dbPath := getEnv("DB_PATH", "./data/retlister-proxy.db")
	os.MkdirAll("./data", 0755)

	db, err := restostore.InitializeDatabase(dbPath, logger)
	if err != nil {
		logger.Error("failed to initialize local database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := restostore.New(db, logger)
	gateway := sync.NewGateway(store, logger)

	upstreamURL := getEnv("UPSTREAM_URL", "http://localhost:8000")
	apiToken := os.Getenv("RETLISTER_API_TOKEN")
	client := upstream.New(upstreamURL, apiToken)

	engine := sync.New(store, client, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go engine.Run(ctx)

	srv := &proxyServer{
		store:    store,
		gateway:  gateway,
		upstream: client,
		logger:   logger,
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
	api.HandleFunc("/search", srv.handleSearch).Methods(http.MethodPost)
	api.HandleFunc("/delete_batch", srv.handleDeleteBatch).Methods(http.MethodPost)

	handler := mw.SecurityHeaders(mw.CORS(mw.Logging(router)))

	port := getEnv("PORT", "8001")
	httpServer := &http.Server{
		Addr:    ":" + port,
		Handler: handler,
	}

	go func() {
		logger.Info("edge proxy starting", "port", port, "upstream", upstreamURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
