package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/triarom/voip-phonebook-go/internal/api"
	"github.com/triarom/voip-phonebook-go/internal/config"
	"github.com/triarom/voip-phonebook-go/internal/logging"
	"github.com/triarom/voip-phonebook-go/internal/metrics"
	"github.com/triarom/voip-phonebook-go/internal/store"
	"github.com/triarom/voip-phonebook-go/internal/vendors"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:     "phonebookd",
	Short:   "voip-phonebook vendor provisioning server",
	Long:    `phonebookd hosts the vendor entitlement provisioning protocol: vendor connector services attach over a persistent channel, negotiate their capability manifest, and receive entitlements to read site phonebooks.`,
	Version: Version,
	Run: func(cmd *cobra.Command, args []string) {
		runServer()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("phonebookd %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Printf("Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Printf("Commit: %s\n", GitCommit)
		}
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServer() {
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "phonebookd",
	})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Format:    cfg.LogFormat,
		Level:     cfg.LogLevel,
		Component: "phonebookd",
	})

	log.Info().Str("version", Version).Msg("Starting voip-phonebook vendor provisioning server")

	db, err := store.Open(cfg.DataDir)
	if err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("Failed to open phonebook database")
	}
	defer db.Close()

	registry := vendors.NewRegistry()
	engine := vendors.NewEngine(db, db, registry, cfg.ProvisionTimeout, log.Logger)
	distributor := vendors.NewDistributor(registry, db, db, db, cfg.AckTimeout, log.Logger)
	engine.SetDistributor(distributor)

	// Observability wiring
	engine.Subscribe(metrics.VendorStateObserver{})
	metrics.RegisterConnectionGauge(registry.Count)
	vendors.SetMetricHooks(metrics.RecordGrantOutcome, metrics.RecordReadResult)

	socketServer := vendors.NewSocketServer(engine, cfg.VendorSetupKey, log.Logger)

	mux := http.NewServeMux()
	mux.Handle("/api/vendors/socket", socketServer)
	api.NewRouter(db, cfg.APIKey, log.Logger).Register(mux)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := db.Ping(); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintln(w, "ok")
	})

	// ReadHeaderTimeout instead of ReadTimeout: a full-connection read
	// deadline would survive the websocket upgrade and kill vendor
	// channels.
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort),
		Handler:           mux,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.Info().
			Str("host", cfg.ListenHost).
			Int("port", cfg.ListenPort).
			Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start HTTP server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	for _, conn := range registry.List() {
		conn.Close("server shutting down")
	}

	log.Info().Msg("Server stopped")
}
