// Package main provides the semcollab binary entry point.
// Semcollab is a multi-agent collaboration coordinator that runs workflow
// sessions over NATS using the semstreams framework.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/c360studio/semcollab/collab"
	collabbridge "github.com/c360studio/semcollab/processor/collab-bridge"
	"github.com/c360studio/semstreams/natsclient"
	"github.com/c360studio/semstreams/payloadbuiltins"
	"github.com/c360studio/semstreams/payloadregistry"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "semcollab"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		templatesPath string
		metricsAddr   string
		logLevel      string
	)

	cmd := &cobra.Command{
		Use:   "semcollab",
		Short: "Multi-agent collaboration coordinator",
		Long: `Semcollab coordinates structured multi-agent collaboration sessions.

It provides:
- A catalog of workflow templates (stages, roles, handoff rules)
- Session lifecycle management with stage progression
- Messaging and handoff sub-protocols between agent roles
- A bridge that reacts to external agent signals

All notifications are published over NATS using the semstreams framework.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(templatesPath, metricsAddr, logLevel)
		},
	}

	cmd.Flags().StringVarP(&templatesPath, "templates", "t", "", "Workflow template overlay file (YAML)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	// Version command
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	cmd.AddCommand(templatesCmd())

	return cmd
}

// templatesCmd lists the workflow templates the catalog would serve,
// including any overlay file, without connecting to NATS.
func templatesCmd() *cobra.Command {
	var templatesPath string

	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List available workflow templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := buildCatalog(templatesPath)
			if err != nil {
				return err
			}

			for _, id := range catalog.IDs() {
				tmpl, err := catalog.Lookup(id)
				if err != nil {
					return err
				}
				fmt.Printf("%s (%s): %s, %d stages\n", tmpl.ID, tmpl.Kind, tmpl.Name, len(tmpl.Stages))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&templatesPath, "templates", "t", "", "Workflow template overlay file (YAML)")
	return cmd
}

func run(templatesPath, metricsAddr, logLevel string) error {
	printBanner()

	// Configure logging
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	catalog, err := buildCatalog(templatesPath)
	if err != nil {
		return err
	}
	slog.Info("Workflow catalog ready", "templates", len(catalog.IDs()))

	// Payload registry: builtins first, then the collaboration event and
	// inbound signal payload types layered on top.
	payloadReg := payloadregistry.New()
	if err := payloadbuiltins.Register(payloadReg); err != nil {
		return fmt.Errorf("register builtin payloads: %w", err)
	}
	if err := collab.RegisterPayloads(payloadReg); err != nil {
		return fmt.Errorf("register collaboration payloads: %w", err)
	}
	if err := collabbridge.RegisterPayloads(payloadReg); err != nil {
		return fmt.Errorf("register signal payloads: %w", err)
	}

	// Connect to NATS
	ctx := context.Background()
	natsClient, err := connectToNATS(ctx, logger)
	if err != nil {
		return err
	}
	defer natsClient.Close(ctx)

	historyStore, err := collab.NewHistoryStore(natsClient)
	if err != nil {
		// Log warning but don't fail - the in-memory history still works
		slog.Warn("Failed to initialize session history store", "error", err)
		historyStore = nil
	}

	manager := collab.NewManager(catalog, natsClient, logger,
		collab.WithHistoryStore(historyStore))

	bridge, err := collabbridge.NewComponent(nil, manager, natsClient, payloadReg, logger)
	if err != nil {
		return fmt.Errorf("create collab-bridge: %w", err)
	}
	if err := bridge.Initialize(); err != nil {
		return fmt.Errorf("initialize collab-bridge: %w", err)
	}

	// Setup signal handling
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	if err := bridge.Start(signalCtx); err != nil {
		return fmt.Errorf("start collab-bridge: %w", err)
	}

	metricsServer := startMetricsServer(metricsAddr, logger)

	slog.Info("Semcollab ready",
		"version", Version,
		"metrics_addr", metricsAddr)

	// Block until shutdown signal
	<-signalCtx.Done()
	slog.Info("Received shutdown signal")

	shutdownTimeout := 30 * time.Second
	if err := bridge.Stop(shutdownTimeout); err != nil {
		slog.Error("Error stopping collab-bridge", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Error stopping metrics server", "error", err)
	}

	slog.Info("Semcollab shutdown complete")
	return nil
}

func printBanner() {
	fmt.Println("╔═══════════════════════════════════════════════╗")
	fmt.Println("║            Semcollab v" + Version + "                    ║")
	fmt.Println("║      Multi-Agent Collaboration Core           ║")
	fmt.Println("╚═══════════════════════════════════════════════╝")
}

func buildCatalog(templatesPath string) (*collab.Catalog, error) {
	catalog := collab.NewCatalog()

	if templatesPath != "" {
		if err := catalog.LoadOverlay(templatesPath); err != nil {
			return nil, fmt.Errorf("load template overlay: %w", err)
		}
	}

	return catalog, nil
}

func connectToNATS(ctx context.Context, logger *slog.Logger) (*natsclient.Client, error) {
	natsURLs := "nats://localhost:4222"

	// Environment variable override takes precedence
	if envURL := os.Getenv("NATS_URL"); envURL != "" {
		natsURLs = envURL
	} else if envURL := os.Getenv("SEMCOLLAB_NATS_URL"); envURL != "" {
		natsURLs = envURL
	}

	logger.Info("Connecting to NATS", "url", natsURLs)

	client, err := natsclient.NewClient(natsURLs,
		natsclient.WithName(appName),
		natsclient.WithMaxReconnects(-1),
		natsclient.WithReconnectWait(time.Second),
		natsclient.WithCircuitBreakerThreshold(20),
		natsclient.WithHealthInterval(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}

	if err := client.Connect(ctx); err != nil {
		return nil, wrapNATSError(err, natsURLs)
	}

	connCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.WaitForConnection(connCtx); err != nil {
		return nil, wrapNATSError(err, natsURLs)
	}

	logger.Info("Connected to NATS", "url", natsURLs)
	return client, nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	// Check for common connection errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

To start NATS:
  docker compose up -d nats

Or set NATS_URL environment variable to point to your NATS server.`, err, url)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

func startMetricsServer(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", "error", err)
		}
	}()

	return server
}
