package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/defistate/defistate-router-go/cmd/router/config"
	"github.com/defistate/defistate-router-go/cmd/router/fixture"
	"github.com/defistate/defistate-router-go/engine"
	"github.com/defistate/defistate-router-go/graph"
	"github.com/defistate/defistate-router-go/optimizer"
	"github.com/defistate/defistate-router-go/protocols/assetregistry"
	assetindexer "github.com/defistate/defistate-router-go/protocols/assetregistry/indexer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const metricsShutdownTimeout = 5 * time.Second

func main() {
	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

// app carries what every subcommand shares once the root command has
// loaded the configuration.
type app struct {
	configPath string
	debug      bool

	cfg      *config.RouterConfig
	logger   *slog.Logger
	registry *prometheus.Registry
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "router",
		Short: "Find the most profitable trade size along a path of assets",
		Long: `router loads a market snapshot, builds the asset graph over it and searches
every expansion of an asset path for the input amount that maximizes profit.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "config.yaml", "path to the configuration file")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		a.optimizeCmd(),
		a.quoteCmd(),
		a.marketsCmd(),
		a.diffCmd(),
		a.watchCmd(),
	)
	return root
}

func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(a.configPath)
	if err != nil {
		return err
	}
	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	if a.debug {
		level = slog.LevelDebug
	}

	a.cfg = cfg
	a.logger = slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	if cfg.Metrics.Enabled {
		a.serveMetrics(cmd.Context())
	}
	return nil
}

// serveMetrics exposes the registry until ctx is cancelled.
func (a *app) serveMetrics(ctx context.Context) {
	logger := a.logger.With("component", "metrics")
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(a.registry, promhttp.HandlerOpts{Registry: a.registry}))
	server := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("serving metrics", "listen", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown", "error", err)
		}
	}()
}

// loadSystem decodes a fixture and publishes it as the first graph snapshot.
func (a *app) loadSystem(path string) (*engine.State, *graph.System, error) {
	state, err := fixture.Load(path)
	if err != nil {
		return nil, nil, err
	}
	system, err := graph.NewSystem(&graph.Config{
		CompactionThreshold: a.cfg.Graph.CompactionThreshold,
		Logger:              a.logger.With("component", "graph"),
		Registry:            a.registry,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := system.Refresh(state); err != nil {
		return nil, nil, err
	}
	return state, system, nil
}

func (a *app) newOptimizer() (*optimizer.Optimizer, error) {
	return optimizer.NewOptimizer(&optimizer.Config{
		Workers:   a.cfg.Optimizer.Workers,
		CacheSize: a.cfg.Optimizer.CacheSize,
		Logger:    a.logger.With("component", "optimizer"),
		Registry:  a.registry,
	})
}

// resolveAssets turns a comma separated list of symbols or asset ids into
// asset ids. Symbols match case-insensitively.
func resolveAssets(state *engine.State, list string) ([]assetregistry.AssetID, error) {
	known, err := state.Assets()
	if err != nil {
		return nil, err
	}
	index := assetindexer.New().Index(known)

	var out []assetregistry.AssetID
	for _, ref := range strings.Split(list, ",") {
		ref = strings.TrimSpace(ref)
		if ref == "" {
			continue
		}
		asset, ok := index.Resolve(ref)
		if !ok {
			return nil, fmt.Errorf("unknown asset %q", ref)
		}
		out = append(out, asset.ID)
	}
	return out, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
