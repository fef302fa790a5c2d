package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/stepflow-ai/stepflow/graph"
	"github.com/stepflow-ai/stepflow/graph/emit"
	"github.com/stepflow-ai/stepflow/graph/tool"
	"github.com/stepflow-ai/stepflow/internal/config"
	"github.com/stepflow-ai/stepflow/internal/httpapi"
	"github.com/stepflow-ai/stepflow/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the stepflow HTTP server",
	Long: `Starts the workflow engine with the built-in summarization tools
registered, exposing graph create/run/inspect as a JSON API plus
Prometheus metrics on /metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		configPath, _ := cmd.Flags().GetString("config")
		listen, _ := cmd.Flags().GetString("listen")

		cfg := config.Default()
		if configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				fmt.Printf("Error loading config: %v\n", err)
				os.Exit(1)
			}
			cfg = loaded
		}
		if listen != "" {
			cfg.Listen = listen
		}

		log := slog.New(slog.NewTextHandler(os.Stderr, nil))

		// Tool registry is populated before any run starts.
		registry := tool.NewRegistry()
		pipeline.Register(registry)

		promRegistry := prometheus.NewRegistry()
		engine := graph.New(registry,
			graph.WithMaxSteps(cfg.MaxSteps),
			graph.WithEmitter(emit.NewLogEmitter(os.Stderr, cfg.LogJSON)),
			graph.WithMetrics(graph.NewMetrics(promRegistry)),
		)

		ctx := context.Background()
		for _, def := range cfg.Graphs {
			edges, err := graph.RulesFromSpecs(def.Edges)
			if err != nil {
				fmt.Printf("Error in config graph %q: %v\n", def.Name, err)
				os.Exit(1)
			}
			graphID, err := engine.CreateGraph(ctx, def.Nodes, def.StartNode, edges)
			if err != nil {
				fmt.Printf("Error creating config graph %q: %v\n", def.Name, err)
				os.Exit(1)
			}
			log.Info("preloaded graph", "name", def.Name, "graph_id", graphID)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}))
		mux.Handle("/", httpapi.NewHandler(engine, log))

		srv := &http.Server{
			Addr:    cfg.Listen,
			Handler: mux,
		}

		serverErrors := make(chan error, 1)
		go func() {
			log.Info("starting stepflow server", "addr", srv.Addr)
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			fmt.Printf("Server error: %v\n", err)
			os.Exit(1)

		case sig := <-shutdown:
			log.Info("shutting down", "signal", sig.String())

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				log.Error("graceful shutdown did not complete", "err", err)
				if err := srv.Close(); err != nil {
					log.Error("error killing server", "err", err)
				}
			}
			log.Info("server stopped")
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("listen", "l", "", "Listen address (overrides config)")
}
