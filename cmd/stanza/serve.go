package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aretw0/stanza"
	httpadapter "github.com/aretw0/stanza/pkg/adapters/http"
	"github.com/aretw0/stanza/pkg/domain"
	"github.com/aretw0/stanza/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Serves the loaded documents over a JSON API with server-sent events for fired waits, plus Prometheus metrics on /metrics.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		port, _ := cmd.Flags().GetString("port")

		registry := prometheus.NewRegistry()
		metrics := observability.NewMetrics(registry)

		var server *httpadapter.Server
		eng, err := buildEngine(cmd,
			stanza.WithLifecycleHooks(metrics.Hooks()),
			stanza.WithResumeHandler(func(_ context.Context, documentID string, tree domain.RenderTree) {
				if server == nil {
					return
				}
				payload, err := json.Marshal(tree)
				if err != nil {
					return
				}
				server.Streams().Broadcast(documentID, string(payload))
			}))
		if err != nil {
			return err
		}

		server = httpadapter.NewServer(eng.Sessions(),
			httpadapter.WithLogger(newLogger(cmd)),
			httpadapter.WithVersion(stanza.Version))

		if err := eng.Start(cmd.Context()); err != nil {
			return err
		}
		defer eng.Stop()

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/", server.Handler())

		srv := &http.Server{
			Addr:    ":" + port,
			Handler: mux,
		}

		serverErrors := make(chan error, 1)
		go func() {
			fmt.Printf("Stanza server listening on %s (%d documents)\n", srv.Addr, len(eng.Documents()))
			serverErrors <- srv.ListenAndServe()
		}()

		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			return fmt.Errorf("server error: %w", err)
		case sig := <-shutdown:
			fmt.Printf("\nShutting down (%v)\n", sig)
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				if err := srv.Close(); err != nil {
					return err
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("port", "p", "8080", "Port to listen on")
}
