// Command streambridge forwards change events from streaming-API sources to
// AMQP brokers according to a rule-based routing configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/basinforge/streambridge/internal/config"
	"github.com/basinforge/streambridge/internal/httpapi"
	"github.com/basinforge/streambridge/internal/logging"
	"github.com/basinforge/streambridge/internal/metrics"
	"github.com/basinforge/streambridge/internal/orchestrator"
	"github.com/basinforge/streambridge/internal/source"
)

const (
	// DefaultListenAddr is where the operational HTTP surface listens.
	DefaultListenAddr = ":9361"
	// DefaultStreamingURL is the upstream streaming endpoint.
	DefaultStreamingURL = "wss://login.salesforce.com/cometd/42.0"
	// DefaultConnectionTimeout bounds the source open handshake.
	DefaultConnectionTimeout = 30 * time.Second
)

func main() {
	var (
		configPath              = flag.String("config", os.Getenv("STREAMBRIDGE_CONFIG"), "path to the YAML configuration file")
		listenAddr              = flag.String("listen", DefaultListenAddr, "address for the health/metrics HTTP endpoints")
		streamingURL            = flag.String("streaming-url", DefaultStreamingURL, "upstream streaming endpoint URL")
		connectionTimeout       = flag.Duration("source-connection-timeout", DefaultConnectionTimeout, "timeout for opening a source connection")
		ignoreSinkErrors        = flag.Bool("ignore-sink-errors", false, "log and drop messages on sink failure instead of shutting down")
		ignoreReplayStoreErrors = flag.Bool("ignore-replay-storage-errors", false, "continue without replay markers when the store is unreachable")
		logLevel                = flag.String("log-level", "info", "log verbosity: debug, info, warn, error")
		logJSON                 = flag.Bool("log-json", true, "emit logs as JSON instead of console format")
	)
	flag.Parse()

	logging.Init(logging.Config{Level: logging.Level(*logLevel), JSONOutput: *logJSON})
	log := logging.WithComponent("main")

	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "streambridge: no configuration file given; use -config or STREAMBRIDGE_CONFIG")
		os.Exit(2)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "streambridge: %v\n", err)
		os.Exit(2)
	}

	store, err := buildStore(cfg, *ignoreReplayStoreErrors)
	if err != nil {
		fmt.Fprintf(os.Stderr, "streambridge: %v\n", err)
		os.Exit(2)
	}
	router, err := buildRouter(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "streambridge: %v\n", err)
		os.Exit(2)
	}

	factory := func(name string, org config.OrgConfig) source.Client {
		return source.NewWebSocketClient(*streamingURL, source.Credentials{
			ConsumerKey:    org.ConsumerKey,
			ConsumerSecret: org.ConsumerSecret,
			Username:       org.Username,
			Password:       org.Password,
		})
	}
	src := buildSource(cfg, store, factory, *connectionTimeout)
	snk := buildSink(cfg)

	orch := orchestrator.New(src, snk, router, store, orchestrator.Options{
		IgnoreSinkErrors: *ignoreSinkErrors,
	})

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	mux := http.NewServeMux()
	httpapi.NewHandlerSet(httpapi.Options{
		Readiness: httpapi.ReadinessFunc(func() (bool, string) {
			state := orch.State()
			return state == orchestrator.Running, state.String()
		}),
		Gatherer: registry,
	}).Register(mux)

	httpServer := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Warn().Err(err).Str("addr", *listenAddr).Msg("http server stopped")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runErr := orch.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("http server shutdown failed")
	}

	if runErr != nil {
		log.Error().Err(runErr).Msg("bridge exited with error")
		os.Exit(1)
	}
	os.Exit(0)
}
