package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	h "github.com/gorilla/handlers"
	"github.com/rs/zerolog"

	"github.com/datalift/searchsync/internal/config"
	"github.com/datalift/searchsync/internal/handlers"
	"github.com/datalift/searchsync/internal/middleware"
	"github.com/datalift/searchsync/internal/migration"
	"github.com/datalift/searchsync/internal/retry"
	"github.com/datalift/searchsync/internal/routes"
	"github.com/datalift/searchsync/internal/search"
	"github.com/datalift/searchsync/internal/sync"
)

type application struct {
	config *config.Config
	logger zerolog.Logger
}

func main() {
	configPath := flag.String("config", "config.yaml", "Path to the YAML configuration file")
	flag.Parse()

	// Set up structured, level-based logging.
	consoleWriter := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen}
	logger := zerolog.New(consoleWriter).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	// Load configuration.
	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Bring the watermark bookkeeping table up to date.
	if err := migration.RunMigrations(cfg.Postgres.DSN(), logger); err != nil {
		logger.Fatal().Err(err).Msg("Failed to run migrations")
	}

	app := &application{config: cfg, logger: logger}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start the sync daemon; it reconnects every cycle and never exits on
	// transient errors.
	daemon := sync.NewDaemon(cfg, logger)
	daemonDone := make(chan struct{})
	go func() {
		defer close(daemonDone)
		daemon.Run(ctx)
	}()

	// Start the read-side API and handle graceful shutdown.
	app.startServer(ctx)

	// Stop the sync daemon as well when the server is the one going down.
	stop()
	<-daemonDone
	logger.Info().Msg("Application terminated.")
}

// initRouter sets up the read API handlers and returns the wrapped router.
func (app *application) initRouter(es *search.Client) http.Handler {
	searchHandler := handlers.NewSearchHandler(es, app.logger)

	router := routes.NewRouter(searchHandler)
	loggedRouter := middleware.LoggingMiddleware(app.logger)(router)
	return h.CORS(
		h.AllowedOrigins([]string{app.config.Server.CORSOrigin}),
		h.AllowedMethods([]string{"GET", "POST", "OPTIONS"}),
		h.AllowedHeaders([]string{"Content-Type"}),
	)(loggedRouter)
}

// startServer launches the HTTP server and blocks until shutdown completes.
func (app *application) startServer(ctx context.Context) {
	es, err := search.Connect(
		ctx,
		app.config.Elasticsearch.Address(),
		app.config.Elasticsearch.User,
		app.config.Elasticsearch.Password,
		retry.ConnectPolicy(),
		app.logger,
	)
	if err != nil {
		app.logger.Fatal().Err(err).Msg("Unable to reach Elasticsearch for the read API")
	}

	server := &http.Server{
		Addr:    ":" + app.config.Server.Port,
		Handler: app.initRouter(es),
	}

	serverErrCh := make(chan error, 1)
	go func() {
		app.logger.Info().Msgf("Server listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		app.logger.Info().Msg("Received shutdown signal. Shutting down...")
	case err := <-serverErrCh:
		app.logger.Error().Err(err).Msg("Server error occurred")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		app.logger.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		app.logger.Info().Msg("HTTP server shutdown complete.")
	}
}
