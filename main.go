package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"encyclopedia-cms/config"
	"encyclopedia-cms/events"
	"encyclopedia-cms/handlers"
	"encyclopedia-cms/metrics"
	"encyclopedia-cms/repositories"
	"encyclopedia-cms/search/fts"
	"encyclopedia-cms/services"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize database
	db, err := config.InitDB(cfg, logger)
	if err != nil {
		return err
	}
	store := repositories.NewStore(db)
	if err := store.Migrate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	provider, err := fts.Open(cfg.SearchIndexPath)
	if err != nil {
		return fmt.Errorf("open search index: %w", err)
	}
	defer provider.Close()

	m, err := metrics.New()
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	bus := events.NewBus(logger)
	services.ObserveMetrics(bus, m)
	deps := services.Deps{Store: store, Bus: bus, Log: logger}

	// Initialize services
	revisionService := services.NewRevisionService(deps, cfg.Moderation)
	moderationService := services.NewModerationService(deps, cfg.Moderation)
	reviewService, err := services.NewPeerReviewService(deps, cfg.Consensus)
	if err != nil {
		return err
	}

	searchOpts := services.DefaultSearchOptions()
	searchOpts.Timeout = cfg.SearchTimeout
	searchOpts.MaxTries = cfg.ReindexMaxTries
	searchService := services.NewSearchService(deps, provider, searchOpts, m)

	reindexer := services.NewReindexer(searchService, bus, services.ReindexerOptions{
		Buffer:            cfg.ReindexBuffer,
		ReconcileInterval: cfg.ReconcileInterval,
		ReconcileRate:     cfg.ReconcileRate,
	}, m, logger)

	router := handlers.NewRouter(handlers.Services{
		Revisions:  revisionService,
		Moderation: moderationService,
		Reviews:    reviewService,
		Search:     searchService,
		Metrics:    m,
		Log:        logger,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return reindexer.Run(gctx)
	})
	g.Go(func() error {
		logger.Info("server starting", zap.String("port", cfg.Port), zap.String("search", provider.Name()))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("server shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
