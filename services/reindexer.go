package services

import (
	"context"
	"errors"
	"time"

	"encyclopedia-cms/events"
	"encyclopedia-cms/metrics"
	"encyclopedia-cms/models"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

type ReindexerOptions struct {
	Buffer            int
	ReconcileInterval time.Duration
	// ReconcileRate caps reindexes per second during catch-up.
	ReconcileRate  float64
	ReconcileBatch int
}

func DefaultReindexerOptions() ReindexerOptions {
	return ReindexerOptions{
		Buffer:            256,
		ReconcileInterval: time.Minute,
		ReconcileRate:     20,
		ReconcileBatch:    500,
	}
}

type reindexJob struct {
	articleID uint
	remove    bool
}

// Reindexer keeps the search projection behind the current pointer by at
// most one queue hop. Promotions never wait for it; a periodic pass picks
// up anything it dropped or failed.
type Reindexer struct {
	search  SearchService
	jobs    chan reindexJob
	limiter *rate.Limiter
	opts    ReindexerOptions
	metrics *metrics.Metrics
	log     *zap.Logger
}

func NewReindexer(search SearchService, bus *events.Bus, opts ReindexerOptions, m *metrics.Metrics, log *zap.Logger) *Reindexer {
	def := DefaultReindexerOptions()
	if opts.Buffer <= 0 {
		opts.Buffer = def.Buffer
	}
	if opts.ReconcileInterval <= 0 {
		opts.ReconcileInterval = def.ReconcileInterval
	}
	if opts.ReconcileRate <= 0 {
		opts.ReconcileRate = def.ReconcileRate
	}
	if opts.ReconcileBatch <= 0 {
		opts.ReconcileBatch = def.ReconcileBatch
	}
	if m == nil {
		m = metrics.NewNop()
	}
	if log == nil {
		log = zap.NewNop()
	}

	r := &Reindexer{
		search:  search,
		jobs:    make(chan reindexJob, opts.Buffer),
		limiter: rate.NewLimiter(rate.Limit(opts.ReconcileRate), 1),
		opts:    opts,
		metrics: m,
		log:     log.Named("reindexer"),
	}
	if bus != nil {
		bus.Subscribe(r.onEvent, models.EventRevisionPromoted, models.EventArticleRemoved)
	}
	return r
}

func (r *Reindexer) onEvent(event models.DomainEvent) {
	r.Enqueue(event.ArticleID, event.Kind == models.EventArticleRemoved)
}

// Enqueue schedules an article without blocking. When the queue is full the
// request is dropped and the reconciler catches it later.
func (r *Reindexer) Enqueue(articleID uint, remove bool) {
	select {
	case r.jobs <- reindexJob{articleID: articleID, remove: remove}:
	default:
		r.metrics.ReindexDropped.Inc()
		r.log.Warn("reindex queue full, dropping", zap.Uint("article_id", articleID))
	}
}

// Run processes queued jobs and reconciles on a ticker until ctx is done.
func (r *Reindexer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.opts.ReconcileInterval)
	defer ticker.Stop()

	r.log.Info("started",
		zap.Int("buffer", r.opts.Buffer),
		zap.Duration("reconcile_interval", r.opts.ReconcileInterval),
	)
	for {
		select {
		case <-ctx.Done():
			return nil
		case job := <-r.jobs:
			r.handle(ctx, job)
		case <-ticker.C:
			if _, err := r.Reconcile(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("reconcile failed", zap.Error(err))
			}
		}
	}
}

func (r *Reindexer) handle(ctx context.Context, job reindexJob) {
	var err error
	if job.remove {
		err = r.search.Remove(ctx, job.articleID)
	} else {
		err = r.search.Reindex(ctx, job.articleID)
	}
	if err != nil && !errors.Is(err, models.ErrorNotFound{}) {
		r.log.Warn("reindex job failed", zap.Uint("article_id", job.articleID), zap.Bool("remove", job.remove), zap.Error(err))
	}
}

// Reconcile reindexes stale articles and drops removed ones at the
// configured rate, and reports how many were brought up to date.
func (r *Reindexer) Reconcile(ctx context.Context) (int, error) {
	stale, err := r.search.Stale(ctx, r.opts.ReconcileBatch)
	if err != nil {
		return 0, err
	}
	if len(stale) > 0 {
		r.log.Info("reconciling stale articles", zap.Int("count", len(stale)))
	}

	synced := 0
	for _, item := range stale {
		if err := r.limiter.Wait(ctx); err != nil {
			return synced, err
		}
		var err error
		if item.Removed {
			err = r.search.Remove(ctx, item.ArticleID)
		} else {
			err = r.search.Reindex(ctx, item.ArticleID)
		}
		if err != nil {
			r.log.Warn("reconcile failed", zap.Uint("article_id", item.ArticleID), zap.Bool("removed", item.Removed), zap.Error(err))
			continue
		}
		synced++
	}
	return synced, nil
}

// ObserveMetrics counts committed domain events.
func ObserveMetrics(bus *events.Bus, m *metrics.Metrics) {
	bus.Subscribe(func(e models.DomainEvent) {
		switch e.Kind {
		case models.EventRevisionSubmitted:
			m.Submissions.WithLabelValues(e.Data["created"]).Inc()
		case models.EventRevisionResolved:
			m.Resolutions.WithLabelValues(e.Data["outcome"], e.Data["source"]).Inc()
		case models.EventConsensusReached:
			m.ConsensusDecisions.WithLabelValues(e.Data["decision"]).Inc()
		case models.EventConsensusStalled:
			m.ConsensusDecisions.WithLabelValues(string(models.DecisionInsufficientConsensus)).Inc()
		case models.EventReviewCompleted:
			m.ReviewsCompleted.Inc()
		case models.EventRevisionPromoted:
			m.Promotions.Inc()
		}
	})
}
