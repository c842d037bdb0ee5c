package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"encyclopedia-cms/metrics"
	"encyclopedia-cms/models"
	"encyclopedia-cms/repositories"
	"encyclopedia-cms/search"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultSearchLimit  = 20
	maxSearchLimit      = 100
	defaultSuggestLimit = 10
	maxSuggestLimit     = 50
	resyncParallelism   = 4
	// A reindex that races a newer promotion starts over this many times
	// before leaving the article to the reconciler.
	maxReindexPasses = 3
)

type SearchOptions struct {
	Timeout        time.Duration
	MaxTries       uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultSearchOptions() SearchOptions {
	return SearchOptions{
		Timeout:        2 * time.Second,
		MaxTries:       4,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     5 * time.Second,
	}
}

type SearchService interface {
	// Reindex pushes the article's current revision to the provider and
	// records the synced revision. Articles without a current revision are
	// removed from the index.
	Reindex(ctx context.Context, articleID uint) error
	// Remove drops a deleted article from the provider and clears its
	// removal marker. An id that names an article again is reindexed.
	Remove(ctx context.Context, articleID uint) error
	Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error)
	SuggestTitles(ctx context.Context, prefix string, limit int) ([]string, error)
	// Stale lists published articles whose document lags the current
	// revision, then removed articles the provider may still hold.
	Stale(ctx context.Context, limit int) ([]models.StaleArticle, error)
	// Resync brings every stale entry up to date and reports how many
	// succeeded.
	Resync(ctx context.Context) (int, error)
}

type searchService struct {
	Deps
	provider search.Provider
	opts     SearchOptions
	metrics  *metrics.Metrics
}

func NewSearchService(deps Deps, provider search.Provider, opts SearchOptions, m *metrics.Metrics) SearchService {
	def := DefaultSearchOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = def.MaxTries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = def.InitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = def.MaxBackoff
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &searchService{Deps: deps, provider: provider, opts: opts, metrics: m}
}

func (s *searchService) Reindex(ctx context.Context, articleID uint) error {
	start := time.Now()
	defer func() { s.metrics.ReindexDuration.Observe(time.Since(start).Seconds()) }()

	for pass := 0; pass < maxReindexPasses; pass++ {
		synced, err := s.reindexOnce(ctx, articleID)
		if err != nil {
			var ext models.ErrorExternalDependency
			if errors.As(err, &ext) {
				s.metrics.ReindexFailures.Inc()
			}
			s.logFailure("reindex", err, zap.Uint("article_id", articleID))
			return err
		}
		if synced {
			return nil
		}
	}
	s.logger().Warn("reindex kept racing promotions, leaving it to the reconciler", zap.Uint("article_id", articleID))
	return nil
}

// reindexOnce reports false when the current revision moved while the
// provider call was in flight.
func (s *searchService) reindexOnce(ctx context.Context, articleID uint) (bool, error) {
	repos := s.Store.Repos()
	article, err := repos.Articles.GetByID(ctx, articleID)
	if errors.Is(err, models.ErrorNotFound{}) {
		if rmErr := s.drop(ctx, articleID); rmErr != nil {
			return false, rmErr
		}
		return false, err
	}
	if err != nil {
		return false, err
	}

	if article.CurrentRevisionID == nil {
		if err := s.drop(ctx, articleID); err != nil {
			return false, err
		}
		return true, repos.SearchDocs.Delete(ctx, articleID)
	}

	rev, err := repos.Revisions.GetByID(ctx, *article.CurrentRevisionID)
	if err != nil {
		return false, err
	}
	err = s.call(ctx, "index", func(ctx context.Context) error {
		return s.provider.Index(ctx, article.ID, models.DisplayTitle(article.Title), rev.Content)
	})
	if err != nil {
		return false, err
	}

	synced := false
	err = s.Store.Transaction(ctx, func(r repositories.Repositories) error {
		a, err := r.Articles.LockByID(ctx, articleID)
		if err != nil {
			return err
		}
		if a.CurrentRevisionID == nil || *a.CurrentRevisionID != rev.ID {
			return nil
		}
		synced = true
		if err := r.SearchDocs.Upsert(ctx, &models.SearchDocument{
			ArticleID:  a.ID,
			RevisionID: rev.ID,
			Title:      a.Title,
			Provider:   s.provider.Name(),
			Payload:    rev.SearchFragment,
			SyncedAt:   now(),
		}); err != nil {
			return err
		}
		// The provider document now belongs to this article.
		if err := r.SearchDocs.ClearRemoval(ctx, a.ID); err != nil {
			return err
		}
		return r.Events.Append(ctx, &models.DomainEvent{
			Kind:       models.EventArticleReindexed,
			ArticleID:  a.ID,
			RevisionID: rev.ID,
			ActorID:    SystemActor,
			Data:       map[string]string{"provider": s.provider.Name()},
		})
	})
	if err != nil {
		return false, err
	}
	if synced {
		s.logger().Debug("article reindexed", zap.Uint("article_id", articleID), zap.Uint("revision_id", rev.ID))
	}
	return synced, nil
}

func (s *searchService) Remove(ctx context.Context, articleID uint) error {
	_, err := s.Store.Repos().Articles.GetByID(ctx, articleID)
	switch {
	case err == nil:
		return s.Reindex(ctx, articleID)
	case !errors.Is(err, models.ErrorNotFound{}):
		return err
	}
	if err := s.drop(ctx, articleID); err != nil {
		s.metrics.ReindexFailures.Inc()
		s.logFailure("remove", err, zap.Uint("article_id", articleID))
		return err
	}
	s.logger().Debug("article dropped from index", zap.Uint("article_id", articleID))
	return nil
}

// drop deletes the provider document, then the removal marker. A failed
// provider call leaves the marker for the next resync.
func (s *searchService) drop(ctx context.Context, articleID uint) error {
	err := s.call(ctx, "delete", func(ctx context.Context) error {
		return s.provider.Delete(ctx, articleID)
	})
	if err != nil {
		return err
	}
	return s.Store.Repos().SearchDocs.ClearRemoval(ctx, articleID)
}

// call runs one provider operation with a per-attempt timeout and bounded
// exponential backoff.
func (s *searchService) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialBackoff
	b.MaxInterval = s.opts.MaxBackoff

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		s.metrics.ReindexAttempts.Inc()
		callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
		return struct{}{}, fn(callCtx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.opts.MaxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			s.logger().Warn("search provider call failed, retrying",
				zap.String("op", op),
				zap.String("provider", s.provider.Name()),
				zap.Duration("next", next),
				zap.Error(err),
			)
		}),
	)
	if err != nil {
		return models.ErrorExternalDependency{Dependency: s.provider.Name(), Cause: err}
	}
	return nil
}

// Search ranks articles by relevance to the query. A blank query matches
// nothing.
func (s *searchService) Search(ctx context.Context, query string, limit int) ([]models.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []models.SearchResult{}, nil
	}
	limit = clampLimit(limit, defaultSearchLimit, maxSearchLimit)

	callCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()
	hits, err := s.provider.Search(callCtx, query, limit)
	if err != nil {
		s.logger().Error("search failed", zap.String("query", query), zap.Error(err))
		return nil, models.ErrorExternalDependency{Dependency: s.provider.Name(), Cause: err}
	}

	// The provider can lag the store. Hits for removed or unpublished
	// articles are dropped here and cleaned up by the reconciler.
	ids := make([]uint, 0, len(hits))
	for _, hit := range hits {
		ids = append(ids, hit.DocID)
	}
	articles, err := s.Store.Repos().Articles.ListByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load search hits: %w", err)
	}
	published := make(map[uint]string, len(articles))
	for _, a := range articles {
		if a.CurrentRevisionID != nil {
			published[a.ID] = a.Title
		}
	}

	results := make([]models.SearchResult, 0, len(hits))
	for _, hit := range hits {
		title, ok := published[hit.DocID]
		if !ok {
			continue
		}
		results = append(results, models.SearchResult{
			ArticleID: hit.DocID,
			Title:     title,
			Rank:      hit.Score,
			Snippet:   hit.Snippet,
		})
	}
	return results, nil
}

// SuggestTitles matches a case-insensitive title prefix, alphabetically.
func (s *searchService) SuggestTitles(ctx context.Context, prefix string, limit int) ([]string, error) {
	normalized := models.NormalizeTitle(prefix)
	if normalized == "" {
		return []string{}, nil
	}
	// A trailing separator narrows the match to multi-word titles.
	if last := prefix[len(prefix)-1]; last == ' ' || last == '_' {
		normalized += models.TitleSeparator
	}
	limit = clampLimit(limit, defaultSuggestLimit, maxSuggestLimit)

	titles, err := s.Store.Repos().Articles.SuggestTitles(ctx, normalized, limit)
	if err != nil {
		return nil, fmt.Errorf("suggest titles: %w", err)
	}
	if titles == nil {
		titles = []string{}
	}
	return titles, nil
}

func (s *searchService) Stale(ctx context.Context, limit int) ([]models.StaleArticle, error) {
	docs := s.Store.Repos().SearchDocs
	stale, err := docs.ListStale(ctx, limit)
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(stale) >= limit {
		return stale, nil
	}

	rest := 0
	if limit > 0 {
		rest = limit - len(stale)
	}
	removals, err := docs.ListRemovals(ctx, rest)
	if err != nil {
		return nil, err
	}
	for _, rm := range removals {
		stale = append(stale, models.StaleArticle{ArticleID: rm.ArticleID, Removed: true})
	}
	return stale, nil
}

// sync brings one stale entry up to date.
func (s *searchService) sync(ctx context.Context, item models.StaleArticle) error {
	if item.Removed {
		return s.Remove(ctx, item.ArticleID)
	}
	return s.Reindex(ctx, item.ArticleID)
}

func (s *searchService) Resync(ctx context.Context) (int, error) {
	stale, err := s.Stale(ctx, 0)
	if err != nil {
		return 0, err
	}

	var (
		synced atomic.Int64
		mu     sync.Mutex
		errs   []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resyncParallelism)
	for _, item := range stale {
		g.Go(func() error {
			if err := s.sync(gctx, item); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("article %d: %w", item.ArticleID, err))
				mu.Unlock()
				return nil
			}
			synced.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(synced.Load()), errors.Join(errs...)
}

func clampLimit(limit, def, max int) int {
	if limit <= 0 {
		return def
	}
	if limit > max {
		return max
	}
	return limit
}
