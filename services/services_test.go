package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"encyclopedia-cms/events"
	"encyclopedia-cms/metrics"
	"encyclopedia-cms/models"
	"encyclopedia-cms/repositories"
	"encyclopedia-cms/search"
	"encyclopedia-cms/search/memory"
	"encyclopedia-cms/testutil"

	promtest "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap/zaptest"
)

var (
	author    = models.Actor{ID: "alice", Role: models.RoleWriter}
	moderator = models.Actor{ID: "mod", Role: models.RoleModerator}
)

func reviewer(n int) models.Actor {
	return models.Actor{ID: fmt.Sprintf("reviewer-%d", n), Role: models.RoleEditor}
}

type ServiceTestSuite struct {
	suite.Suite
	ctx      context.Context
	store    repositories.Store
	bus      *events.Bus
	metrics  *metrics.Metrics
	provider *memory.Provider

	revisions  RevisionService
	moderation ModerationService
	reviews    PeerReviewService
	search     SearchService
}

func (s *ServiceTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.store, _ = testutil.OpenStore(s.T())

	policy := models.DefaultConsensusPolicy()
	policy.Quorum = 3
	policy.MaxReviewers = 5
	s.build(policy, models.DefaultModerationPolicy(), memory.New())
}

func (s *ServiceTestSuite) build(consensus models.ConsensusPolicy, moderation models.ModerationPolicy, provider search.Provider) {
	log := zaptest.NewLogger(s.T())
	s.bus = events.NewBus(log)
	s.metrics = metrics.NewNop()
	ObserveMetrics(s.bus, s.metrics)

	deps := Deps{Store: s.store, Bus: s.bus, Log: log}
	s.revisions = NewRevisionService(deps, moderation)
	s.moderation = NewModerationService(deps, moderation)
	reviews, err := NewPeerReviewService(deps, consensus)
	s.Require().NoError(err)
	s.reviews = reviews
	s.search = NewSearchService(deps, provider, SearchOptions{MaxTries: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond}, s.metrics)
	if p, ok := provider.(*memory.Provider); ok {
		s.provider = p
	}
}

func (s *ServiceTestSuite) submit(title, content string, base *uint) *models.SubmitRevisionResponse {
	resp, err := s.revisions.SubmitRevision(s.ctx, models.SubmitRevisionRequest{
		Title:          title,
		Content:        content,
		Comment:        "edit",
		AuthorID:       author.ID,
		BaseRevisionID: base,
		Priority:       models.PriorityNormal,
	})
	s.Require().NoError(err)
	return resp
}

func (s *ServiceTestSuite) review(revisionID uint, n int, score float64) error {
	r := reviewer(n)
	review, err := s.reviews.AssignReviewer(s.ctx, revisionID, r.ID, r)
	if err != nil {
		return err
	}
	_, err = s.reviews.SubmitReview(s.ctx, models.SubmitReviewRequest{
		ReviewID:       review.ID,
		ReviewerID:     r.ID,
		CriteriaScores: map[string]int{models.CriterionAccuracy: int(score)},
		OverallScore:   &score,
	})
	return err
}

func (s *ServiceTestSuite) approveDirectly(entryID uint) {
	_, err := s.moderation.Resolve(s.ctx, entryID, models.OutcomeApproved, "looks good", moderator)
	s.Require().NoError(err)
}

func (s *ServiceTestSuite) TestSubmitCreatesArticleAndQueuesRevision() {
	resp := s.submit("  Ancient   Rome ", "Rome was founded on the Tiber.", nil)

	s.True(resp.Created)
	s.Equal("Ancient_Rome", resp.Article.Title)
	s.Nil(resp.Article.CurrentRevisionID)
	s.Require().NotNil(resp.Article.HeadRevisionID)
	s.Equal(resp.Revision.ID, *resp.Article.HeadRevisionID)
	s.Equal(models.ContentRevision, resp.Entry.ContentKind)
	s.Equal(resp.Revision.ID, resp.Entry.ContentID)
	s.Equal(models.StatusInReview, resp.Entry.Status, "auto peer review starts the review")
	s.Equal(models.StatusInReview, resp.Revision.Status)

	view, err := s.revisions.GetCurrent(s.ctx, "Ancient Rome")
	s.Require().NoError(err)
	s.Nil(view.Current)

	actions, err := s.moderation.ListActions(s.ctx, resp.Entry.ID)
	s.Require().NoError(err)
	s.Require().Len(actions, 2)
	s.Equal(models.ActionEnqueue, actions[0].Action)
	s.Equal(models.ActionBeginReview, actions[1].Action)

	s.Equal(1.0, promtest.ToFloat64(s.metrics.Submissions.WithLabelValues("true")))
}

func (s *ServiceTestSuite) TestSubmitValidation() {
	_, err := s.revisions.SubmitRevision(s.ctx, models.SubmitRevisionRequest{Title: " _ ", Content: "x", AuthorID: "alice"})
	s.True(errors.Is(err, models.ErrorValidation{}))

	_, err = s.revisions.SubmitRevision(s.ctx, models.SubmitRevisionRequest{Title: "Empty", AuthorID: "alice"})
	s.True(errors.Is(err, models.ErrorValidation{}))
}

func (s *ServiceTestSuite) TestDuplicateTitleConflict() {
	s.submit("Ancient_Rome", "first", nil)

	_, err := s.revisions.SubmitRevision(s.ctx, models.SubmitRevisionRequest{Title: "Ancient Rome", Content: "second", AuthorID: "bob"})
	s.True(errors.Is(err, models.ErrDuplicateTitle))
}

func (s *ServiceTestSuite) TestConcurrentCreationHasOneWinner() {
	const writers = 8
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.revisions.SubmitRevision(s.ctx, models.SubmitRevisionRequest{
				Title:    "Contested",
				Content:  fmt.Sprintf("version %d", i),
				AuthorID: fmt.Sprintf("writer-%d", i),
			})
		}(i)
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, models.ErrDuplicateTitle):
			conflicts++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, succeeded)
	s.Equal(writers-1, conflicts)

	history, err := s.revisions.GetHistory(s.ctx, "Contested")
	s.Require().NoError(err)
	s.Len(history, 1)
}

func (s *ServiceTestSuite) TestEditConflictAndMissingBase() {
	first := s.submit("Topic", "v1", nil)
	second := s.submit("Topic", "v2", &first.Revision.ID)
	s.False(second.Created)

	_, err := s.revisions.SubmitRevision(s.ctx, models.SubmitRevisionRequest{
		Title: "Topic", Content: "stale", AuthorID: "bob", BaseRevisionID: &first.Revision.ID,
	})
	s.True(errors.Is(err, models.ErrEditConflict))

	missing := uint(999)
	_, err = s.revisions.SubmitRevision(s.ctx, models.SubmitRevisionRequest{
		Title: "Nowhere", Content: "x", AuthorID: "bob", BaseRevisionID: &missing,
	})
	s.True(errors.Is(err, models.ErrorNotFound{Resource: "article"}))
}

func (s *ServiceTestSuite) TestQuorumApprovalPromotes() {
	resp := s.submit("Ancient_Rome", "Rome was founded on the Tiber.", nil)
	rev := resp.Revision.ID

	s.Require().NoError(s.review(rev, 1, 5))
	s.Require().NoError(s.review(rev, 2, 4))

	decision, err := s.reviews.Consensus(s.ctx, rev)
	s.Require().NoError(err)
	s.Equal(models.DecisionUndecided, decision)

	s.Require().NoError(s.review(rev, 3, 4.5))

	decision, err = s.reviews.Consensus(s.ctx, rev)
	s.Require().NoError(err)
	s.Equal(models.DecisionApprove, decision)

	view, err := s.revisions.GetCurrent(s.ctx, "Ancient_Rome")
	s.Require().NoError(err)
	s.Require().NotNil(view.Current)
	s.Equal(rev, view.Current.ID)
	s.Equal(models.StatusApproved, view.Current.Status)
	s.True(view.Stale, "not yet reindexed")

	summary, err := s.reviews.Summary(s.ctx, rev)
	s.Require().NoError(err)
	s.Equal(3, summary.Completed)
	s.Equal(3, summary.Approved)
	s.True(summary.DecisionCached)
	s.Require().NotNil(summary.MeanScore)
	s.InDelta(4.5, *summary.MeanScore, 0.001)
	s.InDelta(0.96, summary.Confidence, 0.001)

	entries, _, err := s.moderation.ListQueue(s.ctx, models.QueueFilter{Status: models.StatusApproved})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(resp.Entry.ID, entries[0].ID)

	err = s.review(rev, 4, 1)
	s.True(errors.Is(err, models.ErrRevisionClosed), "decided revisions take no new reviewers")

	s.Equal(1.0, promtest.ToFloat64(s.metrics.ConsensusDecisions.WithLabelValues("approve")))
	s.Equal(1.0, promtest.ToFloat64(s.metrics.Promotions))
}

func (s *ServiceTestSuite) TestQuorumRejectionKeepsCurrent() {
	first := s.submit("Ancient_Rome", "original", nil)
	s.approveDirectly(first.Entry.ID)

	second := s.submit("Ancient_Rome", "vandalized", &first.Revision.ID)
	for i, score := range []float64{2, 1, 2} {
		s.Require().NoError(s.review(second.Revision.ID, i+1, score))
	}

	decision, err := s.reviews.Consensus(s.ctx, second.Revision.ID)
	s.Require().NoError(err)
	s.Equal(models.DecisionReject, decision)

	view, err := s.revisions.GetCurrent(s.ctx, "Ancient_Rome")
	s.Require().NoError(err)
	s.Equal(first.Revision.ID, view.Current.ID)

	history, err := s.revisions.GetHistory(s.ctx, "Ancient_Rome")
	s.Require().NoError(err)
	s.Require().Len(history, 2)
	s.Equal(second.Revision.ID, history[0].ID)
	s.Equal(models.StatusRejected, history[0].Status)
	s.Equal(models.StatusApproved, history[1].Status)
}

func (s *ServiceTestSuite) TestStalledConsensusEscalates() {
	policy := models.DefaultConsensusPolicy()
	policy.Quorum = 2
	policy.MaxReviewers = 3
	s.build(policy, models.DefaultModerationPolicy(), memory.New())

	resp := s.submit("Borderline", "text", nil)
	for i := 1; i <= 3; i++ {
		s.Require().NoError(s.review(resp.Revision.ID, i, 3))
	}

	decision, err := s.reviews.Consensus(s.ctx, resp.Revision.ID)
	s.Require().NoError(err)
	s.Equal(models.DecisionInsufficientConsensus, decision)

	err = s.review(resp.Revision.ID, 4, 5)
	s.True(errors.Is(err, models.ErrReviewerPoolExhausted))

	stats, err := s.moderation.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.Escalated)

	entries, _, err := s.moderation.ListQueue(s.ctx, models.QueueFilter{})
	s.Require().NoError(err)
	s.Require().Len(entries, 1)
	s.Equal(models.PriorityUrgent, entries[0].Priority)
	s.True(entries[0].Escalated)

	// A moderator settles it.
	_, err = s.moderation.Resolve(s.ctx, entries[0].ID, models.OutcomeApproved, "tie broken", moderator)
	s.Require().NoError(err)
	view, err := s.revisions.GetCurrent(s.ctx, "Borderline")
	s.Require().NoError(err)
	s.Equal(resp.Revision.ID, view.Current.ID)
}

func (s *ServiceTestSuite) TestIdleReviewersDoNotHideStall() {
	policy := models.DefaultConsensusPolicy()
	policy.Quorum = 3
	policy.MaxReviewers = 5
	s.build(policy, models.DefaultModerationPolicy(), memory.New())

	resp := s.submit("Contested", "text", nil)
	assigned := make([]*models.PeerReview, 0, 5)
	for i := 1; i <= 5; i++ {
		r := reviewer(i)
		review, err := s.reviews.AssignReviewer(s.ctx, resp.Revision.ID, r.ID, r)
		s.Require().NoError(err)
		assigned = append(assigned, review)
	}
	submit := func(review *models.PeerReview, score float64) error {
		_, err := s.reviews.SubmitReview(s.ctx, models.SubmitReviewRequest{
			ReviewID:       review.ID,
			ReviewerID:     review.ReviewerID,
			CriteriaScores: map[string]int{models.CriterionAccuracy: int(score)},
			OverallScore:   &score,
		})
		return err
	}
	for _, review := range assigned[:3] {
		s.Require().NoError(submit(review, 3))
	}

	sixth := reviewer(6)
	_, err := s.reviews.AssignReviewer(s.ctx, resp.Revision.ID, sixth.ID, sixth)
	s.True(errors.Is(err, models.ErrReviewerPoolExhausted))

	decision, err := s.reviews.Consensus(s.ctx, resp.Revision.ID)
	s.Require().NoError(err)
	s.Equal(models.DecisionInsufficientConsensus, decision)

	stats, err := s.moderation.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.Escalated)

	// A late reviewer can still settle it.
	s.Require().NoError(submit(assigned[3], 5))
	decision, err = s.reviews.Consensus(s.ctx, resp.Revision.ID)
	s.Require().NoError(err)
	s.Equal(models.DecisionApprove, decision)
	view, err := s.revisions.GetCurrent(s.ctx, "Contested")
	s.Require().NoError(err)
	s.Require().NotNil(view.Current)
	s.Equal(resp.Revision.ID, view.Current.ID)
}

func (s *ServiceTestSuite) TestFillingPoolEscalatesSplit() {
	policy := models.DefaultConsensusPolicy()
	policy.Quorum = 2
	policy.MaxReviewers = 3
	s.build(policy, models.DefaultModerationPolicy(), memory.New())

	resp := s.submit("Lukewarm", "text", nil)
	for i := 1; i <= 2; i++ {
		s.Require().NoError(s.review(resp.Revision.ID, i, 3))
	}
	stats, err := s.moderation.Stats(s.ctx)
	s.Require().NoError(err)
	s.Zero(stats.Escalated)

	late := reviewer(3)
	_, err = s.reviews.AssignReviewer(s.ctx, resp.Revision.ID, late.ID, late)
	s.Require().NoError(err)

	stats, err = s.moderation.Stats(s.ctx)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.Escalated)
}

func (s *ServiceTestSuite) TestNoSelfOrDoubleReview() {
	resp := s.submit("Reviewed", "text", nil)
	rev := resp.Revision.ID

	_, err := s.reviews.AssignReviewer(s.ctx, rev, author.ID, author)
	s.True(errors.Is(err, models.ErrSelfReview))

	r := reviewer(1)
	_, err = s.reviews.AssignReviewer(s.ctx, rev, "", r)
	s.Require().NoError(err)
	_, err = s.reviews.AssignReviewer(s.ctx, rev, r.ID, r)
	s.True(errors.Is(err, models.ErrAlreadyAssigned))

	_, err = s.reviews.AssignReviewer(s.ctx, rev, reviewer(2).ID, reviewer(3))
	s.True(errors.Is(err, models.ErrorUnauthorized{}), "only moderators assign others")
}

func (s *ServiceTestSuite) TestReviewLifecycle() {
	resp := s.submit("Lifecycle", "text", nil)
	r := reviewer(1)
	review, err := s.reviews.AssignReviewer(s.ctx, resp.Revision.ID, r.ID, moderator)
	s.Require().NoError(err)
	s.Equal(models.ReviewPending, review.Status)

	_, err = s.reviews.StartReview(s.ctx, review.ID, reviewer(2).ID)
	s.True(errors.Is(err, models.ErrNotAssignedReview))

	started, err := s.reviews.StartReview(s.ctx, review.ID, r.ID)
	s.Require().NoError(err)
	s.Equal(models.ReviewInProgress, started.Status)
	again, err := s.reviews.StartReview(s.ctx, review.ID, r.ID)
	s.Require().NoError(err)
	s.Equal(started.StartedAt.Unix(), again.StartedAt.Unix())

	_, err = s.reviews.SubmitReview(s.ctx, models.SubmitReviewRequest{
		ReviewID: review.ID, ReviewerID: r.ID, CriteriaScores: map[string]int{"charisma": 3},
	})
	s.True(errors.Is(err, models.ErrorValidation{}))

	_, err = s.reviews.SubmitReview(s.ctx, models.SubmitReviewRequest{
		ReviewID: review.ID, ReviewerID: r.ID, CriteriaScores: map[string]int{models.CriterionAccuracy: 9},
	})
	s.True(errors.Is(err, models.ErrorValidation{}))

	done, err := s.reviews.SubmitReview(s.ctx, models.SubmitReviewRequest{
		ReviewID:   review.ID,
		ReviewerID: r.ID,
		CriteriaScores: map[string]int{
			models.CriterionAccuracy: 4,
			models.CriterionClarity:  3,
		},
		Feedback: models.Feedback{Summary: "solid"},
	})
	s.Require().NoError(err)
	s.Equal(models.ReviewCompleted, done.Status)
	s.Require().NotNil(done.OverallScore)
	s.InDelta(3.5, *done.OverallScore, 0.001)

	_, err = s.reviews.SubmitReview(s.ctx, models.SubmitReviewRequest{
		ReviewID: review.ID, ReviewerID: r.ID, CriteriaScores: map[string]int{models.CriterionAccuracy: 1},
	})
	s.True(errors.Is(err, models.ErrReviewCompleted))

	stats, err := s.reviews.ReviewerStats(s.ctx, r.ID)
	s.Require().NoError(err)
	s.Equal(int64(1), stats.Completed)
	s.Require().NotNil(stats.AverageScore)
	s.InDelta(3.5, *stats.AverageScore, 0.001)
}

func (s *ServiceTestSuite) TestModerationStatesMoveForwardOnly() {
	resp := s.submit("Forward", "text", nil)

	entry, err := s.moderation.BeginReview(s.ctx, resp.Entry.ID, moderator)
	s.Require().NoError(err)
	s.Equal(models.StatusInReview, entry.Status)

	_, err = s.moderation.BeginReview(s.ctx, resp.Entry.ID, author)
	s.True(errors.Is(err, models.ErrorUnauthorized{}))

	entry, err = s.moderation.Assign(s.ctx, resp.Entry.ID, "mod-2", moderator)
	s.Require().NoError(err)
	s.Require().NotNil(entry.AssignedTo)
	s.Equal("mod-2", *entry.AssignedTo)

	_, err = s.moderation.Resolve(s.ctx, resp.Entry.ID, models.OutcomeRejected, "off topic", moderator)
	s.Require().NoError(err)

	_, err = s.moderation.Resolve(s.ctx, resp.Entry.ID, models.OutcomeApproved, "changed my mind", moderator)
	s.True(errors.Is(err, models.ErrAlreadyResolved))

	_, err = s.moderation.BeginReview(s.ctx, resp.Entry.ID, moderator)
	s.True(errors.Is(err, models.ErrorInvalidTransition{}))

	_, err = s.moderation.Assign(s.ctx, resp.Entry.ID, "mod-3", moderator)
	s.True(errors.Is(err, models.ErrAlreadyResolved))

	rev, err := s.revisions.GetRevision(s.ctx, resp.Revision.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusRejected, rev.Status)

	_, err = s.revisions.PromoteToCurrent(s.ctx, rev.ID, moderator)
	s.True(errors.Is(err, models.ErrInvalidPromotion))
}

func (s *ServiceTestSuite) TestDirectResolutionPolicy() {
	policy := models.DefaultConsensusPolicy()
	s.build(policy, models.ModerationPolicy{AutoPeerReview: false, AllowDirectResolution: false}, memory.New())

	resp := s.submit("Strict", "text", nil)
	s.Equal(models.StatusPending, resp.Entry.Status)

	_, err := s.moderation.Resolve(s.ctx, resp.Entry.ID, models.OutcomeApproved, "", moderator)
	s.True(errors.Is(err, models.ErrDirectResolution))

	_, err = s.moderation.BeginReview(s.ctx, resp.Entry.ID, moderator)
	s.Require().NoError(err)
	_, err = s.moderation.Resolve(s.ctx, resp.Entry.ID, models.OutcomeApproved, "", moderator)
	s.Require().NoError(err)
}

func (s *ServiceTestSuite) TestPromoteEarlierApprovedRevision() {
	first := s.submit("Rollback", "v1", nil)
	s.approveDirectly(first.Entry.ID)
	second := s.submit("Rollback", "v2", &first.Revision.ID)
	s.approveDirectly(second.Entry.ID)

	view, err := s.revisions.PromoteToCurrent(s.ctx, first.Revision.ID, moderator)
	s.Require().NoError(err)
	s.Equal(first.Revision.ID, *view.Article.CurrentRevisionID)

	_, err = s.revisions.PromoteToCurrent(s.ctx, first.Revision.ID, author)
	s.True(errors.Is(err, models.ErrorUnauthorized{}))

	_, err = s.revisions.PromoteToCurrent(s.ctx, 4242, moderator)
	s.True(errors.Is(err, models.ErrorNotFound{}))
}

func (s *ServiceTestSuite) TestSuggestTitles() {
	for _, title := range []string{"Ancient_Rome", "Ancient_Egypt", "Anchor", "Modern_Art"} {
		s.submit(title, "text", nil)
	}

	titles, err := s.search.SuggestTitles(s.ctx, "Anci", 0)
	s.Require().NoError(err)
	s.Equal([]string{"Ancient_Egypt", "Ancient_Rome"}, titles)

	titles, err = s.search.SuggestTitles(s.ctx, "anc", 2)
	s.Require().NoError(err)
	s.Equal([]string{"Anchor", "Ancient_Egypt"}, titles)

	titles, err = s.search.SuggestTitles(s.ctx, "Ancient E", 0)
	s.Require().NoError(err)
	s.Equal([]string{"Ancient_Egypt"}, titles)

	titles, err = s.search.SuggestTitles(s.ctx, "   ", 0)
	s.Require().NoError(err)
	s.Empty(titles)
}

func (s *ServiceTestSuite) TestReindexThenSearch() {
	resp := s.submit("Ancient_Rome", "Rome was founded on the Tiber. The empire spanned three continents.", nil)
	s.approveDirectly(resp.Entry.ID)

	stale, err := s.search.Stale(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)

	s.Require().NoError(s.search.Reindex(s.ctx, resp.Article.ID))

	results, err := s.search.Search(s.ctx, "empire", 10)
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Equal(resp.Article.ID, results[0].ArticleID)
	s.Equal("Ancient_Rome", results[0].Title)
	s.Contains(results[0].Snippet, "**empire**")

	stale, err = s.search.Stale(s.ctx, 0)
	s.Require().NoError(err)
	s.Empty(stale)

	view, err := s.revisions.GetCurrent(s.ctx, "Ancient_Rome")
	s.Require().NoError(err)
	s.False(view.Stale)

	results, err = s.search.Search(s.ctx, "  ", 10)
	s.Require().NoError(err)
	s.Empty(results)
}

func (s *ServiceTestSuite) TestPromotionMakesDocumentStale() {
	first := s.submit("Drifting", "alpha text", nil)
	s.approveDirectly(first.Entry.ID)
	s.Require().NoError(s.search.Reindex(s.ctx, first.Article.ID))

	second := s.submit("Drifting", "beta text", &first.Revision.ID)
	s.approveDirectly(second.Entry.ID)

	stale, err := s.search.Stale(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(first.Revision.ID, *stale[0].IndexedRevisionID)

	synced, err := s.search.Resync(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, synced)

	results, err := s.search.Search(s.ctx, "beta", 10)
	s.Require().NoError(err)
	s.Len(results, 1)
	results, err = s.search.Search(s.ctx, "alpha", 10)
	s.Require().NoError(err)
	s.Empty(results)
}

func (s *ServiceTestSuite) TestRemoveArticleCascades() {
	resp := s.submit("Doomed", "text to find", nil)
	s.Require().NoError(s.review(resp.Revision.ID, 1, 4))
	s.approveDirectly(resp.Entry.ID)
	s.Require().NoError(s.search.Reindex(s.ctx, resp.Article.ID))

	err := s.revisions.RemoveArticle(s.ctx, "Doomed", author)
	s.True(errors.Is(err, models.ErrorUnauthorized{}))

	s.Require().NoError(s.revisions.RemoveArticle(s.ctx, "Doomed", moderator))
	s.Require().NoError(s.search.Remove(s.ctx, resp.Article.ID))

	_, err = s.revisions.GetCurrent(s.ctx, "Doomed")
	s.True(errors.Is(err, models.ErrorNotFound{}))
	_, err = s.revisions.GetRevision(s.ctx, resp.Revision.ID)
	s.True(errors.Is(err, models.ErrorNotFound{}))
	_, err = s.moderation.ListActions(s.ctx, resp.Entry.ID)
	s.True(errors.Is(err, models.ErrorNotFound{}))

	results, err := s.search.Search(s.ctx, "find", 10)
	s.Require().NoError(err)
	s.Empty(results)

	err = s.revisions.RemoveArticle(s.ctx, "Doomed", moderator)
	s.True(errors.Is(err, models.ErrorNotFound{}))
}

func (s *ServiceTestSuite) TestRemovalWithoutReindexerIsResynced() {
	resp := s.submit("Ancient Egypt", "Pyramids rise along the Nile.", nil)
	s.approveDirectly(resp.Entry.ID)
	s.Require().NoError(s.search.Reindex(s.ctx, resp.Article.ID))

	s.Require().NoError(s.revisions.RemoveArticle(s.ctx, "Ancient Egypt", moderator))

	results, err := s.search.Search(s.ctx, "nile", 10)
	s.Require().NoError(err)
	s.Empty(results, "hits for removed articles are not served")
	s.Equal(1, s.provider.Len())

	stale, err := s.search.Stale(s.ctx, 0)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.Equal(resp.Article.ID, stale[0].ArticleID)
	s.True(stale[0].Removed)

	synced, err := s.search.Resync(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, synced)
	s.Zero(s.provider.Len())

	stale, err = s.search.Stale(s.ctx, 0)
	s.Require().NoError(err)
	s.Empty(stale)
}

func (s *ServiceTestSuite) TestFailedRemovalIsReconciled() {
	index := memory.New()
	flaky := &flakyProvider{Provider: index}
	s.build(models.DefaultConsensusPolicy(), models.DefaultModerationPolicy(), flaky)

	resp := s.submit("Atlantis", "Sunk beneath the waves.", nil)
	s.approveDirectly(resp.Entry.ID)
	s.Require().NoError(s.search.Reindex(s.ctx, resp.Article.ID))
	s.Require().NoError(s.revisions.RemoveArticle(s.ctx, "Atlantis", moderator))

	flaky.deleteFailures = 3
	err := s.search.Remove(s.ctx, resp.Article.ID)
	s.True(errors.Is(err, models.ErrSearchUnavailable))
	s.Equal(1, index.Len())

	stale, err := s.search.Stale(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(stale, 1)
	s.True(stale[0].Removed)

	reindexer := NewReindexer(s.search, nil, ReindexerOptions{ReconcileRate: 1000}, s.metrics, nil)
	synced, err := reindexer.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(1, synced)
	s.Zero(index.Len())

	stale, err = s.search.Stale(s.ctx, 10)
	s.Require().NoError(err)
	s.Empty(stale)
}

func (s *ServiceTestSuite) TestReindexFailureIsExternalDependency() {
	flaky := &flakyProvider{Provider: memory.New(), failures: 100}
	s.build(models.DefaultConsensusPolicy(), models.DefaultModerationPolicy(), flaky)

	resp := s.submit("Unreachable", "text", nil)
	s.approveDirectly(resp.Entry.ID)

	err := s.search.Reindex(s.ctx, resp.Article.ID)
	s.True(errors.Is(err, models.ErrSearchUnavailable))
	s.Equal(3, flaky.calls)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ReindexFailures))

	view, err := s.revisions.GetCurrent(s.ctx, "Unreachable")
	s.Require().NoError(err)
	s.Equal(resp.Revision.ID, view.Current.ID, "promotion does not depend on the provider")
	s.True(view.Stale)
}

func (s *ServiceTestSuite) TestReindexRetriesTransientFailures() {
	flaky := &flakyProvider{Provider: memory.New(), failures: 2}
	s.build(models.DefaultConsensusPolicy(), models.DefaultModerationPolicy(), flaky)

	resp := s.submit("Flaky", "eventually indexed", nil)
	s.approveDirectly(resp.Entry.ID)

	s.Require().NoError(s.search.Reindex(s.ctx, resp.Article.ID))
	s.Equal(3, flaky.calls)

	results, err := s.search.Search(s.ctx, "indexed", 10)
	s.Require().NoError(err)
	s.Len(results, 1)
}

func (s *ServiceTestSuite) TestReindexerFollowsPromotions() {
	reindexer := NewReindexer(s.search, s.bus, ReindexerOptions{ReconcileInterval: time.Hour, ReconcileRate: 1000}, s.metrics, zaptest.NewLogger(s.T()))

	ctx, cancel := context.WithCancel(s.ctx)
	done := make(chan error, 1)
	go func() { done <- reindexer.Run(ctx) }()
	defer func() {
		cancel()
		s.NoError(<-done)
	}()

	resp := s.submit("Followed", "watched closely", nil)
	s.approveDirectly(resp.Entry.ID)

	s.Eventually(func() bool {
		results, err := s.search.Search(s.ctx, "watched", 10)
		return err == nil && len(results) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func (s *ServiceTestSuite) TestReconcileCatchesUp() {
	reindexer := NewReindexer(s.search, nil, ReindexerOptions{ReconcileRate: 1000}, s.metrics, nil)

	for _, title := range []string{"One", "Two"} {
		resp := s.submit(title, "catch up "+title, nil)
		s.approveDirectly(resp.Entry.ID)
	}

	synced, err := reindexer.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Equal(2, synced)
	s.Equal(2, s.provider.Len())

	synced, err = reindexer.Reconcile(s.ctx)
	s.Require().NoError(err)
	s.Zero(synced)
}

func (s *ServiceTestSuite) TestReindexerDropsWhenFull() {
	reindexer := NewReindexer(s.search, nil, ReindexerOptions{Buffer: 1}, s.metrics, nil)
	reindexer.Enqueue(1, false)
	reindexer.Enqueue(2, false)
	s.Equal(1.0, promtest.ToFloat64(s.metrics.ReindexDropped))
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

// flakyProvider fails the first failures Index calls and the next
// deleteFailures Delete calls.
type flakyProvider struct {
	search.Provider
	mu             sync.Mutex
	failures       int
	calls          int
	deleteFailures int
}

func (f *flakyProvider) Delete(ctx context.Context, docID uint) error {
	f.mu.Lock()
	fail := f.deleteFailures > 0
	if fail {
		f.deleteFailures--
	}
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.Provider.Delete(ctx, docID)
}

func (f *flakyProvider) Index(ctx context.Context, docID uint, title, body string) error {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return errors.New("connection refused")
	}
	return f.Provider.Index(ctx, docID, title, body)
}
