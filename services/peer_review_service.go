package services

import (
	"context"
	"fmt"

	"encyclopedia-cms/models"
	"encyclopedia-cms/repositories"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const decisionCacheSize = 4096

type PeerReviewService interface {
	AssignReviewer(ctx context.Context, revisionID uint, reviewerID string, actor models.Actor) (*models.PeerReview, error)
	StartReview(ctx context.Context, reviewID uint, reviewerID string) (*models.PeerReview, error)
	SubmitReview(ctx context.Context, req models.SubmitReviewRequest) (*models.PeerReview, error)
	Consensus(ctx context.Context, revisionID uint) (models.Decision, error)
	Summary(ctx context.Context, revisionID uint) (models.ConsensusSummary, error)
	ListReviews(ctx context.Context, revisionID uint) ([]models.PeerReview, error)
	ReviewerStats(ctx context.Context, reviewerID string) (models.ReviewerStats, error)
}

type peerReviewService struct {
	Deps
	policy models.ConsensusPolicy
	// decisions caches final decisions by revision id. Final decisions never
	// change, so entries only leave when their article is removed.
	decisions *lru.Cache[uint, models.ConsensusDecision]
}

func NewPeerReviewService(deps Deps, policy models.ConsensusPolicy) (PeerReviewService, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("consensus policy: %w", err)
	}
	cache, err := lru.New[uint, models.ConsensusDecision](decisionCacheSize)
	if err != nil {
		return nil, err
	}
	s := &peerReviewService{Deps: deps, policy: policy, decisions: cache}
	if deps.Bus != nil {
		deps.Bus.Subscribe(func(models.DomainEvent) { s.decisions.Purge() }, models.EventArticleRemoved)
	}
	return s, nil
}

// AssignReviewer creates a pending review for the reviewer and moves the
// revision's queue entry into review.
func (s *peerReviewService) AssignReviewer(ctx context.Context, revisionID uint, reviewerID string, actor models.Actor) (*models.PeerReview, error) {
	if reviewerID == "" {
		reviewerID = actor.ID
	}
	if reviewerID != actor.ID {
		if err := requireModerator(actor); err != nil {
			return nil, err
		}
	}

	var review models.PeerReview
	err := s.transact(ctx, func(r repositories.Repositories, out *outbox) error {
		rev, entry, err := lockEntryForRevision(ctx, r, revisionID)
		if err != nil {
			return err
		}
		if rev.Status.IsTerminal() {
			return models.ErrorInvalidTransition{
				Reason:  models.ReasonRevisionClosed,
				Message: fmt.Sprintf("revision %d is already %s", rev.ID, rev.Status),
			}
		}
		if rev.AuthorID == reviewerID {
			return models.ErrorUnauthorized{
				Reason:  models.ReasonSelfReview,
				Message: "reviewer " + reviewerID + " authored revision " + idString(rev.ID),
			}
		}

		existing, err := r.Reviews.ListByRevision(ctx, rev.ID)
		if err != nil {
			return err
		}
		for _, e := range existing {
			if e.ReviewerID == reviewerID {
				return models.ErrorConflict{
					Reason:  models.ReasonAlreadyAssigned,
					Message: fmt.Sprintf("reviewer %s already assigned to revision %d", reviewerID, rev.ID),
				}
			}
		}
		if len(existing) >= s.policy.MaxReviewers {
			return models.ErrorConflict{
				Reason:  models.ReasonReviewerPoolExhausted,
				Message: fmt.Sprintf("revision %d already has %d reviewers", rev.ID, len(existing)),
			}
		}

		review = models.PeerReview{
			RevisionID: rev.ID,
			ReviewerID: reviewerID,
			Status:     models.ReviewPending,
		}
		if err := r.Reviews.Create(ctx, &review); err != nil {
			return err
		}
		if err := beginReview(ctx, r, out, rev, entry, actor.ID); err != nil {
			return err
		}
		// Filling the pool can stall a split revision.
		if len(existing)+1 >= s.policy.MaxReviewers {
			if _, err := s.evaluate(ctx, r, out, rev); err != nil {
				return err
			}
		}
		return out.record(ctx, r, models.DomainEvent{
			Kind:       models.EventReviewerAssigned,
			ArticleID:  rev.ArticleID,
			RevisionID: rev.ID,
			EntryID:    entry.ID,
			ActorID:    actor.ID,
			Data:       map[string]string{"reviewer_id": reviewerID},
		})
	})
	if err != nil {
		s.logFailure("assign reviewer", err, zap.Uint("revision_id", revisionID), zap.String("reviewer", reviewerID))
		return nil, err
	}
	return &review, nil
}

// StartReview marks a pending review in progress. Repeating it is a no-op.
func (s *peerReviewService) StartReview(ctx context.Context, reviewID uint, reviewerID string) (*models.PeerReview, error) {
	var review *models.PeerReview
	err := s.transact(ctx, func(r repositories.Repositories, out *outbox) error {
		var err error
		review, err = s.lockReview(ctx, r, reviewID, reviewerID)
		if err != nil {
			return err
		}
		if review.Status != models.ReviewPending {
			return nil
		}
		started := now()
		review.Status = models.ReviewInProgress
		review.StartedAt = &started
		return r.Reviews.Save(ctx, review)
	})
	if err != nil {
		s.logFailure("start review", err, zap.Uint("review_id", reviewID))
		return nil, err
	}
	return review, nil
}

// SubmitReview completes a review and re-evaluates consensus under the
// revision lock, so the review that reaches quorum always decides.
func (s *peerReviewService) SubmitReview(ctx context.Context, req models.SubmitReviewRequest) (*models.PeerReview, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := validateScores(req.CriteriaScores, req.OverallScore, s.policy.CriteriaWeights); err != nil {
		return nil, err
	}
	overall, err := OverallScore(req.CriteriaScores, req.OverallScore, s.policy)
	if err != nil {
		return nil, err
	}

	var review *models.PeerReview
	var decided *models.ConsensusDecision
	err = s.transact(ctx, func(r repositories.Repositories, out *outbox) error {
		decided = nil
		var err error
		review, err = s.lockReview(ctx, r, req.ReviewID, req.ReviewerID)
		if err != nil {
			return err
		}

		completedAt := now()
		review.CriteriaScores = req.CriteriaScores
		review.OverallScore = &overall
		review.Feedback = req.Feedback
		review.Status = models.ReviewCompleted
		review.CompletedAt = &completedAt
		if review.StartedAt == nil {
			review.StartedAt = &completedAt
		}
		if err := r.Reviews.Save(ctx, review); err != nil {
			return err
		}

		rev, err := r.Revisions.GetByID(ctx, review.RevisionID)
		if err != nil {
			return err
		}
		if err := out.record(ctx, r, models.DomainEvent{
			Kind:       models.EventReviewCompleted,
			ArticleID:  rev.ArticleID,
			RevisionID: rev.ID,
			ActorID:    req.ReviewerID,
			Data:       map[string]string{"overall_score": fmt.Sprintf("%.1f", overall)},
		}); err != nil {
			return err
		}

		decided, err = s.evaluate(ctx, r, out, rev)
		return err
	})
	if err != nil {
		s.logFailure("submit review", err, zap.Uint("review_id", req.ReviewID))
		return nil, err
	}

	if decided != nil {
		s.decisions.Add(decided.RevisionID, *decided)
		s.logger().Info("consensus reached",
			zap.Uint("revision_id", decided.RevisionID),
			zap.String("decision", string(decided.Decision)),
			zap.Float64("mean", decided.MeanScore),
		)
	}
	return review, nil
}

// lockReview locks the review's revision and then loads the review, which
// must belong to reviewerID.
func (s *peerReviewService) lockReview(ctx context.Context, r repositories.Repositories, reviewID uint, reviewerID string) (*models.PeerReview, error) {
	review, err := r.Reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if _, err := r.Revisions.LockByID(ctx, review.RevisionID); err != nil {
		return nil, err
	}
	review, err = r.Reviews.GetByID(ctx, reviewID)
	if err != nil {
		return nil, err
	}
	if review.ReviewerID != reviewerID {
		return nil, models.ErrorUnauthorized{
			Reason:  models.ReasonNotAssignedReviewer,
			Message: fmt.Sprintf("review %d is assigned to another reviewer", reviewID),
		}
	}
	if review.IsCompleted() {
		return nil, models.ErrorInvalidTransition{
			Reason:  models.ReasonReviewCompleted,
			Message: fmt.Sprintf("review %d is already completed", reviewID),
		}
	}
	return review, nil
}

// evaluate applies the consensus decision for rev. The caller holds the
// revision lock. It returns the decision when one was newly recorded.
func (s *peerReviewService) evaluate(ctx context.Context, r repositories.Repositories, out *outbox, rev *models.Revision) (*models.ConsensusDecision, error) {
	if rev.Status.IsTerminal() {
		return nil, nil
	}
	cached, err := r.Reviews.GetDecision(ctx, rev.ID)
	if err != nil || cached != nil {
		return nil, err
	}

	reviews, err := r.Reviews.ListByRevision(ctx, rev.ID)
	if err != nil {
		return nil, err
	}
	result := EvaluateConsensus(reviews, s.policy)

	switch result.Decision {
	case models.DecisionApprove, models.DecisionReject:
		decision := &models.ConsensusDecision{
			RevisionID:  rev.ID,
			Decision:    result.Decision,
			MeanScore:   models.RoundScore(*result.Mean),
			ReviewCount: result.Completed,
			DecidedAt:   now(),
		}
		if err := r.Reviews.SaveDecision(ctx, decision); err != nil {
			return nil, err
		}
		if err := out.record(ctx, r, models.DomainEvent{
			Kind:       models.EventConsensusReached,
			ArticleID:  rev.ArticleID,
			RevisionID: rev.ID,
			ActorID:    SystemActor,
			Data: map[string]string{
				"decision": string(decision.Decision),
				"mean":     fmt.Sprintf("%.1f", decision.MeanScore),
				"reviews":  fmt.Sprint(decision.ReviewCount),
			},
		}); err != nil {
			return nil, err
		}
		if err := s.applyDecision(ctx, r, out, rev, decision); err != nil {
			return nil, err
		}
		return decision, nil

	case models.DecisionInsufficientConsensus:
		entry, err := r.Queue.GetByContent(ctx, models.ContentRef{Kind: models.ContentRevision, ID: rev.ID})
		if err != nil {
			return nil, err
		}
		entry, err = r.Queue.LockByID(ctx, entry.ID)
		if err != nil {
			return nil, err
		}
		reason := fmt.Sprintf("no consensus after %d reviews (mean %.1f)", result.Completed, *result.Mean)
		return nil, escalate(ctx, r, out, rev, entry, reason)
	}
	return nil, nil
}

// applyDecision resolves the queue entry with the consensus outcome.
func (s *peerReviewService) applyDecision(ctx context.Context, r repositories.Repositories, out *outbox, rev *models.Revision, decision *models.ConsensusDecision) error {
	outcome, ok := decision.Decision.Outcome()
	if !ok {
		return nil
	}
	entry, err := r.Queue.GetByContent(ctx, models.ContentRef{Kind: models.ContentRevision, ID: rev.ID})
	if err != nil {
		return err
	}
	entry, err = r.Queue.LockByID(ctx, entry.ID)
	if err != nil {
		return err
	}
	if err := beginReview(ctx, r, out, rev, entry, SystemActor); err != nil {
		return err
	}
	reason := fmt.Sprintf("peer review consensus: mean %.1f over %d reviews", decision.MeanScore, decision.ReviewCount)
	return resolveEntry(ctx, r, out, rev, entry, outcome, reason, SystemActor, "consensus")
}

// Consensus returns the recorded decision for the revision, or evaluates
// its reviews when none has been recorded.
func (s *peerReviewService) Consensus(ctx context.Context, revisionID uint) (models.Decision, error) {
	if d, ok := s.decisions.Get(revisionID); ok {
		return d.Decision, nil
	}
	repos := s.Store.Repos()
	if _, err := repos.Revisions.GetByID(ctx, revisionID); err != nil {
		return "", err
	}
	cached, err := repos.Reviews.GetDecision(ctx, revisionID)
	if err != nil {
		return "", err
	}
	if cached != nil {
		s.decisions.Add(revisionID, *cached)
		return cached.Decision, nil
	}
	reviews, err := repos.Reviews.ListByRevision(ctx, revisionID)
	if err != nil {
		return "", err
	}
	return EvaluateConsensus(reviews, s.policy).Decision, nil
}

func (s *peerReviewService) Summary(ctx context.Context, revisionID uint) (models.ConsensusSummary, error) {
	repos := s.Store.Repos()
	if _, err := repos.Revisions.GetByID(ctx, revisionID); err != nil {
		return models.ConsensusSummary{}, err
	}
	reviews, err := repos.Reviews.ListByRevision(ctx, revisionID)
	if err != nil {
		return models.ConsensusSummary{}, err
	}

	var cached *models.ConsensusDecision
	if d, ok := s.decisions.Get(revisionID); ok {
		cached = &d
	} else if cached, err = repos.Reviews.GetDecision(ctx, revisionID); err != nil {
		return models.ConsensusSummary{}, err
	}
	return summarize(revisionID, reviews, s.policy, cached), nil
}

func (s *peerReviewService) ListReviews(ctx context.Context, revisionID uint) ([]models.PeerReview, error) {
	repos := s.Store.Repos()
	if _, err := repos.Revisions.GetByID(ctx, revisionID); err != nil {
		return nil, err
	}
	return repos.Reviews.ListByRevision(ctx, revisionID)
}

func (s *peerReviewService) ReviewerStats(ctx context.Context, reviewerID string) (models.ReviewerStats, error) {
	if reviewerID == "" {
		return models.ReviewerStats{}, models.ErrorValidation{Field: "reviewer_id", Message: "reviewer is required"}
	}
	return s.Store.Repos().Reviews.ReviewerStats(ctx, reviewerID)
}
