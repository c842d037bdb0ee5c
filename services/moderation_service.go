package services

import (
	"context"
	"fmt"

	"encyclopedia-cms/models"
	"encyclopedia-cms/repositories"

	"go.uber.org/zap"
)

type ModerationService interface {
	BeginReview(ctx context.Context, entryID uint, actor models.Actor) (*models.ModerationQueueEntry, error)
	Assign(ctx context.Context, entryID uint, moderatorID string, actor models.Actor) (*models.ModerationQueueEntry, error)
	Resolve(ctx context.Context, entryID uint, outcome models.Outcome, reason string, actor models.Actor) (*models.ModerationQueueEntry, error)
	ListQueue(ctx context.Context, filter models.QueueFilter) ([]models.ModerationQueueEntry, int64, error)
	Stats(ctx context.Context) (models.QueueStats, error)
	ListActions(ctx context.Context, entryID uint) ([]models.ModerationAction, error)
}

type moderationService struct {
	Deps
	policy models.ModerationPolicy
}

func NewModerationService(deps Deps, policy models.ModerationPolicy) ModerationService {
	return &moderationService{Deps: deps, policy: policy}
}

// BeginReview moves a pending entry to in_review. Repeating it is a no-op.
func (s *moderationService) BeginReview(ctx context.Context, entryID uint, actor models.Actor) (*models.ModerationQueueEntry, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}

	var result models.ModerationQueueEntry
	err := s.transact(ctx, func(r repositories.Repositories, out *outbox) error {
		rev, entry, err := lockEntry(ctx, r, entryID)
		if err != nil {
			return err
		}
		if err := beginReview(ctx, r, out, rev, entry, actor.ID); err != nil {
			return err
		}
		result = *entry
		return nil
	})
	if err != nil {
		s.logFailure("begin review", err, zap.Uint("entry_id", entryID))
		return nil, err
	}
	return &result, nil
}

// Assign hands the entry to a moderator. Entries can be reassigned until
// they are resolved.
func (s *moderationService) Assign(ctx context.Context, entryID uint, moderatorID string, actor models.Actor) (*models.ModerationQueueEntry, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	if moderatorID == "" {
		return nil, models.ErrorValidation{Field: "moderator_id", Message: "moderator is required"}
	}

	var result models.ModerationQueueEntry
	err := s.transact(ctx, func(r repositories.Repositories, out *outbox) error {
		_, entry, err := lockEntry(ctx, r, entryID)
		if err != nil {
			return err
		}
		if entry.Status.IsTerminal() {
			return models.ErrorConflict{
				Reason:  models.ReasonAlreadyResolved,
				Message: fmt.Sprintf("entry %d is already %s", entry.ID, entry.Status),
			}
		}

		assignee := moderatorID
		entry.AssignedTo = &assignee
		if err := r.Queue.Save(ctx, entry); err != nil {
			return err
		}
		if err := r.Queue.AddAction(ctx, &models.ModerationAction{
			EntryID:   entry.ID,
			ArticleID: entry.ArticleID,
			Action:    models.ActionAssign,
			ActorID:   actor.ID,
			Reason:    "assigned to " + moderatorID,
		}); err != nil {
			return err
		}
		if err := out.record(ctx, r, models.DomainEvent{
			Kind:       models.EventEntryAssigned,
			ArticleID:  entry.ArticleID,
			RevisionID: entry.ContentID,
			EntryID:    entry.ID,
			ActorID:    actor.ID,
			Data:       map[string]string{"moderator_id": moderatorID},
		}); err != nil {
			return err
		}
		result = *entry
		return nil
	})
	if err != nil {
		s.logFailure("assign entry", err, zap.Uint("entry_id", entryID))
		return nil, err
	}
	return &result, nil
}

// Resolve approves or rejects an entry. Approval promotes the revision in
// the same transaction.
func (s *moderationService) Resolve(ctx context.Context, entryID uint, outcome models.Outcome, reason string, actor models.Actor) (*models.ModerationQueueEntry, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}
	if _, err := outcome.Status(); err != nil {
		return nil, err
	}

	var result models.ModerationQueueEntry
	err := s.transact(ctx, func(r repositories.Repositories, out *outbox) error {
		rev, entry, err := lockEntry(ctx, r, entryID)
		if err != nil {
			return err
		}
		if entry.Status == models.StatusPending && !s.policy.AllowDirectResolution {
			return models.ErrorInvalidTransition{
				Reason:  models.ReasonDirectResolution,
				Message: fmt.Sprintf("entry %d must be in review before it is resolved", entry.ID),
			}
		}
		if err := resolveEntry(ctx, r, out, rev, entry, outcome, reason, actor.ID, "moderator"); err != nil {
			return err
		}
		result = *entry
		return nil
	})
	if err != nil {
		s.logFailure("resolve entry", err, zap.Uint("entry_id", entryID), zap.String("outcome", string(outcome)))
		return nil, err
	}

	s.logger().Info("entry resolved",
		zap.Uint("entry_id", entryID),
		zap.String("outcome", string(outcome)),
		zap.String("moderator", actor.ID),
	)
	return &result, nil
}

func (s *moderationService) ListQueue(ctx context.Context, filter models.QueueFilter) ([]models.ModerationQueueEntry, int64, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, models.ErrorValidation{Field: "status", Message: "unknown status " + string(filter.Status)}
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.Store.Repos().Queue.List(ctx, filter)
}

func (s *moderationService) Stats(ctx context.Context) (models.QueueStats, error) {
	return s.Store.Repos().Queue.Stats(ctx)
}

func (s *moderationService) ListActions(ctx context.Context, entryID uint) ([]models.ModerationAction, error) {
	repos := s.Store.Repos()
	if _, err := repos.Queue.GetByID(ctx, entryID); err != nil {
		return nil, err
	}
	return repos.Queue.ListActions(ctx, entryID)
}
