package services

import (
	"context"
	"fmt"
	"strconv"

	"encyclopedia-cms/models"
	"encyclopedia-cms/repositories"
)

// The functions below run inside a caller's transaction. Callers lock rows
// in the order revision, queue entry, article.

func idString(id uint) string {
	return strconv.FormatUint(uint64(id), 10)
}

func enqueueRevision(ctx context.Context, r repositories.Repositories, out *outbox, rev *models.Revision, priority models.Priority) (*models.ModerationQueueEntry, error) {
	entry := &models.ModerationQueueEntry{
		ContentKind: models.ContentRevision,
		ContentID:   rev.ID,
		ArticleID:   rev.ArticleID,
		Priority:    priority,
		Status:      models.StatusPending,
		SubmittedBy: rev.AuthorID,
		SubmittedAt: rev.CreatedAt,
	}
	if err := r.Queue.Create(ctx, entry); err != nil {
		return nil, fmt.Errorf("enqueue revision %d: %w", rev.ID, err)
	}
	if err := r.Queue.AddAction(ctx, &models.ModerationAction{
		EntryID:   entry.ID,
		ArticleID: entry.ArticleID,
		Action:    models.ActionEnqueue,
		ActorID:   rev.AuthorID,
		Reason:    "priority " + priority.String(),
	}); err != nil {
		return nil, err
	}
	return entry, nil
}

// loadContent locks the content an entry refers to.
func loadContent(ctx context.Context, r repositories.Repositories, ref models.ContentRef) (*models.Revision, error) {
	switch ref.Kind {
	case models.ContentRevision:
		return r.Revisions.LockByID(ctx, ref.ID)
	}
	return nil, models.ErrorValidation{Field: "content_kind", Message: "unsupported content kind " + string(ref.Kind)}
}

// lockEntryForRevision locks the revision and then its queue entry.
func lockEntryForRevision(ctx context.Context, r repositories.Repositories, revisionID uint) (*models.Revision, *models.ModerationQueueEntry, error) {
	rev, err := r.Revisions.LockByID(ctx, revisionID)
	if err != nil {
		return nil, nil, err
	}
	entry, err := r.Queue.GetByContent(ctx, models.ContentRef{Kind: models.ContentRevision, ID: rev.ID})
	if err != nil {
		return nil, nil, err
	}
	entry, err = r.Queue.LockByID(ctx, entry.ID)
	if err != nil {
		return nil, nil, err
	}
	return rev, entry, nil
}

// lockEntry locks an entry's content and then the entry itself.
func lockEntry(ctx context.Context, r repositories.Repositories, entryID uint) (*models.Revision, *models.ModerationQueueEntry, error) {
	entry, err := r.Queue.GetByID(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}
	rev, err := loadContent(ctx, r, entry.Content())
	if err != nil {
		return nil, nil, err
	}
	entry, err = r.Queue.LockByID(ctx, entryID)
	if err != nil {
		return nil, nil, err
	}
	return rev, entry, nil
}

// beginReview moves a pending entry and its revision to in_review. It is a
// no-op for entries already in review.
func beginReview(ctx context.Context, r repositories.Repositories, out *outbox, rev *models.Revision, entry *models.ModerationQueueEntry, actorID string) error {
	if entry.Status == models.StatusInReview {
		return nil
	}
	if entry.Status.IsTerminal() {
		return models.ErrorInvalidTransition{
			Reason:  models.ReasonRevisionClosed,
			Message: fmt.Sprintf("entry %d is already %s", entry.ID, entry.Status),
		}
	}
	if err := r.Revisions.UpdateStatus(ctx, rev.ID, rev.Status, models.StatusInReview); err != nil {
		return err
	}
	rev.Status = models.StatusInReview

	entry.Status = models.StatusInReview
	if err := r.Queue.Save(ctx, entry); err != nil {
		return err
	}
	if err := r.Queue.AddAction(ctx, &models.ModerationAction{
		EntryID:   entry.ID,
		ArticleID: entry.ArticleID,
		Action:    models.ActionBeginReview,
		ActorID:   actorID,
	}); err != nil {
		return err
	}
	return out.record(ctx, r, models.DomainEvent{
		Kind:       models.EventReviewStarted,
		ArticleID:  entry.ArticleID,
		RevisionID: rev.ID,
		EntryID:    entry.ID,
		ActorID:    actorID,
	})
}

// resolveEntry records the final outcome and promotes on approval.
func resolveEntry(ctx context.Context, r repositories.Repositories, out *outbox, rev *models.Revision, entry *models.ModerationQueueEntry, outcome models.Outcome, reason, actorID, source string) error {
	status, err := outcome.Status()
	if err != nil {
		return err
	}
	if entry.Status.IsTerminal() {
		return models.ErrorConflict{
			Reason:  models.ReasonAlreadyResolved,
			Message: fmt.Sprintf("entry %d is already %s", entry.ID, entry.Status),
		}
	}
	if err := r.Revisions.UpdateStatus(ctx, rev.ID, rev.Status, status); err != nil {
		return err
	}
	rev.Status = status

	resolvedAt := now()
	entry.Status = status
	entry.ResolvedAt = &resolvedAt
	entry.ResolutionReason = reason
	if err := r.Queue.Save(ctx, entry); err != nil {
		return err
	}

	action := models.ActionReject
	if outcome == models.OutcomeApproved {
		action = models.ActionApprove
	}
	if err := r.Queue.AddAction(ctx, &models.ModerationAction{
		EntryID:   entry.ID,
		ArticleID: entry.ArticleID,
		Action:    action,
		ActorID:   actorID,
		Reason:    reason,
	}); err != nil {
		return err
	}
	if err := out.record(ctx, r, models.DomainEvent{
		Kind:       models.EventRevisionResolved,
		ArticleID:  entry.ArticleID,
		RevisionID: rev.ID,
		EntryID:    entry.ID,
		ActorID:    actorID,
		Data:       map[string]string{"outcome": string(outcome), "source": source},
	}); err != nil {
		return err
	}

	if outcome != models.OutcomeApproved {
		return nil
	}
	_, err = promoteRevision(ctx, r, out, rev, entry, actorID)
	return err
}

// promoteRevision points the article at an approved revision. Promoting the
// revision that is already current changes nothing.
func promoteRevision(ctx context.Context, r repositories.Repositories, out *outbox, rev *models.Revision, entry *models.ModerationQueueEntry, actorID string) (*models.Article, error) {
	if rev.Status != models.StatusApproved {
		return nil, models.ErrorInvalidTransition{
			Reason:  models.ReasonInvalidPromotion,
			Message: fmt.Sprintf("revision %d is %s, not approved", rev.ID, rev.Status),
		}
	}
	article, err := r.Articles.LockByID(ctx, rev.ArticleID)
	if err != nil {
		return nil, err
	}
	if article.CurrentRevisionID != nil && *article.CurrentRevisionID == rev.ID {
		return article, nil
	}

	previous := ""
	if article.CurrentRevisionID != nil {
		previous = idString(*article.CurrentRevisionID)
	}

	at := now()
	if err := r.Articles.SetCurrent(ctx, article.ID, rev.ID, at); err != nil {
		return nil, err
	}
	current := rev.ID
	article.CurrentRevisionID = &current
	article.UpdatedAt = at

	if entry != nil {
		if err := r.Queue.AddAction(ctx, &models.ModerationAction{
			EntryID:   entry.ID,
			ArticleID: article.ID,
			Action:    models.ActionPromote,
			ActorID:   actorID,
		}); err != nil {
			return nil, err
		}
	}

	data := map[string]string{"title": article.Title}
	if previous != "" {
		data["previous_revision_id"] = previous
	}
	err = out.record(ctx, r, models.DomainEvent{
		Kind:       models.EventRevisionPromoted,
		ArticleID:  article.ID,
		RevisionID: rev.ID,
		ActorID:    actorID,
		Data:       data,
	})
	return article, err
}

// escalate raises a stalled entry to urgent so a moderator picks it up.
func escalate(ctx context.Context, r repositories.Repositories, out *outbox, rev *models.Revision, entry *models.ModerationQueueEntry, reason string) error {
	if entry.Escalated || entry.Status.IsTerminal() {
		return nil
	}
	entry.Escalated = true
	entry.Priority = models.PriorityUrgent
	if err := r.Queue.Save(ctx, entry); err != nil {
		return err
	}
	if err := r.Queue.AddAction(ctx, &models.ModerationAction{
		EntryID:   entry.ID,
		ArticleID: entry.ArticleID,
		Action:    models.ActionEscalate,
		ActorID:   SystemActor,
		Reason:    reason,
	}); err != nil {
		return err
	}
	return out.record(ctx, r, models.DomainEvent{
		Kind:       models.EventConsensusStalled,
		ArticleID:  entry.ArticleID,
		RevisionID: rev.ID,
		EntryID:    entry.ID,
		ActorID:    SystemActor,
		Data:       map[string]string{"reason": reason},
	})
}
