package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"encyclopedia-cms/models"
	"encyclopedia-cms/repositories"

	"go.uber.org/zap"
)

const fragmentLen = 280

type RevisionService interface {
	SubmitRevision(ctx context.Context, req models.SubmitRevisionRequest) (*models.SubmitRevisionResponse, error)
	PromoteToCurrent(ctx context.Context, revisionID uint, actor models.Actor) (*models.ArticleView, error)
	GetCurrent(ctx context.Context, title string) (*models.ArticleView, error)
	GetHistory(ctx context.Context, title string) ([]models.Revision, error)
	GetRevision(ctx context.Context, id uint) (*models.Revision, error)
	ListArticles(ctx context.Context, params models.ArticleListParams) ([]models.Article, int64, error)
	RemoveArticle(ctx context.Context, title string, actor models.Actor) error
}

type revisionService struct {
	Deps
	policy models.ModerationPolicy
}

func NewRevisionService(deps Deps, policy models.ModerationPolicy) RevisionService {
	return &revisionService{Deps: deps, policy: policy}
}

// SubmitRevision appends a pending revision and queues it for moderation.
// A nil base revision creates the article; a non-nil base must be the
// article's head revision.
func (s *revisionService) SubmitRevision(ctx context.Context, req models.SubmitRevisionRequest) (*models.SubmitRevisionResponse, error) {
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	title := models.NormalizeTitle(req.Title)
	if title == "" {
		return nil, models.ErrorValidation{Field: "title", Message: "title is empty after normalization"}
	}
	if !req.Priority.Valid() {
		return nil, models.ErrorValidation{Field: "priority", Message: "unknown priority " + req.Priority.String()}
	}

	var resp models.SubmitRevisionResponse
	err := s.transact(ctx, func(r repositories.Repositories, out *outbox) error {
		resp = models.SubmitRevisionResponse{}

		article, created, err := s.resolveArticle(ctx, r, title, req)
		if err != nil {
			return err
		}

		rev := &models.Revision{
			ArticleID:      article.ID,
			Content:        req.Content,
			Comment:        req.Comment,
			AuthorID:       req.AuthorID,
			BaseRevisionID: req.BaseRevisionID,
			SearchFragment: fragment(req.Content),
			Status:         models.StatusPending,
			CreatedAt:      now(),
		}
		if err := r.Revisions.Create(ctx, rev); err != nil {
			return fmt.Errorf("create revision: %w", err)
		}
		if err := r.Articles.SetHead(ctx, article.ID, rev.ID, rev.CreatedAt); err != nil {
			return fmt.Errorf("set head revision: %w", err)
		}
		head := rev.ID
		article.HeadRevisionID = &head
		article.UpdatedAt = rev.CreatedAt

		entry, err := enqueueRevision(ctx, r, out, rev, req.Priority)
		if err != nil {
			return err
		}

		if err := out.record(ctx, r, models.DomainEvent{
			Kind:       models.EventRevisionSubmitted,
			ArticleID:  article.ID,
			RevisionID: rev.ID,
			EntryID:    entry.ID,
			ActorID:    req.AuthorID,
			Data: map[string]string{
				"title":    article.Title,
				"created":  fmt.Sprint(created),
				"priority": req.Priority.String(),
			},
		}); err != nil {
			return err
		}

		if s.policy.AutoPeerReview {
			if err := beginReview(ctx, r, out, rev, entry, SystemActor); err != nil {
				return err
			}
		}

		resp.Article = *article
		resp.Revision = *rev
		resp.Entry = *entry
		resp.Created = created
		return nil
	})
	if err != nil {
		s.logFailure("submit revision", err, zap.String("title", title), zap.String("author", req.AuthorID))
		return nil, err
	}

	s.logger().Info("revision submitted",
		zap.String("title", title),
		zap.Uint("revision_id", resp.Revision.ID),
		zap.Bool("created", resp.Created),
	)
	return &resp, nil
}

func (s *revisionService) resolveArticle(ctx context.Context, r repositories.Repositories, title string, req models.SubmitRevisionRequest) (*models.Article, bool, error) {
	existing, err := r.Articles.LockByTitle(ctx, title)
	if err != nil && !errors.Is(err, models.ErrorNotFound{}) {
		return nil, false, err
	}

	if req.BaseRevisionID == nil {
		if existing != nil {
			return nil, false, models.ErrorConflict{Reason: models.ReasonDuplicateTitle, Message: title}
		}
		article := &models.Article{Title: title, CreatedBy: req.AuthorID}
		if err := r.Articles.Create(ctx, article); err != nil {
			return nil, false, err
		}
		return article, true, nil
	}

	if existing == nil {
		return nil, false, err
	}
	if existing.HeadRevisionID == nil || *existing.HeadRevisionID != *req.BaseRevisionID {
		head := "none"
		if existing.HeadRevisionID != nil {
			head = idString(*existing.HeadRevisionID)
		}
		return nil, false, models.ErrorConflict{
			Reason:  models.ReasonEditConflict,
			Message: fmt.Sprintf("base revision %d is not the head revision %s", *req.BaseRevisionID, head),
		}
	}
	return existing, false, nil
}

func (s *revisionService) PromoteToCurrent(ctx context.Context, revisionID uint, actor models.Actor) (*models.ArticleView, error) {
	if err := requireModerator(actor); err != nil {
		return nil, err
	}

	var view models.ArticleView
	err := s.transact(ctx, func(r repositories.Repositories, out *outbox) error {
		rev, err := r.Revisions.LockByID(ctx, revisionID)
		if err != nil {
			return err
		}
		entry, err := r.Queue.GetByContent(ctx, models.ContentRef{Kind: models.ContentRevision, ID: rev.ID})
		if err != nil && !errors.Is(err, models.ErrorNotFound{}) {
			return err
		}
		article, err := promoteRevision(ctx, r, out, rev, entry, actor.ID)
		if err != nil {
			return err
		}
		view = models.ArticleView{Article: *article, Current: rev}
		return nil
	})
	if err != nil {
		s.logFailure("promote revision", err, zap.Uint("revision_id", revisionID))
		return nil, err
	}
	return &view, nil
}

// GetCurrent returns the article and the revision readers see. Current is
// nil until a revision has been approved.
func (s *revisionService) GetCurrent(ctx context.Context, title string) (*models.ArticleView, error) {
	repos := s.Store.Repos()
	article, err := repos.Articles.GetByTitle(ctx, models.NormalizeTitle(title))
	if err != nil {
		return nil, err
	}

	view := &models.ArticleView{Article: *article}
	if article.CurrentRevisionID == nil {
		return view, nil
	}
	view.Current, err = repos.Revisions.GetByID(ctx, *article.CurrentRevisionID)
	if err != nil {
		return nil, err
	}

	doc, err := repos.SearchDocs.Get(ctx, article.ID)
	switch {
	case errors.Is(err, models.ErrorNotFound{}):
		view.Stale = true
	case err != nil:
		return nil, err
	default:
		view.Stale = doc.RevisionID != *article.CurrentRevisionID
	}
	return view, nil
}

// GetHistory lists every revision of the article newest first, rejected
// ones included.
func (s *revisionService) GetHistory(ctx context.Context, title string) ([]models.Revision, error) {
	repos := s.Store.Repos()
	article, err := repos.Articles.GetByTitle(ctx, models.NormalizeTitle(title))
	if err != nil {
		return nil, err
	}
	return repos.Revisions.ListByArticle(ctx, article.ID)
}

func (s *revisionService) GetRevision(ctx context.Context, id uint) (*models.Revision, error) {
	return s.Store.Repos().Revisions.GetByID(ctx, id)
}

func (s *revisionService) ListArticles(ctx context.Context, params models.ArticleListParams) ([]models.Article, int64, error) {
	if params.Limit > 100 {
		params.Limit = 100
	}
	return s.Store.Repos().Articles.GetList(ctx, params)
}

// RemoveArticle deletes the article with all of its revisions, queue
// entries, reviews and its search document.
func (s *revisionService) RemoveArticle(ctx context.Context, title string, actor models.Actor) error {
	if err := requireModerator(actor); err != nil {
		return err
	}
	title = models.NormalizeTitle(title)

	err := s.transact(ctx, func(r repositories.Repositories, out *outbox) error {
		article, err := r.Articles.LockByTitle(ctx, title)
		if err != nil {
			return err
		}
		if err := r.Reviews.DeleteByArticleID(ctx, article.ID); err != nil {
			return fmt.Errorf("delete reviews: %w", err)
		}
		if err := r.Queue.DeleteByArticleID(ctx, article.ID); err != nil {
			return fmt.Errorf("delete queue entries: %w", err)
		}
		if err := r.SearchDocs.Delete(ctx, article.ID); err != nil {
			return fmt.Errorf("delete search document: %w", err)
		}
		if err := r.SearchDocs.MarkRemoved(ctx, article.ID, article.Title); err != nil {
			return fmt.Errorf("mark search removal: %w", err)
		}
		if err := r.Revisions.DeleteByArticleID(ctx, article.ID); err != nil {
			return fmt.Errorf("delete revisions: %w", err)
		}
		if err := r.Articles.Delete(ctx, article.ID); err != nil {
			return fmt.Errorf("delete article: %w", err)
		}
		return out.record(ctx, r, models.DomainEvent{
			Kind:      models.EventArticleRemoved,
			ArticleID: article.ID,
			ActorID:   actor.ID,
			Data:      map[string]string{"title": article.Title},
		})
	})
	if err != nil {
		s.logFailure("remove article", err, zap.String("title", title))
		return err
	}

	s.logger().Info("article removed", zap.String("title", title), zap.String("actor", actor.ID))
	return nil
}

// fragment is the plain-text excerpt stored with a revision for listings
// and search snippets.
func fragment(content string) string {
	text := strings.Join(strings.Fields(content), " ")
	if len(text) <= fragmentLen {
		return text
	}
	cut := fragmentLen
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	return text[:cut]
}
