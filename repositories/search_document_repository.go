package repositories

import (
	"context"
	"strconv"
	"time"

	"encyclopedia-cms/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SearchDocumentRepository interface {
	Upsert(ctx context.Context, doc *models.SearchDocument) error
	Get(ctx context.Context, articleID uint) (*models.SearchDocument, error)
	Delete(ctx context.Context, articleID uint) error
	// ListStale returns published articles whose search document is missing
	// or was built from an older revision.
	ListStale(ctx context.Context, limit int) ([]models.StaleArticle, error)
	MarkRemoved(ctx context.Context, articleID uint, title string) error
	// ListRemovals returns removed articles the provider may still hold,
	// oldest first.
	ListRemovals(ctx context.Context, limit int) ([]models.SearchRemoval, error)
	ClearRemoval(ctx context.Context, articleID uint) error
}

type searchDocumentRepository struct {
	db *gorm.DB
}

func newSearchDocumentRepository(db *gorm.DB) SearchDocumentRepository {
	return &searchDocumentRepository{db: db}
}

func (r *searchDocumentRepository) Upsert(ctx context.Context, doc *models.SearchDocument) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "article_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"revision_id", "title", "provider", "payload", "synced_at"}),
	}).Create(doc).Error
}

func (r *searchDocumentRepository) Get(ctx context.Context, articleID uint) (*models.SearchDocument, error) {
	var doc models.SearchDocument
	if err := r.db.WithContext(ctx).First(&doc, "article_id = ?", articleID).Error; err != nil {
		return nil, notFound(err, "search document", strconv.FormatUint(uint64(articleID), 10))
	}
	return &doc, nil
}

func (r *searchDocumentRepository) Delete(ctx context.Context, articleID uint) error {
	return r.db.WithContext(ctx).Where("article_id = ?", articleID).Delete(&models.SearchDocument{}).Error
}

func (r *searchDocumentRepository) ListStale(ctx context.Context, limit int) ([]models.StaleArticle, error) {
	var stale []models.StaleArticle
	query := r.db.WithContext(ctx).Table("articles").
		Select("articles.id AS article_id, articles.current_revision_id, search_documents.revision_id AS indexed_revision_id").
		Joins("LEFT JOIN search_documents ON search_documents.article_id = articles.id").
		Where("articles.current_revision_id IS NOT NULL").
		Where("search_documents.revision_id IS NULL OR search_documents.revision_id <> articles.current_revision_id").
		Order("articles.id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Scan(&stale).Error
	return stale, err
}

func (r *searchDocumentRepository) MarkRemoved(ctx context.Context, articleID uint, title string) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "article_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "removed_at"}),
	}).Create(&models.SearchRemoval{
		ArticleID: articleID,
		Title:     title,
		RemovedAt: time.Now().UTC(),
	}).Error
}

func (r *searchDocumentRepository) ListRemovals(ctx context.Context, limit int) ([]models.SearchRemoval, error) {
	var removals []models.SearchRemoval
	query := r.db.WithContext(ctx).Order("removed_at asc, article_id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&removals).Error
	return removals, err
}

func (r *searchDocumentRepository) ClearRemoval(ctx context.Context, articleID uint) error {
	return r.db.WithContext(ctx).Where("article_id = ?", articleID).Delete(&models.SearchRemoval{}).Error
}
