package repositories

import (
	"context"
	"strconv"
	"strings"
	"time"

	"encyclopedia-cms/models"

	"gorm.io/gorm"
)

type ArticleRepository interface {
	Create(ctx context.Context, article *models.Article) error
	GetByID(ctx context.Context, id uint) (*models.Article, error)
	ListByIDs(ctx context.Context, ids []uint) ([]models.Article, error)
	GetByTitle(ctx context.Context, title string) (*models.Article, error)
	// LockByTitle loads the article and holds its row lock until the
	// surrounding transaction ends.
	LockByTitle(ctx context.Context, title string) (*models.Article, error)
	LockByID(ctx context.Context, id uint) (*models.Article, error)
	SetHead(ctx context.Context, articleID, revisionID uint, at time.Time) error
	SetCurrent(ctx context.Context, articleID, revisionID uint, at time.Time) error
	Delete(ctx context.Context, id uint) error
	GetList(ctx context.Context, params models.ArticleListParams) ([]models.Article, int64, error)
	SuggestTitles(ctx context.Context, prefix string, limit int) ([]string, error)
}

type articleRepository struct {
	db   *gorm.DB
	lock locker
}

func newArticleRepository(db *gorm.DB, lock locker) ArticleRepository {
	return &articleRepository{db: db, lock: lock}
}

func (r *articleRepository) Create(ctx context.Context, article *models.Article) error {
	err := r.db.WithContext(ctx).Create(article).Error
	if isUniqueViolation(err) {
		return models.ErrorConflict{Reason: models.ReasonDuplicateTitle, Message: article.Title}
	}
	return err
}

func (r *articleRepository) ListByIDs(ctx context.Context, ids []uint) ([]models.Article, error) {
	var articles []models.Article
	if len(ids) == 0 {
		return articles, nil
	}
	err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&articles).Error
	return articles, err
}

func (r *articleRepository) GetByID(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	err := r.db.WithContext(ctx).First(&article, id).Error
	if err != nil {
		return nil, notFound(err, "article", strconv.FormatUint(uint64(id), 10))
	}
	return &article, nil
}

func (r *articleRepository) GetByTitle(ctx context.Context, title string) (*models.Article, error) {
	var article models.Article
	err := r.db.WithContext(ctx).Where("title = ?", title).First(&article).Error
	if err != nil {
		return nil, notFound(err, "article", title)
	}
	return &article, nil
}

func (r *articleRepository) LockByTitle(ctx context.Context, title string) (*models.Article, error) {
	var article models.Article
	err := r.lock.forUpdate(r.db.WithContext(ctx)).Where("title = ?", title).First(&article).Error
	if err != nil {
		return nil, notFound(err, "article", title)
	}
	return &article, nil
}

func (r *articleRepository) LockByID(ctx context.Context, id uint) (*models.Article, error) {
	var article models.Article
	err := r.lock.forUpdate(r.db.WithContext(ctx)).First(&article, id).Error
	if err != nil {
		return nil, notFound(err, "article", strconv.FormatUint(uint64(id), 10))
	}
	return &article, nil
}

func (r *articleRepository) SetHead(ctx context.Context, articleID, revisionID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Article{}).
		Where("id = ?", articleID).
		Updates(map[string]interface{}{"head_revision_id": revisionID, "updated_at": at}).Error
}

func (r *articleRepository) SetCurrent(ctx context.Context, articleID, revisionID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.Article{}).
		Where("id = ?", articleID).
		Updates(map[string]interface{}{"current_revision_id": revisionID, "updated_at": at}).Error
}

func (r *articleRepository) Delete(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).Delete(&models.Article{}, id).Error
}

func (r *articleRepository) GetList(ctx context.Context, params models.ArticleListParams) ([]models.Article, int64, error) {
	var articles []models.Article
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Article{})
	if params.Published {
		query = query.Where("current_revision_id IS NOT NULL")
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	page, limit := params.Page, params.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	err := query.Order("updated_at desc").Order("id desc").
		Offset((page - 1) * limit).Limit(limit).
		Find(&articles).Error
	return articles, total, err
}

func (r *articleRepository) SuggestTitles(ctx context.Context, prefix string, limit int) ([]string, error) {
	var titles []string
	pattern := escapeLike(strings.ToLower(prefix)) + "%"
	err := r.db.WithContext(ctx).Model(&models.Article{}).
		Where(`LOWER(title) LIKE ? ESCAPE '\'`, pattern).
		Order("title asc").
		Limit(limit).
		Pluck("title", &titles).Error
	return titles, err
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
