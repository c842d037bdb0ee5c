package repositories

import (
	"context"
	"strconv"

	"encyclopedia-cms/models"

	"gorm.io/gorm"
)

type RevisionRepository interface {
	Create(ctx context.Context, revision *models.Revision) error
	GetByID(ctx context.Context, id uint) (*models.Revision, error)
	// LockByID loads the revision and holds its row lock, serializing review
	// submission, consensus and resolution for that revision.
	LockByID(ctx context.Context, id uint) (*models.Revision, error)
	ListByArticle(ctx context.Context, articleID uint) ([]models.Revision, error)
	UpdateStatus(ctx context.Context, id uint, from, to models.RevisionStatus) error
	DeleteByArticleID(ctx context.Context, articleID uint) error
}

type revisionRepository struct {
	db   *gorm.DB
	lock locker
}

func newRevisionRepository(db *gorm.DB, lock locker) RevisionRepository {
	return &revisionRepository{db: db, lock: lock}
}

func (r *revisionRepository) Create(ctx context.Context, revision *models.Revision) error {
	return r.db.WithContext(ctx).Create(revision).Error
}

func (r *revisionRepository) GetByID(ctx context.Context, id uint) (*models.Revision, error) {
	var revision models.Revision
	if err := r.db.WithContext(ctx).First(&revision, id).Error; err != nil {
		return nil, notFound(err, "revision", strconv.FormatUint(uint64(id), 10))
	}
	return &revision, nil
}

func (r *revisionRepository) LockByID(ctx context.Context, id uint) (*models.Revision, error) {
	var revision models.Revision
	if err := r.lock.forUpdate(r.db.WithContext(ctx)).First(&revision, id).Error; err != nil {
		return nil, notFound(err, "revision", strconv.FormatUint(uint64(id), 10))
	}
	return &revision, nil
}

func (r *revisionRepository) ListByArticle(ctx context.Context, articleID uint) ([]models.Revision, error) {
	var revisions []models.Revision
	err := r.db.WithContext(ctx).Where("article_id = ?", articleID).
		Order("id desc").
		Find(&revisions).Error
	return revisions, err
}

// UpdateStatus moves a revision from one status to another. The from guard
// turns a concurrent transition into a zero-row update, reported as an
// invalid transition.
func (r *revisionRepository) UpdateStatus(ctx context.Context, id uint, from, to models.RevisionStatus) error {
	res := r.db.WithContext(ctx).Model(&models.Revision{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return models.ErrorInvalidTransition{Message: "revision " + strconv.FormatUint(uint64(id), 10) + " is no longer " + string(from)}
	}
	return nil
}

func (r *revisionRepository) DeleteByArticleID(ctx context.Context, articleID uint) error {
	return r.db.WithContext(ctx).Where("article_id = ?", articleID).Delete(&models.Revision{}).Error
}
