package repositories

import (
	"context"
	"errors"
	"strconv"

	"encyclopedia-cms/models"

	"gorm.io/gorm"
)

type PeerReviewRepository interface {
	// Create records a reviewer assignment. A second assignment of the same
	// reviewer to the same revision is ErrAlreadyAssigned.
	Create(ctx context.Context, review *models.PeerReview) error
	GetByID(ctx context.Context, id uint) (*models.PeerReview, error)
	ListByRevision(ctx context.Context, revisionID uint) ([]models.PeerReview, error)
	CountByRevision(ctx context.Context, revisionID uint) (int64, error)
	Save(ctx context.Context, review *models.PeerReview) error
	GetDecision(ctx context.Context, revisionID uint) (*models.ConsensusDecision, error)
	SaveDecision(ctx context.Context, decision *models.ConsensusDecision) error
	ReviewerStats(ctx context.Context, reviewerID string) (models.ReviewerStats, error)
	DeleteByArticleID(ctx context.Context, articleID uint) error
}

type peerReviewRepository struct {
	db *gorm.DB
}

func newPeerReviewRepository(db *gorm.DB) PeerReviewRepository {
	return &peerReviewRepository{db: db}
}

func (r *peerReviewRepository) Create(ctx context.Context, review *models.PeerReview) error {
	err := r.db.WithContext(ctx).Create(review).Error
	if isUniqueViolation(err) {
		return models.ErrorConflict{
			Reason:  models.ReasonAlreadyAssigned,
			Message: "reviewer " + review.ReviewerID + " already assigned to revision " + strconv.FormatUint(uint64(review.RevisionID), 10),
		}
	}
	return err
}

func (r *peerReviewRepository) GetByID(ctx context.Context, id uint) (*models.PeerReview, error) {
	var review models.PeerReview
	if err := r.db.WithContext(ctx).First(&review, id).Error; err != nil {
		return nil, notFound(err, "review", strconv.FormatUint(uint64(id), 10))
	}
	return &review, nil
}

func (r *peerReviewRepository) ListByRevision(ctx context.Context, revisionID uint) ([]models.PeerReview, error) {
	var reviews []models.PeerReview
	err := r.db.WithContext(ctx).Where("revision_id = ?", revisionID).
		Order("id asc").
		Find(&reviews).Error
	return reviews, err
}

func (r *peerReviewRepository) CountByRevision(ctx context.Context, revisionID uint) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PeerReview{}).
		Where("revision_id = ?", revisionID).
		Count(&count).Error
	return count, err
}

func (r *peerReviewRepository) Save(ctx context.Context, review *models.PeerReview) error {
	return r.db.WithContext(ctx).Save(review).Error
}

// GetDecision returns the cached final decision, or nil when the revision
// has none yet.
func (r *peerReviewRepository) GetDecision(ctx context.Context, revisionID uint) (*models.ConsensusDecision, error) {
	var decision models.ConsensusDecision
	err := r.db.WithContext(ctx).Where("revision_id = ?", revisionID).First(&decision).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &decision, nil
}

func (r *peerReviewRepository) SaveDecision(ctx context.Context, decision *models.ConsensusDecision) error {
	err := r.db.WithContext(ctx).Create(decision).Error
	if isUniqueViolation(err) {
		return models.ErrAlreadyResolved
	}
	return err
}

func (r *peerReviewRepository) ReviewerStats(ctx context.Context, reviewerID string) (models.ReviewerStats, error) {
	stats := models.ReviewerStats{ReviewerID: reviewerID}
	var row struct {
		Total     int64
		Completed int64
		Average   *float64
	}

	err := r.db.WithContext(ctx).Model(&models.PeerReview{}).
		Select(
			"COUNT(*) AS total, "+
				"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS completed, "+
				"AVG(CASE WHEN status = ? THEN overall_score END) AS average",
			models.ReviewCompleted, models.ReviewCompleted,
		).
		Where("reviewer_id = ?", reviewerID).
		Scan(&row).Error
	if err != nil {
		return stats, err
	}

	stats.TotalReviews = row.Total
	stats.Completed = row.Completed
	if row.Total > 0 {
		stats.CompletionRate = float64(row.Completed) / float64(row.Total)
	}
	if row.Average != nil {
		avg := models.RoundScore(*row.Average)
		stats.AverageScore = &avg
	}
	return stats, nil
}

func (r *peerReviewRepository) DeleteByArticleID(ctx context.Context, articleID uint) error {
	db := r.db.WithContext(ctx)
	revisions := db.Model(&models.Revision{}).Select("id").Where("article_id = ?", articleID)
	if err := db.Where("revision_id IN (?)", revisions).Delete(&models.ConsensusDecision{}).Error; err != nil {
		return err
	}
	return db.Where("revision_id IN (?)", revisions).Delete(&models.PeerReview{}).Error
}
