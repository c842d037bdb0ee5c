package repositories

import (
	"context"
	"strconv"
	"time"

	"encyclopedia-cms/models"

	"gorm.io/gorm"
)

type ModerationRepository interface {
	Create(ctx context.Context, entry *models.ModerationQueueEntry) error
	GetByID(ctx context.Context, id uint) (*models.ModerationQueueEntry, error)
	LockByID(ctx context.Context, id uint) (*models.ModerationQueueEntry, error)
	GetByContent(ctx context.Context, ref models.ContentRef) (*models.ModerationQueueEntry, error)
	Save(ctx context.Context, entry *models.ModerationQueueEntry) error
	List(ctx context.Context, filter models.QueueFilter) ([]models.ModerationQueueEntry, int64, error)
	Stats(ctx context.Context) (models.QueueStats, error)
	AddAction(ctx context.Context, action *models.ModerationAction) error
	ListActions(ctx context.Context, entryID uint) ([]models.ModerationAction, error)
	DeleteByArticleID(ctx context.Context, articleID uint) error
}

type moderationRepository struct {
	db   *gorm.DB
	lock locker
}

func newModerationRepository(db *gorm.DB, lock locker) ModerationRepository {
	return &moderationRepository{db: db, lock: lock}
}

func (r *moderationRepository) Create(ctx context.Context, entry *models.ModerationQueueEntry) error {
	err := r.db.WithContext(ctx).Create(entry).Error
	if isUniqueViolation(err) {
		return models.ErrorConflict{Message: entry.Content().String() + " already queued"}
	}
	return err
}

func (r *moderationRepository) GetByID(ctx context.Context, id uint) (*models.ModerationQueueEntry, error) {
	var entry models.ModerationQueueEntry
	if err := r.db.WithContext(ctx).First(&entry, id).Error; err != nil {
		return nil, notFound(err, "queue entry", strconv.FormatUint(uint64(id), 10))
	}
	return &entry, nil
}

func (r *moderationRepository) LockByID(ctx context.Context, id uint) (*models.ModerationQueueEntry, error) {
	var entry models.ModerationQueueEntry
	if err := r.lock.forUpdate(r.db.WithContext(ctx)).First(&entry, id).Error; err != nil {
		return nil, notFound(err, "queue entry", strconv.FormatUint(uint64(id), 10))
	}
	return &entry, nil
}

func (r *moderationRepository) GetByContent(ctx context.Context, ref models.ContentRef) (*models.ModerationQueueEntry, error) {
	var entry models.ModerationQueueEntry
	err := r.db.WithContext(ctx).
		Where("content_kind = ? AND content_id = ?", ref.Kind, ref.ID).
		First(&entry).Error
	if err != nil {
		return nil, notFound(err, "queue entry", ref.String())
	}
	return &entry, nil
}

func (r *moderationRepository) Save(ctx context.Context, entry *models.ModerationQueueEntry) error {
	entry.UpdatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Save(entry).Error
}

func (r *moderationRepository) List(ctx context.Context, filter models.QueueFilter) ([]models.ModerationQueueEntry, int64, error) {
	var entries []models.ModerationQueueEntry
	var total int64

	query := r.db.WithContext(ctx).Model(&models.ModerationQueueEntry{})
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.AssignedTo != "" {
		query = query.Where("assigned_to = ?", filter.AssignedTo)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	limit := filter.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	err := query.Order("priority desc").Order("submitted_at asc").Order("id asc").
		Offset(filter.Offset).Limit(limit).
		Find(&entries).Error
	return entries, total, err
}

func (r *moderationRepository) Stats(ctx context.Context) (models.QueueStats, error) {
	var rows []struct {
		Status models.RevisionStatus
		Count  int64
	}
	var stats models.QueueStats

	err := r.db.WithContext(ctx).Model(&models.ModerationQueueEntry{}).
		Select("status, COUNT(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return stats, err
	}

	for _, row := range rows {
		switch row.Status {
		case models.StatusPending:
			stats.Pending = row.Count
		case models.StatusInReview:
			stats.InReview = row.Count
		case models.StatusApproved:
			stats.Approved = row.Count
		case models.StatusRejected:
			stats.Rejected = row.Count
		}
		stats.Total += row.Count
	}

	err = r.db.WithContext(ctx).Model(&models.ModerationQueueEntry{}).
		Where("escalated = ? AND status IN ?", true, []models.RevisionStatus{models.StatusPending, models.StatusInReview}).
		Count(&stats.Escalated).Error
	return stats, err
}

func (r *moderationRepository) AddAction(ctx context.Context, action *models.ModerationAction) error {
	return r.db.WithContext(ctx).Create(action).Error
}

func (r *moderationRepository) ListActions(ctx context.Context, entryID uint) ([]models.ModerationAction, error) {
	var actions []models.ModerationAction
	err := r.db.WithContext(ctx).Where("entry_id = ?", entryID).
		Order("id asc").
		Find(&actions).Error
	return actions, err
}

func (r *moderationRepository) DeleteByArticleID(ctx context.Context, articleID uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Where("article_id = ?", articleID).Delete(&models.ModerationAction{}).Error; err != nil {
		return err
	}
	return db.Where("article_id = ?", articleID).Delete(&models.ModerationQueueEntry{}).Error
}
