package repositories

import (
	"context"
	"time"

	"encyclopedia-cms/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EventRepository interface {
	// Append stores the event, filling its ID and timestamp when unset.
	Append(ctx context.Context, event *models.DomainEvent) error
	ListByArticle(ctx context.Context, articleID uint, limit int) ([]models.DomainEvent, error)
}

type eventRepository struct {
	db *gorm.DB
}

func newEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Append(ctx context.Context, event *models.DomainEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) ListByArticle(ctx context.Context, articleID uint, limit int) ([]models.DomainEvent, error) {
	var events []models.DomainEvent
	query := r.db.WithContext(ctx).Where("article_id = ?", articleID).Order("occurred_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Find(&events).Error
	return events, err
}
