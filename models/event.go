package models

import (
	"time"
)

type EventKind string

const (
	EventRevisionSubmitted EventKind = "revision.submitted"
	EventReviewStarted     EventKind = "moderation.review_started"
	EventEntryAssigned     EventKind = "moderation.assigned"
	EventRevisionResolved  EventKind = "moderation.resolved"
	EventRevisionPromoted  EventKind = "revision.promoted"
	EventReviewerAssigned  EventKind = "review.assigned"
	EventReviewCompleted   EventKind = "review.completed"
	EventConsensusReached  EventKind = "consensus.reached"
	EventConsensusStalled  EventKind = "consensus.stalled"
	EventArticleRemoved    EventKind = "article.removed"
	EventArticleReindexed  EventKind = "search.reindexed"
)

// DomainEvent is one entry of the append-only event log. Events are written
// in the transaction that produced them and dispatched after commit.
type DomainEvent struct {
	ID         string            `json:"id" gorm:"primarykey;size:36"`
	Kind       EventKind         `json:"kind" gorm:"type:varchar(64);not null;index"`
	ArticleID  uint              `json:"article_id" gorm:"index"`
	RevisionID uint              `json:"revision_id,omitempty" gorm:"index"`
	EntryID    uint              `json:"entry_id,omitempty"`
	ActorID    string            `json:"actor_id"`
	Data       map[string]string `json:"data,omitempty" gorm:"type:text;serializer:json"`
	OccurredAt time.Time         `json:"occurred_at" gorm:"index"`
}
