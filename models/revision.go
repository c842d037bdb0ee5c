package models

import (
	"time"
)

type RevisionStatus string

const (
	StatusPending  RevisionStatus = "pending"
	StatusInReview RevisionStatus = "in_review"
	StatusApproved RevisionStatus = "approved"
	StatusRejected RevisionStatus = "rejected"
)

// IsTerminal reports whether no further transition is permitted.
func (s RevisionStatus) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

func (s RevisionStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInReview, StatusApproved, StatusRejected:
		return true
	}
	return false
}

// CanTransition reports whether the moderation state machine allows moving
// from s to next. Repeating in_review is allowed so retries stay no-ops.
func (s RevisionStatus) CanTransition(next RevisionStatus, allowDirect bool) bool {
	switch s {
	case StatusPending:
		switch next {
		case StatusInReview:
			return true
		case StatusApproved, StatusRejected:
			return allowDirect
		}
	case StatusInReview:
		return next == StatusInReview || next == StatusApproved || next == StatusRejected
	}
	return false
}

// Revision is an immutable snapshot of an article's full content. Only Status
// changes after creation.
type Revision struct {
	ID             uint           `json:"id" gorm:"primarykey"`
	ArticleID      uint           `json:"article_id" gorm:"not null;index"`
	Content        string         `json:"content" gorm:"type:text;not null"`
	Comment        string         `json:"comment" gorm:"type:text"`
	AuthorID       string         `json:"author_id" gorm:"not null;index"`
	BaseRevisionID *uint          `json:"base_revision_id"`
	SearchFragment string         `json:"search_fragment,omitempty" gorm:"type:text"`
	Status         RevisionStatus `json:"status" gorm:"type:varchar(16);not null;default:'pending';index"`
	CreatedAt      time.Time      `json:"created_at"`
}
