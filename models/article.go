package models

import (
	"time"
)

type Article struct {
	ID                uint      `json:"id" gorm:"primarykey"`
	Title             string    `json:"title" gorm:"uniqueIndex;not null;size:255"`
	CurrentRevisionID *uint     `json:"current_revision_id" gorm:"index"`
	HeadRevisionID    *uint     `json:"head_revision_id"`
	CreatedBy         string    `json:"created_by" gorm:"not null"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsPublished reports whether readers can see a revision of the article.
func (a *Article) IsPublished() bool {
	return a.CurrentRevisionID != nil
}

// ArticleView is an article together with the revision readers see.
type ArticleView struct {
	Article Article   `json:"article"`
	Current *Revision `json:"current_revision"`
	Stale   bool      `json:"search_stale,omitempty"`
}
