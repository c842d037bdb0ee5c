package models

import "time"

// SearchDocument is the derived search projection of an article's current
// revision. It is never authoritative and can be rebuilt at any time.
type SearchDocument struct {
	ArticleID  uint      `json:"article_id" gorm:"primarykey;autoIncrement:false"`
	RevisionID uint      `json:"revision_id" gorm:"not null"`
	Title      string    `json:"title" gorm:"not null"`
	Provider   string    `json:"provider" gorm:"not null"`
	Payload    string    `json:"payload" gorm:"type:text"`
	SyncedAt   time.Time `json:"synced_at"`
}

// SearchRemoval marks a removed article whose provider document may still
// exist. It is written with the removal and cleared once the provider has
// dropped the document.
type SearchRemoval struct {
	ArticleID uint      `json:"article_id" gorm:"primarykey;autoIncrement:false"`
	Title     string    `json:"title"`
	RemovedAt time.Time `json:"removed_at"`
}

type SearchResult struct {
	ArticleID uint    `json:"article_id"`
	Title     string  `json:"title"`
	Rank      float64 `json:"rank"`
	Snippet   string  `json:"snippet"`
}

// StaleArticle is an article whose search document lags its current
// revision, or a removed article still waiting to leave the provider.
type StaleArticle struct {
	ArticleID         uint  `json:"article_id"`
	CurrentRevisionID *uint `json:"current_revision_id"`
	IndexedRevisionID *uint `json:"indexed_revision_id"`
	Removed           bool  `json:"removed,omitempty" gorm:"-"`
}
