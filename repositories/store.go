package repositories

import (
	"context"
	"errors"
	"strings"

	"encyclopedia-cms/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repositories groups every repository bound to the same connection or
// transaction.
type Repositories struct {
	Articles   ArticleRepository
	Revisions  RevisionRepository
	Queue      ModerationRepository
	Reviews    PeerReviewRepository
	SearchDocs SearchDocumentRepository
	Events     EventRepository
}

// Store hands out repositories and runs multi-step changes atomically.
type Store interface {
	Repos() Repositories
	// Transaction runs fn in a single database transaction. Returning an
	// error rolls every change back.
	Transaction(ctx context.Context, fn func(r Repositories) error) error
	Migrate() error
}

type gormStore struct {
	db       *gorm.DB
	rowLocks bool
	repos    Repositories
}

func NewStore(db *gorm.DB) Store {
	s := &gormStore{
		db:       db,
		rowLocks: db.Dialector.Name() == "postgres",
	}
	s.repos = s.bind(db)
	return s
}

func (s *gormStore) bind(db *gorm.DB) Repositories {
	l := locker{enabled: s.rowLocks}
	return Repositories{
		Articles:   newArticleRepository(db, l),
		Revisions:  newRevisionRepository(db, l),
		Queue:      newModerationRepository(db, l),
		Reviews:    newPeerReviewRepository(db),
		SearchDocs: newSearchDocumentRepository(db),
		Events:     newEventRepository(db),
	}
}

func (s *gormStore) Repos() Repositories {
	return s.repos
}

func (s *gormStore) Transaction(ctx context.Context, fn func(r Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(s.bind(tx))
	})
}

func (s *gormStore) Migrate() error {
	return s.db.AutoMigrate(
		&models.Article{},
		&models.Revision{},
		&models.ModerationQueueEntry{},
		&models.ModerationAction{},
		&models.PeerReview{},
		&models.ConsensusDecision{},
		&models.SearchDocument{},
		&models.SearchRemoval{},
		&models.DomainEvent{},
	)
}

// locker adds SELECT ... FOR UPDATE on dialects with row-level locks. SQLite
// serializes writers on its own.
type locker struct {
	enabled bool
}

func (l locker) forUpdate(db *gorm.DB) *gorm.DB {
	if !l.enabled {
		return db
	}
	return db.Clauses(clause.Locking{Strength: "UPDATE"})
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") ||
		strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "sqlstate 23505")
}

func notFound(err error, resource, key string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.ErrorNotFound{Resource: resource, Key: key}
	}
	return err
}
