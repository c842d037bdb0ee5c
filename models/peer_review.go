package models

import (
	"math"
	"time"
)

type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "pending"
	ReviewInProgress ReviewStatus = "in_progress"
	ReviewCompleted  ReviewStatus = "completed"
)

// Review criteria, each scored from MinScore to MaxScore.
const (
	CriterionAccuracy     = "accuracy"
	CriterionClarity      = "clarity"
	CriterionCompleteness = "completeness"
	CriterionSources      = "sources"
	CriterionNeutrality   = "neutrality"
	CriterionStyle        = "style"
	CriterionTechnical    = "technical"
	CriterionFactual      = "factual"

	MinScore = 1
	MaxScore = 5
)

// DefaultCriteria lists the criteria with equal weight.
func DefaultCriteria() map[string]float64 {
	return map[string]float64{
		CriterionAccuracy:     1,
		CriterionClarity:      1,
		CriterionCompleteness: 1,
		CriterionSources:      1,
		CriterionNeutrality:   1,
		CriterionStyle:        1,
		CriterionTechnical:    1,
		CriterionFactual:      1,
	}
}

type Feedback struct {
	Summary          string `json:"summary,omitempty" gorm:"type:text" validate:"max=500"`
	Strengths        string `json:"strengths,omitempty" gorm:"type:text" validate:"max=1000"`
	Weaknesses       string `json:"weaknesses,omitempty" gorm:"type:text" validate:"max=1000"`
	Suggestions      string `json:"suggestions,omitempty" gorm:"type:text" validate:"max=1000"`
	DetailedFeedback string `json:"detailed_feedback,omitempty" gorm:"type:text" validate:"max=5000"`
}

type PeerReview struct {
	ID             uint           `json:"id" gorm:"primarykey"`
	RevisionID     uint           `json:"revision_id" gorm:"not null;uniqueIndex:idx_review_revision_reviewer"`
	ReviewerID     string         `json:"reviewer_id" gorm:"not null;uniqueIndex:idx_review_revision_reviewer;index"`
	CriteriaScores map[string]int `json:"criteria_scores,omitempty" gorm:"type:text;serializer:json"`
	OverallScore   *float64       `json:"overall_score"`
	Feedback       Feedback       `json:"feedback" gorm:"embedded"`
	Status         ReviewStatus   `json:"status" gorm:"type:varchar(16);not null;default:'pending'"`
	StartedAt      *time.Time     `json:"started_at"`
	CompletedAt    *time.Time     `json:"completed_at"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (r *PeerReview) IsCompleted() bool {
	return r.Status == ReviewCompleted
}

// Decision is the outcome of evaluating consensus over completed reviews.
type Decision string

const (
	DecisionUndecided             Decision = "undecided"
	DecisionApprove               Decision = "approve"
	DecisionReject                Decision = "reject"
	DecisionInsufficientConsensus Decision = "insufficient_consensus"
)

// IsFinal reports whether the decision resolves the revision.
func (d Decision) IsFinal() bool {
	return d == DecisionApprove || d == DecisionReject
}

func (d Decision) Outcome() (Outcome, bool) {
	switch d {
	case DecisionApprove:
		return OutcomeApproved, true
	case DecisionReject:
		return OutcomeRejected, true
	}
	return "", false
}

// ConsensusDecision caches a final decision so later reviews cannot reopen it.
type ConsensusDecision struct {
	ID          uint      `json:"id" gorm:"primarykey"`
	RevisionID  uint      `json:"revision_id" gorm:"not null;uniqueIndex"`
	Decision    Decision  `json:"decision" gorm:"type:varchar(32);not null"`
	MeanScore   float64   `json:"mean_score"`
	ReviewCount int       `json:"review_count"`
	DecidedAt   time.Time `json:"decided_at"`
}

type ConsensusSummary struct {
	RevisionID     uint     `json:"revision_id"`
	TotalReviews   int      `json:"total_reviews"`
	Completed      int      `json:"completed_reviews"`
	Approved       int      `json:"approved_reviews"`
	Rejected       int      `json:"rejected_reviews"`
	Pending        int      `json:"pending_reviews"`
	MeanScore      *float64 `json:"mean_score"`
	ScoreVariance  float64  `json:"score_variance"`
	Confidence     float64  `json:"confidence"`
	Quorum         int      `json:"quorum"`
	OverallStatus  Decision `json:"overall_status"`
	DecisionCached bool     `json:"decision_cached"`
}

type ReviewerStats struct {
	ReviewerID     string   `json:"reviewer_id"`
	TotalReviews   int64    `json:"total_reviews"`
	Completed      int64    `json:"completed_reviews"`
	CompletionRate float64  `json:"completion_rate"`
	AverageScore   *float64 `json:"average_score"`
}

// RoundScore rounds a score to one decimal place.
func RoundScore(v float64) float64 {
	return math.Round(v*10) / 10
}
