package models

import (
	"fmt"
	"sort"
)

type ScoreMode string

const (
	// ScoreCompute always derives the overall score from the criteria.
	ScoreCompute ScoreMode = "compute"
	// ScoreTrustReviewer requires the reviewer to state the overall score.
	ScoreTrustReviewer ScoreMode = "trust_reviewer"
	// ScorePreferReviewer uses the stated overall score and falls back to
	// the computed one.
	ScorePreferReviewer ScoreMode = "prefer_reviewer"
)

type ConsensusPolicy struct {
	Quorum           int                `toml:"quorum"`
	ApproveThreshold float64            `toml:"approve_threshold"`
	RejectThreshold  float64            `toml:"reject_threshold"`
	MaxReviewers     int                `toml:"max_reviewers"`
	ScoreMode        ScoreMode          `toml:"score_mode"`
	CriteriaWeights  map[string]float64 `toml:"criteria_weights"`
}

func DefaultConsensusPolicy() ConsensusPolicy {
	return ConsensusPolicy{
		Quorum:           5,
		ApproveThreshold: 3.5,
		RejectThreshold:  2.5,
		MaxReviewers:     9,
		ScoreMode:        ScorePreferReviewer,
		CriteriaWeights:  DefaultCriteria(),
	}
}

func (p ConsensusPolicy) Validate() error {
	if p.Quorum < 1 {
		return fmt.Errorf("quorum must be positive, got %d", p.Quorum)
	}
	if p.MaxReviewers < p.Quorum {
		return fmt.Errorf("max reviewers %d below quorum %d", p.MaxReviewers, p.Quorum)
	}
	if p.RejectThreshold > p.ApproveThreshold {
		return fmt.Errorf("reject threshold %.2f above approve threshold %.2f", p.RejectThreshold, p.ApproveThreshold)
	}
	switch p.ScoreMode {
	case ScoreCompute, ScoreTrustReviewer, ScorePreferReviewer:
	default:
		return fmt.Errorf("unknown score mode %q", p.ScoreMode)
	}
	if len(p.CriteriaWeights) == 0 {
		return fmt.Errorf("no review criteria configured")
	}
	for name, w := range p.CriteriaWeights {
		if w <= 0 {
			return fmt.Errorf("criterion %q has non-positive weight %.2f", name, w)
		}
	}
	return nil
}

// Criteria returns the configured criterion names in sorted order.
func (p ConsensusPolicy) Criteria() []string {
	names := make([]string, 0, len(p.CriteriaWeights))
	for name := range p.CriteriaWeights {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ModerationPolicy controls how new revisions move through the queue.
type ModerationPolicy struct {
	AutoPeerReview        bool `toml:"auto_peer_review"`
	AllowDirectResolution bool `toml:"allow_direct_resolution"`
}

func DefaultModerationPolicy() ModerationPolicy {
	return ModerationPolicy{
		AutoPeerReview:        true,
		AllowDirectResolution: true,
	}
}
