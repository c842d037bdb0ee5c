package services

import (
	"fmt"
	"math"

	"encyclopedia-cms/models"
)

// ConsensusResult is the outcome of one consensus evaluation.
type ConsensusResult struct {
	Decision  models.Decision
	Completed int
	Mean      *float64
	Variance  float64
}

// EvaluateConsensus decides a revision from its reviews. It reads only its
// arguments, so equal inputs always give equal results. A split mean is
// InsufficientConsensus once the reviewer pool is full, counting assigned
// reviews that are not finished yet, since no new reviewer can join.
func EvaluateConsensus(reviews []models.PeerReview, policy models.ConsensusPolicy) ConsensusResult {
	scores := completedScores(reviews)
	result := ConsensusResult{
		Decision:  models.DecisionUndecided,
		Completed: len(scores),
	}
	if len(scores) == 0 {
		return result
	}

	mean, variance := meanVariance(scores)
	result.Mean = &mean
	result.Variance = variance

	if len(scores) < policy.Quorum {
		return result
	}
	switch {
	case mean >= policy.ApproveThreshold:
		result.Decision = models.DecisionApprove
	case mean < policy.RejectThreshold:
		result.Decision = models.DecisionReject
	case len(reviews) >= policy.MaxReviewers:
		result.Decision = models.DecisionInsufficientConsensus
	}
	return result
}

// OverallScore picks the overall score for a review under the policy's
// score mode.
func OverallScore(criteria map[string]int, stated *float64, policy models.ConsensusPolicy) (float64, error) {
	switch policy.ScoreMode {
	case models.ScoreTrustReviewer:
		if stated == nil {
			return 0, models.ErrorValidation{Field: "overall_score", Message: "overall score is required"}
		}
		return models.RoundScore(*stated), nil
	case models.ScorePreferReviewer:
		if stated != nil {
			return models.RoundScore(*stated), nil
		}
	}
	return WeightedScore(criteria, policy.CriteriaWeights)
}

// WeightedScore is the weighted mean of the criteria scores, rounded to one
// decimal place.
func WeightedScore(criteria map[string]int, weights map[string]float64) (float64, error) {
	if len(criteria) == 0 {
		return 0, models.ErrorValidation{Field: "criteria_scores", Message: "at least one criterion score is required"}
	}
	var sum, total float64
	for name, score := range criteria {
		w, ok := weights[name]
		if !ok {
			return 0, models.ErrorValidation{Field: "criteria_scores", Message: fmt.Sprintf("unknown criterion %q", name)}
		}
		sum += w * float64(score)
		total += w
	}
	return models.RoundScore(sum / total), nil
}

func validateScores(criteria map[string]int, stated *float64, weights map[string]float64) error {
	for name, score := range criteria {
		if _, ok := weights[name]; !ok {
			return models.ErrorValidation{Field: "criteria_scores", Message: fmt.Sprintf("unknown criterion %q", name)}
		}
		if score < models.MinScore || score > models.MaxScore {
			return models.ErrorValidation{
				Field:   "criteria_scores",
				Message: fmt.Sprintf("%s score %d outside %d..%d", name, score, models.MinScore, models.MaxScore),
			}
		}
	}
	if stated != nil && (*stated < models.MinScore || *stated > models.MaxScore || math.IsNaN(*stated)) {
		return models.ErrorValidation{
			Field:   "overall_score",
			Message: fmt.Sprintf("overall score %.1f outside %d..%d", *stated, models.MinScore, models.MaxScore),
		}
	}
	return nil
}

// summarize builds the read model for a revision's reviews.
func summarize(revisionID uint, reviews []models.PeerReview, policy models.ConsensusPolicy, cached *models.ConsensusDecision) models.ConsensusSummary {
	result := EvaluateConsensus(reviews, policy)
	summary := models.ConsensusSummary{
		RevisionID:    revisionID,
		TotalReviews:  len(reviews),
		Completed:     result.Completed,
		Pending:       len(reviews) - result.Completed,
		Quorum:        policy.Quorum,
		OverallStatus: result.Decision,
		ScoreVariance: math.Round(result.Variance*100) / 100,
	}
	if result.Mean != nil {
		mean := models.RoundScore(*result.Mean)
		summary.MeanScore = &mean
		summary.Confidence = math.Round(math.Max(0, 1-result.Variance/4)*100) / 100
	}
	for _, s := range completedScores(reviews) {
		switch {
		case s >= policy.ApproveThreshold:
			summary.Approved++
		case s < policy.RejectThreshold:
			summary.Rejected++
		}
	}
	if cached != nil {
		summary.OverallStatus = cached.Decision
		summary.DecisionCached = true
	}
	return summary
}

func completedScores(reviews []models.PeerReview) []float64 {
	scores := make([]float64, 0, len(reviews))
	for _, r := range reviews {
		if r.IsCompleted() && r.OverallScore != nil {
			scores = append(scores, *r.OverallScore)
		}
	}
	return scores
}

func meanVariance(scores []float64) (float64, float64) {
	var sum float64
	for _, s := range scores {
		sum += s
	}
	mean := sum / float64(len(scores))

	var sq float64
	for _, s := range scores {
		sq += (s - mean) * (s - mean)
	}
	return mean, sq / float64(len(scores))
}
