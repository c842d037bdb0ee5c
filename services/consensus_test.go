package services

import (
	"testing"

	"encyclopedia-cms/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func completed(scores ...float64) []models.PeerReview {
	reviews := make([]models.PeerReview, len(scores))
	for i := range scores {
		s := scores[i]
		reviews[i] = models.PeerReview{Status: models.ReviewCompleted, OverallScore: &s}
	}
	return reviews
}

func TestEvaluateConsensus(t *testing.T) {
	policy := models.DefaultConsensusPolicy()
	policy.Quorum = 3
	policy.MaxReviewers = 4

	tests := []struct {
		name    string
		reviews []models.PeerReview
		want    models.Decision
	}{
		{"no reviews", nil, models.DecisionUndecided},
		{"below quorum", completed(5, 5), models.DecisionUndecided},
		{"approve", completed(5, 4, 4.5), models.DecisionApprove},
		{"approve at threshold", completed(3.5, 3.5, 3.5), models.DecisionApprove},
		{"reject", completed(2, 1, 2), models.DecisionReject},
		{"reject threshold is exclusive", completed(2.5, 2.5, 2.5), models.DecisionUndecided},
		{"split below max reviewers", completed(1, 5, 3), models.DecisionUndecided},
		{"split at max reviewers", completed(1, 5, 3, 3), models.DecisionInsufficientConsensus},
		{
			"split with pool filled by unfinished reviews",
			append(completed(3, 3, 3), models.PeerReview{Status: models.ReviewPending}),
			models.DecisionInsufficientConsensus,
		},
		{
			"full pool below quorum",
			append(completed(3, 3), models.PeerReview{Status: models.ReviewPending}, models.PeerReview{Status: models.ReviewInProgress}),
			models.DecisionUndecided,
		},
		{
			"pending reviews do not count",
			append(completed(5, 5), models.PeerReview{Status: models.ReviewInProgress}),
			models.DecisionUndecided,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EvaluateConsensus(tt.reviews, policy)
			assert.Equal(t, tt.want, got.Decision)
			again := EvaluateConsensus(tt.reviews, policy)
			assert.Equal(t, got, again)
		})
	}
}

func TestOverallScoreModes(t *testing.T) {
	criteria := map[string]int{models.CriterionAccuracy: 5, models.CriterionClarity: 2}
	stated := 4.04

	policy := models.DefaultConsensusPolicy()
	policy.CriteriaWeights[models.CriterionAccuracy] = 2

	policy.ScoreMode = models.ScoreCompute
	score, err := OverallScore(criteria, &stated, policy)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, score, 0.001)

	policy.ScoreMode = models.ScorePreferReviewer
	score, err = OverallScore(criteria, &stated, policy)
	require.NoError(t, err)
	assert.InDelta(t, 4.0, score, 0.001)

	score, err = OverallScore(map[string]int{models.CriterionClarity: 3, models.CriterionStyle: 4}, nil, policy)
	require.NoError(t, err)
	assert.InDelta(t, 3.5, score, 0.001)

	policy.ScoreMode = models.ScoreTrustReviewer
	_, err = OverallScore(criteria, nil, policy)
	assert.ErrorIs(t, err, models.ErrorValidation{})
}

func TestSummarize(t *testing.T) {
	policy := models.DefaultConsensusPolicy()
	reviews := append(completed(4, 2), models.PeerReview{Status: models.ReviewPending})

	summary := summarize(9, reviews, policy, nil)
	assert.Equal(t, 3, summary.TotalReviews)
	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 1, summary.Pending)
	assert.Equal(t, 1, summary.Approved)
	assert.Equal(t, 1, summary.Rejected)
	require.NotNil(t, summary.MeanScore)
	assert.InDelta(t, 3.0, *summary.MeanScore, 0.001)
	assert.InDelta(t, 1.0, summary.ScoreVariance, 0.001)
	assert.InDelta(t, 0.75, summary.Confidence, 0.001)
	assert.Equal(t, models.DecisionUndecided, summary.OverallStatus)
	assert.False(t, summary.DecisionCached)

	cached := &models.ConsensusDecision{Decision: models.DecisionReject}
	summary = summarize(9, reviews, policy, cached)
	assert.Equal(t, models.DecisionReject, summary.OverallStatus)
	assert.True(t, summary.DecisionCached)
}
