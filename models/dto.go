package models

type SubmitRevisionRequest struct {
	Title          string   `json:"title" binding:"required,max=255" validate:"required,max=255"`
	Content        string   `json:"content" binding:"required" validate:"required"`
	Comment        string   `json:"comment" validate:"max=1000"`
	AuthorID       string   `json:"-" validate:"required"`
	BaseRevisionID *uint    `json:"base_revision_id"`
	Priority       Priority `json:"priority"`
}

type SubmitRevisionResponse struct {
	Article  Article              `json:"article"`
	Revision Revision             `json:"revision"`
	Entry    ModerationQueueEntry `json:"queue_entry"`
	Created  bool                 `json:"created"`
}

type AssignRequest struct {
	ModeratorID string `json:"moderator_id" binding:"required"`
}

type ResolveRequest struct {
	Outcome Outcome `json:"outcome" binding:"required,oneof=approved rejected"`
	Reason  string  `json:"reason" binding:"max=1000"`
}

type AssignReviewerRequest struct {
	// ReviewerID defaults to the caller when empty (self-assignment).
	ReviewerID string `json:"reviewer_id"`
}

type SubmitReviewRequest struct {
	ReviewID       uint           `json:"-" validate:"required"`
	ReviewerID     string         `json:"-" validate:"required"`
	CriteriaScores map[string]int `json:"criteria_scores" validate:"dive,min=1,max=5"`
	OverallScore   *float64       `json:"overall_score" validate:"omitempty,min=1,max=5"`
	Feedback       Feedback       `json:"feedback"`
}

type ArticleListParams struct {
	Published bool `form:"published"`
	Page      int  `form:"page,default=1"`
	Limit     int  `form:"limit,default=10"`
}
