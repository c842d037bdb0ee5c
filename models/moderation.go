package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// ContentKind tags the moderatable content a queue entry refers to. The set
// is closed; every switch over it must handle each kind.
type ContentKind string

const (
	ContentRevision ContentKind = "revision"
)

func (k ContentKind) Valid() bool {
	switch k {
	case ContentRevision:
		return true
	}
	return false
}

// ContentRef identifies one piece of moderatable content.
type ContentRef struct {
	Kind ContentKind `json:"kind"`
	ID   uint        `json:"id"`
}

func (r ContentRef) String() string {
	return fmt.Sprintf("%s/%d", r.Kind, r.ID)
}

type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

var priorityNames = map[Priority]string{
	PriorityLow:    "low",
	PriorityNormal: "normal",
	PriorityHigh:   "high",
	PriorityUrgent: "urgent",
}

func (p Priority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

func (p Priority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority accepts the lowercase priority names. An empty string is
// PriorityNormal.
func ParsePriority(s string) (Priority, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return PriorityNormal, nil
	}
	for p, name := range priorityNames {
		if name == s {
			return p, nil
		}
	}
	return PriorityNormal, ErrorValidation{Field: "priority", Message: fmt.Sprintf("unknown priority %q", s)}
}

func (p Priority) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

func (p *Priority) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePriority(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

type ModerationQueueEntry struct {
	ID               uint           `json:"id" gorm:"primarykey"`
	ContentKind      ContentKind    `json:"content_kind" gorm:"type:varchar(32);not null;uniqueIndex:idx_queue_content"`
	ContentID        uint           `json:"content_id" gorm:"not null;uniqueIndex:idx_queue_content"`
	ArticleID        uint           `json:"article_id" gorm:"not null;index"`
	Priority         Priority       `json:"priority" gorm:"not null;index"`
	Status           RevisionStatus `json:"status" gorm:"type:varchar(16);not null;default:'pending';index"`
	AssignedTo       *string        `json:"assigned_to" gorm:"index"`
	SubmittedBy      string         `json:"submitted_by" gorm:"not null"`
	Escalated        bool           `json:"escalated" gorm:"not null;default:false"`
	ResolutionReason string         `json:"resolution_reason,omitempty" gorm:"type:text"`
	SubmittedAt      time.Time      `json:"submitted_at"`
	ResolvedAt       *time.Time     `json:"resolved_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

func (e *ModerationQueueEntry) Content() ContentRef {
	return ContentRef{Kind: e.ContentKind, ID: e.ContentID}
}

type ActionType string

const (
	ActionEnqueue     ActionType = "enqueue"
	ActionBeginReview ActionType = "begin_review"
	ActionAssign      ActionType = "assign"
	ActionApprove     ActionType = "approve"
	ActionReject      ActionType = "reject"
	ActionEscalate    ActionType = "escalate"
	ActionPromote     ActionType = "promote"
)

// ModerationAction is the append-only audit trail of a queue entry.
type ModerationAction struct {
	ID        uint       `json:"id" gorm:"primarykey"`
	EntryID   uint       `json:"entry_id" gorm:"not null;index"`
	ArticleID uint       `json:"article_id" gorm:"not null;index"`
	Action    ActionType `json:"action" gorm:"type:varchar(32);not null"`
	ActorID   string     `json:"actor_id" gorm:"not null"`
	Reason    string     `json:"reason,omitempty" gorm:"type:text"`
	CreatedAt time.Time  `json:"created_at"`
}

// Outcome is a moderator's or the consensus engine's final verdict.
type Outcome string

const (
	OutcomeApproved Outcome = "approved"
	OutcomeRejected Outcome = "rejected"
)

func (o Outcome) Status() (RevisionStatus, error) {
	switch o {
	case OutcomeApproved:
		return StatusApproved, nil
	case OutcomeRejected:
		return StatusRejected, nil
	}
	return "", ErrorValidation{Field: "outcome", Message: fmt.Sprintf("unknown outcome %q", o)}
}

// QueueStats counts queue entries by status.
type QueueStats struct {
	Pending   int64 `json:"pending"`
	InReview  int64 `json:"in_review"`
	Approved  int64 `json:"approved"`
	Rejected  int64 `json:"rejected"`
	Escalated int64 `json:"escalated"`
	Total     int64 `json:"total"`
}

// QueueFilter selects queue entries for listing.
type QueueFilter struct {
	Status     RevisionStatus `form:"status"`
	AssignedTo string         `form:"assigned_to"`
	Limit      int            `form:"limit,default=20"`
	Offset     int            `form:"offset"`
}
