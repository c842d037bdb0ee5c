package models

import "fmt"

// Conflict, invalid-transition and unauthorized reasons. Callers match them
// with errors.Is against the package-level sentinels below.
const (
	ReasonDuplicateTitle        = "duplicate_title"
	ReasonEditConflict          = "edit_conflict"
	ReasonAlreadyAssigned       = "already_assigned"
	ReasonAlreadyResolved       = "already_resolved"
	ReasonReviewerPoolExhausted = "reviewer_pool_exhausted"
	ReasonInvalidPromotion      = "invalid_promotion"
	ReasonReviewCompleted       = "review_completed"
	ReasonRevisionClosed        = "revision_closed"
	ReasonDirectResolution      = "direct_resolution_disabled"
	ReasonSelfReview            = "self_review"
	ReasonNotAssignedReviewer   = "not_assigned_reviewer"
)

// ErrorNotFound reports an unknown article, revision, queue entry or review.
type ErrorNotFound struct {
	Resource string
	Key      string
}

func (e ErrorNotFound) Error() string {
	if e.Key == "" {
		return fmt.Sprintf("%s not found", e.resource())
	}
	return fmt.Sprintf("%s %q not found", e.resource(), e.Key)
}

func (e ErrorNotFound) resource() string {
	if e.Resource == "" {
		return "resource"
	}
	return e.Resource
}

// Is matches any ErrorNotFound when the target has no resource set.
func (e ErrorNotFound) Is(target error) bool {
	t, ok := target.(ErrorNotFound)
	return ok && (t.Resource == "" || t.Resource == e.Resource)
}

// ErrorConflict reports a uniqueness or at-most-once violation.
type ErrorConflict struct {
	Reason  string
	Message string
}

func (e ErrorConflict) Error() string {
	return describe("conflict", e.Reason, e.Message)
}

func (e ErrorConflict) Is(target error) bool {
	t, ok := target.(ErrorConflict)
	return ok && (t.Reason == "" || t.Reason == e.Reason)
}

// ErrorInvalidTransition reports an attempt to move a state machine backward
// or to skip a required state.
type ErrorInvalidTransition struct {
	Reason  string
	Message string
}

func (e ErrorInvalidTransition) Error() string {
	return describe("invalid transition", e.Reason, e.Message)
}

func (e ErrorInvalidTransition) Is(target error) bool {
	t, ok := target.(ErrorInvalidTransition)
	return ok && (t.Reason == "" || t.Reason == e.Reason)
}

// ErrorUnauthorized reports an actor lacking the required relationship to
// the resource it is acting on.
type ErrorUnauthorized struct {
	Reason  string
	Message string
}

func (e ErrorUnauthorized) Error() string {
	return describe("unauthorized", e.Reason, e.Message)
}

func (e ErrorUnauthorized) Is(target error) bool {
	t, ok := target.(ErrorUnauthorized)
	return ok && (t.Reason == "" || t.Reason == e.Reason)
}

// ErrorExternalDependency reports that the text-search provider could not be
// reached after the bounded retries.
type ErrorExternalDependency struct {
	Dependency string
	Cause      error
}

func (e ErrorExternalDependency) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("%s unavailable", e.Dependency)
	}
	return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Cause)
}

func (e ErrorExternalDependency) Unwrap() error {
	return e.Cause
}

func (e ErrorExternalDependency) Is(target error) bool {
	_, ok := target.(ErrorExternalDependency)
	return ok
}

// ErrorValidation reports malformed command input.
type ErrorValidation struct {
	Field   string
	Message string
	Cause   error
}

func (e ErrorValidation) Error() string {
	if e.Field == "" {
		return "invalid input: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e ErrorValidation) Unwrap() error {
	return e.Cause
}

func (e ErrorValidation) Is(target error) bool {
	_, ok := target.(ErrorValidation)
	return ok
}

func describe(kind, reason, message string) string {
	switch {
	case reason == "" && message == "":
		return kind
	case message == "":
		return kind + ": " + reason
	case reason == "":
		return kind + ": " + message
	default:
		return fmt.Sprintf("%s: %s: %s", kind, reason, message)
	}
}

var (
	ErrDuplicateTitle        = ErrorConflict{Reason: ReasonDuplicateTitle}
	ErrEditConflict          = ErrorConflict{Reason: ReasonEditConflict}
	ErrAlreadyAssigned       = ErrorConflict{Reason: ReasonAlreadyAssigned}
	ErrAlreadyResolved       = ErrorConflict{Reason: ReasonAlreadyResolved}
	ErrReviewerPoolExhausted = ErrorConflict{Reason: ReasonReviewerPoolExhausted}

	ErrInvalidPromotion  = ErrorInvalidTransition{Reason: ReasonInvalidPromotion}
	ErrReviewCompleted   = ErrorInvalidTransition{Reason: ReasonReviewCompleted}
	ErrRevisionClosed    = ErrorInvalidTransition{Reason: ReasonRevisionClosed}
	ErrDirectResolution  = ErrorInvalidTransition{Reason: ReasonDirectResolution}
	ErrSelfReview        = ErrorUnauthorized{Reason: ReasonSelfReview}
	ErrNotAssignedReview = ErrorUnauthorized{Reason: ReasonNotAssignedReviewer}

	ErrSearchUnavailable = ErrorExternalDependency{Dependency: "search provider"}
)
