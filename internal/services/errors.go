package services

import (
	"errors"
	"fmt"
)

// Domain sentinel errors. Handlers map these onto HTTP status codes.
var (
	// Group domain
	ErrGroupNotFound         = errors.New("group not found")
	ErrGroupNotActive        = errors.New("group is not active")
	ErrGroupFull             = errors.New("group has reached its member limit")
	ErrAlreadyMember         = errors.New("user is already a member of this group")
	ErrNotGroupMember        = errors.New("user is not a member of this group")
	ErrLastGroupAdmin        = errors.New("cannot remove the last admin of a group")
	ErrGroupCreatorImmutable = errors.New("the group creator cannot be removed or demoted")

	// Message domain
	ErrMessageNotFound         = errors.New("message not found")
	ErrMessageDeleted          = errors.New("message has been deleted")
	ErrReplyNotInGroup         = errors.New("replied-to message does not belong to this group")
	ErrStudentMessagesDisabled = errors.New("student messages are disabled in this group")
	ErrFileUploadsDisabled     = errors.New("file uploads are disabled in this group")
	ErrSystemMessageImmutable  = errors.New("system messages cannot be edited or deleted")

	// Quiz domain
	ErrQuizNotFound            = errors.New("quiz not found")
	ErrQuizNotActive           = errors.New("quiz is not active")
	ErrQuizDeadlinePassed      = errors.New("quiz deadline has passed")
	ErrQuizCreationDisabled    = errors.New("quiz creation is disabled in this group")
	ErrQuizHasSubmissions      = errors.New("quiz already has submissions")
	ErrSubmissionNotFound      = errors.New("submission not found")
	ErrAttemptsExhausted       = errors.New("maximum attempts reached for this quiz")
	ErrAttemptAlreadySubmitted = errors.New("submission has already been submitted")
	ErrAnswerCountMismatch     = errors.New("answer count does not match question count")
	ErrNotEssayQuestion        = errors.New("question is not manually gradable")

	// User domain
	ErrUserNotFound = errors.New("user not found")
)

// PermissionError carries the who/what/why of a denied action.
type PermissionError struct {
	UserID     string `json:"user_id"`
	ResourceID uint   `json:"resource_id"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
	Reason     string `json:"reason"`
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: user %s cannot %s %s %d: %s",
		e.UserID, e.Action, e.Resource, e.ResourceID, e.Reason)
}

func NewPermissionError(userID string, resourceID uint, resource, action, reason string) *PermissionError {
	return &PermissionError{
		UserID:     userID,
		ResourceID: resourceID,
		Resource:   resource,
		Action:     action,
		Reason:     reason,
	}
}

// IsPermissionError reports whether err is a PermissionError.
func IsPermissionError(err error) bool {
	var pe *PermissionError
	return errors.As(err, &pe)
}

// ConflictError marks state conflicts that should surface as 409.
type ConflictError struct {
	Resource string `json:"resource"`
	Reason   string `json:"reason"`
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Reason)
}

func NewConflictError(resource, reason string) *ConflictError {
	return &ConflictError{Resource: resource, Reason: reason}
}

func IsConflictError(err error) bool {
	var ce *ConflictError
	return errors.As(err, &ce)
}

// IsNotFoundError reports whether err is one of the domain not-found sentinels.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrMessageNotFound) ||
		errors.Is(err, ErrQuizNotFound) ||
		errors.Is(err, ErrSubmissionNotFound) ||
		errors.Is(err, ErrUserNotFound)
}
