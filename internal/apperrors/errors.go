// Package apperrors defines the error taxonomy shared by the stores, the
// services and the HTTP boundary.
package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindNotFound           Kind = "not_found"
	KindForbidden          Kind = "forbidden"
	KindConflict           Kind = "conflict"
	KindInvalidInput       Kind = "invalid_input"
	KindUnauthenticated    Kind = "unauthenticated"
	KindStorageUnavailable Kind = "storage_unavailable"
	KindInternal           Kind = "internal"
)

// Error carries a Kind for status mapping and a stable Code for clients.
// Two errors match under errors.Is when their codes are equal.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: e.Message, Err: cause}
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: fmt.Sprintf(format, args...), Err: e.Err}
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func NotFound(message string) *Error {
	return New(KindNotFound, "not_found", message)
}

func Forbidden(message string) *Error {
	return New(KindForbidden, "forbidden", message)
}

func Conflict(message string) *Error {
	return New(KindConflict, "conflict", message)
}

func InvalidInput(message string) *Error {
	return New(KindInvalidInput, "invalid_input", message)
}

func StorageUnavailable(cause error) *Error {
	return &Error{Kind: KindStorageUnavailable, Code: "storage_unavailable", Message: "attachment storage unavailable", Err: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Code: "internal", Message: "internal error", Err: cause}
}

var (
	ErrNotFound            = NotFound("resource not found")
	ErrForbidden           = Forbidden("action not permitted")
	ErrUnauthenticated     = New(KindUnauthenticated, "unauthenticated", "authentication required")
	ErrDuplicateMembership = New(KindConflict, "duplicate_membership", "user is already a member of this project")
	ErrNotAMember          = New(KindNotFound, "not_a_member", "user is not a member of this project")
	ErrCreatorMembership   = New(KindConflict, "creator_membership", "the project creator cannot be removed from the project")
	ErrProjectNotFound     = New(KindNotFound, "project_not_found", "project not found")
	ErrTaskNotFound        = New(KindNotFound, "task_not_found", "task not found")
	ErrSubTaskNotFound     = New(KindNotFound, "subtask_not_found", "subtask not found")
	ErrCommentNotFound     = New(KindNotFound, "comment_not_found", "comment not found")
	ErrAttachmentNotFound  = New(KindNotFound, "attachment_not_found", "attachment not found")
	ErrUserNotFound        = New(KindNotFound, "user_not_found", "user not found")
	ErrParentNotFound      = New(KindNotFound, "parent_not_found", "parent resource not found")
	ErrUnsupportedType     = New(KindInvalidInput, "unsupported_type", "file type is not allowed")
	ErrEmptyFile           = New(KindInvalidInput, "empty_file", "file is empty")
	ErrFileTooLarge        = New(KindInvalidInput, "file_too_large", "file exceeds the maximum upload size")
	ErrAmbiguousParent     = New(KindInvalidInput, "ambiguous_parent", "exactly one of task or subtask must be set")
	ErrEmailAlreadyExists  = New(KindConflict, "email_already_exists", "email already exists")
	ErrUsernameTaken       = New(KindConflict, "username_already_exists", "username already exists")
	ErrInvalidCredentials  = New(KindUnauthenticated, "invalid_credentials", "invalid email or password")
	ErrInvalidToken        = New(KindUnauthenticated, "invalid_token", "token is invalid or expired")
	ErrUserOwnsProjects    = New(KindConflict, "user_owns_projects", "user still owns projects")
)

// KindOf reports the Kind of err, or KindInternal when err carries none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
