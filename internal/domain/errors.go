package domain

import "errors"

// Sentinel ошибки доменного слоя
var (
	ErrUnauthorized       = errors.New("caller identity is not resolved")
	ErrEmptyContent       = errors.New("comment content cannot be empty")
	ErrParentNotFound     = errors.New("parent comment not found")
	ErrMaxDepthExceeded   = errors.New("maximum reply depth exceeded")
	ErrLikeSyncFailed     = errors.New("like was not persisted")
	ErrMutationSyncFailed = errors.New("mutation was not persisted")
	ErrSubjectGone        = errors.New("subject no longer exists")
	ErrCommentNotFound    = errors.New("comment not found")
	ErrPostNotFound       = errors.New("post not found")
	ErrForbidden          = errors.New("only the author may change this comment")
	ErrPendingSubject     = errors.New("subject is not confirmed by the backend yet")
	ErrTransport          = errors.New("backend request failed")
)
