package workflow

import (
	"errors"
	"fmt"

	"github.com/mmdatafocus/purchasing_backend/utils"
)

type MergeErrorKind string

const (
	ErrKindInvalidRequest  MergeErrorKind = "InvalidRequest"
	ErrKindNotFound        MergeErrorKind = "NotFound"
	ErrKindIneligibleOrder MergeErrorKind = "IneligibleOrder"
	ErrKindDraftConflict   MergeErrorKind = "DraftConflict"
)

// Sentinels for errors.Is; every *MergeError matches the one of its kind.
var (
	ErrInvalidRequest  = errors.New("invalid merge request")
	ErrNotFound        = errors.New("purchase order not found")
	ErrIneligibleOrder = errors.New("purchase order is not eligible for merge")
	ErrDraftConflict   = errors.New("invoice draft conflict")
)

// MergeError is a user-facing merge failure. None of them are retryable without changing the input.
type MergeError struct {
	Kind    MergeErrorKind
	Message string
	// MissingIds is set for NotFound, ascending.
	MissingIds []int
	// Field is set for DraftConflict.
	Field string
	// OrderIds names the orders involved in the failure, when known.
	OrderIds []int
}

func (e *MergeError) Error() string {
	return e.Message
}

func (e *MergeError) Is(target error) bool {
	switch e.Kind {
	case ErrKindInvalidRequest:
		return target == ErrInvalidRequest
	case ErrKindNotFound:
		return target == ErrNotFound
	case ErrKindIneligibleOrder:
		return target == ErrIneligibleOrder
	case ErrKindDraftConflict:
		return target == ErrDraftConflict
	}
	return false
}

func invalidRequest(format string, args ...any) *MergeError {
	return &MergeError{Kind: ErrKindInvalidRequest, Message: fmt.Sprintf(format, args...)}
}

func ineligible(orderId int, format string, args ...any) *MergeError {
	return &MergeError{Kind: ErrKindIneligibleOrder, Message: fmt.Sprintf(format, args...), OrderIds: []int{orderId}}
}

func notFound(missing []int) *MergeError {
	return &MergeError{
		Kind:       ErrKindNotFound,
		Message:    "purchase order(s) not found: " + utils.JoinIds(missing),
		MissingIds: missing,
		OrderIds:   missing,
	}
}

func draftConflict(field string, targetId int, baseValue string, sourceId int, incomingValue string) *MergeError {
	return &MergeError{
		Kind:     ErrKindDraftConflict,
		Field:    field,
		OrderIds: []int{targetId, sourceId},
		Message: fmt.Sprintf("invoice draft conflict on %s: purchase order %d has %q but purchase order %d has %q",
			field, targetId, baseValue, sourceId, incomingValue),
	}
}
