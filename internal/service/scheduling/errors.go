package scheduling

import (
	"errors"

	"counseling/backend/internal/store"
)

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

func validationError(msg string) error {
	return &ValidationError{msg: msg}
}

var (
	ErrNotFound          = store.ErrNotFound
	ErrInvalidRange      = errors.New("start time must be before end time")
	ErrSlotBlocked       = errors.New("this time slot is blocked")
	ErrSlotTaken         = errors.New("this time slot is already booked")
	ErrSlotUnavailable   = errors.New("the selected time is not within an available slot or is already booked")
	ErrSlotOverlap       = errors.New("availability slot overlaps an existing slot")
	ErrAlreadyBlocked    = errors.New("this time slot is already blocked")
	ErrPastDate          = errors.New("cannot schedule an appointment in the past")
	ErrUnauthorized      = errors.New("not allowed to act on this resource")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrCaseExists        = errors.New("an active case already exists for this student and psychologist")
	ErrDeliveryFailed    = errors.New("delivery failed")
)
