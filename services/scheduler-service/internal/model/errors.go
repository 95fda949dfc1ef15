package model

import "errors"

var (
	ErrValidation          = errors.New("validation failed")
	ErrNotFound            = errors.New("event type not found")
	ErrSelfBooking         = errors.New("owner cannot book their own event type")
	ErrOutsideAvailability = errors.New("requested interval is not within any available period")
	ErrAvailabilityOverlap = errors.New("availability overlaps an existing one for this owner")
	ErrBookerConflict      = errors.New("requested interval conflicts with an existing booking of the booker")
	ErrOwnerConflict       = errors.New("requested interval conflicts with an existing booking of the owner")
	ErrSlotTaken           = errors.New("requested interval is no longer available")
	ErrDuplicateEventType  = errors.New("event type with this name already exists for the owner")
)

var reasons = []struct {
	err  error
	code string
}{
	{ErrValidation, "validation"},
	{ErrNotFound, "not_found"},
	{ErrSelfBooking, "self_booking_denied"},
	{ErrOutsideAvailability, "outside_availability"},
	{ErrAvailabilityOverlap, "availability_overlap"},
	{ErrBookerConflict, "booker_conflict"},
	{ErrOwnerConflict, "owner_conflict"},
	{ErrSlotTaken, "slot_taken"},
	{ErrDuplicateEventType, "duplicate_event_type"},
}

// Reason returns the stable code of a rejection, or "" for errors that are
// not rejections (storage failures, cancelled contexts).
func Reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r.err) {
			return r.code
		}
	}
	return ""
}

// IsConflict reports whether err belongs to the conflict family. Conflicts are
// worth retrying with a different interval, never with the same one.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAvailabilityOverlap) ||
		errors.Is(err, ErrBookerConflict) ||
		errors.Is(err, ErrOwnerConflict) ||
		errors.Is(err, ErrSlotTaken) ||
		errors.Is(err, ErrDuplicateEventType)
}

// IsRejection reports whether err is an expected outcome of bad input or
// contention rather than an infrastructure failure.
func IsRejection(err error) bool {
	return Reason(err) != ""
}
