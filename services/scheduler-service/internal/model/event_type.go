package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const maxNameLength = 200

// EventType is a named, fixed-duration activity an owner offers for booking.
type EventType struct {
	ID              string
	Name            string
	DurationMinutes int
	OwnerID         string
	CreatedAt       time.Time
}

// NewEventType validates input and assigns a fresh id.
func NewEventType(name string, durationMinutes int, ownerID string) (EventType, error) {
	name = strings.TrimSpace(name)
	ownerID = strings.TrimSpace(ownerID)
	switch {
	case name == "":
		return EventType{}, fmt.Errorf("%w: name is required", ErrValidation)
	case len(name) > maxNameLength:
		return EventType{}, fmt.Errorf("%w: name is longer than %d characters", ErrValidation, maxNameLength)
	case ownerID == "":
		return EventType{}, fmt.Errorf("%w: owner id is required", ErrValidation)
	case durationMinutes < 1:
		return EventType{}, fmt.Errorf("%w: duration must be positive", ErrValidation)
	}
	return EventType{
		ID:              uuid.NewString(),
		Name:            name,
		DurationMinutes: durationMinutes,
		OwnerID:         ownerID,
		CreatedAt:       time.Now().UTC(),
	}, nil
}

// RestoreEventType rebuilds a stored event type without validation or id generation.
func RestoreEventType(id, name string, durationMinutes int, ownerID string, createdAt time.Time) EventType {
	return EventType{
		ID:              id,
		Name:            name,
		DurationMinutes: durationMinutes,
		OwnerID:         ownerID,
		CreatedAt:       createdAt.UTC(),
	}
}

func (e EventType) Duration() time.Duration {
	return time.Duration(e.DurationMinutes) * time.Minute
}
