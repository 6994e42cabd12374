package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

type SlotStatus string

const (
	SlotStatusAvailable SlotStatus = "available"
	SlotStatusBlocked   SlotStatus = "blocked"
)

func (s SlotStatus) Valid() bool {
	return s == SlotStatusAvailable || s == SlotStatusBlocked
}

type AvailabilitySlot struct {
	bun.BaseModel `bun:"table:availability_slots"`

	ID             uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	PsychologistID string     `bun:"psychologist_id,notnull" json:"psychologist_id"`
	StartTime      time.Time  `bun:"start_time,notnull" json:"start_time"`
	EndTime        time.Time  `bun:"end_time,notnull" json:"end_time"`
	Status         SlotStatus `bun:"status,notnull" json:"status"`
	Reason         *string    `bun:"reason" json:"reason,omitempty"`
	SeriesID       *uuid.UUID `bun:"series_id,type:uuid" json:"series_id,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt      time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

func (s *AvailabilitySlot) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// Covers reports whether at falls in [StartTime, EndTime).
func (s AvailabilitySlot) Covers(at time.Time) bool {
	return !at.Before(s.StartTime) && at.Before(s.EndTime)
}

// Contains reports whether [start, end] lies entirely inside the slot.
func (s AvailabilitySlot) Contains(start, end time.Time) bool {
	return !start.Before(s.StartTime) && !end.After(s.EndTime)
}

func (s AvailabilitySlot) Overlaps(start, end time.Time) bool {
	return s.StartTime.Before(end) && s.EndTime.After(start)
}

// SetStatus applies a status change; reason is kept only for blocked slots.
func (s *AvailabilitySlot) SetStatus(status SlotStatus, reason *string) {
	s.Status = status
	if status != SlotStatusBlocked {
		s.Reason = nil
		return
	}
	s.Reason = reason
}
