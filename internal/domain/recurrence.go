package domain

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RecurrenceLookahead bounds how far ahead a weekly series is materialized.
const RecurrenceLookahead = 180 * 24 * time.Hour

// AvailabilitySeries is a weekly availability rule. Its occurrences are stored
// as ordinary availability slots tagged with the series id.
type AvailabilitySeries struct {
	bun.BaseModel `bun:"table:availability_series"`

	ID              uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	PsychologistID  string     `bun:"psychologist_id,notnull" json:"psychologist_id"`
	Timezone        string     `bun:"timezone,notnull" json:"timezone"`
	DTStart         time.Time  `bun:"dtstart,notnull" json:"dtstart"`
	DurationSeconds int        `bun:"duration_seconds,notnull" json:"duration_seconds"`
	Interval        int        `bun:"interval,notnull" json:"interval"`
	ByWeekday       []int16    `bun:"byweekday,array,notnull" json:"byweekday"`
	Until           *time.Time `bun:"until" json:"until,omitempty"`
	Count           *int       `bun:"count" json:"count,omitempty"`
	CreatedAt       time.Time  `bun:"created_at,notnull" json:"created_at"`
	UpdatedAt       time.Time  `bun:"updated_at,notnull" json:"updated_at"`
}

func (s *AvailabilitySeries) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	return stamp(query, &s.ID, &s.CreatedAt, &s.UpdatedAt)
}

// GenerateWeeklySlots expands the series into available slots starting before horizon.
// Weekdays use ISO numbering, 1 = Monday through 7 = Sunday.
func GenerateWeeklySlots(series AvailabilitySeries, horizon time.Time) ([]AvailabilitySlot, error) {
	if series.DurationSeconds <= 0 {
		return nil, errors.New("invalid duration")
	}
	loc, err := time.LoadLocation(series.Timezone)
	if err != nil {
		return nil, errors.New("invalid time_zone")
	}

	days := make(map[time.Weekday]struct{}, len(series.ByWeekday))
	for _, wd := range series.ByWeekday {
		if wd < 1 || wd > 7 {
			return nil, errors.New("invalid weekday")
		}
		days[time.Weekday(wd%7)] = struct{}{}
	}
	if len(days) == 0 {
		return nil, errors.New("at least one weekday is required")
	}

	interval := series.Interval
	if interval < 1 {
		interval = 1
	}

	first := series.DTStart.In(loc)
	firstMonday := mondayOf(first)
	duration := time.Duration(series.DurationSeconds) * time.Second

	out := make([]AvailabilitySlot, 0, 16)
	for day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc); ; day = day.AddDate(0, 0, 1) {
		start := time.Date(day.Year(), day.Month(), day.Day(), first.Hour(), first.Minute(), first.Second(), 0, loc).UTC()
		if !start.Before(horizon) {
			break
		}
		if series.Until != nil && start.After(series.Until.UTC()) {
			break
		}
		if series.Count != nil && len(out) >= *series.Count {
			break
		}
		if _, ok := days[day.Weekday()]; !ok {
			continue
		}
		weeks := int(mondayOf(day).Sub(firstMonday).Hours()+12) / (24 * 7)
		if weeks%interval != 0 {
			continue
		}
		if start.Before(series.DTStart.UTC()) {
			continue
		}

		seriesID := series.ID
		out = append(out, AvailabilitySlot{
			PsychologistID: series.PsychologistID,
			StartTime:      start,
			EndTime:        start.Add(duration),
			Status:         SlotStatusAvailable,
			SeriesID:       &seriesID,
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func mondayOf(t time.Time) time.Time {
	offset := int(t.Weekday()) - 1
	if t.Weekday() == time.Sunday {
		offset = 6
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, -offset)
}
