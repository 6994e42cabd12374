package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/store"
)

const (
	defaultBlockReason       = "Blocked by psychologist"
	defaultBlockCancelReason = "Time slot blocked by psychologist"
	maxRecurringSlotDuration = 24 * time.Hour
)

type CreateSlotInput struct {
	PsychologistID string
	StartTime      time.Time
	EndTime        time.Time
	Status         domain.SlotStatus
	Reason         string
}

func (s *Service) CreateSlot(ctx context.Context, in CreateSlotInput) (domain.AvailabilitySlot, error) {
	if in.PsychologistID == "" {
		return domain.AvailabilitySlot{}, validationError("psychologist_id is required")
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return domain.AvailabilitySlot{}, validationError("start_time and end_time are required")
	}
	start, end := in.StartTime.UTC(), in.EndTime.UTC()
	if !start.Before(end) {
		return domain.AvailabilitySlot{}, ErrInvalidRange
	}
	status := in.Status
	if status == "" {
		status = domain.SlotStatusAvailable
	}
	if !status.Valid() {
		return domain.AvailabilitySlot{}, validationError("invalid slot status")
	}

	slot := domain.AvailabilitySlot{
		PsychologistID: in.PsychologistID,
		StartTime:      start,
		EndTime:        end,
	}
	slot.SetStatus(status, strPtr(strings.TrimSpace(in.Reason)))

	var created domain.AvailabilitySlot
	err := s.repo.InPsychologistTransaction(ctx, in.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		overlapping, err := tx.ListOverlappingSlots(ctx, in.PsychologistID, start, end, uuid.Nil)
		if err != nil {
			return err
		}
		if len(overlapping) > 0 {
			return ErrSlotOverlap
		}
		created, err = tx.InsertSlot(ctx, slot)
		if errors.Is(err, store.ErrConflict) {
			return ErrSlotOverlap
		}
		return err
	})
	if err != nil {
		return domain.AvailabilitySlot{}, err
	}
	return created, nil
}

func (s *Service) ListSlots(ctx context.Context, psychologistID string, from, to *time.Time) ([]domain.AvailabilitySlot, error) {
	if psychologistID == "" {
		return nil, validationError("psychologist_id is required")
	}
	if from != nil && to != nil && !from.Before(*to) {
		return nil, ErrInvalidRange
	}
	return s.repo.ListSlots(ctx, store.SlotFilter{PsychologistID: psychologistID, From: from, To: to})
}

type SlotUpdate struct {
	StartTime *time.Time
	EndTime   *time.Time
	Status    *domain.SlotStatus
	Reason    *string
}

// SlotResult carries a slot together with the appointments a block cancelled.
type SlotResult struct {
	Slot      domain.AvailabilitySlot `json:"slot"`
	Cancelled []domain.Appointment    `json:"cancelled_appointments"`
}

// UpdateSlot edits a slot. Moving a slot from available to blocked cancels the
// active appointments inside it, exactly like BlockSlot.
func (s *Service) UpdateSlot(ctx context.Context, slotID uuid.UUID, upd SlotUpdate, actorID string) (SlotResult, error) {
	if err := requireID(slotID, "slot_id"); err != nil {
		return SlotResult{}, err
	}
	if upd.Status != nil && !upd.Status.Valid() {
		return SlotResult{}, validationError("invalid slot status")
	}
	current, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return SlotResult{}, err
	}

	var (
		res     SlotResult
		notices []notice
	)
	err = s.repo.InPsychologistTransaction(ctx, current.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		res, notices = SlotResult{}, nil
		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if actorID != "" && actorID != slot.PsychologistID {
			return ErrUnauthorized
		}
		wasBlocked := slot.Status == domain.SlotStatusBlocked

		if upd.StartTime != nil {
			slot.StartTime = upd.StartTime.UTC()
		}
		if upd.EndTime != nil {
			slot.EndTime = upd.EndTime.UTC()
		}
		if !slot.StartTime.Before(slot.EndTime) {
			return ErrInvalidRange
		}
		if upd.StartTime != nil || upd.EndTime != nil {
			overlapping, err := tx.ListOverlappingSlots(ctx, slot.PsychologistID, slot.StartTime, slot.EndTime, slot.ID)
			if err != nil {
				return err
			}
			if len(overlapping) > 0 {
				return ErrSlotOverlap
			}
		}

		status := slot.Status
		if upd.Status != nil {
			status = *upd.Status
		}
		reason := slot.Reason
		if upd.Reason != nil {
			reason = strPtr(strings.TrimSpace(*upd.Reason))
		}
		slot.SetStatus(status, reason)

		if !wasBlocked && slot.Status == domain.SlotStatusBlocked {
			if slot.Reason == nil {
				slot.Reason = strPtr(defaultBlockReason)
			}
			given := ""
			if upd.Reason != nil {
				given = strings.TrimSpace(*upd.Reason)
			}
			res.Cancelled, notices, err = s.cancelInside(ctx, tx, slot, given, actorOr(actorID, slot.PsychologistID))
			if err != nil {
				return err
			}
		}

		if err := tx.UpdateSlot(ctx, slot); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return ErrSlotOverlap
			}
			return err
		}
		res.Slot = slot
		return nil
	})
	if err != nil {
		return SlotResult{}, err
	}
	s.log.Info("slot updated", slog.String("op", "UpdateSlot"), slog.String("slot_id", slotID.String()), slog.Int("cancelled", len(res.Cancelled)))
	s.dispatch(ctx, notices)
	return res, nil
}

// DeleteSlot removes a slot. Appointments inside it are left untouched.
func (s *Service) DeleteSlot(ctx context.Context, slotID uuid.UUID, actorID string) error {
	if err := requireID(slotID, "slot_id"); err != nil {
		return err
	}
	current, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return err
	}
	return s.repo.InPsychologistTransaction(ctx, current.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if actorID != "" && actorID != slot.PsychologistID {
			return ErrUnauthorized
		}
		return tx.DeleteSlot(ctx, slot.ID)
	})
}

// BlockSlot blocks an available slot and cancels every active appointment that
// starts inside it. All of it commits together or not at all.
func (s *Service) BlockSlot(ctx context.Context, slotID uuid.UUID, reason, actorID string) (SlotResult, error) {
	if err := requireID(slotID, "slot_id"); err != nil {
		return SlotResult{}, err
	}
	if actorID == "" {
		return SlotResult{}, validationError("actor_id is required")
	}
	current, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return SlotResult{}, err
	}

	reason = strings.TrimSpace(reason)
	var (
		res     SlotResult
		notices []notice
	)
	err = s.repo.InPsychologistTransaction(ctx, current.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		res, notices = SlotResult{}, nil
		slot, err := tx.GetSlot(ctx, slotID)
		if err != nil {
			return err
		}
		if actorID != slot.PsychologistID {
			return ErrUnauthorized
		}
		if slot.Status == domain.SlotStatusBlocked {
			return ErrAlreadyBlocked
		}

		slotReason := reason
		if slotReason == "" {
			slotReason = defaultBlockReason
		}
		slot.SetStatus(domain.SlotStatusBlocked, &slotReason)
		if err := tx.UpdateSlot(ctx, slot); err != nil {
			return err
		}

		res.Cancelled, notices, err = s.cancelInside(ctx, tx, slot, reason, actorID)
		if err != nil {
			return err
		}
		res.Slot = slot
		return nil
	})
	if err != nil {
		return SlotResult{}, err
	}
	s.log.Info("slot blocked", slog.String("op", "BlockSlot"), slog.String("slot_id", slotID.String()), slog.Int("cancelled", len(res.Cancelled)))
	s.dispatch(ctx, notices)
	return res, nil
}

// cancelInside cancels the active appointments starting inside slot. The
// stored cancellation reason falls back to a default; the notification only
// carries a reason the psychologist gave.
func (s *Service) cancelInside(ctx context.Context, tx store.SchedulingTx, slot domain.AvailabilitySlot, reason, actorID string) ([]domain.Appointment, []notice, error) {
	affected, err := tx.ListActiveBetween(ctx, slot.PsychologistID, slot.StartTime, slot.EndTime)
	if err != nil {
		return nil, nil, err
	}
	cancelled := make([]domain.Appointment, 0, len(affected))
	notices := make([]notice, 0, len(affected))
	for _, appt := range affected {
		updated, _, err := s.cancelLocked(ctx, tx, appt, cancelReason(reason), actorID)
		if err != nil {
			return nil, nil, err
		}
		cancelled = append(cancelled, updated)
		notices = append(notices, notice{
			recipient: updated.StudentID,
			sender:    actorID,
			kind:      domain.NotificationAppointmentCancelled,
			appt:      updated,
			reason:    reason,
			blocked:   true,
		})
	}
	return cancelled, notices, nil
}

func cancelReason(reason string) string {
	if r := strings.TrimSpace(reason); r != "" {
		return r
	}
	return defaultBlockCancelReason
}

func actorOr(actorID, fallback string) string {
	if actorID == "" {
		return fallback
	}
	return actorID
}

type RecurringSlotsInput struct {
	PsychologistID string
	StartTime      time.Time
	EndTime        time.Time
	Weekdays       []int16
	Interval       int
	Until          *time.Time
	Count          *int
	TimeZone       string
}

type RecurringSlotsResult struct {
	Series domain.AvailabilitySeries `json:"series"`
	Slots  []domain.AvailabilitySlot `json:"slots"`
}

// CreateRecurringSlots materializes a weekly series as ordinary available
// slots. The whole series is rejected if any occurrence overlaps.
func (s *Service) CreateRecurringSlots(ctx context.Context, in RecurringSlotsInput) (RecurringSlotsResult, error) {
	if in.PsychologistID == "" {
		return RecurringSlotsResult{}, validationError("psychologist_id is required")
	}
	start, end := in.StartTime.UTC(), in.EndTime.UTC()
	if !start.Before(end) {
		return RecurringSlotsResult{}, ErrInvalidRange
	}
	if end.Sub(start) > maxRecurringSlotDuration {
		return RecurringSlotsResult{}, validationError("duration too long")
	}
	if in.Interval < 0 {
		return RecurringSlotsResult{}, validationError("interval must be positive")
	}
	if in.Count != nil && *in.Count <= 0 {
		return RecurringSlotsResult{}, validationError("count must be positive")
	}
	if in.Until != nil && in.Until.Before(start) {
		return RecurringSlotsResult{}, validationError("until must not be before start_time")
	}
	tz := strings.TrimSpace(in.TimeZone)
	if tz == "" {
		tz = s.policy.Location.String()
	}
	interval := in.Interval
	if interval == 0 {
		interval = 1
	}

	series := domain.AvailabilitySeries{
		PsychologistID:  in.PsychologistID,
		Timezone:        tz,
		DTStart:         start,
		DurationSeconds: int(end.Sub(start) / time.Second),
		Interval:        interval,
		ByWeekday:       in.Weekdays,
		Until:           in.Until,
		Count:           in.Count,
	}
	occurrences, err := domain.GenerateWeeklySlots(series, start.Add(domain.RecurrenceLookahead))
	if err != nil {
		return RecurringSlotsResult{}, validationError(err.Error())
	}
	if len(occurrences) == 0 {
		return RecurringSlotsResult{}, validationError("rule produces no occurrences")
	}

	var res RecurringSlotsResult
	err = s.repo.InPsychologistTransaction(ctx, in.PsychologistID, func(ctx context.Context, tx store.SchedulingTx) error {
		created, err := tx.InsertSeries(ctx, series)
		if err != nil {
			return err
		}
		slots := make([]domain.AvailabilitySlot, 0, len(occurrences))
		for _, occ := range occurrences {
			overlapping, err := tx.ListOverlappingSlots(ctx, in.PsychologistID, occ.StartTime, occ.EndTime, uuid.Nil)
			if err != nil {
				return err
			}
			if len(overlapping) > 0 {
				return ErrSlotOverlap
			}
			occ.SeriesID = &created.ID
			inserted, err := tx.InsertSlot(ctx, occ)
			if err != nil {
				if errors.Is(err, store.ErrConflict) {
					return ErrSlotOverlap
				}
				return err
			}
			slots = append(slots, inserted)
		}
		res = RecurringSlotsResult{Series: created, Slots: slots}
		return nil
	})
	if err != nil {
		return RecurringSlotsResult{}, err
	}
	s.log.Info("recurring slots created", slog.String("op", "CreateRecurringSlots"), slog.String("psychologist_id", in.PsychologistID), slog.Int("slots", len(res.Slots)))
	return res, nil
}
