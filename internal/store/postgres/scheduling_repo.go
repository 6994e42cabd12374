package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/retry"
	"counseling/backend/internal/store"
)

type SchedulingRepo struct {
	db          *bun.DB
	maxAttempts int
}

func NewSchedulingRepo(db *bun.DB, maxAttempts int) *SchedulingRepo {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	return &SchedulingRepo{db: db, maxAttempts: maxAttempts}
}

type schedulingTx struct {
	tx bun.Tx
}

// InPsychologistTransaction runs fn in a transaction holding the psychologist's
// advisory lock, so check-then-write sequences on one timeline never interleave.
// Serialization failures and deadlocks are retried with backoff.
func (r *SchedulingRepo) InPsychologistTransaction(ctx context.Context, psychologistID string, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	return retry.WithExponentialBackoff(ctx, func(ctx context.Context) error {
		err := r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if err := lockPsychologist(ctx, tx, psychologistID); err != nil {
				return err
			}
			return fn(ctx, schedulingTx{tx: tx})
		})
		return mapError(err)
	}, retry.WithMaxAttempts(r.maxAttempts))
}

func lockPsychologist(ctx context.Context, tx bun.Tx, psychologistID string) error {
	_, err := tx.NewRaw("SELECT pg_advisory_xact_lock(hashtext(?))", "psychologist:"+psychologistID).Exec(ctx)
	return err
}

func (r *SchedulingRepo) GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error) {
	return getSlot(ctx, r.db, id)
}

func (r *SchedulingRepo) ListSlots(ctx context.Context, f store.SlotFilter) ([]domain.AvailabilitySlot, error) {
	var rows []domain.AvailabilitySlot
	q := r.db.NewSelect().Model(&rows).OrderExpr("start_time ASC")
	if f.PsychologistID != "" {
		q = q.Where("psychologist_id = ?", f.PsychologistID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.From != nil {
		q = q.Where("start_time >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("end_time <= ?", f.To.UTC())
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (r *SchedulingRepo) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, r.db, id)
}

func (r *SchedulingRepo) ListAppointments(ctx context.Context, f store.AppointmentFilter) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := r.db.NewSelect().Model(&rows).OrderExpr("date ASC")
	if f.StudentID != "" {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.PsychologistID != "" {
		q = q.Where("psychologist_id = ?", f.PsychologistID)
	}
	if len(f.Statuses) > 0 {
		q = q.Where("status IN (?)", bun.In(f.Statuses))
	}
	if f.From != nil {
		q = q.Where("date >= ?", f.From.UTC())
	}
	if f.To != nil {
		q = q.Where("date < ?", f.To.UTC())
	}
	if f.ReminderSent != nil {
		q = q.Where("reminder_sent = ?", *f.ReminderSent)
	}
	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (r *SchedulingRepo) CountByStatus(ctx context.Context, psychologistID string, from, to time.Time) (map[domain.AppointmentStatus]int, error) {
	var rows []struct {
		Status domain.AppointmentStatus `bun:"status"`
		Count  int                      `bun:"count"`
	}
	err := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Column("status").
		ColumnExpr("count(*) AS count").
		Where("psychologist_id = ?", psychologistID).
		Where("date >= ?", from.UTC()).
		Where("date <= ?", to.UTC()).
		Group("status").
		Scan(ctx, &rows)
	if err != nil {
		return nil, mapError(err)
	}
	out := make(map[domain.AppointmentStatus]int, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}

// MarkReminderSent flags a confirmed appointment as reminded, provided its date
// has not moved since the reminder was sent.
func (r *SchedulingRepo) MarkReminderSent(ctx context.Context, appointmentID uuid.UUID, date time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*domain.Appointment)(nil)).
		Set("reminder_sent = TRUE").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", appointmentID).
		Where("date = ?", date.UTC()).
		Where("status = ?", domain.AppointmentStatusConfirmed).
		Where("reminder_sent = FALSE").
		Exec(ctx)
	if err != nil {
		return false, mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

func (r *SchedulingRepo) ListPsychologistsWithSessions(ctx context.Context, from, to time.Time) ([]string, error) {
	var ids []string
	err := r.db.NewSelect().
		Model((*domain.Appointment)(nil)).
		Distinct().
		Column("psychologist_id").
		Where("status = ?", domain.AppointmentStatusConfirmed).
		Where("date >= ?", from.UTC()).
		Where("date < ?", to.UTC()).
		OrderExpr("psychologist_id ASC").
		Scan(ctx, &ids)
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

func (r *SchedulingRepo) GetCase(ctx context.Context, id uuid.UUID) (domain.Case, error) {
	return getCase(ctx, r.db, id)
}

func (r *SchedulingRepo) ListCases(ctx context.Context, f store.CaseFilter) ([]domain.Case, error) {
	var rows []domain.Case
	q := r.db.NewSelect().Model(&rows)
	if f.StudentID != "" {
		q = q.Where("student_id = ?", f.StudentID)
	}
	if f.PsychologistID != "" {
		q = q.Where("psychologist_id = ?", f.PsychologistID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Archived != nil {
		q = q.Where("archived = ?", *f.Archived)
	}
	if f.Triage {
		q = q.OrderExpr("CASE WHEN priority = ? THEN 0 ELSE 1 END, created_at ASC", domain.PriorityEmergency)
	} else {
		q = q.OrderExpr("updated_at DESC")
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	if err := attachLinks(ctx, r.db, rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *SchedulingRepo) ListCaseAppointments(ctx context.Context, caseID uuid.UUID) ([]domain.Appointment, error) {
	return listCaseAppointments(ctx, r.db, caseID)
}

func (t schedulingTx) GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error) {
	return getSlot(ctx, t.tx, id)
}

func (t schedulingTx) FindCoveringSlot(ctx context.Context, psychologistID string, at time.Time) (domain.AvailabilitySlot, error) {
	var slot domain.AvailabilitySlot
	err := t.tx.NewSelect().
		Model(&slot).
		Where("psychologist_id = ?", psychologistID).
		Where("start_time <= ?", at.UTC()).
		Where("end_time > ?", at.UTC()).
		OrderExpr("start_time DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.AvailabilitySlot{}, mapError(err)
	}
	return slot, nil
}

func (t schedulingTx) ListOverlappingSlots(ctx context.Context, psychologistID string, start, end time.Time, excludeID uuid.UUID) ([]domain.AvailabilitySlot, error) {
	var rows []domain.AvailabilitySlot
	q := t.tx.NewSelect().
		Model(&rows).
		Where("psychologist_id = ?", psychologistID).
		Where("start_time < ?", end.UTC()).
		Where("end_time > ?", start.UTC()).
		OrderExpr("start_time ASC")
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (t schedulingTx) InsertSlot(ctx context.Context, slot domain.AvailabilitySlot) (domain.AvailabilitySlot, error) {
	if _, err := t.tx.NewInsert().Model(&slot).Exec(ctx); err != nil {
		return domain.AvailabilitySlot{}, mapError(err)
	}
	return slot, nil
}

func (t schedulingTx) UpdateSlot(ctx context.Context, slot domain.AvailabilitySlot) error {
	res, err := t.tx.NewUpdate().Model(&slot).WherePK().Exec(ctx)
	return affectedOne(res, err)
}

func (t schedulingTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	res, err := t.tx.NewDelete().
		Model((*domain.AvailabilitySlot)(nil)).
		Where("id = ?", id).
		Exec(ctx)
	return affectedOne(res, err)
}

func (t schedulingTx) InsertSeries(ctx context.Context, series domain.AvailabilitySeries) (domain.AvailabilitySeries, error) {
	if _, err := t.tx.NewInsert().Model(&series).Exec(ctx); err != nil {
		return domain.AvailabilitySeries{}, mapError(err)
	}
	return series, nil
}

func (t schedulingTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	return getAppointment(ctx, t.tx, id)
}

func (t schedulingTx) ListConflicts(ctx context.Context, psychologistID string, start, end time.Time, excludeID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	q := t.tx.NewSelect().
		Model(&rows).
		Where("psychologist_id = ?", psychologistID).
		Where("status <> ?", domain.AppointmentStatusCancelled).
		Where("date < ?", end.UTC()).
		Where("ends_at > ?", start.UTC()).
		OrderExpr("date ASC")
	if excludeID != uuid.Nil {
		q = q.Where("id <> ?", excludeID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (t schedulingTx) ListActiveBetween(ctx context.Context, psychologistID string, start, end time.Time) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := t.tx.NewSelect().
		Model(&rows).
		Where("psychologist_id = ?", psychologistID).
		Where("status IN (?)", bun.In([]domain.AppointmentStatus{domain.AppointmentStatusPending, domain.AppointmentStatusConfirmed})).
		Where("date >= ?", start.UTC()).
		Where("date < ?", end.UTC()).
		OrderExpr("date ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func (t schedulingTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if _, err := t.tx.NewInsert().Model(&appt).Exec(ctx); err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return appt, nil
}

func (t schedulingTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) error {
	res, err := t.tx.NewUpdate().Model(&appt).WherePK().Exec(ctx)
	return affectedOne(res, err)
}

func (t schedulingTx) AppendEvent(ctx context.Context, ev domain.AppointmentEvent) error {
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	_, err := t.tx.NewInsert().Model(&ev).Exec(ctx)
	return mapError(err)
}

func (t schedulingTx) GetCase(ctx context.Context, id uuid.UUID) (domain.Case, error) {
	return getCase(ctx, t.tx, id)
}

func (t schedulingTx) FindCaseForPair(ctx context.Context, studentID, psychologistID string) (domain.Case, error) {
	var c domain.Case
	err := t.tx.NewSelect().
		Model(&c).
		Where("student_id = ?", studentID).
		Where("psychologist_id = ?", psychologistID).
		OrderExpr("archived ASC, updated_at DESC").
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Case{}, mapError(err)
	}
	return withLinks(ctx, t.tx, c)
}

func (t schedulingTx) FindCaseByAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Case, error) {
	var c domain.Case
	err := t.tx.NewSelect().
		Model(&c).
		Join("JOIN case_appointments AS ca ON ca.case_id = c.id").
		Where("ca.appointment_id = ?", appointmentID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return domain.Case{}, mapError(err)
	}
	return withLinks(ctx, t.tx, c)
}

func (t schedulingTx) ListCaseAppointments(ctx context.Context, caseID uuid.UUID) ([]domain.Appointment, error) {
	return listCaseAppointments(ctx, t.tx, caseID)
}

func (t schedulingTx) InsertCase(ctx context.Context, c domain.Case) (domain.Case, error) {
	if _, err := t.tx.NewInsert().Model(&c).Exec(ctx); err != nil {
		return domain.Case{}, mapError(err)
	}
	return c, nil
}

func (t schedulingTx) UpdateCase(ctx context.Context, c domain.Case) error {
	res, err := t.tx.NewUpdate().Model(&c).WherePK().Exec(ctx)
	return affectedOne(res, err)
}

func (t schedulingTx) LinkAppointment(ctx context.Context, caseID, appointmentID uuid.UUID) error {
	link := domain.CaseLink{CaseID: caseID, AppointmentID: appointmentID, LinkedAt: time.Now().UTC()}
	_, err := t.tx.NewInsert().
		Model(&link).
		On("CONFLICT (case_id, appointment_id) DO NOTHING").
		Exec(ctx)
	return mapError(err)
}

func (t schedulingTx) UnlinkAppointment(ctx context.Context, caseID, appointmentID uuid.UUID) error {
	_, err := t.tx.NewDelete().
		Model((*domain.CaseLink)(nil)).
		Where("case_id = ?", caseID).
		Where("appointment_id = ?", appointmentID).
		Exec(ctx)
	return mapError(err)
}

func getSlot(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.AvailabilitySlot, error) {
	var slot domain.AvailabilitySlot
	if err := db.NewSelect().Model(&slot).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return domain.AvailabilitySlot{}, mapError(err)
	}
	return slot, nil
}

func getAppointment(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Appointment, error) {
	var appt domain.Appointment
	if err := db.NewSelect().Model(&appt).Where("id = ?", id).Limit(1).Scan(ctx); err != nil {
		return domain.Appointment{}, mapError(err)
	}
	return appt, nil
}

func getCase(ctx context.Context, db bun.IDB, id uuid.UUID) (domain.Case, error) {
	var c domain.Case
	if err := db.NewSelect().Model(&c).Where("c.id = ?", id).Limit(1).Scan(ctx); err != nil {
		return domain.Case{}, mapError(err)
	}
	return withLinks(ctx, db, c)
}

func listCaseAppointments(ctx context.Context, db bun.IDB, caseID uuid.UUID) ([]domain.Appointment, error) {
	var rows []domain.Appointment
	err := db.NewSelect().
		Model(&rows).
		Join("JOIN case_appointments AS ca ON ca.appointment_id = a.id").
		Where("ca.case_id = ?", caseID).
		OrderExpr("ca.linked_at ASC, a.date ASC").
		Scan(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return rows, nil
}

func withLinks(ctx context.Context, db bun.IDB, c domain.Case) (domain.Case, error) {
	cases := []domain.Case{c}
	if err := attachLinks(ctx, db, cases); err != nil {
		return domain.Case{}, err
	}
	return cases[0], nil
}

func attachLinks(ctx context.Context, db bun.IDB, cases []domain.Case) error {
	if len(cases) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, 0, len(cases))
	byID := make(map[uuid.UUID]int, len(cases))
	for i, c := range cases {
		ids = append(ids, c.ID)
		byID[c.ID] = i
		cases[i].Appointments = []uuid.UUID{}
	}

	var links []domain.CaseLink
	err := db.NewSelect().
		Model(&links).
		Where("case_id IN (?)", bun.In(ids)).
		OrderExpr("linked_at ASC").
		Scan(ctx)
	if err != nil {
		return mapError(err)
	}
	for _, l := range links {
		i := byID[l.CaseID]
		cases[i].Appointments = append(cases[i].Appointments, l.AppointmentID)
	}
	return nil
}

func affectedOne(res interface{ RowsAffected() (int64, error) }, err error) error {
	if err != nil {
		return mapError(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}
