package scheduling

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/store"
)

type memState struct {
	slots  map[uuid.UUID]domain.AvailabilitySlot
	series map[uuid.UUID]domain.AvailabilitySeries
	appts  map[uuid.UUID]domain.Appointment
	events []domain.AppointmentEvent
	cases  map[uuid.UUID]domain.Case
	links  []domain.CaseLink
	seq    int
}

func (s *memState) clone() *memState {
	out := &memState{
		slots:  make(map[uuid.UUID]domain.AvailabilitySlot, len(s.slots)),
		series: make(map[uuid.UUID]domain.AvailabilitySeries, len(s.series)),
		appts:  make(map[uuid.UUID]domain.Appointment, len(s.appts)),
		events: append([]domain.AppointmentEvent(nil), s.events...),
		cases:  make(map[uuid.UUID]domain.Case, len(s.cases)),
		links:  append([]domain.CaseLink(nil), s.links...),
		seq:    s.seq,
	}
	for k, v := range s.slots {
		out.slots[k] = v
	}
	for k, v := range s.series {
		out.series[k] = v
	}
	for k, v := range s.appts {
		out.appts[k] = v
	}
	for k, v := range s.cases {
		out.cases[k] = v
	}
	return out
}

func (s *memState) tick() time.Time {
	s.seq++
	return time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Millisecond)
}

// memStore is an in-memory SchedulingRepository. Transactions run on a copy of
// the state that replaces it on success, one psychologist at a time.
type memStore struct {
	mu    sync.Mutex
	locks sync.Map
	state *memState

	// fail, when set, is consulted before every transactional write and
	// before MarkReminderSent.
	fail func(op string) error
	// onLocked runs after the psychologist lock is taken.
	onLocked func(psychologistID string)
}

func newMemStore() *memStore {
	return &memStore{state: (&memState{}).clone()}
}

func (m *memStore) psychLock(id string) *sync.Mutex {
	l, _ := m.locks.LoadOrStore(id, &sync.Mutex{})
	return l.(*sync.Mutex)
}

func (m *memStore) InPsychologistTransaction(ctx context.Context, psychologistID string, fn func(ctx context.Context, tx store.SchedulingTx) error) error {
	lock := m.psychLock(psychologistID)
	lock.Lock()
	defer lock.Unlock()
	if m.onLocked != nil {
		m.onLocked(psychologistID)
	}

	m.mu.Lock()
	work := m.state.clone()
	m.mu.Unlock()

	tx := &memTx{state: work, fail: m.fail}
	if err := fn(ctx, tx); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.merge(work, psychologistID)
	return nil
}

// merge copies the rows owned by psychologistID from work into the live state,
// so concurrent transactions for other psychologists are not lost.
func (m *memStore) merge(work *memState, psychologistID string) {
	for id, v := range work.slots {
		if v.PsychologistID == psychologistID {
			m.state.slots[id] = v
		}
	}
	for id, v := range m.state.slots {
		if _, ok := work.slots[id]; !ok && v.PsychologistID == psychologistID {
			delete(m.state.slots, id)
		}
	}
	for id, v := range work.series {
		if v.PsychologistID == psychologistID {
			m.state.series[id] = v
		}
	}
	for id, v := range work.appts {
		if v.PsychologistID == psychologistID {
			m.state.appts[id] = v
		}
	}
	for id, v := range work.cases {
		if v.PsychologistID == psychologistID {
			m.state.cases[id] = v
		}
	}
	m.state.events = mergeEvents(m.state.events, work.events)

	owned := func(l domain.CaseLink, st *memState) bool {
		c, ok := st.cases[l.CaseID]
		return ok && c.PsychologistID == psychologistID
	}
	links := make([]domain.CaseLink, 0, len(work.links))
	for _, l := range m.state.links {
		if !owned(l, m.state) {
			links = append(links, l)
		}
	}
	for _, l := range work.links {
		if owned(l, work) {
			links = append(links, l)
		}
	}
	sort.SliceStable(links, func(i, j int) bool { return links[i].LinkedAt.Before(links[j].LinkedAt) })
	m.state.links = links
	if work.seq > m.state.seq {
		m.state.seq = work.seq
	}
}

func mergeEvents(live, work []domain.AppointmentEvent) []domain.AppointmentEvent {
	seen := make(map[uuid.UUID]struct{}, len(live))
	for _, e := range live {
		seen[e.ID] = struct{}{}
	}
	out := append([]domain.AppointmentEvent(nil), live...)
	for _, e := range work {
		if _, ok := seen[e.ID]; !ok {
			out = append(out, e)
		}
	}
	return out
}

func (m *memStore) snapshot() *memState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.clone()
}

func (m *memStore) GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error) {
	st := m.snapshot()
	return (&memTx{state: st}).GetSlot(ctx, id)
}

func (m *memStore) ListSlots(ctx context.Context, f store.SlotFilter) ([]domain.AvailabilitySlot, error) {
	st := m.snapshot()
	var out []domain.AvailabilitySlot
	for _, s := range st.slots {
		if f.PsychologistID != "" && s.PsychologistID != f.PsychologistID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		if f.From != nil && s.EndTime.Before(*f.From) {
			continue
		}
		if f.To != nil && s.StartTime.After(*f.To) {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (m *memStore) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	st := m.snapshot()
	return (&memTx{state: st}).GetAppointment(ctx, id)
}

func (m *memStore) ListAppointments(ctx context.Context, f store.AppointmentFilter) ([]domain.Appointment, error) {
	st := m.snapshot()
	var out []domain.Appointment
	for _, a := range st.appts {
		if f.StudentID != "" && a.StudentID != f.StudentID {
			continue
		}
		if f.PsychologistID != "" && a.PsychologistID != f.PsychologistID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, a.Status) {
			continue
		}
		if f.From != nil && a.Date.Before(*f.From) {
			continue
		}
		if f.To != nil && !a.Date.Before(*f.To) {
			continue
		}
		if f.ReminderSent != nil && a.ReminderSent != *f.ReminderSent {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func hasStatus(statuses []domain.AppointmentStatus, s domain.AppointmentStatus) bool {
	for _, v := range statuses {
		if v == s {
			return true
		}
	}
	return false
}

func (m *memStore) CountByStatus(ctx context.Context, psychologistID string, from, to time.Time) (map[domain.AppointmentStatus]int, error) {
	st := m.snapshot()
	out := map[domain.AppointmentStatus]int{}
	for _, a := range st.appts {
		if a.PsychologistID != psychologistID || a.Date.Before(from) || a.Date.After(to) {
			continue
		}
		out[a.Status]++
	}
	return out, nil
}

func (m *memStore) MarkReminderSent(ctx context.Context, appointmentID uuid.UUID, date time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		if err := m.fail("MarkReminderSent"); err != nil {
			return false, err
		}
	}
	a, ok := m.state.appts[appointmentID]
	if !ok || !a.Date.Equal(date) || a.Status != domain.AppointmentStatusConfirmed || a.ReminderSent {
		return false, nil
	}
	a.ReminderSent = true
	m.state.appts[appointmentID] = a
	return true, nil
}

func (m *memStore) ListPsychologistsWithSessions(ctx context.Context, from, to time.Time) ([]string, error) {
	st := m.snapshot()
	seen := map[string]struct{}{}
	for _, a := range st.appts {
		if a.Status == domain.AppointmentStatusConfirmed && !a.Date.Before(from) && a.Date.Before(to) {
			seen[a.PsychologistID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func (m *memStore) GetCase(ctx context.Context, id uuid.UUID) (domain.Case, error) {
	st := m.snapshot()
	return (&memTx{state: st}).GetCase(ctx, id)
}

func (m *memStore) ListCases(ctx context.Context, f store.CaseFilter) ([]domain.Case, error) {
	st := m.snapshot()
	tx := &memTx{state: st}
	var out []domain.Case
	for _, c := range st.cases {
		if f.StudentID != "" && c.StudentID != f.StudentID {
			continue
		}
		if f.PsychologistID != "" && c.PsychologistID != f.PsychologistID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Archived != nil && c.Archived != *f.Archived {
			continue
		}
		out = append(out, tx.withLinks(c))
	}
	sort.Slice(out, func(i, j int) bool {
		if f.Triage {
			ei, ej := out[i].Priority == domain.PriorityEmergency, out[j].Priority == domain.PriorityEmergency
			if ei != ej {
				return ei
			}
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (m *memStore) ListCaseAppointments(ctx context.Context, caseID uuid.UUID) ([]domain.Appointment, error) {
	st := m.snapshot()
	return (&memTx{state: st}).ListCaseAppointments(ctx, caseID)
}

type memTx struct {
	state *memState
	fail  func(op string) error
}

func (t *memTx) check(op string) error {
	if t.fail == nil {
		return nil
	}
	return t.fail(op)
}

func (t *memTx) GetSlot(ctx context.Context, id uuid.UUID) (domain.AvailabilitySlot, error) {
	s, ok := t.state.slots[id]
	if !ok {
		return domain.AvailabilitySlot{}, store.ErrNotFound
	}
	return s, nil
}

func (t *memTx) FindCoveringSlot(ctx context.Context, psychologistID string, at time.Time) (domain.AvailabilitySlot, error) {
	var found []domain.AvailabilitySlot
	for _, s := range t.state.slots {
		if s.PsychologistID == psychologistID && s.Covers(at) {
			found = append(found, s)
		}
	}
	if len(found) == 0 {
		return domain.AvailabilitySlot{}, store.ErrNotFound
	}
	sort.Slice(found, func(i, j int) bool { return found[i].StartTime.After(found[j].StartTime) })
	return found[0], nil
}

func (t *memTx) ListOverlappingSlots(ctx context.Context, psychologistID string, start, end time.Time, excludeID uuid.UUID) ([]domain.AvailabilitySlot, error) {
	var out []domain.AvailabilitySlot
	for _, s := range t.state.slots {
		if s.PsychologistID == psychologistID && s.ID != excludeID && s.Overlaps(start, end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (t *memTx) InsertSlot(ctx context.Context, slot domain.AvailabilitySlot) (domain.AvailabilitySlot, error) {
	if err := t.check("InsertSlot"); err != nil {
		return domain.AvailabilitySlot{}, err
	}
	if slot.ID == uuid.Nil {
		slot.ID = uuid.New()
	}
	slot.CreatedAt = t.state.tick()
	slot.UpdatedAt = slot.CreatedAt
	t.state.slots[slot.ID] = slot
	return slot, nil
}

func (t *memTx) UpdateSlot(ctx context.Context, slot domain.AvailabilitySlot) error {
	if err := t.check("UpdateSlot"); err != nil {
		return err
	}
	if _, ok := t.state.slots[slot.ID]; !ok {
		return store.ErrNotFound
	}
	slot.UpdatedAt = t.state.tick()
	t.state.slots[slot.ID] = slot
	return nil
}

func (t *memTx) DeleteSlot(ctx context.Context, id uuid.UUID) error {
	if err := t.check("DeleteSlot"); err != nil {
		return err
	}
	if _, ok := t.state.slots[id]; !ok {
		return store.ErrNotFound
	}
	delete(t.state.slots, id)
	return nil
}

func (t *memTx) InsertSeries(ctx context.Context, series domain.AvailabilitySeries) (domain.AvailabilitySeries, error) {
	if err := t.check("InsertSeries"); err != nil {
		return domain.AvailabilitySeries{}, err
	}
	if series.ID == uuid.Nil {
		series.ID = uuid.New()
	}
	series.CreatedAt = t.state.tick()
	series.UpdatedAt = series.CreatedAt
	t.state.series[series.ID] = series
	return series, nil
}

func (t *memTx) GetAppointment(ctx context.Context, id uuid.UUID) (domain.Appointment, error) {
	a, ok := t.state.appts[id]
	if !ok {
		return domain.Appointment{}, store.ErrNotFound
	}
	return a, nil
}

func (t *memTx) ListConflicts(ctx context.Context, psychologistID string, start, end time.Time, excludeID uuid.UUID) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for _, a := range t.state.appts {
		if a.PsychologistID == psychologistID && a.ID != excludeID && a.Status.Active() && a.Overlaps(start, end) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (t *memTx) ListActiveBetween(ctx context.Context, psychologistID string, start, end time.Time) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for _, a := range t.state.appts {
		if a.PsychologistID == psychologistID && a.Status.Active() && !a.Date.Before(start) && a.Date.Before(end) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

func (t *memTx) InsertAppointment(ctx context.Context, appt domain.Appointment) (domain.Appointment, error) {
	if err := t.check("InsertAppointment"); err != nil {
		return domain.Appointment{}, err
	}
	for _, a := range t.state.appts {
		if a.PsychologistID == appt.PsychologistID && a.Status.Active() && a.Overlaps(appt.Date, appt.EndsAt) {
			return domain.Appointment{}, store.ErrConflict
		}
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.CreatedAt = t.state.tick()
	appt.UpdatedAt = appt.CreatedAt
	t.state.appts[appt.ID] = appt
	return appt, nil
}

func (t *memTx) UpdateAppointment(ctx context.Context, appt domain.Appointment) error {
	if err := t.check("UpdateAppointment"); err != nil {
		return err
	}
	if _, ok := t.state.appts[appt.ID]; !ok {
		return store.ErrNotFound
	}
	if appt.Status.Active() {
		for _, a := range t.state.appts {
			if a.ID != appt.ID && a.PsychologistID == appt.PsychologistID && a.Status.Active() && a.Overlaps(appt.Date, appt.EndsAt) {
				return store.ErrConflict
			}
		}
	}
	appt.UpdatedAt = t.state.tick()
	t.state.appts[appt.ID] = appt
	return nil
}

func (t *memTx) AppendEvent(ctx context.Context, ev domain.AppointmentEvent) error {
	if err := t.check("AppendEvent"); err != nil {
		return err
	}
	ev.ID = uuid.New()
	ev.CreatedAt = t.state.tick()
	t.state.events = append(t.state.events, ev)
	return nil
}

func (t *memTx) GetCase(ctx context.Context, id uuid.UUID) (domain.Case, error) {
	c, ok := t.state.cases[id]
	if !ok {
		return domain.Case{}, store.ErrNotFound
	}
	return t.withLinks(c), nil
}

func (t *memTx) FindCaseForPair(ctx context.Context, studentID, psychologistID string) (domain.Case, error) {
	var found []domain.Case
	for _, c := range t.state.cases {
		if c.StudentID == studentID && c.PsychologistID == psychologistID {
			found = append(found, c)
		}
	}
	if len(found) == 0 {
		return domain.Case{}, store.ErrNotFound
	}
	sort.Slice(found, func(i, j int) bool {
		if found[i].Archived != found[j].Archived {
			return !found[i].Archived
		}
		return found[i].UpdatedAt.After(found[j].UpdatedAt)
	})
	return t.withLinks(found[0]), nil
}

func (t *memTx) FindCaseByAppointment(ctx context.Context, appointmentID uuid.UUID) (domain.Case, error) {
	for _, l := range t.state.links {
		if l.AppointmentID == appointmentID {
			return t.GetCase(ctx, l.CaseID)
		}
	}
	return domain.Case{}, store.ErrNotFound
}

func (t *memTx) ListCaseAppointments(ctx context.Context, caseID uuid.UUID) ([]domain.Appointment, error) {
	var out []domain.Appointment
	for _, l := range t.state.links {
		if l.CaseID == caseID {
			out = append(out, t.state.appts[l.AppointmentID])
		}
	}
	return out, nil
}

func (t *memTx) InsertCase(ctx context.Context, c domain.Case) (domain.Case, error) {
	if err := t.check("InsertCase"); err != nil {
		return domain.Case{}, err
	}
	for _, other := range t.state.cases {
		if !c.Archived && !other.Archived && other.StudentID == c.StudentID && other.PsychologistID == c.PsychologistID {
			return domain.Case{}, store.ErrConflict
		}
	}
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	c.CreatedAt = t.state.tick()
	c.UpdatedAt = c.CreatedAt
	t.state.cases[c.ID] = c
	return c, nil
}

func (t *memTx) UpdateCase(ctx context.Context, c domain.Case) error {
	if err := t.check("UpdateCase"); err != nil {
		return err
	}
	if _, ok := t.state.cases[c.ID]; !ok {
		return store.ErrNotFound
	}
	c.Appointments = nil
	c.UpdatedAt = t.state.tick()
	t.state.cases[c.ID] = c
	return nil
}

func (t *memTx) LinkAppointment(ctx context.Context, caseID, appointmentID uuid.UUID) error {
	if err := t.check("LinkAppointment"); err != nil {
		return err
	}
	for _, l := range t.state.links {
		if l.AppointmentID == appointmentID {
			if l.CaseID == caseID {
				return nil
			}
			return store.ErrConflict
		}
	}
	t.state.links = append(t.state.links, domain.CaseLink{CaseID: caseID, AppointmentID: appointmentID, LinkedAt: t.state.tick()})
	return nil
}

func (t *memTx) UnlinkAppointment(ctx context.Context, caseID, appointmentID uuid.UUID) error {
	if err := t.check("UnlinkAppointment"); err != nil {
		return err
	}
	links := t.state.links[:0]
	for _, l := range t.state.links {
		if l.CaseID == caseID && l.AppointmentID == appointmentID {
			continue
		}
		links = append(links, l)
	}
	t.state.links = links
	return nil
}

func (t *memTx) withLinks(c domain.Case) domain.Case {
	ids := []uuid.UUID{}
	for _, l := range t.state.links {
		if l.CaseID == c.ID {
			ids = append(ids, l.AppointmentID)
		}
	}
	c.Appointments = ids
	return c
}
