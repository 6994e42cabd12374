package reminders

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"counseling/backend/internal/domain"
)

const (
	TypeAppointmentReminder = "reminder:appointment"
	TypeDailySummary        = "reminder:daily_summary"
	TypeSweep               = "reminder:sweep"
	TypeDailySummaries      = "reminder:daily_summaries"
)

type AppointmentReminderPayload struct {
	AppointmentID  uuid.UUID `json:"appointment_id"`
	StudentID      string    `json:"student_id"`
	StudentName    string    `json:"student_name,omitempty"`
	StudentEmail   string    `json:"student_email,omitempty"`
	PsychologistID string    `json:"psychologist_id"`
	Date           time.Time `json:"date"`
}

type Session struct {
	AppointmentID uuid.UUID `json:"appointment_id"`
	StudentID     string    `json:"student_id"`
	Date          time.Time `json:"date"`
}

type DailySummaryPayload struct {
	PsychologistID   string    `json:"psychologist_id"`
	PsychologistName string    `json:"psychologist_name,omitempty"`
	Sessions         []Session `json:"sessions"`
}

func NewAppointmentReminderTask(appt domain.Appointment, student domain.User) (*asynq.Task, error) {
	b, err := json.Marshal(AppointmentReminderPayload{
		AppointmentID:  appt.ID,
		StudentID:      appt.StudentID,
		StudentName:    student.Name,
		StudentEmail:   student.Email,
		PsychologistID: appt.PsychologistID,
		Date:           appt.Date,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeAppointmentReminder, b), nil
}

func NewDailySummaryTask(psychologist domain.User, appts []domain.Appointment) (*asynq.Task, error) {
	sessions := make([]Session, 0, len(appts))
	for _, a := range appts {
		sessions = append(sessions, Session{AppointmentID: a.ID, StudentID: a.StudentID, Date: a.Date})
	}
	b, err := json.Marshal(DailySummaryPayload{
		PsychologistID:   psychologist.ID,
		PsychologistName: psychologist.Name,
		Sessions:         sessions,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeDailySummary, b), nil
}

func NewSweepTask() *asynq.Task {
	return asynq.NewTask(TypeSweep, nil)
}

func NewDailySummariesTask() *asynq.Task {
	return asynq.NewTask(TypeDailySummaries, nil)
}
