package notification

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/careclinic/scheduler-api/internal/email"
	"github.com/careclinic/scheduler-api/internal/model"
	"github.com/careclinic/scheduler-api/internal/repository"
	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
	"github.com/careclinic/scheduler-api/pkg/logger"
	"github.com/careclinic/scheduler-api/pkg/messaging"
)

// ChatMessage is the payload published to the chat gateway channel.
type ChatMessage struct {
	Phone string `json:"phone"`
	Body  string `json:"body"`
}

// Dispatcher turns domain events into outbox rows and, on the worker side,
// into email, chat and real-time deliveries. Delivery failures surface as
// errors so the outbox can retry; they never touch schedule state.
type Dispatcher struct {
	outbox   repository.OutboxRepository
	slots    repository.SlotRepository
	doctors  repository.DoctorRepository
	patients repository.PatientRepository
	email    email.Service
	broker   messaging.Broker
	logger   *logger.Logger
}

func NewDispatcher(
	outbox repository.OutboxRepository,
	slots repository.SlotRepository,
	doctors repository.DoctorRepository,
	patients repository.PatientRepository,
	emailSvc email.Service,
	broker messaging.Broker,
	l *logger.Logger,
) *Dispatcher {
	return &Dispatcher{
		outbox:   outbox,
		slots:    slots,
		doctors:  doctors,
		patients: patients,
		email:    emailSvc,
		broker:   broker,
		logger:   l,
	}
}

// Enqueue persists domain events to the outbox. Events with RunAt set are
// delivered no earlier than that instant.
func (d *Dispatcher) Enqueue(ctx context.Context, events []model.Event) error {
	for _, evt := range events {
		payload, err := json.Marshal(evt.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal %s payload: %w", evt.Type, err)
		}
		row := &model.OutboxEvent{
			EventType: evt.Type,
			Payload:   payload,
		}
		if evt.RunAt != nil {
			row.RunAt = *evt.RunAt
		}
		if err := d.outbox.Create(ctx, row); err != nil {
			return fmt.Errorf("failed to enqueue %s event: %w", evt.Type, err)
		}
	}
	return nil
}

// Handle delivers one outbox event. It is the worker-side counterpart of
// Enqueue.
func (d *Dispatcher) Handle(ctx context.Context, event *model.OutboxEvent) error {
	switch event.EventType {
	case model.EventAppointmentBooked:
		return d.handleBooked(ctx, event.Payload)
	case model.EventAppointmentCancelled:
		return d.handleCancelled(ctx, event.Payload)
	case model.EventAppointmentRescheduled:
		return d.handleRescheduled(ctx, event.Payload)
	case model.EventAppointmentReminder:
		return d.handleReminder(ctx, event.Payload)
	case model.EventPatientNext:
		return d.handlePatientNext(ctx, event.Payload)
	case model.EventQueueUpdated:
		return d.handleQueueUpdated(ctx, event.Payload)
	default:
		return fmt.Errorf("unsupported event type: %s", event.EventType)
	}
}

func (d *Dispatcher) handleBooked(ctx context.Context, raw json.RawMessage) error {
	var p model.AppointmentBookedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("failed to decode booked payload: %w", err)
	}

	when := p.StartTime.Format("Mon, 02 Jan 2006 15:04")
	patientBody := fmt.Sprintf(
		"Dear %s, your appointment with Dr. %s is confirmed for %s (queue position %d). Consultation fee: %d.",
		p.Patient.Name, p.Doctor.Name, when, p.Position, p.Fee)
	doctorBody := fmt.Sprintf(
		"Dr. %s, a new appointment was booked by %s for %s (queue position %d).",
		p.Doctor.Name, p.Patient.Name, when, p.Position)
	if p.Emergency {
		doctorBody += " Marked as emergency."
	}

	return firstErr(
		d.sendEmail(ctx, p.Patient.Email, "Appointment confirmed", patientBody),
		d.sendEmail(ctx, p.Doctor.Email, "New appointment booked", doctorBody),
		d.sendChat(ctx, p.Patient.Phone, patientBody),
		d.sendChat(ctx, p.Doctor.Phone, doctorBody),
	)
}

func (d *Dispatcher) handleCancelled(ctx context.Context, raw json.RawMessage) error {
	var p model.AppointmentCancelledPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("failed to decode cancelled payload: %w", err)
	}

	when := p.StartTime.Format("Mon, 02 Jan 2006 15:04")
	patientBody := fmt.Sprintf(
		"Dear %s, your appointment with Dr. %s on %s has been cancelled. The slot is open for rebooking.",
		p.Patient.Name, p.Doctor.Name, when)
	doctorBody := fmt.Sprintf(
		"Dr. %s, the appointment with %s on %s was cancelled by the %s.",
		p.Doctor.Name, p.Patient.Name, when, p.CancelledBy)

	return firstErr(
		d.sendEmail(ctx, p.Patient.Email, "Appointment cancelled", patientBody),
		d.sendEmail(ctx, p.Doctor.Email, "Appointment cancelled", doctorBody),
		d.sendChat(ctx, p.Patient.Phone, patientBody),
		d.sendChat(ctx, p.Doctor.Phone, doctorBody),
	)
}

func (d *Dispatcher) handleRescheduled(ctx context.Context, raw json.RawMessage) error {
	var p model.AppointmentRescheduledPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("failed to decode rescheduled payload: %w", err)
	}

	oldWhen := p.OldStartTime.Format("Mon, 02 Jan 2006 15:04")
	newWhen := p.NewStartTime.Format("Mon, 02 Jan 2006 15:04")
	patientBody := fmt.Sprintf(
		"Dear %s, your appointment with Dr. %s was moved from %s to %s.",
		p.Patient.Name, p.Doctor.Name, oldWhen, newWhen)
	doctorBody := fmt.Sprintf(
		"Dr. %s, the appointment with %s was moved from %s to %s.",
		p.Doctor.Name, p.Patient.Name, oldWhen, newWhen)

	return firstErr(
		d.sendEmail(ctx, p.Patient.Email, "Appointment rescheduled", patientBody),
		d.sendEmail(ctx, p.Doctor.Email, "Appointment rescheduled", doctorBody),
		d.sendChat(ctx, p.Patient.Phone, patientBody),
		d.sendChat(ctx, p.Doctor.Phone, doctorBody),
	)
}

// handleReminder re-reads the slot at fire time: a booking cancelled or
// rescheduled after the reminder was scheduled must not produce a notice.
func (d *Dispatcher) handleReminder(ctx context.Context, raw json.RawMessage) error {
	var p model.AppointmentReminderPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("failed to decode reminder payload: %w", err)
	}

	slot, err := d.slots.Get(ctx, p.SlotID)
	if apperrors.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load reminder slot: %w", err)
	}
	if slot.Status != model.SlotStatusBooked || slot.PatientID == nil {
		return nil
	}

	patient, err := d.patients.Get(ctx, *slot.PatientID)
	if err != nil {
		return fmt.Errorf("failed to load patient for reminder: %w", err)
	}
	doctor, err := d.doctors.Get(ctx, slot.DoctorID)
	if err != nil {
		return fmt.Errorf("failed to load doctor for reminder: %w", err)
	}

	body := fmt.Sprintf(
		"Dear %s, this is a reminder: your appointment with Dr. %s starts at %s.",
		patient.Name, doctor.Name, slot.StartTime.Format("15:04"))

	return firstErr(
		d.sendEmail(ctx, patient.Email, "Appointment reminder", body),
		d.sendChat(ctx, patient.Phone, body),
	)
}

func (d *Dispatcher) handlePatientNext(ctx context.Context, raw json.RawMessage) error {
	var p model.PatientNextPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("failed to decode patient-next payload: %w", err)
	}

	body := fmt.Sprintf(
		"Dear %s, you are next in line for Dr. %s. Your appointment starts at %s.",
		p.Patient.Name, p.DoctorName, p.StartTime.Format("15:04"))

	return firstErr(
		d.sendEmail(ctx, p.Patient.Email, "You're next", body),
		d.sendChat(ctx, p.Patient.Phone, body),
	)
}

func (d *Dispatcher) handleQueueUpdated(ctx context.Context, raw json.RawMessage) error {
	var p model.QueueUpdatedPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return fmt.Errorf("failed to decode queue-updated payload: %w", err)
	}
	return d.broker.Publish(ctx, messaging.QueueChannel(p.DoctorID.String()), map[string]interface{}{
		"doctor_id":  p.DoctorID,
		"updated_at": time.Now().UTC(),
	})
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, subject, body string) error {
	if to == "" {
		return nil
	}
	return d.email.Send(ctx, to, subject, body)
}

func (d *Dispatcher) sendChat(ctx context.Context, phone, body string) error {
	if phone == "" {
		return nil
	}
	return d.broker.Publish(ctx, messaging.ChatChannel, ChatMessage{Phone: phone, Body: body})
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
