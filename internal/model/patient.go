package model

import "time"

type PatientStatus string

const (
	PatientStatusActive   PatientStatus = "active"
	PatientStatusInactive PatientStatus = "inactive"
)

type Patient struct {
	Base
	Name        string        `db:"name" json:"name"`
	Email       string        `db:"email" json:"email"`
	Phone       string        `db:"phone" json:"phone"`
	DateOfBirth *time.Time    `db:"date_of_birth" json:"date_of_birth,omitempty"`
	Address     string        `db:"address" json:"address,omitempty"`
	Status      PatientStatus `db:"status" json:"status"`
}

// ProfileComplete reports whether the patient can book appointments.
// Bookings require a reachable patient: name plus both contact channels.
func (p *Patient) ProfileComplete() bool {
	return p.Name != "" && p.Email != "" && p.Phone != ""
}
