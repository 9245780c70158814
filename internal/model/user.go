package model

import "github.com/google/uuid"

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
)

// User is an authenticated account tied to either a patient or a doctor
// record. The scheduling core only consumes the resolved identity.
type User struct {
	Base
	Email        string     `db:"email" json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Role         Role       `db:"role" json:"role"`
	PatientID    *uuid.UUID `db:"patient_id" json:"patient_id,omitempty"`
	DoctorID     *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required,min=8"`
}

type TokenClaims struct {
	UserID    uuid.UUID  `json:"user_id"`
	Email     string     `json:"email"`
	Role      Role       `json:"role"`
	PatientID *uuid.UUID `json:"patient_id,omitempty"`
	DoctorID  *uuid.UUID `json:"doctor_id,omitempty"`
}
