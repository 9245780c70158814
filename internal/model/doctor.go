package model

type DoctorStatus string

const (
	DoctorStatusActive   DoctorStatus = "active"
	DoctorStatusInactive DoctorStatus = "inactive"
)

type Doctor struct {
	Base
	Name       string       `db:"name" json:"name"`
	Email      string       `db:"email" json:"email"`
	Phone      string       `db:"phone" json:"phone"`
	Speciality string       `db:"speciality" json:"speciality"`
	DefaultFee int64        `db:"default_fee" json:"default_fee"`
	Status     DoctorStatus `db:"status" json:"status"`
}
