package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/careclinic/scheduler-api/internal/model"
)

// TokenManager issues and validates the JWTs that carry the caller's
// identity context (user id, role, linked patient/doctor record).
type TokenManager struct {
	secret []byte
	expiry time.Duration
}

func NewTokenManager(secret string, expiry time.Duration) *TokenManager {
	return &TokenManager{secret: []byte(secret), expiry: expiry}
}

type claims struct {
	Email     string  `json:"email"`
	Role      string  `json:"role"`
	PatientID *string `json:"patient_id,omitempty"`
	DoctorID  *string `json:"doctor_id,omitempty"`
	jwt.RegisteredClaims
}

func (m *TokenManager) Generate(user *model.User) (string, error) {
	now := time.Now()
	c := claims{
		Email: user.Email,
		Role:  string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.expiry)),
		},
	}
	if user.PatientID != nil {
		s := user.PatientID.String()
		c.PatientID = &s
	}
	if user.DoctorID != nil {
		s := user.DoctorID.String()
		c.DoctorID = &s
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return token.SignedString(m.secret)
}

func (m *TokenManager) Validate(tokenString string) (*model.TokenClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, err := uuid.Parse(c.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid subject claim: %w", err)
	}

	out := &model.TokenClaims{
		UserID: userID,
		Email:  c.Email,
		Role:   model.Role(c.Role),
	}
	if c.PatientID != nil {
		id, err := uuid.Parse(*c.PatientID)
		if err != nil {
			return nil, fmt.Errorf("invalid patient claim: %w", err)
		}
		out.PatientID = &id
	}
	if c.DoctorID != nil {
		id, err := uuid.Parse(*c.DoctorID)
		if err != nil {
			return nil, fmt.Errorf("invalid doctor claim: %w", err)
		}
		out.DoctorID = &id
	}
	return out, nil
}
