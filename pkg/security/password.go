package security

import "golang.org/x/crypto/bcrypt"

// PasswordVerifier checks a login password against a stored credential.
type PasswordVerifier interface {
	Compare(hash, password string) error
}

type bcryptVerifier struct{}

// NewBcryptVerifier returns a verifier for bcrypt hashes. Accounts are
// provisioned out of band, so no hashing side is exposed.
func NewBcryptVerifier() PasswordVerifier {
	return bcryptVerifier{}
}

func (bcryptVerifier) Compare(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
