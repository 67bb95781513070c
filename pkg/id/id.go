package id

import (
	"errors"

	"github.com/google/uuid"
)

var ErrInvalidID = errors.New("invalid id")

// PublicID is the externally visible identifier of a person. The database
// generates it (gen_random_uuid) so it never leaks the serial primary key.
type PublicID string

// TokenID is the unique jti carried by every signed token.
type TokenID string

func NewPublicID() PublicID {
	return PublicID(uuid.NewString())
}

func NewTokenID() TokenID {
	return TokenID(uuid.NewString())
}

// ParsePublicID normalizes s into canonical UUID form.
func ParsePublicID(s string) (PublicID, error) {
	u, err := uuid.Parse(s)
	if err != nil {
		return "", ErrInvalidID
	}
	return PublicID(u.String()), nil
}

func (p PublicID) String() string { return string(p) }

func (t TokenID) String() string { return string(t) }
