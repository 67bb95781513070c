package person

import (
	"time"

	"github.com/mehmetcc/tenantcore/pkg/id"
)

type Role string

const (
	RoleOwner Role = "owner"
	RoleStaff Role = "staff"
	RoleAdmin Role = "admin"
)

func (r Role) Valid() bool {
	switch r {
	case RoleOwner, RoleStaff, RoleAdmin:
		return true
	}
	return false
}

// Person is the credential record. CompanyID is the tenant the person
// belongs to; it is empty until the person is attached to a company.
type Person struct {
	ID         int64       `json:"-" db:"id"`
	PublicID   id.PublicID `json:"public_id" db:"public_id"`
	Email      string      `json:"email" db:"email"`
	Username   string      `json:"username" db:"username"`
	Password   string      `json:"-" db:"password"`
	Role       Role        `json:"role" db:"role"`
	CompanyID  string      `json:"company_id,omitempty" db:"company_id"`
	VerifiedAt *time.Time  `json:"verified_at,omitempty" db:"verified_at"`
	IsActive   bool        `json:"is_active" db:"is_active"`
	IsDeleted  bool        `json:"is_deleted" db:"is_deleted"`
	CreatedAt  time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time   `json:"updated_at" db:"updated_at"`
}

// CanLogin is false for deactivated or soft-deleted records.
func (p *Person) CanLogin() bool {
	return p.IsActive && !p.IsDeleted
}
