package model

// User roles
const (
	UserRoleDoctor  = "doctor"
	UserRolePatient = "patient"
)

// User is the directory view of a portal account. Accounts are owned by the
// portal's user service; this service only reads them.
type User struct {
	Base
	Email string `json:"email" db:"email"`
	Name  string `json:"name" db:"name"`
	Role  string `json:"role" db:"role"`
}

func (u *User) IsDoctor() bool {
	return u.Role == UserRoleDoctor
}

func (u *User) IsPatient() bool {
	return u.Role == UserRolePatient
}
