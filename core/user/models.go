package user

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/volatiletech/null/v8"
	"golang.org/x/crypto/bcrypt"

	"github.com/jkinyua/chuo/core"
)

// Roles
const (
	// Registrar (back office)
	RoleRegistrar      = "registrar:"
	RoleRegistrarAdmin = "registrar:admin"

	// Lecturer
	RoleLecturer = "lecturer:"

	// Student
	RoleStudent = "student:"
)

var (
	RegistrarRoles = []string{RoleRegistrar, RoleRegistrarAdmin}
	LecturerRoles  = []string{RoleLecturer}
	StudentRoles   = []string{RoleStudent}
	AllRoles       = getAllRoles()

	rolePriorities = map[string]int{
		// Registrars: 30 - 21
		RoleRegistrarAdmin: 30,
		RoleRegistrar:      21,

		// Lecturers: 20 - 11
		RoleLecturer: 11,

		// Students: 10 - 1
		RoleStudent: 1,
	}

	Roles = []Role{
		{Name: "Student", Value: RoleStudent},
		{Name: "Lecturer", Value: RoleLecturer},
		{Name: "Registrar", Value: RoleRegistrar},
		{Name: "Registrar Admin", Value: RoleRegistrarAdmin},
	}
)

func getAllRoles() []string {
	all := make([]string, 0, 4)
	all = append(all, RegistrarRoles...)
	all = append(all, LecturerRoles...)
	all = append(all, StudentRoles...)
	return all
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// User is an authenticated profile on the portal. Students carry their
// roster numbers for cross-reference when the roster row has no email.
type User struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Username           string      `json:"username"`
	Email              string      `json:"email"`
	IsActive           bool        `json:"is_active"`
	Roles              []string    `json:"roles"`
	StudentNumber      null.String `json:"student_number,omitempty"`
	RegistrationNumber null.String `json:"registration_number,omitempty"`
	PasswordHash       []byte      `json:"-"`
	CreatedAt          time.Time   `json:"created_at"` // UTC
	UpdatedAt          time.Time   `json:"updated_at"` // UTC
	LastLogin          time.Time   `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

func (u *User) RoleStartsWith(prefix string) bool {
	for _, role := range u.Roles {
		if strings.HasPrefix(role, prefix) {
			return true
		}
	}
	return false
}

func (u *User) IsRegistrar() bool {
	return u.RoleStartsWith(RoleRegistrar)
}

func (u *User) IsLecturer() bool {
	return u.RoleStartsWith(RoleLecturer)
}

func (u *User) IsStudent() bool {
	return u.RoleStartsWith(RoleStudent)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name               string   `json:"name" validate:"required"`
	Username           string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email              string   `json:"email" validate:"omitempty,email"`
	Password           string   `json:"password" validate:"required"`
	PasswordConfirm    string   `json:"password_confirm" validate:"required,eqfield=Password"`
	Roles              []string `json:"roles" validate:"omitempty,allroles"`
	StudentNumber      string   `json:"student_number" validate:"omitempty,studentno"`
	RegistrationNumber string   `json:"registration_number" validate:"omitempty,studentno"`
}

func (nu *NewUser) Validate(validate *validator.Validate, svc ServiceInterface) error {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.StudentNumber = core.CleanString(nu.StudentNumber)
	nu.RegistrationNumber = core.CleanString(nu.RegistrationNumber)

	if err := validate.Struct(nu); err != nil {
		return err
	}
	return svc.CheckUniqueness(nu.Username, nu.Email)
}

// UpdateUser defines what information may be provided to modify an existing User.
type UpdateUser struct {
	Name            string   `json:"name"`
	Username        string   `json:"username" validate:"omitempty,min=6,alphanum_"`
	Email           string   `json:"email" validate:"omitempty,email"`
	IsActive        *bool    `json:"is_active"`
	Roles           []string `json:"roles" validate:"omitempty,allroles"`
	Password        string   `json:"password" validate:"omitempty"`
	PasswordConfirm string   `json:"password_confirm" validate:"required_with=Password,eqfield=Password"`
}

func (uu *UpdateUser) Validate(origUsr User, validate *validator.Validate, svc ServiceInterface) error {
	if name := core.CleanString(uu.Name); name != "" {
		uu.Name = name
	} else {
		uu.Name = origUsr.Name
	}

	if uname := core.CleanString(uu.Username, true /* lower */); uname != "" {
		uu.Username = uname
	} else {
		uu.Username = origUsr.Username
	}

	if email := core.CleanString(uu.Email, true /* lower */); email != "" {
		uu.Email = email
	} else {
		uu.Email = origUsr.Email
	}

	if err := validate.Struct(uu); err != nil {
		return err
	}
	return svc.CheckUniqueness(uu.Username, uu.Email, origUsr)
}

type ResetUserPassword struct {
	Token           string `json:"token,omitempty" validate:"required"`
	UID             string `json:"uid,omitempty" validate:"required"`
	Password        string `json:"password,omitempty" validate:"required"`
	PasswordConfirm string `json:"password_confirm,omitempty" validate:"required,eqfield=Password"`
}

func (rp ResetUserPassword) Validate(validate *validator.Validate) error {
	return validate.Struct(rp)
}

type QueryFilter struct {
	Search      string    `query:"search"`
	Roles       []string  `query:"role"`
	IsActive    *bool     `query:"is_active"`
	CreatedFrom time.Time `query:"created_from"`
	CreatedTo   time.Time `query:"created_to"`
}

func (qf *QueryFilter) IsEmpty() bool {
	return qf.Search == "" && qf.Roles == nil && qf.IsActive == nil && qf.CreatedFrom.IsZero() && qf.CreatedTo.IsZero()
}

func (qf *QueryFilter) Clean() {
	qf.Search = core.CleanString(qf.Search)
}

// GetFilter selects a single User; the first set field wins.
type GetFilter struct {
	ID              string
	Username        string
	Email           string
	UsernameOrEmail []string // [username, email]; a single element matches either

	// StudentIdentifier matches either StudentNumber or RegistrationNumber.
	StudentIdentifier string
}
