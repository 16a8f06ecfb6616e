package accounts

import (
	"strings"
	"time"

	guard "github.com/goliatone/go-route-guard"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Departments an employee may belong to
var Departments = []any{"IT", "HR", "Finance", "Operations", "Sales", "Marketing"}

// Employee is the account model
type Employee struct {
	bun.BaseModel `bun:"table:employees,alias:emp"`
	ID            uuid.UUID  `bun:"id,pk,type:uuid" json:"id"`
	Email         string     `bun:"email,notnull,unique" json:"email"`
	FirstName     string     `bun:"first_name,notnull" json:"first_name"`
	LastName      string     `bun:"last_name,notnull" json:"last_name"`
	Role          guard.Role `bun:"role,notnull" json:"role"`
	Department    string     `bun:"department" json:"department,omitempty"`
	PasswordHash  string     `bun:"password_hash,notnull" json:"-"`
	IsActive      bool       `bun:"is_active,notnull" json:"is_active"`
	LoggedInAt    *time.Time `bun:"loggedin_at,nullzero" json:"loggedin_at,omitempty"`
	CreatedAt     time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt     time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp" json:"updated_at"`
}

// FullName joins first and last name
func (e *Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// User is the view of the employee handed to guards and pages
func (e *Employee) User() *guard.User {
	return &guard.User{
		ID:    e.ID.String(),
		Email: e.Email,
		Name:  e.FullName(),
		Role:  e.Role,
	}
}

// ResetTokenTTL is how long a password reset link stays usable
const ResetTokenTTL = 24 * time.Hour

// PasswordResetToken is a one time password reset link
type PasswordResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:pwdr"`
	ID            uuid.UUID `bun:"id,pk,type:uuid" json:"id"`
	EmployeeID    uuid.UUID `bun:"employee_id,notnull,type:uuid" json:"employee_id"`
	Token         string    `bun:"token,notnull,unique" json:"-"`
	IsUsed        bool      `bun:"is_used,notnull" json:"is_used"`
	CreatedAt     time.Time `bun:"created_at,nullzero,notnull,default:current_timestamp" json:"created_at"`
	ExpiresAt     time.Time `bun:"expires_at,notnull" json:"expires_at"`
}

// IsValid is true for an unused token that has not expired at now
func (t *PasswordResetToken) IsValid(now time.Time) bool {
	return !t.IsUsed && now.Before(t.ExpiresAt)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
