package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	guard "github.com/goliatone/go-route-guard"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
	"golang.org/x/crypto/bcrypt"
)

// Directory stores employees and checks their credentials
type Directory struct {
	db       *bun.DB
	cost     int
	logger   guard.Logger
	now      func() time.Time
	notifier ResetNotifier
	hashIDs  bool
	compare  func(password, hash string) error

	dummyOnce sync.Once
	dummy     string
}

type Option func(*Directory)

// WithBcryptCost sets the cost used for new password hashes
func WithBcryptCost(cost int) Option {
	return func(d *Directory) {
		if cost >= bcrypt.MinCost && cost <= bcrypt.MaxCost {
			d.cost = cost
		}
	}
}

func WithLogger(l guard.Logger) Option {
	return func(d *Directory) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithResetNotifier sets who delivers password reset links
func WithResetNotifier(n ResetNotifier) Option {
	return func(d *Directory) {
		if n != nil {
			d.notifier = n
		}
	}
}

// WithHashidIDs derives employee ids from their email, so the same
// account gets the same id on every install
func WithHashidIDs(enabled bool) Option {
	return func(d *Directory) {
		d.hashIDs = enabled
	}
}

func NewDirectory(db *bun.DB, opts ...Option) *Directory {
	d := &Directory{
		db:      db,
		cost:    bcrypt.DefaultCost,
		logger:  guard.DefaultLogger(),
		now:     time.Now,
		compare: ComparePasswordAndHash,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	if d.notifier == nil {
		d.notifier = LogNotifier(d.logger)
	}
	return d
}

// OpenSQLite opens a bun database over the sqlite shim
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Migrate creates the employees and password reset tables
func (d *Directory) Migrate(ctx context.Context) error {
	models := []struct {
		name  string
		model any
	}{
		{"employees", (*Employee)(nil)},
		{"password_reset_tokens", (*PasswordResetToken)(nil)},
	}
	for _, m := range models {
		_, err := d.db.NewCreateTable().
			Model(m.model).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create %s table: %w", m.name, err)
		}
	}
	return nil
}

// Register validates the payload and creates an employee account
func (d *Directory) Register(ctx context.Context, payload SignupPayload) (*Employee, error) {
	payload.Email = normalizeEmail(payload.Email)
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	return d.create(ctx, &Employee{
		Email:      payload.Email,
		FirstName:  payload.FirstName,
		LastName:   payload.LastName,
		Department: payload.Department,
		Role:       guard.RoleEmployee,
	}, payload.Password)
}

// EnsureAdmin creates an admin account unless the email is taken
func (d *Directory) EnsureAdmin(ctx context.Context, email, password string) (*Employee, error) {
	existing, err := d.FindByEmail(ctx, email)
	if err == nil {
		if !existing.Role.IsAdmin() {
			d.logger.Info("admin seed %s exists with role %s, leaving it", existing.Email, existing.Role)
		}
		return existing, nil
	}
	if !errors.Is(err, ErrEmployeeNotFound) {
		return nil, err
	}

	return d.create(ctx, &Employee{
		Email:     email,
		FirstName: "Admin",
		LastName:  "User",
		Role:      guard.RoleAdmin,
	}, password)
}

func (d *Directory) create(ctx context.Context, emp *Employee, password string) (*Employee, error) {
	emp.Email = normalizeEmail(emp.Email)

	if _, err := d.FindByEmail(ctx, emp.Email); err == nil {
		return nil, ErrEmailTaken
	} else if !errors.Is(err, ErrEmployeeNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password, d.cost)
	if err != nil {
		return nil, err
	}

	now := d.now()
	emp.ID = uuid.New()
	if d.hashIDs {
		if id, err := hashid.NewUUID(emp.Email); err == nil {
			emp.ID = id
		}
	}
	emp.PasswordHash = hash
	emp.IsActive = true
	emp.CreatedAt = now
	emp.UpdatedAt = now
	if !emp.Role.IsValid() {
		emp.Role = guard.RoleEmployee
	}

	if _, err := d.db.NewInsert().Model(emp).Exec(ctx); err != nil {
		return nil, fmt.Errorf("insert employee: %w", err)
	}
	return emp, nil
}

// Authenticate checks the credentials and returns the signed in user. An
// unknown email still costs one hash comparison.
func (d *Directory) Authenticate(ctx context.Context, email, password string) (*guard.User, error) {
	emp, err := d.FindByEmail(ctx, email)
	if errors.Is(err, ErrEmployeeNotFound) {
		_ = d.compare(password, d.dummyHash())
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}

	if err := d.compare(password, emp.PasswordHash); err != nil {
		return nil, err
	}
	if !emp.IsActive {
		return nil, ErrInvalidCredentials
	}

	now := d.now()
	emp.LoggedInAt = &now
	if _, err := d.db.NewUpdate().Model(emp).Column("loggedin_at").WherePK().Exec(ctx); err != nil {
		d.logger.Error("track login for %s: %s", emp.Email, err)
	}

	return emp.User(), nil
}

func (d *Directory) dummyHash() string {
	d.dummyOnce.Do(func() {
		d.dummy = RandomPasswordHash(d.cost)
	})
	return d.dummy
}

// FindByID returns the active user with id
func (d *Directory) FindByID(ctx context.Context, id string) (*guard.User, error) {
	emp, err := d.findActive(ctx, id)
	if err != nil {
		return nil, err
	}
	return emp.User(), nil
}

func (d *Directory) findActive(ctx context.Context, id string) (*Employee, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrEmployeeNotFound
	}

	emp := new(Employee)
	err = d.db.NewSelect().Model(emp).Where("?TableAlias.id = ?", uid).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find employee %s: %w", id, err)
	}
	if !emp.IsActive {
		return nil, ErrEmployeeNotFound
	}
	return emp, nil
}

// List returns the active employees ordered by email
func (d *Directory) List(ctx context.Context) ([]Employee, error) {
	var out []Employee
	err := d.db.NewSelect().
		Model(&out).
		Where("?TableAlias.is_active = ?", true).
		Order("email ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}
	return out, nil
}

// ChangePassword replaces the password of the signed in employee id once
// the current one checks out
func (d *Directory) ChangePassword(ctx context.Context, id string, payload ChangePasswordPayload) error {
	if err := payload.Validate(); err != nil {
		return err
	}

	emp, err := d.findActive(ctx, id)
	if err != nil {
		return err
	}
	if err := d.compare(payload.CurrentPassword, emp.PasswordHash); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			return ErrWrongPassword
		}
		return err
	}

	return d.setPassword(ctx, d.db, emp.ID, payload.NewPassword)
}

func (d *Directory) setPassword(ctx context.Context, db bun.IDB, id uuid.UUID, password string) error {
	hash, err := HashPassword(password, d.cost)
	if err != nil {
		return err
	}

	res, err := db.NewUpdate().
		Model((*Employee)(nil)).
		Set("password_hash = ?", hash).
		Set("updated_at = ?", d.now()).
		Where("id = ?", id).
		Where("is_active = ?", true).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update password of %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}

// FindByEmail returns the employee registered with email
func (d *Directory) FindByEmail(ctx context.Context, email string) (*Employee, error) {
	emp := new(Employee)
	err := d.db.NewSelect().Model(emp).Where("?TableAlias.email = ?", normalizeEmail(email)).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEmployeeNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find employee by email: %w", err)
	}
	return emp, nil
}

// SetActive enables or disables an account
func (d *Directory) SetActive(ctx context.Context, id uuid.UUID, active bool) error {
	res, err := d.db.NewUpdate().
		Model((*Employee)(nil)).
		Set("is_active = ?", active).
		Set("updated_at = ?", d.now()).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update employee %s: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEmployeeNotFound
	}
	return nil
}
