package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"

	guard "github.com/goliatone/go-route-guard"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ResetNotifier delivers a password reset link to its employee
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, emp *Employee, reset *PasswordResetToken) error
}

// ResetNotifierFunc adapts a function to ResetNotifier
type ResetNotifierFunc func(ctx context.Context, emp *Employee, reset *PasswordResetToken) error

func (f ResetNotifierFunc) NotifyPasswordReset(ctx context.Context, emp *Employee, reset *PasswordResetToken) error {
	return f(ctx, emp, reset)
}

// ResetLink is the page path a reset token is redeemed at
func ResetLink(token string) string {
	return guard.PathResetPassword + "?token=" + url.QueryEscape(token)
}

// LogNotifier writes reset links to the log, for setups without mail
func LogNotifier(logger guard.Logger) ResetNotifier {
	return ResetNotifierFunc(func(_ context.Context, emp *Employee, reset *PasswordResetToken) error {
		logger.Info("password reset requested, to: %s link: %s", emp.Email, ResetLink(reset.Token))
		return nil
	})
}

// RequestPasswordReset issues a reset token for the active employee with
// email and hands it to the notifier. Earlier unused tokens stop working.
func (d *Directory) RequestPasswordReset(ctx context.Context, email string) (*PasswordResetToken, error) {
	emp, err := d.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !emp.IsActive {
		return nil, ErrEmployeeNotFound
	}

	now := d.now()
	reset := &PasswordResetToken{
		ID:         uuid.New(),
		EmployeeID: emp.ID,
		Token:      uuid.NewString(),
		CreatedAt:  now,
		ExpiresAt:  now.Add(ResetTokenTTL),
	}

	err = d.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*PasswordResetToken)(nil)).
			Set("is_used = ?", true).
			Where("employee_id = ?", emp.ID).
			Where("is_used = ?", false).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("invalidate reset tokens: %w", err)
		}

		if _, err := tx.NewInsert().Model(reset).Exec(ctx); err != nil {
			return fmt.Errorf("insert reset token: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if err := d.notifier.NotifyPasswordReset(ctx, emp, reset); err != nil {
		return reset, fmt.Errorf("notify password reset: %w", err)
	}
	return reset, nil
}

// VerifyPasswordReset returns the employee a usable token belongs to
func (d *Directory) VerifyPasswordReset(ctx context.Context, token string) (*Employee, error) {
	reset, err := d.findResetToken(ctx, d.db, token)
	if err != nil {
		return nil, err
	}

	emp, err := d.findActive(ctx, reset.EmployeeID.String())
	if errors.Is(err, ErrEmployeeNotFound) {
		return nil, ErrInvalidResetToken
	}
	return emp, err
}

// ResetPassword sets a new password with a reset token. The token can be
// redeemed once.
func (d *Directory) ResetPassword(ctx context.Context, payload ResetPasswordPayload) (*Employee, error) {
	if err := payload.Validate(); err != nil {
		return nil, err
	}

	var emp *Employee
	err := d.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		reset, err := d.findResetToken(ctx, tx, payload.Token)
		if err != nil {
			return err
		}

		// only one redemption can flip is_used
		res, err := tx.NewUpdate().
			Model((*PasswordResetToken)(nil)).
			Set("is_used = ?", true).
			Where("id = ?", reset.ID).
			Where("is_used = ?", false).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("consume reset token: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return ErrInvalidResetToken
		}

		if err := d.setPassword(ctx, tx, reset.EmployeeID, payload.Password); err != nil {
			if errors.Is(err, ErrEmployeeNotFound) {
				return ErrInvalidResetToken
			}
			return err
		}

		emp = new(Employee)
		return tx.NewSelect().Model(emp).Where("?TableAlias.id = ?", reset.EmployeeID).Limit(1).Scan(ctx)
	})
	if err != nil {
		return nil, err
	}

	d.logger.Info("password reset for %s", emp.Email)
	return emp, nil
}

func (d *Directory) findResetToken(ctx context.Context, db bun.IDB, token string) (*PasswordResetToken, error) {
	if token == "" {
		return nil, ErrInvalidResetToken
	}

	reset := new(PasswordResetToken)
	err := db.NewSelect().Model(reset).Where("?TableAlias.token = ?", token).Limit(1).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrInvalidResetToken
	}
	if err != nil {
		return nil, fmt.Errorf("find reset token: %w", err)
	}
	if !reset.IsValid(d.now()) {
		return nil, ErrInvalidResetToken
	}
	return reset, nil
}
