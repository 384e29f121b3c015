package stores

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrEthical07/libauth"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	usersTable = "users"

	// Lock states written by older releases use "LOCK".
	lockedStatuses = "('LOCKED', 'LOCK')"
)

var principalColumns = []string{
	"id",
	"email",
	"full_name",
	"user_identifier",
	"avatar_url",
	"department_id",
	"password",
	"type",
	"status",
	"must_change_password",
	"failed_login_attempts",
	"last_failed_login_date",
	"password_reset_token",
	"password_reset_expiry",
	"ARRAY(SELECT r.name FROM user_has_role uhr JOIN role r ON r.id = uhr.role_id WHERE uhr.user_id = users.id ORDER BY r.name) AS roles",
}

// Postgres is a libauth.CredentialStore over the platform's users table.
type Postgres struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
	loc     *time.Location
}

// NewPostgres wires a store on exec, usually a *pgxpool.Pool. loc is the
// zone in which last_failed_login_date is interpreted.
func NewPostgres(exec pgExecutor, loc *time.Location) *Postgres {
	if loc == nil {
		loc = time.UTC
	}
	return &Postgres{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		loc:     loc,
	}
}

// OpenPool creates a pgx pool for dsn and checks connectivity.
func OpenPool(ctx context.Context, dsn string, maxConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}

// FindByLogin loads a principal by its lower-cased email.
func (s *Postgres) FindByLogin(ctx context.Context, email string) (*libauth.Principal, error) {
	return s.findOne(ctx, squirrel.Eq{"lower(email)": strings.ToLower(strings.TrimSpace(email))})
}

// FindByID loads a principal by id.
func (s *Postgres) FindByID(ctx context.Context, id string) (*libauth.Principal, error) {
	return s.findOne(ctx, squirrel.Eq{"id": id})
}

// FindByResetTokenHash loads the principal holding tokenHash.
func (s *Postgres) FindByResetTokenHash(ctx context.Context, tokenHash string) (*libauth.Principal, error) {
	if tokenHash == "" {
		return nil, libauth.ErrPrincipalNotFound
	}
	return s.findOne(ctx, squirrel.Eq{"password_reset_token": tokenHash})
}

// ExistsByLogin reports whether an account uses email.
func (s *Postgres) ExistsByLogin(ctx context.Context, email string) (bool, error) {
	stmt, args, err := s.builder.
		Select("1").
		From(usersTable).
		Where(squirrel.Eq{"lower(email)": strings.ToLower(strings.TrimSpace(email))}).
		Prefix("SELECT EXISTS (").
		Suffix(")").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists user sql: %w", err)
	}

	var exists bool
	if err := s.exec.QueryRow(ctx, stmt, args...).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists user: %w", err)
	}
	return exists, nil
}

// Save inserts p or updates every stored column of an existing row. Role
// membership is managed elsewhere and is not written.
func (s *Postgres) Save(ctx context.Context, p *libauth.Principal) error {
	if p == nil || p.ID == "" {
		return errors.New("save principal: id required")
	}

	stmt, args, err := s.builder.Insert(usersTable).
		Columns(
			"id",
			"email",
			"full_name",
			"user_identifier",
			"avatar_url",
			"department_id",
			"password",
			"type",
			"status",
			"must_change_password",
			"failed_login_attempts",
			"last_failed_login_date",
			"password_reset_token",
			"password_reset_expiry",
		).
		Values(
			p.ID,
			strings.ToLower(p.Email),
			nullString(p.FullName),
			nullString(p.UserIdentifier),
			nullString(p.AvatarURL),
			nullString(p.DepartmentID),
			p.PasswordHash,
			string(p.Type),
			string(p.Status),
			p.MustChangePassword,
			p.FailedLoginAttempts,
			s.dateValue(p.LastFailedLoginDate),
			nullString(p.PasswordResetTokenHash),
			p.PasswordResetExpiry,
		).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			email = EXCLUDED.email,
			full_name = EXCLUDED.full_name,
			user_identifier = EXCLUDED.user_identifier,
			avatar_url = EXCLUDED.avatar_url,
			department_id = EXCLUDED.department_id,
			password = EXCLUDED.password,
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			must_change_password = EXCLUDED.must_change_password,
			failed_login_attempts = EXCLUDED.failed_login_attempts,
			last_failed_login_date = EXCLUDED.last_failed_login_date,
			password_reset_token = EXCLUDED.password_reset_token,
			password_reset_expiry = EXCLUDED.password_reset_expiry`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build save user sql: %w", err)
	}

	if _, err := s.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

// SetPasswordResetToken stores a reset digest, its expiry and the
// must-change flag. Lockout columns are left alone.
func (s *Postgres) SetPasswordResetToken(ctx context.Context, id, tokenHash string, expiry time.Time) error {
	n, err := s.update(ctx, "set reset token", s.builder.Update(usersTable).
		Set("password_reset_token", tokenHash).
		Set("password_reset_expiry", expiry).
		Set("must_change_password", true).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return libauth.ErrPrincipalNotFound
	}
	return nil
}

// UpdatePassword writes the password hash and the must-change flag.
func (s *Postgres) UpdatePassword(ctx context.Context, id, newHash string, mustChange bool) error {
	n, err := s.update(ctx, "update password", s.builder.Update(usersTable).
		Set("password", newHash).
		Set("must_change_password", mustChange).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return libauth.ErrPrincipalNotFound
	}
	return nil
}

// ReplacePasswordHash rehashes in place while the stored hash equals oldHash.
func (s *Postgres) ReplacePasswordHash(ctx context.Context, id, oldHash, newHash string) (bool, error) {
	n, err := s.update(ctx, "replace password hash", s.builder.Update(usersTable).
		Set("password", newHash).
		Where(squirrel.Eq{"id": id, "password": oldHash}))
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetAccountStatus writes status and clears the failure counters.
func (s *Postgres) SetAccountStatus(ctx context.Context, id string, status libauth.AccountStatus) error {
	n, err := s.update(ctx, "set account status", s.builder.Update(usersTable).
		Set("status", string(status)).
		Set("failed_login_attempts", 0).
		Set("last_failed_login_date", nil).
		Where(squirrel.Eq{"id": id}))
	if err != nil {
		return err
	}
	if n == 0 {
		return libauth.ErrPrincipalNotFound
	}
	return nil
}

func (s *Postgres) update(ctx context.Context, op string, q squirrel.UpdateBuilder) (int64, error) {
	stmt, args, err := q.ToSql()
	if err != nil {
		return 0, fmt.Errorf("build %s sql: %w", op, err)
	}
	res, err := s.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return res.RowsAffected(), nil
}

// CompareAndSwapLockout writes next only while the stored counters equal prev.
func (s *Postgres) CompareAndSwapLockout(ctx context.Context, id string, prev, next libauth.LockoutState) (bool, error) {
	stmt, args, err := s.builder.Update(usersTable).
		Set("failed_login_attempts", next.Attempts).
		Set("last_failed_login_date", s.dayValue(next)).
		Set("status", squirrel.Expr(
			"CASE WHEN status = 'INACTIVE' THEN status WHEN ? THEN 'LOCKED' WHEN status IN "+lockedStatuses+" THEN 'ACTIVE' ELSE status END",
			next.Locked,
		)).
		Where(squirrel.Eq{"id": id}).
		Where("COALESCE(failed_login_attempts, 0) = ?", prev.Attempts).
		Where("last_failed_login_date IS NOT DISTINCT FROM ?", s.dayValue(prev)).
		Where("(status IN "+lockedStatuses+") = ?", prev.Locked).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build lockout cas sql: %w", err)
	}

	res, err := s.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("lockout cas: %w", err)
	}
	return res.RowsAffected() == 1, nil
}

// RedeemPasswordReset applies a password reset in one conditional UPDATE.
func (s *Postgres) RedeemPasswordReset(ctx context.Context, id, tokenHash, newHash string, now time.Time) error {
	stmt, args, err := s.builder.Update(usersTable).
		Set("password", newHash).
		Set("password_reset_token", nil).
		Set("password_reset_expiry", nil).
		Set("must_change_password", false).
		Set("status", squirrel.Expr(
			"CASE WHEN status IN "+lockedStatuses+" AND last_failed_login_date IS NOT NULL THEN 'ACTIVE' ELSE status END",
		)).
		Set("failed_login_attempts", 0).
		Set("last_failed_login_date", nil).
		Where(squirrel.Eq{"id": id, "password_reset_token": tokenHash}).
		Where(squirrel.Gt{"password_reset_expiry": now}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build redeem reset sql: %w", err)
	}

	res, err := s.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("redeem reset: %w", err)
	}
	if res.RowsAffected() == 0 {
		return libauth.ErrInvalidOrExpiredToken
	}
	return nil
}

func (s *Postgres) findOne(ctx context.Context, where squirrel.Sqlizer) (*libauth.Principal, error) {
	stmt, args, err := s.builder.
		Select(principalColumns...).
		From(usersTable).
		Where(where).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select user sql: %w", err)
	}

	var (
		p              libauth.Principal
		fullName       *string
		userIdentifier *string
		avatarURL      *string
		departmentID   *string
		accountType    string
		status         string
		mustChange     *bool
		attempts       *int
		lastFailed     *time.Time
		resetToken     *string
		resetExpiry    *time.Time
		roles          []string
	)

	if err := s.exec.QueryRow(ctx, stmt, args...).Scan(
		&p.ID,
		&p.Email,
		&fullName,
		&userIdentifier,
		&avatarURL,
		&departmentID,
		&p.PasswordHash,
		&accountType,
		&status,
		&mustChange,
		&attempts,
		&lastFailed,
		&resetToken,
		&resetExpiry,
		&roles,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, libauth.ErrPrincipalNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}

	p.FullName = deref(fullName)
	p.UserIdentifier = deref(userIdentifier)
	p.AvatarURL = deref(avatarURL)
	p.DepartmentID = deref(departmentID)
	if t, ok := libauth.ParseAccountType(accountType); ok {
		p.Type = t
	} else {
		// Unknown types keep their value and get no ADMIN exemptions.
		p.Type = libauth.AccountType(strings.ToUpper(strings.TrimSpace(accountType)))
	}
	if st, ok := libauth.ParseAccountStatus(status); ok {
		p.Status = st
	} else {
		p.Status = libauth.StatusInactive
	}
	p.MustChangePassword = mustChange != nil && *mustChange
	if attempts != nil && *attempts > 0 {
		p.FailedLoginAttempts = *attempts
	}
	if lastFailed != nil {
		y, m, d := lastFailed.Date()
		day := time.Date(y, m, d, 0, 0, 0, 0, s.loc)
		p.LastFailedLoginDate = &day
	}
	p.PasswordResetTokenHash = deref(resetToken)
	p.PasswordResetExpiry = resetExpiry
	p.Roles = roles

	return &p, nil
}

func (s *Postgres) dayValue(st libauth.LockoutState) any {
	if st.LastFailure.IsZero() {
		return nil
	}
	return st.LastFailure.Time(s.loc)
}

func (s *Postgres) dateValue(t *time.Time) any {
	if t == nil {
		return nil
	}
	y, m, d := t.In(s.loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, s.loc)
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

var _ libauth.CredentialStore = (*Postgres)(nil)
