package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	goSession "github.com/MrEthical07/goSession"
)

// Status values stored in sys_user.status.
const (
	statusDisabled = 0
	statusActive   = 1
)

var identRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Directory reads credentials, statuses and permission codes from the
// sys_user, sys_role, sys_menu tables and their join tables. Rows with
// delete_flag = 1 are invisible.
//
// The pool is owned by the caller and is never closed here.
type Directory struct {
	pool   *pgxpool.Pool
	schema string

	credentialSQL string
	statusSQL     string
	permissionSQL string
}

var _ goSession.Directory = (*Directory)(nil)

// Option configures a Directory.
type Option func(*Directory) error

// WithSchema sets the schema holding the tables (default "public").
func WithSchema(schema string) Option {
	return func(d *Directory) error {
		schema = strings.TrimSpace(schema)
		if !identRe.MatchString(schema) {
			return fmt.Errorf("directory: invalid schema identifier %q", schema)
		}
		d.schema = schema
		return nil
	}
}

// New builds a Directory over pool.
func New(pool *pgxpool.Pool, opts ...Option) (*Directory, error) {
	d := &Directory{pool: pool, schema: "public"}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(d); err != nil {
			return nil, err
		}
	}
	if d.pool == nil {
		return nil, errors.New("directory: nil pool")
	}
	d.prepareQueries()
	return d, nil
}

func (d *Directory) table(name string) string {
	return pgx.Identifier{d.schema, name}.Sanitize()
}

func (d *Directory) prepareQueries() {
	users := d.table("sys_user")
	userRoles := d.table("sys_user_role")
	roles := d.table("sys_role")
	roleMenus := d.table("sys_role_menu")
	menus := d.table("sys_menu")

	d.credentialSQL = fmt.Sprintf(`
SELECT id::text, username, password, status
FROM %s
WHERE username = $1 AND delete_flag = 0`, users)

	d.statusSQL = fmt.Sprintf(`
SELECT status
FROM %s
WHERE id = $1::bigint AND delete_flag = 0`, users)

	d.permissionSQL = fmt.Sprintf(`
SELECT DISTINCT m.menu_permission
FROM %s ur
JOIN %s r ON r.id = ur.role_id AND r.delete_flag = 0 AND r.role_status = 1
JOIN %s rm ON rm.role_id = r.id
JOIN %s m ON m.id = rm.menu_id AND m.delete_flag = 0 AND m.menu_status = 1
WHERE ur.user_id = $1::bigint
  AND m.menu_permission IS NOT NULL
  AND m.menu_permission <> ''
ORDER BY m.menu_permission`, userRoles, roles, roleMenus, menus)
}

// GetCredential implements goSession.CredentialLookup.
func (d *Directory) GetCredential(ctx context.Context, username string) (goSession.Credential, error) {
	var (
		cred   goSession.Credential
		status int
	)
	err := d.pool.QueryRow(ctx, d.credentialSQL, username).Scan(&cred.UserID, &cred.Username, &cred.PasswordHash, &status)
	if errors.Is(err, pgx.ErrNoRows) {
		return goSession.Credential{}, fmt.Errorf("%w: %s", goSession.ErrUserNotFound, username)
	}
	if err != nil {
		return goSession.Credential{}, fmt.Errorf("directory: get credential: %w", err)
	}
	cred.Status = accountStatus(status)
	return cred, nil
}

// AccountStatus implements goSession.AccountStatusCheck.
func (d *Directory) AccountStatus(ctx context.Context, userID string) (goSession.AccountStatus, error) {
	var status int
	err := d.pool.QueryRow(ctx, d.statusSQL, userID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return goSession.AccountDisabled, fmt.Errorf("%w: id %s", goSession.ErrUserNotFound, userID)
	}
	if err != nil {
		return goSession.AccountDisabled, fmt.Errorf("directory: account status: %w", err)
	}
	return accountStatus(status), nil
}

// ResolvePermissions implements goSession.PermissionResolver. Only enabled
// roles and menus contribute codes.
func (d *Directory) ResolvePermissions(ctx context.Context, userID string) ([]string, error) {
	rows, err := d.pool.Query(ctx, d.permissionSQL, userID)
	if err != nil {
		return nil, fmt.Errorf("directory: resolve permissions: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("directory: resolve permissions: %w", err)
	}
	return codes, nil
}

// Ping checks connectivity for readiness checks.
func (d *Directory) Ping(ctx context.Context) error {
	return d.pool.Ping(ctx)
}

func accountStatus(v int) goSession.AccountStatus {
	switch v {
	case statusActive:
		return goSession.AccountActive
	case statusDisabled:
		return goSession.AccountDisabled
	default:
		return goSession.AccountLocked
	}
}
