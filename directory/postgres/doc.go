// Package postgres implements goSession.Directory over the sys_user,
// sys_user_role, sys_role, sys_role_menu and sys_menu tables using a pgx
// connection pool.
package postgres
