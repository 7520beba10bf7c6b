package goSession

import (
	"context"
	"slices"
	"time"

	"github.com/MrEthical07/goSession/internal/audit"
)

// AccountStatus is the lifecycle state reported by the user directory.
type AccountStatus uint8

const (
	// AccountActive may log in and refresh.
	AccountActive AccountStatus = iota
	// AccountDisabled was switched off by an administrator.
	AccountDisabled
	// AccountLocked is temporarily blocked.
	AccountLocked
)

func (s AccountStatus) String() string {
	switch s {
	case AccountActive:
		return "active"
	case AccountDisabled:
		return "disabled"
	case AccountLocked:
		return "locked"
	default:
		return "unknown"
	}
}

// Credential is a user directory entry as seen by login.
type Credential struct {
	UserID       string
	Username     string
	PasswordHash string
	Status       AccountStatus
}

// CredentialLookup finds a credential by username. Unknown users must yield
// an error matching ErrUserNotFound.
type CredentialLookup interface {
	GetCredential(ctx context.Context, username string) (Credential, error)
}

// PermissionResolver computes a user's permission codes.
type PermissionResolver interface {
	ResolvePermissions(ctx context.Context, userID string) ([]string, error)
}

// AccountStatusCheck reloads an account's status during refresh.
type AccountStatusCheck interface {
	AccountStatus(ctx context.Context, userID string) (AccountStatus, error)
}

// Directory is implemented by user stores that serve all three lookups.
type Directory interface {
	CredentialLookup
	PermissionResolver
	AccountStatusCheck
}

// Client types accepted in ClientInfo.ClientType.
const (
	ClientWeb   = "WEB"
	ClientApp   = "APP"
	ClientMini  = "MINI"
	ClientH5    = "H5"
	ClientOther = "OTHER"
)

// ClientInfo describes the device a login comes from.
type ClientInfo struct {
	DeviceID   string `json:"deviceId"`
	ClientType string `json:"clientType,omitempty"`
	OS         string `json:"os,omitempty"`
	Browser    string `json:"browser,omitempty"`
	UserAgent  string `json:"-"`
}

// LoginRequest is the input to Engine.Login.
type LoginRequest struct {
	Username string
	Password string
	Client   ClientInfo
	IP       string
}

// RefreshRequest is the input to Engine.Refresh.
type RefreshRequest struct {
	RefreshToken string
	DeviceID     string
	IP           string
}

// TokenResponse is returned by login and refresh. Lifetimes are in seconds.
type TokenResponse struct {
	AccessToken      string `json:"accessToken"`
	RefreshToken     string `json:"refreshToken"`
	TokenType        string `json:"tokenType"`
	ExpiresIn        int64  `json:"expiresIn"`
	RefreshExpiresIn int64  `json:"refreshExpiresIn"`
	DeviceID         string `json:"deviceId"`
	ClientType       string `json:"clientType"`
	IP               string `json:"ip,omitempty"`
}

// Identity is the authenticated principal bound to a request.
type Identity struct {
	UserID      string    `json:"userId"`
	Username    string    `json:"username"`
	DeviceID    string    `json:"deviceId"`
	SessionID   string    `json:"-"`
	TokenID     string    `json:"-"`
	LoginIP     string    `json:"loginIp,omitempty"`
	Permissions []string  `json:"permissions"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// HasPermission reports whether code is among the identity's permissions.
func (i *Identity) HasPermission(code string) bool {
	return i != nil && slices.Contains(i.Permissions, code)
}

// AuditEvent is one security-relevant outcome.
type AuditEvent = audit.Event

// AuditSink receives audit events.
type AuditSink = audit.Sink
