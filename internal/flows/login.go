package flows

import (
	"context"
	"errors"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
)

// LoginFailureKind classifies login flow failures for root-level mapping.
type LoginFailureKind int

const (
	LoginFailureNone LoginFailureKind = iota
	LoginFailureRateLimited
	LoginFailureThrottleUnavailable
	LoginFailureLookup
	LoginFailureInvalidCredential
	LoginFailureAccountDisabled
	LoginFailureIssue
	LoginFailurePersist
	LoginFailureBind
)

// LoginInput is a validated login request.
type LoginInput struct {
	Username   string
	Password   string
	DeviceID   string
	ClientType string
	IP         string
}

// LoginCredential is the flow-local view of a directory entry.
type LoginCredential struct {
	UserID       string
	Username     string
	PasswordHash string
	Active       bool
}

// LoginResult carries either the issued pair or failure metadata.
type LoginResult struct {
	Failure  LoginFailureKind
	Err      error
	UserID   string
	Username string
	Pair     jwt.Pair
	Evicted  []string
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	CheckThrottle  func(ctx context.Context, username, ip string) error
	RecordFailure  func(ctx context.Context, username, ip string) error
	ResetThrottle  func(ctx context.Context, username, ip string) error
	RateLimited    error
	UserNotFound   error
	GetCredential  func(ctx context.Context, username string) (LoginCredential, error)
	VerifyPassword func(password, encoded string) (bool, error)
	VerifyDummy    func(password string)

	IssuePair           PairIssuer
	Sessions            SessionWriter
	Devices             DeviceBinder
	Keys                session.Keys
	RefreshTTL          time.Duration
	PopulatePermissions func(ctx context.Context, userID string) error
	Warn                Warner
}

// RunLogin verifies credentials and issues a session bound to the device.
//
// Nothing is persisted until the credential check passes, and a failed
// pointer move removes the record it just wrote, so a failed login never
// leaves a live record behind.
func RunLogin(ctx context.Context, in LoginInput, deps LoginDeps) LoginResult {
	if deps.CheckThrottle != nil {
		if err := deps.CheckThrottle(ctx, in.Username, in.IP); err != nil {
			if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
				return LoginResult{Failure: LoginFailureRateLimited, Err: err, Username: in.Username}
			}
			return LoginResult{Failure: LoginFailureThrottleUnavailable, Err: err, Username: in.Username}
		}
	}

	cred, err := deps.GetCredential(ctx, in.Username)
	if err != nil {
		if deps.UserNotFound != nil && errors.Is(err, deps.UserNotFound) {
			if deps.VerifyDummy != nil {
				deps.VerifyDummy(in.Password)
			}
			recordLoginFailure(ctx, in, deps)
			return LoginResult{Failure: LoginFailureInvalidCredential, Err: err, Username: in.Username}
		}
		return LoginResult{Failure: LoginFailureLookup, Err: err, Username: in.Username}
	}

	ok, err := deps.VerifyPassword(in.Password, cred.PasswordHash)
	if err != nil || !ok {
		warn(deps.Warn, "stored password hash unreadable", err)
		recordLoginFailure(ctx, in, deps)
		if err == nil {
			err = errors.New("password mismatch")
		}
		return LoginResult{Failure: LoginFailureInvalidCredential, Err: err, UserID: cred.UserID, Username: in.Username}
	}

	if !cred.Active {
		return LoginResult{Failure: LoginFailureAccountDisabled, UserID: cred.UserID, Username: cred.Username}
	}

	username := cred.Username
	if username == "" {
		username = in.Username
	}

	pair, err := deps.IssuePair(username, jwt.Claims{
		UserID:   cred.UserID,
		DeviceID: in.DeviceID,
		LoginIP:  in.IP,
	})
	if err != nil {
		return LoginResult{Failure: LoginFailureIssue, Err: err, UserID: cred.UserID, Username: username}
	}

	evicted, failure, err := persistAndBind(ctx, persistInput{
		Sessions:   deps.Sessions,
		Devices:    deps.Devices,
		Keys:       deps.Keys,
		TTL:        deps.RefreshTTL,
		RefreshJTI: pair.Refresh.JTI,
		Record:     session.Record{UserID: cred.UserID, DeviceID: in.DeviceID, ClientType: in.ClientType},
		Warn:       deps.Warn,
	})
	if err != nil {
		kind := LoginFailurePersist
		if failure == persistFailureBind {
			kind = LoginFailureBind
		}
		return LoginResult{Failure: kind, Err: err, UserID: cred.UserID, Username: username}
	}

	if deps.PopulatePermissions != nil {
		warn(deps.Warn, "permission cache populate failed", deps.PopulatePermissions(ctx, cred.UserID))
	}
	if deps.ResetThrottle != nil {
		warn(deps.Warn, "login throttle reset failed", deps.ResetThrottle(ctx, in.Username, in.IP))
	}

	return LoginResult{
		Failure:  LoginFailureNone,
		UserID:   cred.UserID,
		Username: username,
		Pair:     pair,
		Evicted:  evicted,
	}
}

func recordLoginFailure(ctx context.Context, in LoginInput, deps LoginDeps) {
	if deps.RecordFailure == nil {
		return
	}
	err := deps.RecordFailure(ctx, in.Username, in.IP)
	if deps.RateLimited != nil && errors.Is(err, deps.RateLimited) {
		return
	}
	warn(deps.Warn, "login throttle increment failed", err)
}

type persistFailure int

const (
	persistFailureNone persistFailure = iota
	persistFailurePut
	persistFailureBind
)

type persistInput struct {
	Sessions   SessionWriter
	Devices    DeviceBinder
	Keys       session.Keys
	TTL        time.Duration
	RefreshJTI string
	Record     session.Record
	Warn       Warner
}

// persistAndBind writes the refresh record and then moves the pointers to it.
// If the move fails the record is deleted again.
func persistAndBind(ctx context.Context, in persistInput) ([]string, persistFailure, error) {
	key := in.Keys.Refresh(in.RefreshJTI)
	if err := in.Sessions.Put(ctx, key, in.Record.Encode(), in.TTL); err != nil {
		return nil, persistFailurePut, err
	}

	evicted, err := in.Devices.Bind(ctx, in.Record.UserID, in.Record.DeviceID, in.RefreshJTI, in.TTL)
	if err != nil {
		if _, delErr := in.Sessions.Delete(ctx, key); delErr != nil {
			warn(in.Warn, "orphaned refresh record cleanup failed", delErr)
		}
		return nil, persistFailureBind, err
	}
	return evicted, persistFailureNone, nil
}
