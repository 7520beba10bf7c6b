package flows

import (
	"context"
	"time"

	"github.com/MrEthical07/goSession/jwt"
	"github.com/MrEthical07/goSession/session"
)

// RefreshFailureKind classifies refresh flow failures for root-level mapping.
type RefreshFailureKind int

const (
	RefreshFailureNone RefreshFailureKind = iota
	RefreshFailureDecode
	RefreshFailureWrongType
	RefreshFailureConsume
	RefreshFailureReuse
	RefreshFailureReplay
	RefreshFailureIntegrity
	RefreshFailureDeviceMismatch
	RefreshFailureAccountLookup
	RefreshFailureAccountDisabled
	RefreshFailureIssue
	RefreshFailurePersist
	RefreshFailureBind
)

// Reuse reasons reported in RefreshResult.Reason.
const (
	ReasonAbsentOrExpired = "absent_or_expired"
	ReasonReplayed        = "replayed"
	ReasonRecordCorrupt   = "record_corrupt"
	ReasonClaimsMismatch  = "claims_mismatch"
)

// RefreshInput is a refresh request.
type RefreshInput struct {
	RefreshToken string
	DeviceID     string
	IP           string
}

// RefreshResult carries either the rotated pair or failure metadata.
type RefreshResult struct {
	Failure    RefreshFailureKind
	Err        error
	Reason     string
	Claims     *jwt.Claims
	Record     session.Record
	RevokedJTI string
	Pair       jwt.Pair
	Evicted    []string
}

// RefreshDeps captures refresh dependencies.
type RefreshDeps struct {
	Decode func(raw string) (*jwt.Claims, error)

	// Consume atomically reads and deletes the record for jti.
	Consume func(ctx context.Context, jti string) (string, bool, error)
	// WasConsumed reports whether a tombstone exists for jti. Nil when
	// tombstones are disabled.
	WasConsumed func(ctx context.Context, jti string) (bool, error)
	// RevokeDevice revokes the (userID, deviceID) binding while it still
	// references jti.
	RevokeDevice func(ctx context.Context, userID, deviceID, jti string) (string, error)
	// AccountActive reloads the account status. username is the token subject.
	AccountActive func(ctx context.Context, userID, username string) (bool, error)

	IssuePair  PairIssuer
	Sessions   SessionWriter
	Devices    DeviceBinder
	Keys       session.Keys
	RefreshTTL time.Duration
	Warn       Warner
}

// RunRefresh consumes a refresh token exactly once and rotates the session.
//
// The record is deleted before any other check, so every failure after the
// consume step leaves the presented token unusable.
func RunRefresh(ctx context.Context, in RefreshInput, deps RefreshDeps) RefreshResult {
	claims, err := deps.Decode(in.RefreshToken)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureDecode, Err: err}
	}
	if claims.Type != jwt.TypeRefresh {
		return RefreshResult{Failure: RefreshFailureWrongType, Claims: claims}
	}

	value, found, err := deps.Consume(ctx, claims.ID)
	if err != nil {
		return RefreshResult{Failure: RefreshFailureConsume, Err: err, Claims: claims}
	}
	if !found {
		res := RefreshResult{Failure: RefreshFailureReuse, Reason: ReasonAbsentOrExpired, Claims: claims}
		if deps.WasConsumed != nil {
			replayed, lookupErr := deps.WasConsumed(ctx, claims.ID)
			warn(deps.Warn, "consumed tombstone lookup failed", lookupErr)
			if lookupErr == nil && replayed {
				res.Failure = RefreshFailureReplay
				res.Reason = ReasonReplayed
			}
		}
		res.RevokedJTI = revokeDevice(ctx, deps, claims.UserID, claims.DeviceID, claims.ID)
		return res
	}

	rec, err := session.ParseRecord(value)
	if err != nil {
		return RefreshResult{
			Failure:    RefreshFailureIntegrity,
			Err:        err,
			Reason:     ReasonRecordCorrupt,
			Claims:     claims,
			RevokedJTI: revokeDevice(ctx, deps, claims.UserID, claims.DeviceID, claims.ID),
		}
	}
	if rec.UserID != claims.UserID || rec.DeviceID != claims.DeviceID {
		revoked := revokeDevice(ctx, deps, rec.UserID, rec.DeviceID, claims.ID)
		if other := revokeDevice(ctx, deps, claims.UserID, claims.DeviceID, claims.ID); revoked == "" {
			revoked = other
		}
		return RefreshResult{
			Failure:    RefreshFailureIntegrity,
			Reason:     ReasonClaimsMismatch,
			Claims:     claims,
			Record:     rec,
			RevokedJTI: revoked,
		}
	}

	if in.DeviceID != rec.DeviceID {
		return RefreshResult{Failure: RefreshFailureDeviceMismatch, Claims: claims, Record: rec}
	}

	if deps.AccountActive != nil {
		active, err := deps.AccountActive(ctx, rec.UserID, claims.Subject)
		if err != nil {
			return RefreshResult{Failure: RefreshFailureAccountLookup, Err: err, Claims: claims, Record: rec}
		}
		if !active {
			return RefreshResult{
				Failure:    RefreshFailureAccountDisabled,
				Claims:     claims,
				Record:     rec,
				RevokedJTI: revokeDevice(ctx, deps, rec.UserID, rec.DeviceID, claims.ID),
			}
		}
	}

	loginIP := in.IP
	if loginIP == "" {
		loginIP = claims.LoginIP
	}
	pair, err := deps.IssuePair(claims.Subject, jwt.Claims{
		UserID:   rec.UserID,
		DeviceID: rec.DeviceID,
		LoginIP:  loginIP,
	})
	if err != nil {
		return RefreshResult{Failure: RefreshFailureIssue, Err: err, Claims: claims, Record: rec}
	}

	evicted, failure, err := persistAndBind(ctx, persistInput{
		Sessions:   deps.Sessions,
		Devices:    deps.Devices,
		Keys:       deps.Keys,
		TTL:        deps.RefreshTTL,
		RefreshJTI: pair.Refresh.JTI,
		Record:     rec,
		Warn:       deps.Warn,
	})
	if err != nil {
		kind := RefreshFailurePersist
		if failure == persistFailureBind {
			kind = RefreshFailureBind
		}
		return RefreshResult{Failure: kind, Err: err, Claims: claims, Record: rec}
	}

	return RefreshResult{
		Failure: RefreshFailureNone,
		Claims:  claims,
		Record:  rec,
		Pair:    pair,
		Evicted: evicted,
	}
}

func revokeDevice(ctx context.Context, deps RefreshDeps, userID, deviceID, presented string) string {
	if deps.RevokeDevice == nil {
		return ""
	}
	jti, err := deps.RevokeDevice(ctx, userID, deviceID, presented)
	warn(deps.Warn, "device binding revoke failed", err)
	return jti
}
