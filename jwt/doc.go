// Package jwt issues and verifies the HS256 access and refresh tokens used by goSession.
//
// Every token carries a random jti. Access tokens also carry sid, the jti of the
// refresh token issued in the same pair; the device pointer in Redis stores that
// value, which is how a superseded access token is recognised.
package jwt
