// Package rate throttles failed logins with Redis fixed-window counters.
//
// # Window semantics
//
// INCR plus PEXPIRE on the first hit, run as one script. Keys:
//   - auth:login:limit:{username}  per-user
//   - auth:login:limit:ip:{ip}     per-IP, when enabled
package rate
