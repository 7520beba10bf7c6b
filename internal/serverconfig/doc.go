// Package serverconfig loads cmd/authd settings from the environment, with
// an optional .env file read first.
package serverconfig
