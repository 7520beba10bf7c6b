// Package telemetry sets up OpenTelemetry tracing for cmd/authd.
package telemetry
