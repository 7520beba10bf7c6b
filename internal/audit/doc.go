// Package audit carries security events from the engine to pluggable sinks
// through an asynchronous, bounded dispatcher.
package audit
