// Package httputil provides shared HTTP response helpers for the monitor's
// operations API, so every handler emits the same JSON envelope.
package httputil
