package mirror

// Health is the replication loop's state, derived each tick from the
// remote probe.
type Health string

// Loop health states. Transitions:
// uninitialized → healthy (resolve+locate succeed), healthy → degraded
// (probe fails), degraded → healthy (re-resolve succeeds), degraded →
// failed (re-resolve fails), failed → degraded|healthy (next tick retry).
// There is no terminal state.
const (
	HealthUninitialized Health = "uninitialized"
	HealthHealthy       Health = "healthy"
	HealthDegraded      Health = "degraded"
	HealthFailed        Health = "failed"
)

// Status values written to the status file for the control panel. A
// deliberately narrower vocabulary than Health: the panel only needs to know
// whether things work, broke, or never had credentials.
const (
	StatusInitialized   = "initialized"
	StatusFailed        = "failed"
	StatusNoCredentials = "no_credentials"
)
