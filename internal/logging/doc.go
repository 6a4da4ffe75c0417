// Package logging assembles structured slog loggers and formatting helpers used
// across the hub, its CLI, and the worker processes it supervises.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes attribute helpers plus standard field keys so hub
// sessions, the router, and the supervisor tag log lines the same way. A no-op
// logger is provided for tests and wiring code that cannot fail.
//
// Prefer these constructors over hand-rolled slog setup so new components emit
// data with the same shape as the rest of the system.
package logging
