package model

import "errors"

// Error kinds form a closed set (§7 of the design spec). Subsystems wrap one
// of these with fmt.Errorf("...: %w", ErrX) so callers can classify failures
// with errors.Is without parsing strings.
var (
	// ErrTransientIO marks a cache/WS/REST/notifier failure that is retried
	// implicitly by the owning subsystem, or else logged as degraded.
	ErrTransientIO = errors.New("transient io error")

	// ErrDataInvalid marks an unparseable message, NaN indicator value, or
	// insufficient-bars condition. Always skipped silently, never propagated.
	ErrDataInvalid = errors.New("invalid data")

	// ErrLeaseConflict marks a failed exclusive registry claim against a
	// different host. Fatal at startup.
	ErrLeaseConflict = errors.New("lease conflict")

	// ErrCommandInvalid marks a schema or expiry failure on an inbound
	// control command.
	ErrCommandInvalid = errors.New("invalid command")

	// ErrStateInvalid marks an illegal connection-state transition.
	ErrStateInvalid = errors.New("invalid state transition")

	// ErrFatal marks an unrecoverable startup condition (cache unreachable,
	// bad credentials). The process exits non-zero after releasing its lease.
	ErrFatal = errors.New("fatal error")
)
