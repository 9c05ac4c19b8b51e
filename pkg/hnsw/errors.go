package hnsw

import (
	"errors"
)

// Error kinds surfaced at the public entry points. Callers match them with
// errors.Is; the wrapped message carries the specifics.
var (
	// ErrBadDimension reports an inserted or queried vector whose length
	// does not match the index's descriptor size.
	ErrBadDimension = errors.New("descriptor dimension mismatch")

	// ErrBadSetting reports a configuration value that violates its
	// constraint (negative M, negative mL, empty path, k < 1, ...).
	ErrBadSetting = errors.New("invalid setting")

	// ErrBadName reports a label containing a comma or newline, which the
	// snapshot format cannot represent.
	ErrBadName = errors.New("invalid name")

	// ErrMalformedDump reports a snapshot file that fails to parse.
	ErrMalformedDump = errors.New("malformed snapshot")

	// ErrSnapshotIO reports a snapshot file that cannot be opened, read or
	// written. The underlying os error is wrapped alongside it.
	ErrSnapshotIO = errors.New("snapshot i/o")
)
