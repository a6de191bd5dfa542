package nvjpg

// Error is a sentinel error kind, comparable with errors.Is after wrapping
// with fmt.Errorf("...: %w", ...).
type Error string

func (e Error) Error() string { return string(e) }

// Sentinel error kinds. Kernel errno values (syscall.Errno /
// golang.org/x/sys/unix.Errno) are not listed here. The Linux adapter
// returns them wrapped with %w behind a context prefix, not bare, so
// errors.Is/errors.As recover them; a wait that times out returns
// ErrTimeout in place of ETIMEDOUT.
const (
	// ErrInvalid covers malformed or unsupported bitstreams and out-of-range
	// arguments: progressive scans, zero dimensions, a monochrome image
	// paired with non-1:1 sampling, and similar caller mistakes.
	ErrInvalid = Error("nvjpg: invalid argument")
	// ErrNoData means the parser ran out of bytes inside a segment, or
	// reached EOI or the end of the buffer before an SOS segment.
	ErrNoData = Error("nvjpg: truncated or missing data")
	// ErrNoMemory means a scan exceeds the capacity reserved for it.
	ErrNoMemory = Error("nvjpg: insufficient capacity")
	// ErrTimeout means a fence wait did not observe completion before its
	// deadline.
	ErrTimeout = Error("nvjpg: wait timed out")
	// ErrClosed means an operation was attempted on a channel or decoder
	// that has already been finalized.
	ErrClosed = Error("nvjpg: channel closed")
)
