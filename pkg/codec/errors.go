package codec

import "fmt"

// EncodingError reports malformed or truncated bytes read back from
// storage. It indicates either on-disk corruption or a format/version
// mismatch; it is surfaced to the caller, never recovered from.
type EncodingError struct {
	What   string // which structure failed to decode
	Reason string
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("codec: malformed %s: %s", e.What, e.Reason)
}

func encErr(what, format string, args ...any) error {
	return &EncodingError{What: what, Reason: fmt.Sprintf(format, args...)}
}
