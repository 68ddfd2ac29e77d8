package syncproto

// ErrorKind classifies mutation rejections.
type ErrorKind string

const (
	ErrAuthenticationRequired ErrorKind = "authentication_required"
	ErrAuthorizationDenied    ErrorKind = "authorization_denied"
	ErrValidationFailed       ErrorKind = "validation_failed"
	ErrRateLimited            ErrorKind = "rate_limited"
	ErrModeratedBanned        ErrorKind = "moderated_banned"
	ErrModeratedMuted         ErrorKind = "moderated_muted"
	ErrModeratedSlowMode      ErrorKind = "moderated_slow_mode"
	ErrNotFound               ErrorKind = "not_found"
	ErrConflict               ErrorKind = "conflict"
	ErrInternal               ErrorKind = "internal"
)

// InternalErrorMessage is the only text clients ever see for unexpected failures.
const InternalErrorMessage = "internal server error"

// Final reports whether a rejection is authoritative. Non-final kinds may succeed on retry,
// so clients keep the optimistic effect pending instead of rolling it back.
func (k ErrorKind) Final() bool {
	switch k {
	case ErrInternal, ErrAuthenticationRequired, "":
		return false
	default:
		return true
	}
}

// Moderated reports whether the kind is one of the moderation rejections.
func (k ErrorKind) Moderated() bool {
	return k == ErrModeratedBanned || k == ErrModeratedMuted || k == ErrModeratedSlowMode
}
