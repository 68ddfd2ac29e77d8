package service

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/noah-isme/gema-livechat/pkg/syncproto"
)

var (
	// ErrEventNotFound indicates the requested event does not exist.
	ErrEventNotFound = errors.New("event not found")
	// ErrEventExists indicates an event with the requested id already exists.
	ErrEventExists = errors.New("event already exists")
	// ErrNoActiveEvent indicates no event is currently active.
	ErrNoActiveEvent = errors.New("no active event")
	// ErrBlockedWordExists indicates the normalized word is already blocked.
	ErrBlockedWordExists = errors.New("blocked word already exists")
	// ErrBlockedWordNotFound indicates the blocked word id is unknown.
	ErrBlockedWordNotFound = errors.New("blocked word not found")
	// ErrSyncSecretMissing indicates the sync signing key is not configured.
	ErrSyncSecretMissing = errors.New("sync signing key missing")
	// ErrInvalidToken indicates a sync token failed verification.
	ErrInvalidToken = errors.New("invalid sync token")
	// ErrClientGroupForbidden indicates the client group belongs to another user.
	ErrClientGroupForbidden = errors.New("client group belongs to another user")
	// ErrPushFailed indicates a batch stopped on an unexpected error.
	ErrPushFailed = errors.New("mutation batch failed")
)

func reject(kind syncproto.ErrorKind, format string, args ...interface{}) *syncproto.MutationError {
	return &syncproto.MutationError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func rejectWithWait(kind syncproto.ErrorKind, wait time.Duration, reason string) *syncproto.MutationError {
	seconds := waitSeconds(wait)
	return &syncproto.MutationError{
		Kind:       kind,
		Message:    fmt.Sprintf("%s, try again in %ds", reason, seconds),
		RetryAfter: seconds,
	}
}

// waitSeconds rounds a positive wait to whole seconds, never below one.
func waitSeconds(wait time.Duration) int {
	if wait <= 0 {
		return 0
	}
	seconds := int(math.Round(wait.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

func internalFailure() *syncproto.MutationError {
	return &syncproto.MutationError{Kind: syncproto.ErrInternal, Message: syncproto.InternalErrorMessage}
}
