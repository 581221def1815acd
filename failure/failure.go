// Package failure defines the error taxonomy shared by the gateway, the
// generation stages and the dialogue controller.
package failure

import (
	"errors"
	"fmt"
	"time"
)

// Kind names the origin of a failure.
type Kind int

const (
	// KindAPI is the catch-all for provider errors that match nothing else.
	KindAPI Kind = iota
	// KindConnectivity covers connection errors and timeouts.
	KindConnectivity
	// KindThrottling covers HTTP 429 and rate-limit replies.
	KindThrottling
	// KindAuthentication covers HTTP 401 and key problems.
	KindAuthentication
	// KindPolicyRejection is returned when an image prompt violates provider policy.
	KindPolicyRejection
	// KindGeneration means the model answered but the answer is unusable.
	KindGeneration
	// KindModeration means the relevance check itself broke.
	KindModeration
)

func (k Kind) String() string {
	switch k {
	case KindConnectivity:
		return "connectivity"
	case KindThrottling:
		return "throttling"
	case KindAuthentication:
		return "authentication"
	case KindPolicyRejection:
		return "policy_rejection"
	case KindGeneration:
		return "generation"
	case KindModeration:
		return "moderation"
	default:
		return "api"
	}
}

// Class separates malformed output from output the model declined or cut short.
// Only QualityDegraded failures are worth repeating against another model.
type Class int

const (
	ClassStructural Class = iota
	ClassQualityDegraded
)

func (c Class) String() string {
	if c == ClassQualityDegraded {
		return "quality_degraded"
	}
	return "structural"
}

// Reason details a QualityDegraded generation failure.
type Reason string

const (
	ReasonNone      Reason = ""
	ReasonNoChoices Reason = "no_choices"
	ReasonEmpty     Reason = "empty_content"
	ReasonRefused   Reason = "refused"
	ReasonTruncated Reason = "length_truncated"
)

// DefaultRetryAfter is used when a throttling reply carries no hint.
const DefaultRetryAfter = 60 * time.Second

// Error is the single concrete error type of the taxonomy.
type Error struct {
	Op         string
	Kind       Kind
	Class      Class
	Reason     Reason
	RetryAfter time.Duration
	Message    string
	Err        error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Reason != ReasonNone {
		msg = fmt.Sprintf("%s (%s)", msg, e.Reason)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s: %s", e.Kind, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Op, e.Kind, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error without a cause.
func New(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an Error around cause.
func Wrap(op string, kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...), Err: cause}
}

// Generation builds a structural generation failure.
func Generation(op, format string, args ...any) *Error {
	return New(op, KindGeneration, format, args...)
}

// Degraded builds a generation failure that a different model may fix.
func Degraded(op string, reason Reason, format string, args ...any) *Error {
	e := New(op, KindGeneration, format, args...)
	e.Class = ClassQualityDegraded
	e.Reason = reason
	return e
}

// Throttled builds a throttling failure; retryAfter <= 0 falls back to DefaultRetryAfter.
func Throttled(op string, retryAfter time.Duration, cause error) *Error {
	if retryAfter <= 0 {
		retryAfter = DefaultRetryAfter
	}
	return &Error{Op: op, Kind: KindThrottling, RetryAfter: retryAfter, Message: "rate limit exceeded", Err: cause}
}

// As extracts the taxonomy error from err.
func As(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// KindOf reports the kind of err, KindAPI for foreign errors.
func KindOf(err error) Kind {
	if fe, ok := As(err); ok {
		return fe.Kind
	}
	return KindAPI
}

// IsKind reports whether err carries kind.
func IsKind(err error, kind Kind) bool {
	fe, ok := As(err)
	return ok && fe.Kind == kind
}

// IsQualityDegraded reports whether err is a generation failure a fallback model may recover.
func IsQualityDegraded(err error) bool {
	fe, ok := As(err)
	return ok && fe.Kind == KindGeneration && fe.Class == ClassQualityDegraded
}
