package batch

import (
	"errors"
	"fmt"
)

// Sentinel errors for gateway operations.
var (
	// ErrJobNotFound indicates the external job id is unknown to the service.
	ErrJobNotFound = errors.New("remote job not found")

	// ErrThrottled indicates the service rate limited the request.
	ErrThrottled = errors.New("request throttled")

	// ErrUnavailable indicates the compute service is unavailable.
	ErrUnavailable = errors.New("compute service unavailable")
)

// GatewayError wraps compute-service errors with operation context.
type GatewayError struct {
	// Op is the operation that failed (e.g., "Submit", "Describe").
	Op string

	// JobName is the submission name, if applicable.
	JobName string

	// ExternalID is the remote job id, if applicable.
	ExternalID string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *GatewayError) Error() string {
	switch {
	case e.ExternalID != "":
		return fmt.Sprintf("batch %s: %s: %v", e.Op, e.ExternalID, e.Err)
	case e.JobName != "":
		return fmt.Sprintf("batch %s: %s: %v", e.Op, e.JobName, e.Err)
	default:
		return fmt.Sprintf("batch %s: %v", e.Op, e.Err)
	}
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *GatewayError) Unwrap() error {
	return e.Err
}

// IsJobNotFound reports whether err indicates an unknown remote job.
func IsJobNotFound(err error) bool {
	return errors.Is(err, ErrJobNotFound)
}

// IsThrottled reports whether err indicates service rate limiting.
func IsThrottled(err error) bool {
	return errors.Is(err, ErrThrottled)
}

// IsUnavailable reports whether err indicates the service is down.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
