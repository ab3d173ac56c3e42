package entry

import "fmt"

// AuthFailedError marks a setup failure that cannot be resolved without the
// user re-authenticating, the manager will not retry it.
type AuthFailedError struct {
	Inner error
}

func (e AuthFailedError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Inner)
}

func (e AuthFailedError) Unwrap() error {
	return e.Inner
}

// NotReadyError marks a transient setup failure, timeouts and connection
// errors, the manager schedules a retry with backoff.
type NotReadyError struct {
	Inner error
}

func (e NotReadyError) Error() string {
	return fmt.Sprintf("not ready: %s", e.Inner)
}

func (e NotReadyError) Unwrap() error {
	return e.Inner
}
