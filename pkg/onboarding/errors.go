package onboarding

import "fmt"

// provisioningFailedMessage is the only text a caller sees for a failed
// registration. The cause is logged, never returned in the message.
const provisioningFailedMessage = "tenant registration failed; all partial changes have been rolled back"

// ConflictError reports that the alias or organization is already taken.
// Nothing created by the failed registration remains.
type ConflictError struct {
	Alias string
	Err   error
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%v: %s", e.Err, e.Alias)
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// ProvisioningError reports any other registration failure. Compensation has
// been attempted by the time it is returned, so retrying is safe.
type ProvisioningError struct {
	Step  string
	Cause error
}

func (e *ProvisioningError) Error() string {
	return provisioningFailedMessage
}

func (e *ProvisioningError) Unwrap() error {
	return e.Cause
}

// stepError tags an error with the saga step that produced it.
type stepError struct {
	step string
	err  error
}

func (e *stepError) Error() string {
	return e.step + ": " + e.err.Error()
}

func (e *stepError) Unwrap() error {
	return e.err
}
