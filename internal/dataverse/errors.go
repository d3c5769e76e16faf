package dataverse

import "fmt"

// ConfigurationError indicates missing or incomplete connection settings.
// The caller must re-run configuration before retrying; never retried here.
type ConfigurationError struct {
	Reason string
}

func (e ConfigurationError) Error() string {
	return e.Reason
}

// AuthenticationError indicates the token endpoint rejected the credentials
// or was unreachable. The underlying transport text is preserved.
type AuthenticationError struct {
	Reason string
}

func (e AuthenticationError) Error() string {
	return fmt.Sprintf("failed to obtain access token: %s", e.Reason)
}

// ValidationError indicates a malformed record payload (caller error).
// The request is rejected before any HTTP call is issued.
type ValidationError struct {
	Err error
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("invalid JSON data: %v", e.Err)
}

// TransportError indicates a network failure or non-2xx response from the
// record endpoints. StatusCode is zero when the request never completed.
type TransportError struct {
	StatusCode int
	Message    string
}

func (e TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("request failed with status %d: %s", e.StatusCode, e.Message)
	}
	return e.Message
}

// UnexpectedError is the catch-all for response-shape anomalies, such as a
// 2xx response whose body is not valid JSON.
type UnexpectedError struct {
	Err error
}

func (e UnexpectedError) Error() string {
	return fmt.Sprintf("unexpected error: %v", e.Err)
}
