package transport

import "fmt"

// TransportError is a network-level failure (dial, timeout, read) or an
// HTTP 429/5xx. These are the only retryable failures.
type TransportError struct {
	Exchange string
	Status   int
	Err      error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s transport error (http %d): %v", e.Exchange, e.Status, e.Err)
	}
	return fmt.Sprintf("%s transport error: %v", e.Exchange, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// AuthError is a signature or credential rejection from the exchange.
// It triggers the alternate signing-variant fallback on signed calls.
type AuthError struct {
	Exchange string
	Code     string
	Msg      string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("%s rejected authentication (code %s): %s", e.Exchange, e.Code, e.Msg)
}

// RemoteError is a well-formed error response from the exchange.
type RemoteError struct {
	Exchange string
	Code     string
	Msg      string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s api error %s: %s", e.Exchange, e.Code, e.Msg)
}

// ProtocolError is a response that did not parse or was structurally
// unexpected.
type ProtocolError struct {
	Exchange string
	Err      error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("%s protocol error: %v", e.Exchange, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }
