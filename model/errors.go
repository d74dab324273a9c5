package model

import "fmt"

// TransportError indicates the model endpoint was unreachable (DNS, dial,
// broken connection mid-stream).
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport error: %v", e.Err) }

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error { return e.Err }

// ProviderError indicates the endpoint answered with a non-success status
// (throttling, rejected request, server error).
type ProviderError struct {
	Status int
	Err    error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error (status %d): %v", e.Status, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// Retryable reports whether the status suggests a retry may succeed.
func (e *ProviderError) Retryable() bool {
	return e.Status == 429 || e.Status >= 500
}

// ProtocolError indicates the stream carried malformed or out-of-order
// content that could not be reconstructed into a message.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string { return "stream protocol error: " + e.Reason }
