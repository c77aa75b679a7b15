package protocol

import (
	"fmt"
	"strings"
)

// Fault attributes an error to the caller or the service.
type Fault int

const (
	FaultUnknown Fault = iota
	FaultClient
	FaultServer
)

func (f Fault) String() string {
	switch f {
	case FaultClient:
		return "client"
	case FaultServer:
		return "server"
	default:
		return "unknown"
	}
}

// FaultForStatus attributes an HTTP error status: 4xx to the caller, 5xx
// to the service.
func FaultForStatus(status int) Fault {
	switch {
	case status >= 400 && status < 500:
		return FaultClient
	case status >= 500:
		return FaultServer
	default:
		return FaultUnknown
	}
}

// APIError is implemented by every error decoded from a service response,
// including the typed exceptions generated clients define.
type APIError interface {
	error
	ErrorCode() string
	ErrorMessage() string
	ErrorFault() Fault
}

// ServiceError is a wire error decoded from an error response. When the
// code matches a modeled exception, Shape names it and Fields carries the
// decoded error shape for the generated client to convert; an unmatched
// code surfaces the ServiceError itself as the fallback exception.
type ServiceError struct {
	Code       string
	Message    string
	Fault      Fault
	StatusCode int
	RequestID  string

	Shape  string
	Fields Document
}

func (e *ServiceError) Error() string {
	msg := fmt.Sprintf("api error %s", e.Code)
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (http status %d)", e.StatusCode)
	}
	if e.RequestID != "" {
		msg += fmt.Sprintf(", request id %s", e.RequestID)
	}
	return msg
}

func (e *ServiceError) ErrorCode() string    { return e.Code }
func (e *ServiceError) ErrorMessage() string { return e.Message }
func (e *ServiceError) ErrorFault() Fault    { return e.Fault }

// Modeled reports whether the code matched a declared exception.
func (e *ServiceError) Modeled() bool { return e.Shape != "" }

var _ APIError = (*ServiceError)(nil)

// ResponseMetadata carries the wire-level identifiers of a failed call.
// Generated exception types embed it so callers keep the status code and
// request id after the error is converted to its modeled form.
type ResponseMetadata struct {
	StatusCode int
	RequestID  string
}

// MarshalError is a client-side failure to turn the input document into
// wire bytes. It is never retryable.
type MarshalError struct {
	Operation string
	Reason    string
	Err       error
}

func (e *MarshalError) Error() string {
	msg := fmt.Sprintf("marshalling %s: %s", e.Operation, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MarshalError) Unwrap() error { return e.Err }

// ResponseError wraps a failure to process a response that did arrive,
// keeping the HTTP status and request id alongside the cause.
type ResponseError struct {
	StatusCode int
	RequestID  string
	Err        error
}

func (e *ResponseError) Error() string {
	msg := fmt.Sprintf("response error (http status %d)", e.StatusCode)
	if e.RequestID != "" {
		msg += fmt.Sprintf(", request id %s", e.RequestID)
	}
	return msg + ": " + e.Err.Error()
}

func (e *ResponseError) Unwrap() error { return e.Err }

// UnmarshalError is a failure to decode a response body that arrived with
// a success status.
type UnmarshalError struct {
	Operation string
	Err       error
}

func (e *UnmarshalError) Error() string {
	return fmt.Sprintf("unmarshalling %s response: %v", e.Operation, e.Err)
}

func (e *UnmarshalError) Unwrap() error { return e.Err }

// SanitizeErrorCode strips the namespace prefix and any location suffix
// from a wire error discriminator:
//
//	"com.widgets.v1#NoSuchWidget"              -> "NoSuchWidget"
//	"NoSuchWidget:http://internal.amazon.com/" -> "NoSuchWidget"
func SanitizeErrorCode(raw string) string {
	code := raw
	if i := strings.Index(code, "#"); i >= 0 {
		code = code[i+1:]
	}
	if i := strings.Index(code, ":"); i >= 0 {
		code = code[:i]
	}
	return strings.TrimSpace(code)
}

// QueryErrorHeader is the header query-compatible JSON services use to
// carry the original query-protocol error code.
const QueryErrorHeader = "x-amzn-query-error"

// ParseQueryErrorHeader splits the "Code;Type" form of the
// query-compatible error header. An empty or malformed value yields no
// code and the caller falls back to the body discriminator.
func ParseQueryErrorHeader(value string) (code, errType string) {
	if value == "" {
		return "", ""
	}
	parts := strings.SplitN(value, ";", 2)
	code = strings.TrimSpace(parts[0])
	if len(parts) == 2 {
		errType = strings.TrimSpace(parts[1])
	}
	return code, errType
}
