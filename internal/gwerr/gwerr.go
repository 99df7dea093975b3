// Package gwerr defines the gateway's transport/gate error taxonomy and its
// mapping onto the uniform JSON envelope described in spec section 7.
//
// Author: momentics <momentics@gmail.com>
package gwerr

import "fmt"

// Code enumerates the gateway-level failure taxonomy. It includes
// CodeEngineReported, but the router writes engine-reported failures as
// HTTP 200 with success:false instead of their HTTPStatus, see
// internal/router.
type Code int

const (
	CodeBadRequest Code = iota
	CodeAuthRequired
	CodeForbidden
	CodeNotFound
	CodeMethodNotAllowed
	CodeValidation
	CodeRateLimited
	CodeNotReady
	CodeEngineDisconnected
	CodeEngineReported
	CodeLicenseError
	CodeInternal
	CodeTimeout
	CodePayloadTooLarge
)

// HTTPStatus returns the status code the reactor/router writes for a Code.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeBadRequest:
		return 400
	case CodeAuthRequired:
		return 401
	case CodeForbidden:
		return 403
	case CodeNotFound:
		return 404
	case CodeMethodNotAllowed:
		return 405
	case CodeValidation:
		return 422
	case CodeRateLimited:
		return 429
	case CodeNotReady, CodeLicenseError:
		return 503
	case CodeEngineDisconnected, CodeEngineReported:
		return 502
	case CodeTimeout:
		return 504
	case CodePayloadTooLarge:
		return 413
	default:
		return 500
	}
}

// Error is a structured gateway error carrying the fields the uniform
// JSON envelope may surface: retry_after, license_status,
// hardware_fingerprint, missing_fields, unknown_fields, supported_fields.
type Error struct {
	Code    Code
	Message string
	Context map[string]any
}

func (e *Error) Error() string {
	if len(e.Context) == 0 {
		return e.Message
	}
	return fmt.Sprintf("%s (context: %+v)", e.Message, e.Context)
}

// New constructs an Error with an empty context.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message, Context: make(map[string]any)}
}

// Newf is New with fmt.Sprintf formatting.
func Newf(code Code, format string, args ...any) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// With attaches a context field and returns the same *Error for chaining.
func (e *Error) With(key string, value any) *Error {
	if e.Context == nil {
		e.Context = make(map[string]any)
	}
	e.Context[key] = value
	return e
}

// Envelope is the uniform non-200 JSON body shape from spec section 7.
type Envelope struct {
	Success          bool     `json:"success"`
	Error            string   `json:"error"`
	RetryAfter       *int     `json:"retry_after,omitempty"`
	Limit            *int     `json:"limit,omitempty"`
	Remaining        *int     `json:"remaining,omitempty"`
	LicenseStatus    string   `json:"license_status,omitempty"`
	HardwareFingerpr string   `json:"hardware_fingerprint,omitempty"`
	MissingFields    []string `json:"missing_fields,omitempty"`
	UnknownFields    []string `json:"unknown_fields,omitempty"`
	SupportedFields  string   `json:"supported_fields,omitempty"`
}

// ToEnvelope converts a structured Error into its wire envelope.
func (e *Error) ToEnvelope() Envelope {
	env := Envelope{Success: false, Error: e.Message}
	if v, ok := e.Context["retry_after"].(int); ok {
		env.RetryAfter = &v
	}
	if v, ok := e.Context["limit"].(int); ok {
		env.Limit = &v
	}
	if v, ok := e.Context["remaining"].(int); ok {
		env.Remaining = &v
	}
	if v, ok := e.Context["license_status"].(string); ok {
		env.LicenseStatus = v
	}
	if v, ok := e.Context["hardware_fingerprint"].(string); ok {
		env.HardwareFingerpr = v
	}
	if v, ok := e.Context["missing_fields"].([]string); ok {
		env.MissingFields = v
	}
	if v, ok := e.Context["unknown_fields"].([]string); ok {
		env.UnknownFields = v
	}
	if v, ok := e.Context["supported_fields"].(string); ok {
		env.SupportedFields = v
	}
	return env
}
