package graph

import (
	"github.com/ajitpratap0/adsync/pkg/errors"
)

// Graph error codes that matter for retry and skip decisions. Everything the
// sync layer does on failure ultimately depends on this mapping.
const (
	codeObjectAccess    = 100
	subcodeObjectAccess = 33
	codePermission      = 200

	codeUserRequestLimit = 17
	codeAppRequestLimit  = 4
	codeThrottle         = 80004
)

// APIError is the error payload inside a Graph error envelope.
type APIError struct {
	Code    int    `json:"code"`
	Subcode int    `json:"error_subcode"`
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
}

// errorEnvelope is the shape Graph wraps errors in: {"error": {...}}.
type errorEnvelope struct {
	Error *APIError `json:"error"`
}

// Classify maps a Graph error payload to a typed failure. It is a pure
// function of code and subcode; message text is carried along but never
// inspected.
//
//	code=100, subcode=33  -> ErrorTypeObjectAccess (not retried)
//	code=200              -> ErrorTypePermission   (not retried)
//	code in {17,4,80004}  -> ErrorTypeRateLimit    (retried with backoff)
//	anything else         -> ErrorTypeInternal     (generic retry path)
func Classify(apiErr *APIError) *errors.Error {
	if apiErr == nil {
		return errors.New(errors.ErrorTypeInternal, "unknown Graph API error")
	}

	msg := apiErr.Message
	if msg == "" {
		msg = "unknown Graph API error"
	}

	switch {
	case apiErr.Code == codeObjectAccess && apiErr.Subcode == subcodeObjectAccess:
		return errors.New(errors.ErrorTypeObjectAccess, msg).
			WithDetail("code", apiErr.Code).
			WithDetail("subcode", apiErr.Subcode)
	case apiErr.Code == codePermission:
		return errors.New(errors.ErrorTypePermission, msg).
			WithDetail("code", apiErr.Code)
	case apiErr.Code == codeUserRequestLimit,
		apiErr.Code == codeAppRequestLimit,
		apiErr.Code == codeThrottle:
		return errors.New(errors.ErrorTypeRateLimit, msg).
			WithDetail("code", apiErr.Code)
	default:
		return errors.New(errors.ErrorTypeInternal, msg).
			WithDetail("code", apiErr.Code).
			WithDetail("subcode", apiErr.Subcode)
	}
}
