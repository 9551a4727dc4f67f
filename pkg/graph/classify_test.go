package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ajitpratap0/adsync/pkg/errors"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		apiErr    *APIError
		wantType  errors.ErrorType
		retryable bool
	}{
		{
			name:      "object access denied",
			apiErr:    &APIError{Code: 100, Subcode: 33, Message: "Unsupported get request"},
			wantType:  errors.ErrorTypeObjectAccess,
			retryable: false,
		},
		{
			name:      "code 100 without subcode 33 is generic",
			apiErr:    &APIError{Code: 100, Subcode: 0, Message: "Invalid parameter"},
			wantType:  errors.ErrorTypeInternal,
			retryable: true,
		},
		{
			name:      "permission missing",
			apiErr:    &APIError{Code: 200, Message: "Requires ads_read"},
			wantType:  errors.ErrorTypePermission,
			retryable: false,
		},
		{
			name:      "user request limit",
			apiErr:    &APIError{Code: 17, Message: "User request limit reached"},
			wantType:  errors.ErrorTypeRateLimit,
			retryable: true,
		},
		{
			name:      "app request limit",
			apiErr:    &APIError{Code: 4, Message: "Application request limit reached"},
			wantType:  errors.ErrorTypeRateLimit,
			retryable: true,
		},
		{
			name:      "ads throttle",
			apiErr:    &APIError{Code: 80004, Message: "Too many calls to this ad account"},
			wantType:  errors.ErrorTypeRateLimit,
			retryable: true,
		},
		{
			name:      "unknown code is generic",
			apiErr:    &APIError{Code: 1, Message: "An unknown error occurred"},
			wantType:  errors.ErrorTypeInternal,
			retryable: true,
		},
		{
			name:      "nil payload",
			apiErr:    nil,
			wantType:  errors.ErrorTypeInternal,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.apiErr)
			assert.Equal(t, tt.wantType, errors.TypeOf(err))
			assert.Equal(t, tt.retryable, errors.IsRetryable(err))
			assert.NotEmpty(t, err.Error())
		})
	}
}

func TestClassifyCarriesMessage(t *testing.T) {
	err := Classify(&APIError{Code: 200, Message: "Requires ads_read permission"})
	assert.Contains(t, err.Error(), "Requires ads_read permission")
}
