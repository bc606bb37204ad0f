package endpoints

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"perftests-app/internal/domain"
)

const (
	API_SUCCESS = iota + 303000 // 303000
	API_FAILURE                 // 303001 - Generic API failure
)

const (
	MEASUREMENTS_NOT_AVAILABLE = iota + 101 // 101 - No measurements in the requested build range
	INVALID_PARAMETERS                      // 102 - Non-integer build number, time or build count
	INVALID_MEASUREMENT                     // 103 - Empty name/branch or negative time
	STATEMENT_FAILED                        // 104 - Store rejected the statement
	STORE_UNAVAILABLE                       // 105 - Store unreachable
	STORE_TIMEOUT                           // 106 - Store call exceeded the query timeout; retryable
	RENDER_FAILED                           // 107 - Chart could not be drawn or encoded
	REQUEST_CANCELLED                       // 108 - Request was cancelled by the client
)

var (
	ErrNoMeasurementsAvailable = errors.New("no measurements available for the specified build range")
	ErrInvalidParameters       = errors.New("invalid build number, time or build count parameter; must be integers")
	ErrInvalidMeasurement      = errors.New("invalid measurement: name and branch are required, time must not be negative")
	ErrRequestCancelled        = errors.New("request cancelled by client or server timeout")
	ErrStoreUnavailable        = errors.New("measurement store unavailable")
	ErrStoreTimeout            = errors.New("measurement store timed out; retry the request")
	ErrRenderFailed            = errors.New("chart rendering failed")
	ErrInternal                = errors.New("internal server error")
)

func GetErrorCode(err error) int {
	if err == nil {
		return API_SUCCESS
	}

	switch {
	case errors.Is(err, ErrNoMeasurementsAvailable):
		return MEASUREMENTS_NOT_AVAILABLE
	case errors.Is(err, ErrInvalidParameters):
		return INVALID_PARAMETERS
	case errors.Is(err, domain.ErrValidation), errors.Is(err, ErrInvalidMeasurement):
		return INVALID_MEASUREMENT
	case errors.Is(err, domain.ErrStatement):
		return STATEMENT_FAILED
	case errors.Is(err, domain.ErrConnection):
		return STORE_UNAVAILABLE
	case errors.Is(err, domain.ErrTimeout):
		return STORE_TIMEOUT
	case errors.Is(err, domain.ErrRender):
		return RENDER_FAILED
	case errors.Is(err, context.Canceled), errors.Is(err, ErrRequestCancelled):
		return REQUEST_CANCELLED
	default:
		return API_FAILURE // Default for any unhandled error
	}
}

func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrNoMeasurementsAvailable):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidParameters), errors.Is(err, domain.ErrValidation), errors.Is(err, ErrInvalidMeasurement):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrConnection):
		return http.StatusServiceUnavailable
	case errors.Is(err, domain.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, ErrRequestCancelled):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// PublicError returns the message that may be shown to a client. Only
// client-side problems keep their detail.
func PublicError(err error) error {
	switch {
	case errors.Is(err, ErrNoMeasurementsAvailable), errors.Is(err, ErrInvalidParameters), errors.Is(err, ErrRequestCancelled), errors.Is(err, ErrInvalidMeasurement):
		return err
	case errors.Is(err, domain.ErrValidation):
		var fields domain.InvalidFields
		if errors.As(err, &fields) && len(fields) > 0 {
			return fmt.Errorf("%w; rejected fields: %s", ErrInvalidMeasurement, strings.Join(fields, ", "))
		}
		return ErrInvalidMeasurement
	case errors.Is(err, domain.ErrConnection):
		return ErrStoreUnavailable
	case errors.Is(err, domain.ErrTimeout):
		return ErrStoreTimeout
	case errors.Is(err, domain.ErrRender):
		return ErrRenderFailed
	case errors.Is(err, context.Canceled):
		return ErrRequestCancelled
	default:
		return ErrInternal
	}
}
