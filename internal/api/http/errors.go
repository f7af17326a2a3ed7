package http

import (
	"net/http"

	nerrors "github.com/nirv/nirv/internal/errors"
)

// ErrorBody is the error payload of a failed request.
type ErrorBody struct {
	Category string `json:"category"`
	Code     string `json:"code"`
	Message  string `json:"message"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"request_id,omitempty"`
}

func errorBody(err error) ErrorBody {
	if ne, ok := nerrors.As(err); ok {
		return ErrorBody{Category: string(ne.Category), Code: ne.Code, Message: ne.Message}
	}
	return ErrorBody{
		Category: string(nerrors.ErrCategoryInternal),
		Code:     nerrors.CodeUnexpected,
		Message:  err.Error(),
	}
}

// statusFor maps an engine error to an HTTP status. Client mistakes are
// 4xx; backend failures are 5xx.
func statusFor(err error) int {
	switch nerrors.GetCategory(err) {
	case nerrors.ErrCategoryParse, nerrors.ErrCategoryPlanning:
		return http.StatusBadRequest

	case nerrors.ErrCategoryDispatch:
		switch nerrors.GetCode(err) {
		case nerrors.CodeUnregisteredObjectType:
			return http.StatusNotFound
		case nerrors.CodeRegistrationFailed:
			return http.StatusConflict
		}
		return http.StatusBadRequest

	case nerrors.ErrCategoryExecution:
		if nerrors.GetCode(err) == nerrors.CodeConnectorNotFound {
			return http.StatusNotFound
		}
		return http.StatusBadRequest

	case nerrors.ErrCategoryConnector:
		switch nerrors.GetCode(err) {
		case nerrors.CodeTimeout:
			return http.StatusGatewayTimeout
		case nerrors.CodeConnectionFailed:
			return http.StatusServiceUnavailable
		case nerrors.CodeUnsupportedOperation:
			return http.StatusBadRequest
		}
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
