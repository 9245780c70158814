package handler

import (
	"errors"
	"net/http"

	apperrors "github.com/careclinic/scheduler-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Details interface{} `json:"details,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// HTTPStatus maps an application error to its HTTP status code.
func HTTPStatus(err error) int {
	switch apperrors.CodeOf(err) {
	case apperrors.ErrValidation:
		return http.StatusBadRequest
	case apperrors.ErrAuthorization:
		return http.StatusForbidden
	case apperrors.ErrConflict:
		return http.StatusConflict
	case apperrors.ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusServiceUnavailable
	}
}

// FromError builds the error payload for an application error, preserving
// any conflict detail so clients can offer a corrective action.
func FromError(err error) *Response {
	resp := NewErrorResponse(err.Error())
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Details != nil {
		resp.Details = appErr.Details
	}
	return resp
}
