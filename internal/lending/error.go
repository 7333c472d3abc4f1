package lending

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

type Code string

const (
	CodeInvalidArgument  Code = "INVALID_ARGUMENT"
	CodeUnavailable      Code = "UNAVAILABLE"
	CodeForbidden        Code = "FORBIDDEN"
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyProcessed Code = "ALREADY_PROCESSED"
	CodeInternal         Code = "INTERNAL"
)

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string              { return fmt.Sprintf("%s: %s", e.Code, e.Message) }
func ErrInvalid(msg string) *APIError          { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrUnavailable(msg string) *APIError      { return &APIError{Code: CodeUnavailable, Message: msg} }
func ErrForbidden(msg string) *APIError        { return &APIError{Code: CodeForbidden, Message: msg} }
func ErrNotFound(msg string) *APIError         { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrAlreadyProcessed(msg string) *APIError { return &APIError{Code: CodeAlreadyProcessed, Message: msg} }
func ErrInternal(msg string) *APIError         { return &APIError{Code: CodeInternal, Message: msg} }

// CodeOf: APIError 以外はインフラ障害扱い
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument, CodeUnavailable:
		return http.StatusBadRequest
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeAlreadyProcessed:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	return strings.ToLower(string(CodeOf(err)))
}
