package core

import (
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput         = "PAYMENTS_BAD_INPUT"
	ServiceErrorSignatureInvalid = "PAYMENTS_SIGNATURE_INVALID"
	ServiceErrorUnauthorized     = "PAYMENTS_UNAUTHORIZED"
	ServiceErrorNotFound         = "PAYMENTS_NOT_FOUND"
	ServiceErrorConflict         = "PAYMENTS_CONFLICT"
	ServiceErrorProviderFailed   = "PAYMENTS_PROVIDER_FAILED"
	ServiceErrorInternal         = "PAYMENTS_INTERNAL"
)

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}

	switch {
	case errors.Is(err, ErrPaymentEventNotFound), errors.Is(err, ErrOrderNotFound):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	case errors.Is(err, ErrInvalidOrderStatusTransition), errors.Is(err, ErrOrderStatusConflict):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorConflict)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorSignatureInvalid)
	case strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	case strings.Contains(msg, "in flight"), strings.Contains(msg, "already claimed"):
		return newServiceError(err.Error(), goerrors.CategoryConflict, ServiceErrorConflict)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "must"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = ServiceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ServiceErrorUnauthorized
	case goerrors.CategoryConflict:
		return ServiceErrorConflict
	case goerrors.CategoryOperation:
		return ServiceErrorProviderFailed
	default:
		return ServiceErrorInternal
	}
}

// ServiceHTTPStatus maps an error category onto the status code returned to
// callers of the HTTP surface.
func ServiceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// MapError resolves any error into the payments error envelope.
func MapError(err error) *goerrors.Error {
	return serviceErrorMapper(err)
}

func badInputError(message string, metadata map[string]any) error {
	return serviceError(message, goerrors.CategoryBadInput, http.StatusBadRequest, ServiceErrorBadInput, metadata)
}

func unauthorizedError(message string, metadata map[string]any) error {
	return serviceError(message, goerrors.CategoryAuth, http.StatusUnauthorized, ServiceErrorUnauthorized, metadata)
}

func notFoundError(source error, message string, metadata map[string]any) error {
	return serviceWrapError(source, goerrors.CategoryNotFound, message, http.StatusNotFound, ServiceErrorNotFound, metadata)
}

func providerError(source error, message string, metadata map[string]any) error {
	// provider failures surface as 500 to callers; the text code keeps the cause visible
	return serviceWrapError(
		source,
		goerrors.CategoryOperation,
		message,
		http.StatusInternalServerError,
		ServiceErrorProviderFailed,
		metadata,
	)
}

func serviceError(
	message string,
	category goerrors.Category,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	err := goerrors.New(message, category).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func serviceWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return serviceError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
