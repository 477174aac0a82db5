package inbound

import (
	"errors"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
)

func inboundError(
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

func inboundWrapError(
	source error,
	category goerrors.Category,
	message string,
	code int,
	textCode string,
	metadata map[string]any,
) error {
	if source == nil {
		return inboundError(message, category, code, textCode, metadata)
	}
	err := goerrors.Wrap(source, category, message).
		WithCode(code).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func inboundBadInput(source error, message string, metadata map[string]any) error {
	return inboundWrapError(
		source,
		goerrors.CategoryBadInput,
		message,
		http.StatusBadRequest,
		core.ServiceErrorBadInput,
		metadata,
	)
}

func inboundInternal(source error, message string) error {
	return inboundWrapError(
		source,
		goerrors.CategoryInternal,
		message,
		http.StatusInternalServerError,
		core.ServiceErrorInternal,
		nil,
	)
}

// readBodyError classifies a failed body read. An oversized body is the
// caller's fault, anything else is ours.
func readBodyError(err error, limit int64) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return inboundBadInput(err, "inbound: request body too large", map[string]any{"max_body_bytes": limit})
	}
	return inboundBadInput(err, "inbound: request body could not be read", nil)
}

// statusFor returns the HTTP status and envelope for err, preferring a status
// already decided by the pipeline.
func statusFor(err error, decided int) (int, *goerrors.Error) {
	mapped := core.MapError(err)
	status := decided
	if status < http.StatusBadRequest {
		status = mapped.Code
	}
	if status < http.StatusBadRequest || status > 599 {
		status = http.StatusInternalServerError
	}
	return status, mapped
}

// publicMessage hides internal failure details from callers.
func publicMessage(status int, mapped *goerrors.Error) string {
	if status >= http.StatusInternalServerError || mapped == nil {
		return http.StatusText(http.StatusInternalServerError)
	}
	if mapped.Message == "" {
		return http.StatusText(status)
	}
	return mapped.Message
}
