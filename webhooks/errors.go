package webhooks

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-payments/core"
)

// ErrEventIgnored is returned by decoders for event types that are
// acknowledged without being recorded.
var ErrEventIgnored = errors.New("webhooks: event type ignored")

func signatureError(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryBadInput, "webhooks: signature verification failed").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorSignatureInvalid)
}

func badInputError(message string) error {
	return goerrors.New(message, goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput)
}

func decodeError(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryBadInput, "webhooks: event payload could not be decoded").
		WithCode(http.StatusBadRequest).
		WithTextCode(core.ServiceErrorBadInput)
}

func conflictError(providerID string, deliveryID string) error {
	return goerrors.New(
		fmt.Sprintf("webhooks: delivery %s/%s is in flight", providerID, deliveryID),
		goerrors.CategoryConflict,
	).
		WithCode(http.StatusConflict).
		WithTextCode(core.ServiceErrorConflict).
		WithMetadata(map[string]any{
			"provider_id": providerID,
			"delivery_id": deliveryID,
		})
}

func notFoundError(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryNotFound, "webhooks: delivery not found").
		WithCode(http.StatusNotFound).
		WithTextCode(core.ServiceErrorNotFound)
}

func internalError(cause error) error {
	return goerrors.Wrap(cause, goerrors.CategoryInternal, "webhooks: delivery processing failed").
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.ServiceErrorInternal)
}
