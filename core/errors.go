package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	FederationErrorBadInput          = "FEDERATION_BAD_INPUT"
	FederationErrorHostMismatch      = "FEDERATION_HOST_MISMATCH"
	FederationErrorDigestMismatch    = "FEDERATION_DIGEST_MISMATCH"
	FederationErrorSignatureMismatch = "FEDERATION_SIGNATURE_MISMATCH"
	FederationErrorOriginMismatch    = "FEDERATION_ORIGIN_MISMATCH"
	FederationErrorResolution        = "FEDERATION_RESOLUTION_FAILED"
	FederationErrorDelivery          = "FEDERATION_DELIVERY_FAILED"
	FederationErrorIntegrity         = "FEDERATION_INTEGRITY_ASSERTION"
	FederationErrorInternal          = "FEDERATION_INTERNAL_ERROR"
)

// federationErrorMapper normalizes arbitrary errors into the shared
// go-errors envelope with an HTTP status and text code.
func federationErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureFederationErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "signature"):
		return newFederationError(err.Error(), goerrors.CategoryAuth, FederationErrorSignatureMismatch)
	case strings.Contains(msg, "digest"):
		return newFederationError(err.Error(), goerrors.CategoryBadInput, FederationErrorDigestMismatch)
	case strings.Contains(msg, "origin"):
		return newFederationError(err.Error(), goerrors.CategoryBadInput, FederationErrorOriginMismatch)
	case strings.Contains(msg, "resolve"), strings.Contains(msg, "resolution"):
		return newFederationError(err.Error(), goerrors.CategoryExternal, FederationErrorResolution)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "mismatch"):
		return newFederationError(err.Error(), goerrors.CategoryBadInput, FederationErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureFederationErrorEnvelope(mapped)
}

// MapError exposes the shared mapper to the other packages.
func MapError(err error) *goerrors.Error {
	return federationErrorMapper(err)
}

func newFederationError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureFederationErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureFederationErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = federationHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultFederationTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultFederationTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return FederationErrorBadInput
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return FederationErrorSignatureMismatch
	case goerrors.CategoryExternal:
		return FederationErrorResolution
	case goerrors.CategoryOperation:
		return FederationErrorDelivery
	default:
		return FederationErrorInternal
	}
}

func federationHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return http.StatusUnauthorized
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryExternal, goerrors.CategoryOperation:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus returns the client-visible status for an error, falling
// back to 500 for anything outside the shared envelope.
func HTTPStatus(err error) int {
	if err == nil {
		return http.StatusOK
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && richErr.Code != 0 {
		return richErr.Code
	}
	return http.StatusInternalServerError
}
