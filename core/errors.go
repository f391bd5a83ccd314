package core

import (
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	BrokerErrorBadOptions              = "AUTH_BAD_OPTIONS"
	BrokerErrorProviderNotFound        = "AUTH_PROVIDER_NOT_FOUND"
	BrokerErrorActivationTimeout       = "AUTH_ACTIVATION_TIMEOUT"
	BrokerErrorConsentDenied           = "AUTH_CONSENT_DENIED"
	BrokerErrorServerUnsupported       = "AUTH_SERVER_UNSUPPORTED"
	BrokerErrorStorageCorrupt          = "AUTH_STORAGE_CORRUPT"
	BrokerErrorProviderOperationFailed = "AUTH_PROVIDER_OPERATION_FAILED"
	BrokerErrorInternal                = "AUTH_INTERNAL_ERROR"
)

func brokerErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureBrokerErrorEnvelope(richErr)
	}

	switch {
	case goerrors.Is(err, ErrInvalidOptions):
		return newBrokerError(err.Error(), goerrors.CategoryBadInput, BrokerErrorBadOptions)
	case goerrors.Is(err, ErrProviderNotFound):
		return newBrokerError(err.Error(), goerrors.CategoryNotFound, BrokerErrorProviderNotFound)
	case goerrors.Is(err, ErrActivationTimeout):
		return newBrokerError(err.Error(), goerrors.CategoryOperation, BrokerErrorActivationTimeout)
	case goerrors.Is(err, ErrConsentDenied):
		return newBrokerError(err.Error(), goerrors.CategoryAuthz, BrokerErrorConsentDenied)
	case goerrors.Is(err, ErrAuthorizationServerUnsupported):
		return newBrokerError(err.Error(), goerrors.CategoryBadInput, BrokerErrorServerUnsupported)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureBrokerErrorEnvelope(mapped)
}

func newBrokerError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureBrokerErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureBrokerErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = brokerHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultBrokerTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultBrokerTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return BrokerErrorBadOptions
	case goerrors.CategoryNotFound:
		return BrokerErrorProviderNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return BrokerErrorConsentDenied
	case goerrors.CategoryOperation:
		return BrokerErrorProviderOperationFailed
	default:
		return BrokerErrorInternal
	}
}

func brokerHTTPStatus(category goerrors.Category) int {
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
	default:
		return http.StatusInternalServerError
	}
}
