package jsonld

import (
	"errors"
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-federation/core"
)

// FetchError reports a failed remote document fetch. StatusCode is 0
// for network-level failures and for fetch targets rejected by the
// public-reachability check.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("jsonld: fetch %s: status %d", e.URL, e.StatusCode)
	}
	if e.Err != nil {
		return fmt.Sprintf("jsonld: fetch %s: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("jsonld: fetch %s failed", e.URL)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether a resolution or delivery failure is worth
// retrying: network-level failures and 5xx responses are transient, a
// definitive remote 4xx is permanent.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var fetchErr *FetchError
	if errors.As(err, &fetchErr) && fetchErr.StatusCode > 0 && fetchErr.StatusCode < http.StatusInternalServerError {
		return false
	}
	return true
}

func resolutionError(message string, source error, metadata map[string]any) error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryExternal)
	}
	err = err.
		WithCode(http.StatusBadGateway).
		WithTextCode(core.FederationErrorResolution)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
