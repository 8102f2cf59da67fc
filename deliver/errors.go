package deliver

import (
	"fmt"
	"net/http"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-federation/core"
)

// postError reports a failed delivery POST. StatusCode is 0 for
// network-level failures.
type postError struct {
	Inbox      string
	StatusCode int
	Err        error
}

func (e *postError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("deliver: post %s: status %d", e.Inbox, e.StatusCode)
	}
	return fmt.Sprintf("deliver: post %s: %v", e.Inbox, e.Err)
}

func (e *postError) Unwrap() error {
	return e.Err
}

// retryablePost reports whether the POST failure is transient: network
// failures and 5xx responses are, a definitive remote response below
// 500 is not.
func retryablePost(err *postError) bool {
	return err.StatusCode == 0 || err.StatusCode >= http.StatusInternalServerError
}

func integrityError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.FederationErrorIntegrity)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func deliveryError(message string, source error, metadata map[string]any) error {
	var err *goerrors.Error
	if source != nil {
		err = goerrors.Wrap(source, goerrors.CategoryExternal, message)
	} else {
		err = goerrors.New(message, goerrors.CategoryExternal)
	}
	err = err.
		WithCode(http.StatusBadGateway).
		WithTextCode(core.FederationErrorDelivery)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
