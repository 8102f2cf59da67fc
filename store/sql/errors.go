package sqlstore

import (
	"net/http"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-federation/core"
)

func notFoundError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryNotFound).
		WithCode(http.StatusNotFound).
		WithTextCode(core.FederationErrorBadInput)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

// integrityError flags a statement that touched a different number of
// rows than the locks taken earlier in the transaction promised.
func integrityError(message string, metadata map[string]any) error {
	err := goerrors.New(message, goerrors.CategoryInternal).
		WithCode(http.StatusInternalServerError).
		WithTextCode(core.FederationErrorIntegrity)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}
