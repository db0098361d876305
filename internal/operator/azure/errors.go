package azure

import (
	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"gitlab.com/tozd/go/errors"

	"github.com/Chapsvision-dev/ferry/internal/operator"
)

// translateError maps storage error codes to actionable messages.
func translateError(container, key string, err error) error {
	var re *azcore.ResponseError
	if !errors.As(err, &re) {
		return errors.Errorf("azblob: %s/%s: %w", container, key, err)
	}
	switch re.ErrorCode {
	case string(bloberror.BlobNotFound):
		return errors.Errorf("azblob: %s/%s: %w", container, key, operator.ErrNotExist)
	case string(bloberror.ContainerNotFound):
		return errors.Errorf("azblob: container %q not found: %w", container, err)
	case string(bloberror.AuthorizationFailure),
		string(bloberror.AuthorizationPermissionMismatch),
		string(bloberror.AuthenticationFailed):
		return errors.Errorf("azblob: not authorized for container %q; a container SAS needs at least rwl: %w", container, err)
	}
	return errors.Errorf("azblob: %s/%s: %w", container, key, err)
}
