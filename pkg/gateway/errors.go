package gateway

import (
	"errors"
	"fmt"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Sentinel errors the reconcile layer matches on via errors.Is. The cluster
// implementation wraps its client failures through Classify and the fake
// wraps these sentinels directly, so callers never branch on apierrors.
var (
	ErrNotFound      = errors.New("gateway: not found")
	ErrAlreadyExists = errors.New("gateway: already exists")
	ErrConflict      = errors.New("gateway: conflict")
	ErrForbidden     = errors.New("gateway: forbidden")
	ErrTransport     = errors.New("gateway: transport error")
)

// Classify wraps an error returned by the underlying client in the
// taxonomy from the error handling design: NotFound, AlreadyExists,
// Conflict, Forbidden, or Transport. A nil err classifies to nil.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	switch {
	case apierrors.IsNotFound(err):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case apierrors.IsAlreadyExists(err):
		return fmt.Errorf("%w: %v", ErrAlreadyExists, err)
	case apierrors.IsConflict(err):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case apierrors.IsForbidden(err), apierrors.IsUnauthorized(err):
		return fmt.Errorf("%w: %v", ErrForbidden, err)
	default:
		return fmt.Errorf("%w: %v", ErrTransport, err)
	}
}
