package storage

import (
	"errors"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
)

var (
	// ErrNotFound indicates the addressed row does not exist in the store.
	ErrNotFound = errors.New("task row not found")
	// ErrConflict indicates the store rejected a conditional write because
	// a newer version of the entity is already persisted.
	ErrConflict = errors.New("concurrency conflict")
)

func hasStatus(err error, codes ...int) bool {
	var respErr *azcore.ResponseError
	if !errors.As(err, &respErr) {
		return false
	}
	for _, code := range codes {
		if respErr.StatusCode == code {
			return true
		}
	}
	return false
}

// classify maps transport-level response errors onto the adapter's
// sentinel errors, passing everything else through unchanged.
func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case hasStatus(err, 404):
		return ErrNotFound
	case hasStatus(err, 409, 412):
		return ErrConflict
	}
	return err
}
