package client

import (
	"errors"
	"fmt"
)

// Error taxonomy of the Cart API. Business rejections are sentinel values so
// callers can branch on them; transport failures wrap the underlying error in
// a NetworkError.
var (
	ErrUnauthorized = errors.New("cart api: unauthorized")
	ErrOutOfStock   = errors.New("cart api: out of stock")
	ErrNotFound     = errors.New("cart api: not found")
)

// NetworkError is a transport-level failure reaching the Cart API.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("cart api: %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// IsNetworkError reports whether err is (or wraps) a transport failure.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
