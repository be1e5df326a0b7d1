package download

import "errors"

var (
	ErrNotFound       = errors.New("download: task not found")
	ErrInvalidState   = errors.New("download: operation not allowed in current state")
	ErrInvalidInput   = errors.New("download: invalid input")
	ErrNetworkFailure = errors.New("download: network failure")
	ErrWriteFailure   = errors.New("download: write failure")
	ErrServiceClosed  = errors.New("download: service closed")
	ErrUnsupported    = errors.New("download: operation not supported by fetcher")
)

// IsRetryable reports whether err may succeed when the transfer is reopened
func IsRetryable(err error) bool {
	return errors.Is(err, ErrNetworkFailure)
}
