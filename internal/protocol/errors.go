package protocol

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
)

// Error classes returned by the client and the reachability probe.
// Every returned error wraps exactly one of them, except context.Canceled
// which is passed through as is.
var (
	// ErrConnection is a refused, reset or unreachable connection.
	ErrConnection = errors.New("connection error")

	// ErrTimeout is an exceeded connect, read or write deadline.
	ErrTimeout = errors.New("timeout")

	// ErrProtocol is a malformed or unexpected packet.
	ErrProtocol = errors.New("protocol error")
)

// Classify maps low level network errors onto ErrConnection or ErrTimeout.
// Errors already carrying a class and context cancellation are returned unchanged.
func Classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrConnection), errors.Is(err, ErrTimeout), errors.Is(err, ErrProtocol):
		return err
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, os.ErrDeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	// refused, reset, unreachable and a peer closing mid-packet all end up here
	return fmt.Errorf("%w: %w", ErrConnection, err)
}

// IsRefused reports whether the peer actively refused the connection.
func IsRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func protocolErrorf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocol, fmt.Sprintf(format, args...))
}
