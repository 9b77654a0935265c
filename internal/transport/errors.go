package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorType represents a category of stream error for logs and metrics.
type ErrorType string

const (
	// ErrorTypeNetwork represents network connectivity errors
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeServerError represents server-side errors
	ErrorTypeServerError ErrorType = "server_error"
	// ErrorTypeClientError represents rejected requests
	ErrorTypeClientError ErrorType = "client_error"
	// ErrorTypeAuth represents authentication/authorization errors
	ErrorTypeAuth ErrorType = "auth"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeUnknown represents unclassified errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// ErrStreamNotOpen is returned when a stream operation runs without an open stream.
var ErrStreamNotOpen = errors.New("stream not open")

// StreamError is a classified failure of one stream operation.
type StreamError struct {
	// Op is the failed operation: open, write, close_send or finish.
	Op string
	// Err is the underlying error, usually a gRPC status error.
	Err error
	// Type is the classified error type.
	Type ErrorType
}

func newStreamError(op string, err error) *StreamError {
	return &StreamError{Op: op, Err: err, Type: ClassifyError(err)}
}

// Error implements the error interface.
func (e *StreamError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StreamError) Unwrap() error {
	return e.Err
}

// GRPCStatus exposes the underlying status to status.FromError.
func (e *StreamError) GRPCStatus() *status.Status {
	return status.Convert(e.Err)
}

// IsTransient returns true if the same write may succeed on a new stream.
func (e *StreamError) IsTransient() bool {
	switch e.Type {
	case ErrorTypeServerError, ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeRateLimit:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err, a StreamError or a raw gRPC error, may
// succeed when the same write is repeated on a new stream.
func IsTransient(err error) bool {
	var se *StreamError
	if errors.As(err, &se) {
		return se.IsTransient()
	}
	return (&StreamError{Err: err, Type: ClassifyError(err)}).IsTransient()
}

// TypeOf returns the classified type of err, unwrapping a StreamError.
func TypeOf(err error) ErrorType {
	var se *StreamError
	if errors.As(err, &se) {
		return se.Type
	}
	return ClassifyError(err)
}

// ClassifyError categorizes an error by gRPC status code, falling back to
// network and timeout detection.
func ClassifyError(err error) ErrorType {
	if err == nil {
		return ErrorTypeUnknown
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.DeadlineExceeded:
			return ErrorTypeTimeout
		case codes.Unavailable, codes.Canceled:
			return ErrorTypeNetwork
		case codes.Unauthenticated, codes.PermissionDenied:
			return ErrorTypeAuth
		case codes.ResourceExhausted:
			return ErrorTypeRateLimit
		case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.Unimplemented:
			return ErrorTypeClientError
		case codes.Internal, codes.DataLoss, codes.Aborted:
			return ErrorTypeServerError
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorTypeTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return ErrorTypeTimeout
		}
		return ErrorTypeNetwork
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "broken pipe"),
		strings.Contains(msg, "no such host"):
		return ErrorTypeNetwork
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return ErrorTypeTimeout
	}
	return ErrorTypeUnknown
}
