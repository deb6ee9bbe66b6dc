package server

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/tombstone/internal/model"
	"github.com/alfredjeanlab/tombstone/internal/store"
)

// statusClientClosedRequest is the non-standard status logged when the
// client goes away before the response is written.
const statusClientClosedRequest = 499

// kindHTTPStatus maps a failure kind to the status of a Result that
// committed nothing.
var kindHTTPStatus = map[model.ErrorKind]int{
	model.KindEntityNotFound:         http.StatusNotFound,
	model.KindAlreadySoftDeleted:     http.StatusConflict,
	model.KindNotDirectlySoftDeleted: http.StatusConflict,
	model.KindNotSoftDeleted:         http.StatusConflict,
	model.KindConcurrencyConflict:    http.StatusConflict,
	model.KindCascadeCycleDetected:   http.StatusUnprocessableEntity,
	model.KindInternal:               http.StatusInternalServerError,
}

// resultStatus picks the HTTP status for a Result: 200 when it is OK,
// 207 when some roots committed and others were rejected, and otherwise
// the status of the first error.
func resultStatus(res model.Result) int {
	first := res.FirstError()
	switch {
	case first == nil:
		return http.StatusOK
	case len(res.Affected) > 0:
		return http.StatusMultiStatus
	}
	if code, ok := kindHTTPStatus[first.Kind]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// httpStatus maps an error from a Server method to an HTTP status.
func httpStatus(err error) int {
	switch {
	case isInputError(err):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrExists), errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// grpcError converts an error from a Server method to a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case isInputError(err):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, store.ErrExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, store.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	return status.Errorf(codes.Internal, "%v", err)
}
