// SPDX-License-Identifier: GPL-3.0-or-later

package grpc

import (
	"errors"
	"fmt"
)

// Code is a canonical RPC status code.
//
// The numeric values are part of the wire contract and must not change.
type Code uint32

const (
	// CodeOK means the operation completed successfully.
	CodeOK Code = 0

	// CodeCanceled means the operation was canceled by the caller.
	CodeCanceled Code = 1

	// CodeUnknown means an error of unknown provenance occurred.
	CodeUnknown Code = 2

	// CodeInvalidArgument means the caller supplied an invalid argument.
	CodeInvalidArgument Code = 3

	// CodeDeadlineExceeded means the deadline expired before completion.
	CodeDeadlineExceeded Code = 4

	// CodeNotFound means a requested entity was not found.
	CodeNotFound Code = 5

	// CodeAlreadyExists means an entity we attempted to create already exists.
	CodeAlreadyExists Code = 6

	// CodePermissionDenied means the caller lacks permission.
	CodePermissionDenied Code = 7

	// CodeResourceExhausted means some resource has been exhausted.
	CodeResourceExhausted Code = 8

	// CodeFailedPrecondition means the system is not in the required state.
	CodeFailedPrecondition Code = 9

	// CodeAborted means the operation was aborted.
	CodeAborted Code = 10

	// CodeOutOfRange means the operation was attempted past the valid range.
	CodeOutOfRange Code = 11

	// CodeUnimplemented means the operation is not implemented.
	CodeUnimplemented Code = 12

	// CodeInternal means an internal invariant was broken.
	CodeInternal Code = 13

	// CodeUnavailable means the service is currently unavailable.
	CodeUnavailable Code = 14

	// CodeDataLoss means unrecoverable data loss or corruption.
	CodeDataLoss Code = 15

	// CodeUnauthenticated means the caller is not authenticated.
	CodeUnauthenticated Code = 16
)

// codeNames maps each [Code] to its canonical name.
var codeNames = map[Code]string{
	CodeOK:                 "OK",
	CodeCanceled:           "CANCELLED",
	CodeUnknown:            "UNKNOWN",
	CodeInvalidArgument:    "INVALID_ARGUMENT",
	CodeDeadlineExceeded:   "DEADLINE_EXCEEDED",
	CodeNotFound:           "NOT_FOUND",
	CodeAlreadyExists:      "ALREADY_EXISTS",
	CodePermissionDenied:   "PERMISSION_DENIED",
	CodeResourceExhausted:  "RESOURCE_EXHAUSTED",
	CodeFailedPrecondition: "FAILED_PRECONDITION",
	CodeAborted:            "ABORTED",
	CodeOutOfRange:         "OUT_OF_RANGE",
	CodeUnimplemented:      "UNIMPLEMENTED",
	CodeInternal:           "INTERNAL",
	CodeUnavailable:        "UNAVAILABLE",
	CodeDataLoss:           "DATA_LOSS",
	CodeUnauthenticated:    "UNAUTHENTICATED",
}

// String returns the canonical name of the code.
func (c Code) String() string {
	if name, found := codeNames[c]; found {
		return name
	}
	return fmt.Sprintf("CODE(%d)", uint32(c))
}

// NewStatus creates a [*Status] with the given code and reason.
func NewStatus(code Code, reason string) *Status {
	return &Status{Code: code, Reason: reason}
}

// Status is an RPC status: a [Code] plus a human-readable reason.
//
// A nil [*Status] or a status with [CodeOK] means success. A [*Status]
// is an error, so fallible operations can return it directly.
type Status struct {
	// Code is the canonical status code.
	Code Code

	// Reason is the human-readable reason string.
	Reason string
}

var _ error = &Status{}

// Error implements the error interface.
func (s *Status) Error() string {
	return fmt.Sprintf("%s: %s", s.Code, s.Reason)
}

// StatusFromError extracts a [*Status] from an error.
//
// When err is nil, returns nil. When err is itself a [*Status], returns
// it unchanged. Otherwise wraps err into a [CodeUnknown] status.
func StatusFromError(err error) *Status {
	if err == nil {
		return nil
	}
	var status *Status
	if errors.As(err, &status) {
		return status
	}
	return NewStatus(CodeUnknown, err.Error())
}
