// Copyright 2025 AUTHORS
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package types

import (
	"errors"
	"fmt"
)

// ErrorKind is the stable tag carried by every error surfaced to callers.
type ErrorKind string

const (
	ErrNotFound             ErrorKind = "not_found"
	ErrForbidden            ErrorKind = "forbidden"
	ErrDuplicateName        ErrorKind = "duplicate_name"
	ErrValidation           ErrorKind = "validation"
	ErrPeripheryUnreachable ErrorKind = "periphery_unreachable"
	ErrPeripheryBusy        ErrorKind = "periphery_busy"
	ErrBackend              ErrorKind = "backend"
	ErrInternal             ErrorKind = "internal"
)

// Error is the user-visible error shape: a kind tag, a human message, and
// an optional wrapped cause.
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Errorf builds an *Error with the given kind and formatted message. A
// trailing %w formats the cause into the chain as usual.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	err := fmt.Errorf(format, args...)
	return &Error{Kind: kind, Msg: err.Error(), Err: errors.Unwrap(err)}
}

// KindOf classifies an error by its kind tag. Untagged errors report
// ErrInternal.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind ErrorKind) bool {
	return KindOf(err) == kind
}
