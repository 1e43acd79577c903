// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"errors"
	"fmt"
)

// Error kinds. Every error leaving a collaborator or the pipeline is wrapped
// with one of these so callers can branch with IsKind.
var (
	// Stage and collaborator failures.
	ErrExtraction    = errors.New("video retrieval failed")
	ErrTranscription = errors.New("transcription failed")
	ErrBackend       = errors.New("analysis backend failed")
	ErrTranslation   = errors.New("translation failed")
	ErrExport        = errors.New("export failed")

	// Request level failures.
	ErrBusy         = errors.New("an analysis is already running")
	ErrInvalidState = errors.New("operation not allowed in current state")
	ErrInvalidInput = errors.New("invalid input")
	ErrNotFound     = errors.New("not found")
	ErrTemporary    = errors.New("temporary failure")
)

// ErrUnsupportedLanguage is returned by ParseLanguageCode.
var ErrUnsupportedLanguage = fmt.Errorf("%w: unsupported language code", ErrInvalidInput)

// WrapError preserves the error kind together with the operation that failed.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

var userFacingKinds = []error{
	ErrExtraction,
	ErrTranscription,
	ErrBackend,
	ErrTranslation,
	ErrExport,
	ErrBusy,
	ErrInvalidState,
	ErrNotFound,
}

// UserMessage turns an error into the short message shown to users. The kind
// text is followed by the innermost cause; the operation chain is left to the logs.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	root := rootCause(err)
	for _, kind := range userFacingKinds {
		if errors.Is(err, kind) {
			if root == kind {
				return kind.Error()
			}
			return fmt.Sprintf("%s: %s", kind.Error(), root.Error())
		}
	}
	return err.Error()
}

// rootCause follows the wrap chain to the innermost error. For joined wraps
// (WrapError produces two) the last element is the cause.
func rootCause(err error) error {
	for {
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			errs := u.Unwrap()
			if len(errs) == 0 {
				return err
			}
			err = errs[len(errs)-1]
		case interface{ Unwrap() error }:
			next := u.Unwrap()
			if next == nil {
				return err
			}
			err = next
		default:
			return err
		}
	}
}
