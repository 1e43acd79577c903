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

package commands

import (
	"fmt"
	"strings"

	"github.com/jaycherian/gcp-go-video-insights/internal/cloud"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/cor"
	"github.com/jaycherian/gcp-go-video-insights/internal/core/model"
)

// SourceReferenceReader normalizes the chain input into a model.SourceReference.
// It accepts a SourceReference, a URL or gs:// string, or the JSON body of a
// Cloud Storage Pub/Sub notification.
type SourceReferenceReader struct {
	cor.BaseCommand
}

// NewSourceReferenceReader is the constructor for SourceReferenceReader.
func NewSourceReferenceReader(name string) *SourceReferenceReader {
	return &SourceReferenceReader{BaseCommand: *cor.NewBaseCommand(name)}
}

func (c *SourceReferenceReader) Execute(context cor.Context) {
	ref, err := ReadSourceReference(context.Get(c.GetInputParam()))
	if err != nil {
		c.Fail(context, err)
		return
	}
	c.Succeed(context)
	context.Add(ParamSource, ref)
	context.Add(c.GetOutputParam(), ref)
}

// ReadSourceReference converts any accepted input into a SourceReference.
//
// Inputs:
//   - in: A model.SourceReference (by value or pointer), a URL or gs:// string,
//     or a storage notification JSON body.
//
// Outputs:
//   - model.SourceReference: The normalized reference.
//   - error: ErrInvalidInput for anything else, including empty references.
func ReadSourceReference(in interface{}) (model.SourceReference, error) {
	switch v := in.(type) {
	case model.SourceReference:
		if v.IsZero() {
			return v, fmt.Errorf("%w: empty source reference", model.ErrInvalidInput)
		}
		return v, nil
	case *model.SourceReference:
		if v == nil {
			return model.SourceReference{}, fmt.Errorf("%w: empty source reference", model.ErrInvalidInput)
		}
		return ReadSourceReference(*v)
	case string:
		trimmed := strings.TrimSpace(v)
		// A JSON object can only be a storage notification.
		if strings.HasPrefix(trimmed, "{") {
			notification, err := cloud.ParseGCSNotification([]byte(trimmed))
			if err != nil {
				return model.SourceReference{}, fmt.Errorf("%w: %w", model.ErrInvalidInput, err)
			}
			obj := notification.Object()
			return model.SourceReference{Bucket: obj.Bucket, Object: obj.Name}, nil
		}
		return model.ParseSourceReference(trimmed)
	default:
		return model.SourceReference{}, fmt.Errorf("%w: unsupported source input %T", model.ErrInvalidInput, in)
	}
}
