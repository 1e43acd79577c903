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

// Package cor (Chain of Responsibility) provides the building blocks the
// analysis pipeline is assembled from. This file defines `BaseContext`, the
// default implementation of the `Context` interface.
//
// The context is the property bag one chain execution passes from command to
// command. It holds:
//   - Arbitrary values keyed by parameter name (`data`).
//   - Errors keyed by the command that produced them, in the order they were
//     first recorded (`errors`, `errorOrder`).
//   - Temporary files to remove when the run ends (`tempFiles`).
//   - The Go `context.Context` carrying cancellation and the active span.
package cor

import (
	"context"
	"log/slog"
	"os"
)

// BaseContext is the default Context. It is owned by a single chain
// execution and is not safe for concurrent use.
type BaseContext struct {
	data       map[string]interface{} // Values shared between commands.
	errors     map[string]error       // Errors keyed by command name.
	errorOrder []string               // Keys of errors in first-recorded order.
	tempFiles  []string               // Paths removed by Close.
	context    context.Context        // Cancellation and the active span.
}

// NewBaseContext is the constructor for BaseContext. Call SetContext before
// executing a chain.
//
// Outputs:
//   - Context: A new, empty context.
func NewBaseContext() Context {
	return &BaseContext{
		data:      make(map[string]interface{}),
		errors:    make(map[string]error),
		tempFiles: make([]string, 0),
	}
}

// NewContext returns an empty context bound to ctx.
func NewContext(ctx context.Context) Context {
	c := NewBaseContext()
	c.SetContext(ctx)
	return c
}

func (c *BaseContext) SetContext(context context.Context) {
	c.context = context
}

func (c *BaseContext) GetContext() context.Context {
	return c.context
}

// Close removes the temporary files registered during the run.
func (c *BaseContext) Close() {
	for _, file := range c.tempFiles {
		if err := os.Remove(file); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove temporary file", "file", file, "error", err)
		}
	}
	c.tempFiles = c.tempFiles[:0]
}

func (c *BaseContext) Add(key string, value interface{}) Context {
	c.data[key] = value
	return c
}

func (c *BaseContext) AddTempFile(file string) {
	c.tempFiles = append(c.tempFiles, file)
}

func (c *BaseContext) GetTempFiles() []string {
	return c.tempFiles
}

// AddError records err under key. A second error for the same key replaces
// the first but keeps its position.
func (c *BaseContext) AddError(key string, err error) {
	if err == nil {
		return
	}
	if _, exists := c.errors[key]; !exists {
		c.errorOrder = append(c.errorOrder, key)
	}
	c.errors[key] = err
}

func (c *BaseContext) GetErrors() map[string]error {
	return c.errors
}

// Err returns the first error recorded, which is the one the run reports.
func (c *BaseContext) Err() error {
	if len(c.errorOrder) == 0 {
		return nil
	}
	return c.errors[c.errorOrder[0]]
}

func (c *BaseContext) Get(key string) interface{} {
	return c.data[key]
}

func (c *BaseContext) Remove(key string) {
	delete(c.data, key)
}

func (c *BaseContext) HasErrors() bool {
	return len(c.errors) > 0
}
