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
// analysis pipeline is assembled from. This file defines the interfaces every
// command, chain and context implements, so the workflow package can compose
// steps without knowing their concrete types.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn and CtxOut are the keys a BaseChain pipes data through.
const (
	// CtxIn is the default input key. The chain fills it with the previous
	// command's output.
	CtxIn = "__IN__"
	// CtxOut is the default output key. The chain moves its value to CtxIn
	// once the command returns.
	CtxOut = "__OUT__"
)

// Context is the state shared by every command of one chain execution.
type Context interface {
	// SetContext sets the Go context carrying cancellation and the active span.
	SetContext(context context.Context)
	GetContext() context.Context

	// Add stores a value for later commands.
	Add(key string, value interface{}) Context
	Get(key string) interface{}
	Remove(key string)

	// AddError records a failure under the name of the command that produced it.
	AddError(key string, err error)
	GetErrors() map[string]error
	HasErrors() bool
	// Err returns the first recorded error, or nil.
	Err() error

	// AddTempFile registers a file to be removed by Close.
	AddTempFile(file string)
	GetTempFiles() []string

	// Close removes every temporary file. Defer it right after creating the context.
	Close()
}

// Executable is anything with a unit of work bound to a Context.
type Executable interface {
	Execute(context Context)
}

// Command is one step of a chain.
type Command interface {
	Executable

	GetName() string

	// GetInputParam is the key the command reads its primary input from.
	GetInputParam() string

	// GetOutputParam is the key the command writes its primary output to.
	GetOutputParam() string

	// IsExecutable is checked by the chain before Execute is called.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain runs commands in order. A Chain is itself a Command so chains nest.
type Chain interface {
	Command

	// ContinueOnFailure keeps the chain running after a command records an error.
	ContinueOnFailure(bool) Chain

	AddCommand(command Command) Chain
}
