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
// analysis pipeline is assembled from. This file defines `BaseChain`, the
// default implementation of the `Chain` interface.
//
// Logic Flow:
// A `BaseChain` is itself a `Command`, so chains nest inside other chains.
// It runs its commands in a fixed order and pipes each command's output into
// the next command's input.
//
//  1. **Execution starts**: `Execute` is called with the shared `cor.Context`.
//  2. **Telemetry**: One span covers the whole chain and one child span covers
//     each command.
//  3. **Stop conditions**: Before each command the chain checks for recorded
//     errors (unless `continueOnFailure` is set) and for a cancelled Go context.
//     A cancelled context is recorded against the command that did not run.
//  4. **Execution**: Commands whose `IsExecutable` check fails are recorded as
//     "not executable" instead of being run.
//  5. **Data Piping**: The value under `CtxOut` moves to `CtxIn` after every
//     command, then `CtxOut` is cleared.
//  6. **Completion**: The chain span status reflects whether any error was
//     recorded, and the caller's Go context is restored on the `cor.Context`.
package cor

import (
	"fmt"

	"go.opentelemetry.io/otel/codes"
)

// BaseChain executes its commands in order inside one span, with a child
// span per command. It stops at the first recorded error unless
// ContinueOnFailure is set, and it stops when the Go context is done.
type BaseChain struct {
	BaseCommand
	continueOnFailure bool      // Keep running commands after one records an error.
	commands          []Command // Commands in execution order.
}

// NewBaseChain is the constructor for BaseChain.
//
// Inputs:
//   - name: The chain name, used for the chain span and its metric counters.
//
// Outputs:
//   - *BaseChain: An empty chain that stops at the first failure.
func NewBaseChain(name string) *BaseChain {
	return &BaseChain{BaseCommand: *NewBaseCommand(name)}
}

// ContinueOnFailure sets whether the chain keeps executing after a command
// records an error.
//
// Outputs:
//   - Chain: The same chain, for fluent construction.
func (c *BaseChain) ContinueOnFailure(continueOnFailure bool) Chain {
	c.continueOnFailure = continueOnFailure
	return c
}

// AddCommand appends a command to the end of the execution order.
//
// Inputs:
//   - command: Any `Command`, including another chain.
//
// Outputs:
//   - Chain: The same chain, for fluent construction.
func (c *BaseChain) AddCommand(command Command) Chain {
	c.commands = append(c.commands, command)
	return c
}

// Commands returns the command names in execution order.
func (c *BaseChain) Commands() []string {
	names := make([]string, 0, len(c.commands))
	for _, command := range c.commands {
		names = append(names, command.GetName())
	}
	return names
}

// IsExecutable only needs a Go context; the first command checks its own input.
func (c *BaseChain) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil
}

// Execute runs every command in order against chCtx. Failures are reported
// through chCtx rather than returned.
func (c *BaseChain) Execute(chCtx Context) {
	parentCtx := chCtx.GetContext()
	outerCtx, chainSpan := c.Tracer.Start(parentCtx, fmt.Sprintf("%s_execute", c.GetName()))
	defer chainSpan.End()
	defer chCtx.SetContext(parentCtx)

	for _, command := range c.commands {
		if chCtx.HasErrors() && !c.continueOnFailure {
			break
		}
		if err := outerCtx.Err(); err != nil {
			chCtx.AddError(command.GetName(), err)
			break
		}

		commandCtx, commandSpan := c.Tracer.Start(outerCtx, command.GetName())
		if command.IsExecutable(chCtx) {
			chCtx.SetContext(commandCtx)
			command.Execute(chCtx)
			chCtx.SetContext(outerCtx)
		} else {
			err := fmt.Errorf("command not executable: %s", command.GetName())
			chCtx.AddError(command.GetName(), err)
			commandSpan.SetStatus(codes.Error, err.Error())
		}

		if _, failed := chCtx.GetErrors()[command.GetName()]; failed {
			commandSpan.SetStatus(codes.Error, "command failed")
		} else {
			commandSpan.SetStatus(codes.Ok, "")
		}
		commandSpan.End()

		outputValue := chCtx.Get(CtxOut)
		chCtx.Remove(CtxIn)
		if outputValue != nil {
			chCtx.Add(CtxIn, outputValue)
		}
		chCtx.Remove(CtxOut)
	}

	if chCtx.HasErrors() {
		chainSpan.SetStatus(codes.Error, "chain failed to execute")
	} else {
		chainSpan.SetStatus(codes.Ok, "chain completed successfully")
	}
}
