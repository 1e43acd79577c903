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
// analysis pipeline is assembled from. This file defines `BaseCommand`, which
// every concrete command embeds.
//
// BaseCommand supplies:
//   - A name used for spans, metric names and error keys.
//   - A tracer, a meter and success/error counters.
//   - Default input and output keys so the chain can pipe values.
//   - `Fail` and `Succeed` helpers that keep the context, span and counters in step.
package cor

import (
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// MeterName is the instrumentation scope every command records metrics under.
const MeterName = "github.com/jaycherian/gcp-go-video-insights"

// BaseCommand carries the name, parameter keys and telemetry every command
// needs. Concrete commands embed it.
type BaseCommand struct {
	Name            string              // Used for tracing, metrics and error keys.
	InputParamName  string              // Context key of the primary input; CtxIn when empty.
	OutputParamName string              // Context key of the primary output; CtxOut when empty.
	Tracer          trace.Tracer        // Tracer named after the command.
	Meter           metric.Meter        // Meter under MeterName.
	SuccessCounter  metric.Int64Counter // "<name>.counter.success"
	ErrorCounter    metric.Int64Counter // "<name>.counter.error"
}

// NewBaseCommand creates a command with its own tracer and success/error
// counters. A counter that cannot be created is logged and left nil; the
// helpers skip nil counters.
//
// Inputs:
//   - name: The command name.
//
// Outputs:
//   - *BaseCommand: A command reading CtxIn and writing CtxOut.
func NewBaseCommand(name string) *BaseCommand {
	meter := otel.Meter(MeterName)

	successCounter, err := meter.Int64Counter(fmt.Sprintf("%s.counter.success", name))
	if err != nil {
		slog.Error("error creating success counter", "command", name, "error", err)
	}
	errorCounter, err := meter.Int64Counter(fmt.Sprintf("%s.counter.error", name))
	if err != nil {
		slog.Error("error creating error counter", "command", name, "error", err)
	}

	return &BaseCommand{
		Name:           name,
		Tracer:         otel.Tracer(name),
		Meter:          meter,
		SuccessCounter: successCounter,
		ErrorCounter:   errorCounter,
	}
}

func (c *BaseCommand) GetName() string {
	return c.Name
}

// IsExecutable requires a Go context and a value under the input key.
func (c *BaseCommand) IsExecutable(context Context) bool {
	return context != nil && context.GetContext() != nil && context.Get(c.GetInputParam()) != nil
}

// GetInputParam defaults to CtxIn so the chain can pipe values between commands.
func (c *BaseCommand) GetInputParam() string {
	if len(c.InputParamName) == 0 {
		return CtxIn
	}
	return c.InputParamName
}

// GetOutputParam defaults to CtxOut.
func (c *BaseCommand) GetOutputParam() string {
	if len(c.OutputParamName) == 0 {
		return CtxOut
	}
	return c.OutputParamName
}

func (c *BaseCommand) GetTracer() trace.Tracer {
	return c.Tracer
}

func (c *BaseCommand) GetMeter() metric.Meter {
	return c.Meter
}

func (c *BaseCommand) GetSuccessCounter() metric.Int64Counter {
	return c.SuccessCounter
}

func (c *BaseCommand) GetErrorCounter() metric.Int64Counter {
	return c.ErrorCounter
}

// Fail records err on the context, the active span and the error counter.
//
// Inputs:
//   - context: The chain context; its Go context carries the command span.
//   - err: The failure, stored under the command name.
func (c *BaseCommand) Fail(context Context, err error) {
	ctx := context.GetContext()
	context.AddError(c.GetName(), err)
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if c.ErrorCounter != nil {
		c.ErrorCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("command", c.GetName())))
	}
}

// Succeed counts a successful execution.
func (c *BaseCommand) Succeed(context Context) {
	if c.SuccessCounter != nil {
		c.SuccessCounter.Add(context.GetContext(), 1, metric.WithAttributes(attribute.String("command", c.GetName())))
	}
}
