package codeact

import (
	"context"
	"time"
)

// CodeRunner executes one model-written snippet. Implementations never fail
// to the caller: timeouts, blocked code, crashes and oversized output are all
// folded into CodeResult.Stdout as tagged text the model can act on.
//
// The code package provides an in-process runner and a subprocess runner.
type CodeRunner interface {
	Run(ctx context.Context, req CodeRequest) CodeResult
}

// CodeRequest is the input to CodeRunner.Run.
type CodeRequest struct {
	// Code is the TypeScript source to execute.
	Code string
	// Action names the tool the model called; it selects which globals and
	// Defined actions are visible to the snippet.
	Action string
	// Registry is the run's action table. Runners treat it as read-only.
	Registry *Registry
	// Timeout is the wall-clock limit. Zero means use the runner default.
	Timeout time.Duration
}

// CodeResult is the output of CodeRunner.Run.
type CodeResult struct {
	Stdout string `json:"stdout"`
}

// CodeRunnerFunc adapts a function to CodeRunner.
type CodeRunnerFunc func(ctx context.Context, req CodeRequest) CodeResult

func (f CodeRunnerFunc) Run(ctx context.Context, req CodeRequest) CodeResult { return f(ctx, req) }
