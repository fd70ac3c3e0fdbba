// Package backend routes each message to the most cost-effective
// text-generation backend and walks a deterministic fallback chain when the
// preferred one fails.
package backend

import (
	"context"
	"time"
)

// Complexity classifies a message for backend selection.
type Complexity string

const (
	ComplexitySimple       Complexity = "simple"
	ComplexityModerate     Complexity = "moderate"
	ComplexityComplex      Complexity = "complex"
	ComplexityMultilingual Complexity = "multilingual"
)

// Request is a generation request assembled by the routing engine.
type Request struct {
	Prompt   string
	Language string
	// Intent is an optional pre-detected intent hint.
	Intent string
}

// Backend is an interchangeable text-generation capability.
type Backend interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Invocation is the ephemeral record of one backend attempt. Consumed for
// observability only.
type Invocation struct {
	Backend    string
	Latency    time.Duration
	Cost       float64
	Complexity Complexity
	Err        error
}

// Result is the outcome of routing one message.
type Result struct {
	Text       string
	Backend    string
	Complexity Complexity
	Latency    time.Duration
	Cost       float64
	// Exhausted is set when every backend in the chain failed and the
	// static apology was returned instead.
	Exhausted bool
	Attempts  []Invocation
}
