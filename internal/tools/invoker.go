package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"dossier/internal/evidence"
	"dossier/internal/logging"
)

// DefaultCallTimeout bounds a single tool call when none is configured.
const DefaultCallTimeout = 30 * time.Second

// Invoker is the pipeline's tool-call boundary. It applies the per-call
// timeout and turns every outcome of a known tool into recorded evidence.
type Invoker struct {
	registry *Registry
	timeout  time.Duration
}

// NewInvoker creates an invoker over registry.
func NewInvoker(registry *Registry, timeout time.Duration) *Invoker {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Invoker{registry: registry, timeout: timeout}
}

// Registry returns the underlying registry.
func (i *Invoker) Registry() *Registry {
	return i.registry
}

// Invocation describes one recorded call.
type Invocation struct {
	Call     evidence.ToolCall
	Evidence []evidence.Evidence
	// Err is the tool failure, wrapped in ErrToolFailed. The call was still
	// recorded as no-data evidence.
	Err      error
	Duration time.Duration
}

// Failed reports whether the tool failed or timed out.
func (inv *Invocation) Failed() bool {
	return inv.Err != nil
}

// Invoke runs the named tool and appends the outcome to store before
// returning. Only ErrUnknownTool is returned as an error, and in that case
// nothing is recorded.
func (i *Invoker) Invoke(ctx context.Context, store *evidence.Store, stage, name string, args map[string]any) (*Invocation, error) {
	tool := i.registry.Get(name)
	if tool == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	start := time.Now()
	result, err := i.run(ctx, tool, args)
	duration := time.Since(start)

	var note string
	var findings []evidence.Finding
	switch {
	case err != nil:
		err = fmt.Errorf("%w: %s: %w", ErrToolFailed, name, err)
		note = err.Error()
		logging.ToolsWarn("%s failed after %v: %v", name, duration, err)
	case result.Empty():
		note = "no results"
		if result != nil && result.Note != "" {
			note = result.Note
		}
	default:
		findings = result.Data
		note = result.Note
	}

	call, items := store.Record(name, args, stage, findings, note)
	return &Invocation{Call: call, Evidence: items, Err: err, Duration: duration}, nil
}

// run executes the tool under the call timeout. A tool that ignores its
// context is abandoned when the deadline passes.
func (i *Invoker) run(ctx context.Context, tool *Tool, args map[string]any) (*Result, error) {
	callCtx, cancel := context.WithTimeout(ctx, i.timeout)
	defer cancel()

	type outcome struct {
		result *Result
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		tr, err := i.registry.ExecuteTool(callCtx, tool, args)
		if err != nil {
			done <- outcome{err: err}
			return
		}
		done <- outcome{result: tr.Result}
	}()

	select {
	case o := <-done:
		if o.err != nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %v: %w: %w", i.timeout, callCtx.Err(), o.err)
		}
		return o.result, o.err
	case <-callCtx.Done():
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("timed out after %v: %w", i.timeout, callCtx.Err())
		}
		return nil, callCtx.Err()
	}
}
