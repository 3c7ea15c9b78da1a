package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

// Dispatch error codes carried in ErrorItem.Code.
const (
	CodeUnknownWorker = "unknown_worker"
	CodeWorkerError   = "worker_error"
	CodeWorkerPanic   = "worker_panic"
	CodeTimeout       = "timeout"
	CodeCancelled     = "cancelled"
	CodeUnparseable   = "unparseable_output"
	CodeInvalidOutput = "invalid_output"
	CodeEmptyOutput   = "empty_output"
)

// DispatchResult is a normalized worker result. Output is never nil.
type DispatchResult struct {
	Patch  orchestration.StatePatch
	Output *orchestration.WorkerOutput
}

// Dispatcher invokes workers and turns every failure mode into a well-formed
// error output, so routing only ever sees WorkerOutputs.
type Dispatcher struct {
	registry   services.WorkerRegistry
	timeout    time.Duration
	maxRetries int
	logger     *slog.Logger
	now        func() time.Time
}

// NewDispatcher creates a dispatcher over registry.
func NewDispatcher(registry services.WorkerRegistry, timeout time.Duration, maxRetries int, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		registry:   registry,
		timeout:    timeout,
		maxRetries: maxRetries,
		logger:     logger,
		now:        time.Now,
	}
}

// Dispatch runs worker name once, retrying failed attempts up to maxRetries.
func (d *Dispatcher) Dispatch(ctx context.Context, name orchestration.WorkerName, in services.WorkerInput) DispatchResult {
	w, ok := d.registry.Get(name)
	if !ok {
		d.logger.Error("worker not registered", "worker", name)
		return DispatchResult{Output: orchestration.ErrorOutput(name, CodeUnknownWorker,
			fmt.Sprintf("worker %q is not available", name))}
	}

	var res DispatchResult
	attempt := 0
	for {
		started := d.now()
		res = d.invoke(ctx, w, name, in)
		finished := d.now()

		md := &res.Output.Metadata
		if md.StartedAt.IsZero() {
			md.StartedAt = started
		}
		if md.FinishedAt.IsZero() {
			md.FinishedAt = finished
		}
		if md.ProcessingMS == 0 {
			md.ProcessingMS = finished.Sub(started).Milliseconds()
		}

		if res.Output.Status != orchestration.StatusError || attempt >= d.maxRetries || ctx.Err() != nil {
			break
		}
		if !recoverable(res.Output) {
			break
		}
		attempt++
		d.logger.Warn("retrying worker",
			"worker", name,
			"attempt", attempt,
			"error", res.Output.FirstError(),
		)
	}
	res.Output.Metadata.Retries = attempt
	return res
}

type reply struct {
	result   services.WorkerResult
	err      error
	panicked any
	stack    []byte
}

func (d *Dispatcher) invoke(ctx context.Context, w services.Worker, name orchestration.WorkerName, in services.WorkerInput) DispatchResult {
	callCtx := ctx
	cancel := func() {}
	if d.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, d.timeout)
	}
	defer cancel()

	ch := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- reply{panicked: r, stack: debug.Stack()}
			}
		}()
		res, err := w.Handle(callCtx, in)
		ch <- reply{result: res, err: err}
	}()

	select {
	case r := <-ch:
		return d.normalize(name, r)
	case <-callCtx.Done():
		if ctx.Err() != nil {
			d.logger.Warn("worker cancelled", "worker", name)
			return DispatchResult{Output: orchestration.ErrorOutput(name, CodeCancelled, "the request was cancelled")}
		}
		d.logger.Warn("worker timed out", "worker", name, "timeout", d.timeout)
		return DispatchResult{Output: orchestration.ErrorOutput(name, CodeTimeout,
			fmt.Sprintf("%s did not answer within %s", name.Title(), d.timeout))}
	}
}

func (d *Dispatcher) normalize(name orchestration.WorkerName, r reply) DispatchResult {
	if r.panicked != nil {
		d.logger.Error("worker panicked",
			"worker", name,
			"panic", fmt.Sprint(r.panicked),
			"stack", string(r.stack),
		)
		return DispatchResult{Output: orchestration.ErrorOutput(name, CodeWorkerPanic,
			fmt.Sprintf("%s failed unexpectedly", name.Title()))}
	}
	if r.err != nil {
		code := CodeWorkerError
		switch {
		case errors.Is(r.err, context.DeadlineExceeded):
			code = CodeTimeout
		case errors.Is(r.err, context.Canceled):
			code = CodeCancelled
		}
		d.logger.Warn("worker returned error", "worker", name, "error", r.err)
		return DispatchResult{Output: orchestration.ErrorOutput(name, code, r.err.Error())}
	}

	out := r.result.Output
	if out == nil {
		if r.result.Raw == "" {
			return DispatchResult{Output: orchestration.ErrorOutput(name, CodeEmptyOutput,
				fmt.Sprintf("%s returned no output", name.Title()))}
		}
		parsed, ok := orchestration.Parse(r.result.Raw)
		if !ok {
			d.logger.Warn("worker output not parseable", "worker", name)
			return DispatchResult{Output: orchestration.ErrorOutput(name, CodeUnparseable,
				fmt.Sprintf("%s returned output that could not be read", name.Title()))}
		}
		out = parsed
	}

	// Detach from the worker's copy so later changes on either side are invisible.
	fixed := *out
	if fixed.Worker != name {
		if fixed.Worker != "" {
			d.logger.Warn("worker output mislabelled", "worker", name, "labelled", fixed.Worker)
		}
		fixed.Worker = name
	}
	if fixed.TaskID == "" {
		fixed.TaskID = orchestration.NewTaskID(name)
	}
	text, err := orchestration.Serialize(&fixed)
	if err != nil {
		return DispatchResult{Output: orchestration.ErrorOutput(name, CodeInvalidOutput, err.Error())}
	}
	detached, ok := orchestration.Parse(text)
	if !ok {
		verr := fixed.Validate()
		d.logger.Warn("worker output invalid", "worker", name, "error", verr)
		return DispatchResult{Output: orchestration.ErrorOutput(name, CodeInvalidOutput,
			fmt.Sprintf("%s returned an invalid output", name.Title()))}
	}
	return DispatchResult{Patch: r.result.Patch, Output: detached}
}

func recoverable(out *orchestration.WorkerOutput) bool {
	if len(out.Errors) == 0 {
		return false
	}
	for _, e := range out.Errors {
		if !e.Recoverable || e.Code == CodeUnknownWorker || e.Code == CodeCancelled {
			return false
		}
	}
	return true
}
