package orchestration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
)

func TestDispatcher_Normalizes(t *testing.T) {
	valid := orchestration.NewOutput(chat, "hi", "Hello!", 0.9)
	validRaw, err := orchestration.Serialize(valid)
	require.NoError(t, err)

	tests := []struct {
		name       string
		fn         func(ctx context.Context, in services.WorkerInput) (services.WorkerResult, error)
		wantStatus orchestration.OutputStatus
		wantCode   string
	}{
		{
			name: "output passes through",
			fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
				return services.WorkerResult{Output: orchestration.NewOutput(chat, "hi", "Hello!", 0.9)}, nil
			},
			wantStatus: orchestration.StatusOK,
		},
		{
			name: "raw output is parsed",
			fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
				return services.WorkerResult{Raw: validRaw}, nil
			},
			wantStatus: orchestration.StatusOK,
		},
		{
			name: "unparseable raw output",
			fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
				return services.WorkerResult{Raw: "definitely not json"}, nil
			},
			wantStatus: orchestration.StatusError,
			wantCode:   CodeUnparseable,
		},
		{
			name: "no output at all",
			fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
				return services.WorkerResult{}, nil
			},
			wantStatus: orchestration.StatusError,
			wantCode:   CodeEmptyOutput,
		},
		{
			name: "worker error",
			fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
				return services.WorkerResult{}, errors.New("upstream 502")
			},
			wantStatus: orchestration.StatusError,
			wantCode:   CodeWorkerError,
		},
		{
			name: "panic",
			fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
				panic("nil map")
			},
			wantStatus: orchestration.StatusError,
			wantCode:   CodeWorkerPanic,
		},
		{
			name: "schema violation",
			fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
				out := orchestration.NewOutput(chat, "hi", "Hello!", 7)
				return services.WorkerResult{Output: out}, nil
			},
			wantStatus: orchestration.StatusError,
			wantCode:   CodeInvalidOutput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := newFakeRegistry(services.WorkerFunc{WorkerName: chat, Fn: tt.fn})
			d := NewDispatcher(registry, time.Second, 0, testLogger())

			res := d.Dispatch(context.Background(), chat, services.WorkerInput{})

			require.NotNil(t, res.Output)
			assert.Equal(t, tt.wantStatus, res.Output.Status)
			assert.Equal(t, chat, res.Output.Worker)
			assert.NotEmpty(t, res.Output.TaskID)
			assert.NoError(t, res.Output.Validate())
			if tt.wantCode != "" {
				require.NotEmpty(t, res.Output.Errors)
				assert.Equal(t, tt.wantCode, res.Output.Errors[0].Code)
			}
		})
	}
}

func TestDispatcher_UnknownWorker(t *testing.T) {
	d := NewDispatcher(newFakeRegistry(), time.Second, 2, testLogger())
	res := d.Dispatch(context.Background(), tutor, services.WorkerInput{})

	assert.Equal(t, orchestration.StatusError, res.Output.Status)
	assert.Equal(t, CodeUnknownWorker, res.Output.Errors[0].Code)
}

func TestDispatcher_FixesMislabelledOutput(t *testing.T) {
	registry := newFakeRegistry(services.WorkerFunc{
		WorkerName: tutor,
		Fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
			out := orchestration.NewOutput(chat, "oops", "content", 0.5)
			out.TaskID = ""
			return services.WorkerResult{Output: out}, nil
		},
	})
	d := NewDispatcher(registry, time.Second, 0, testLogger())
	res := d.Dispatch(context.Background(), tutor, services.WorkerInput{})

	assert.Equal(t, tutor, res.Output.Worker)
	assert.Contains(t, res.Output.TaskID, "tutor-")
}

func TestDispatcher_OutputIsDetachedFromWorker(t *testing.T) {
	var kept *orchestration.WorkerOutput
	registry := newFakeRegistry(services.WorkerFunc{
		WorkerName: chat,
		Fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
			kept = orchestration.NewOutput(chat, "hi", "original", 0.5)
			return services.WorkerResult{Output: kept}, nil
		},
	})
	d := NewDispatcher(registry, time.Second, 0, testLogger())
	res := d.Dispatch(context.Background(), chat, services.WorkerInput{})

	kept.Content = "changed later"
	assert.Equal(t, "original", res.Output.Content)
}

func TestDispatcher_Timeout(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	registry := newFakeRegistry(services.WorkerFunc{
		WorkerName: research,
		Fn: func(ctx context.Context, _ services.WorkerInput) (services.WorkerResult, error) {
			<-release
			return services.WorkerResult{}, ctx.Err()
		},
	})
	d := NewDispatcher(registry, 20*time.Millisecond, 0, testLogger())

	res := d.Dispatch(context.Background(), research, services.WorkerInput{})
	close(release)

	assert.Equal(t, CodeTimeout, res.Output.Errors[0].Code)
	assert.True(t, res.Output.Errors[0].Recoverable)
}

func TestDispatcher_Cancelled(t *testing.T) {
	registry := newFakeRegistry(services.WorkerFunc{
		WorkerName: research,
		Fn: func(ctx context.Context, _ services.WorkerInput) (services.WorkerResult, error) {
			<-ctx.Done()
			return services.WorkerResult{}, ctx.Err()
		},
	})
	d := NewDispatcher(registry, time.Minute, 3, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := d.Dispatch(ctx, research, services.WorkerInput{})

	assert.Equal(t, CodeCancelled, res.Output.Errors[0].Code)
	assert.Equal(t, 0, res.Output.Metadata.Retries)
}

func TestDispatcher_Retries(t *testing.T) {
	tests := []struct {
		name        string
		failures    int
		maxRetries  int
		wantStatus  orchestration.OutputStatus
		wantCalls   int
		wantRetries int
	}{
		{name: "no retry configured", failures: 1, maxRetries: 0, wantStatus: orchestration.StatusError, wantCalls: 1},
		{name: "succeeds on retry", failures: 1, maxRetries: 2, wantStatus: orchestration.StatusOK, wantCalls: 2, wantRetries: 1},
		{name: "gives up after max", failures: 5, maxRetries: 2, wantStatus: orchestration.StatusError, wantCalls: 3, wantRetries: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			registry := newFakeRegistry(services.WorkerFunc{
				WorkerName: chat,
				Fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
					calls++
					if calls <= tt.failures {
						return services.WorkerResult{}, errors.New("flaky")
					}
					return services.WorkerResult{Output: orchestration.NewOutput(chat, "ok", "ok", 0.5)}, nil
				},
			})
			d := NewDispatcher(registry, time.Second, tt.maxRetries, testLogger())

			res := d.Dispatch(context.Background(), chat, services.WorkerInput{})

			assert.Equal(t, tt.wantStatus, res.Output.Status)
			assert.Equal(t, tt.wantCalls, calls)
			assert.Equal(t, tt.wantRetries, res.Output.Metadata.Retries)
		})
	}
}

func TestDispatcher_RecordsTimings(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	ticks := 0
	registry := newFakeRegistry(okWorker(chat, "hi"))
	d := NewDispatcher(registry, 0, 0, testLogger())
	d.now = func() time.Time {
		ticks++
		return start.Add(time.Duration(ticks) * 150 * time.Millisecond)
	}

	res := d.Dispatch(context.Background(), chat, services.WorkerInput{})

	md := res.Output.Metadata
	assert.Equal(t, start.Add(150*time.Millisecond), md.StartedAt)
	assert.Equal(t, start.Add(300*time.Millisecond), md.FinishedAt)
	assert.Equal(t, int64(150), md.ProcessingMS)
}
