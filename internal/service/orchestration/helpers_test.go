package orchestration

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"labmate/internal/domain/models/orchestration"
	services "labmate/internal/domain/services/orchestration"
	"labmate/internal/repository/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedPlanner returns the same plan every turn.
type fixedPlanner struct {
	plan []orchestration.WorkerName
	err  error
}

func (p *fixedPlanner) Plan(context.Context, *orchestration.ConversationState) ([]orchestration.WorkerName, error) {
	return append([]orchestration.WorkerName(nil), p.plan...), p.err
}

// fakeRegistry resolves workers from a map and counts invocations.
type fakeRegistry struct {
	mu      sync.Mutex
	workers map[orchestration.WorkerName]services.Worker
	calls   map[orchestration.WorkerName]int
}

func newFakeRegistry(workers ...services.Worker) *fakeRegistry {
	r := &fakeRegistry{
		workers: make(map[orchestration.WorkerName]services.Worker),
		calls:   make(map[orchestration.WorkerName]int),
	}
	for _, w := range workers {
		r.workers[w.Name()] = countingWorker{Worker: w, registry: r}
	}
	return r
}

func (r *fakeRegistry) Get(name orchestration.WorkerName) (services.Worker, bool) {
	w, ok := r.workers[name]
	return w, ok
}

func (r *fakeRegistry) Names() []orchestration.WorkerName {
	var names []orchestration.WorkerName
	for _, n := range orchestration.AllWorkers() {
		if _, ok := r.workers[n]; ok {
			names = append(names, n)
		}
	}
	return names
}

func (r *fakeRegistry) count(name orchestration.WorkerName) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[name]
}

func (r *fakeRegistry) total() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.calls {
		n += c
	}
	return n
}

type countingWorker struct {
	services.Worker
	registry *fakeRegistry
}

func (w countingWorker) Handle(ctx context.Context, in services.WorkerInput) (services.WorkerResult, error) {
	w.registry.mu.Lock()
	w.registry.calls[w.Name()]++
	w.registry.mu.Unlock()
	return w.Worker.Handle(ctx, in)
}

// recordingSink keeps every emitted event.
type recordingSink struct {
	mu     sync.Mutex
	events []orchestration.StreamEvent
}

func (s *recordingSink) Emit(ev orchestration.StreamEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *recordingSink) all() []orchestration.StreamEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]orchestration.StreamEvent(nil), s.events...)
}

func (s *recordingSink) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
}

// requireTurnSequence checks the per-turn guarantee: log events, then
// the terminal event, then done.
func requireTurnSequence(t *testing.T, events []orchestration.StreamEvent, terminal orchestration.EventType) {
	t.Helper()
	require.GreaterOrEqual(t, len(events), 2)
	n := len(events)
	require.Equal(t, orchestration.EventDone, events[n-1].Type)
	require.Equal(t, terminal, events[n-2].Type)
	for i, ev := range events[:n-2] {
		require.Equalf(t, orchestration.EventLog, ev.Type, "event %d", i)
	}
}

func okWorker(name orchestration.WorkerName, content string) services.Worker {
	return services.WorkerFunc{
		WorkerName: name,
		Fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
			return services.WorkerResult{Output: orchestration.NewOutput(name, name.Title()+" done", content, 0.8)}, nil
		},
	}
}

func failingWorker(name orchestration.WorkerName) services.Worker {
	return services.WorkerFunc{
		WorkerName: name,
		Fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
			return services.WorkerResult{}, errors.New("boom")
		},
	}
}

func askingWorker(name orchestration.WorkerName, questions ...string) services.Worker {
	return services.WorkerFunc{
		WorkerName: name,
		Fn: func(context.Context, services.WorkerInput) (services.WorkerResult, error) {
			return services.WorkerResult{Output: orchestration.NeedsContextOutput(name, questions, "")}, nil
		},
	}
}

type fixture struct {
	orch     *Orchestrator
	store    *memory.CheckpointStore
	registry *fakeRegistry
	sink     *recordingSink
}

func newFixture(t *testing.T, plan []orchestration.WorkerName, opts Options, workers ...services.Worker) *fixture {
	t.Helper()
	store := memory.NewCheckpointStore()
	registry := newFakeRegistry(workers...)
	o, err := New(Deps{
		Store:   store,
		Planner: &fixedPlanner{plan: plan},
		Workers: registry,
		Options: opts,
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	return &fixture{orch: o, store: store, registry: registry, sink: &recordingSink{}}
}

func (f *fixture) run(t *testing.T, threadID, message string) *TurnResult {
	t.Helper()
	res, err := f.orch.Run(context.Background(), &RunRequest{ThreadID: threadID, Message: message}, f.sink)
	require.NoError(t, err)
	return res
}

func (f *fixture) load(t *testing.T, threadID string) *orchestration.ConversationState {
	t.Helper()
	state, err := f.store.Load(context.Background(), threadID)
	require.NoError(t, err)
	return state
}

func plan(ws ...orchestration.WorkerName) []orchestration.WorkerName { return ws }
