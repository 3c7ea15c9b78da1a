package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"labmate/internal/domain"
	"labmate/internal/domain/models/orchestration"
)

func newTestStore(t *testing.T) *CheckpointStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := Open(filepath.Join(t.TempDir(), "data", "labmate.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleState(id string) *orchestration.ConversationState {
	state := orchestration.NewConversationState(id, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	state.Messages = append(state.Messages, orchestration.Message{Role: orchestration.RoleUser, Content: "explain PID"})
	state.OrchestrationPlan = []orchestration.WorkerName{orchestration.WorkerResearch, orchestration.WorkerTutor}
	state.CurrentStep = 1
	state.Phase = orchestration.PhaseAwaitingHuman
	state.ClarificationQuestions = []orchestration.Question{orchestration.TextQuestion("q1", "Which loop?")}
	state.Interrupt = &orchestration.InterruptInfo{
		Reason:   "missing context",
		Worker:   orchestration.WorkerResearch,
		ResumeTo: orchestration.ResumePlan,
		Mode:     orchestration.QuestionModeWizard,
		Wizard:   orchestration.NewWizardState(state.ClarificationQuestions),
	}
	state.PendingContext[orchestration.ContextKeyEvidence] = []orchestration.EvidenceItem{{SourceID: "d1", Title: "Notes", Score: 0.5}}
	return state
}

func TestCheckpointStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	state := sampleState("t1")
	require.NoError(t, s.Save(ctx, state))
	assert.Equal(t, 1, state.Version)

	got, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, state.OrchestrationPlan, got.OrchestrationPlan)
	assert.Equal(t, 1, got.CurrentStep)
	assert.True(t, got.AwaitingHuman())
	require.NotNil(t, got.Interrupt.Wizard)
	assert.Equal(t, "q1", got.Interrupt.Wizard.Questions[0].ID)
	assert.Equal(t, "Notes", orchestration.ContextEvidence(got.PendingContext)[0].Title)

	got.CurrentStep = 2
	require.NoError(t, s.Save(ctx, got))
	assert.Equal(t, 2, got.Version)
}

func TestCheckpointStore_VersionConflict(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Save(ctx, sampleState("t1")))

	a, err := s.Load(ctx, "t1")
	require.NoError(t, err)
	b, err := s.Load(ctx, "t1")
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, a))
	err = s.Save(ctx, b)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))

	// A second fresh insert for the same thread is also a conflict.
	err = s.Save(ctx, sampleState("t1"))
	assert.True(t, errors.Is(err, domain.ErrConflict))
}

func TestCheckpointStore_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_, err := s.Load(ctx, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.True(t, errors.Is(s.Delete(ctx, "missing"), domain.ErrNotFound))

	require.NoError(t, s.Save(ctx, sampleState("t1")))
	require.NoError(t, s.Delete(ctx, "t1"))
	_, err = s.Load(ctx, "t1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCheckpointStore_List(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.Save(ctx, sampleState(id)))
		time.Sleep(2 * time.Millisecond)
	}

	ids, err := s.List(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "b"}, ids)

	ids, err = s.List(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
}

func TestOpen_DriverError(t *testing.T) {
	orig := openDB
	t.Cleanup(func() { openDB = orig })
	openDB = func(string, string) (*sql.DB, error) {
		return nil, errors.New("driver missing")
	}

	_, err := Open(filepath.Join(t.TempDir(), "x.db"), slog.Default())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "driver missing")
}
