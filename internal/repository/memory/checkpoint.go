// Package memory is an in-process checkpoint store used by tests and by
// deployments that do not need persistence across restarts.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"labmate/internal/domain"
	"labmate/internal/domain/models/orchestration"
	"labmate/internal/domain/repositories"
)

// CheckpointStore keeps serialized checkpoints in a map so stored states never
// alias the caller's copy.
type CheckpointStore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

var _ repositories.CheckpointRepository = (*CheckpointStore)(nil)

// NewCheckpointStore creates an empty store.
func NewCheckpointStore() *CheckpointStore {
	return &CheckpointStore{items: make(map[string][]byte)}
}

// Load implements repositories.CheckpointRepository.
func (s *CheckpointStore) Load(_ context.Context, threadID string) (*orchestration.ConversationState, error) {
	s.mu.RLock()
	raw, ok := s.items[threadID]
	s.mu.RUnlock()
	if !ok {
		return nil, &domain.NotFoundError{Message: fmt.Sprintf("thread %s not found", threadID)}
	}

	var state orchestration.ConversationState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", threadID, err)
	}
	state.EnsureDefaults()
	return &state, nil
}

// Save implements repositories.CheckpointRepository.
func (s *CheckpointStore) Save(_ context.Context, state *orchestration.ConversationState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := 0
	if raw, ok := s.items[state.ThreadID]; ok {
		var current struct {
			Version int `json:"version"`
		}
		if err := json.Unmarshal(raw, &current); err != nil {
			return fmt.Errorf("decode stored version: %w", err)
		}
		stored = current.Version
	}
	if stored != state.Version {
		return &domain.ConflictError{
			Message:      fmt.Sprintf("checkpoint for thread %s changed since version %d", state.ThreadID, state.Version),
			ResourceType: "checkpoint",
			ResourceID:   state.ThreadID,
		}
	}

	next := *state
	next.Version = state.Version + 1
	next.UpdatedAt = time.Now().UTC()
	raw, err := json.Marshal(&next)
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	s.items[state.ThreadID] = raw

	state.Version = next.Version
	state.UpdatedAt = next.UpdatedAt
	return nil
}

// Delete implements repositories.CheckpointRepository.
func (s *CheckpointStore) Delete(_ context.Context, threadID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[threadID]; !ok {
		return &domain.NotFoundError{Message: fmt.Sprintf("thread %s not found", threadID)}
	}
	delete(s.items, threadID)
	return nil
}
