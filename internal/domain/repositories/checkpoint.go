package repositories

import (
	"context"

	"labmate/internal/domain/models/orchestration"
)

// CheckpointRepository persists one ConversationState document per thread.
// The state must be fully reconstructible from that single record.
type CheckpointRepository interface {
	// Load returns the latest checkpoint for threadID.
	// Returns domain.ErrNotFound when the thread has never been saved.
	Load(ctx context.Context, threadID string) (*orchestration.ConversationState, error)

	// Save writes state and increments state.Version.
	// Returns a *domain.ConflictError when the stored version moved since state was loaded.
	Save(ctx context.Context, state *orchestration.ConversationState) error

	// Delete removes the checkpoint. Deleting an unknown thread returns domain.ErrNotFound.
	Delete(ctx context.Context, threadID string) error
}
