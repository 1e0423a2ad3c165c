package sessions

import "context"

// Repo defines the interface for persisting the current session.
// Implementations return errors.ErrSessionNotFound when no session is stored under key.
type Repo interface {
	// Get retrieves the session stored under key
	Get(ctx context.Context, key string) (*Session, error)

	// Upsert creates or replaces the session stored under key
	Upsert(ctx context.Context, key string, session *Session) error

	// Delete removes the session; deleting a missing key is not an error
	Delete(ctx context.Context, key string) error
}
