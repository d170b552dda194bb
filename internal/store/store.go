// Package store tracks which transcript ids have already been synced, so
// repeated runs skip work the CRM-side idempotency check would reject anyway.
// The set is best-effort and last-write-wins; the subject-based lookup in the
// pipeline remains the actual duplicate guard.
package store

import "context"

// ProcessedSet records transcript ids that completed a run without error.
type ProcessedSet interface {
	Contains(ctx context.Context, transcriptID string) (bool, error)
	AddAll(ctx context.Context, transcriptIDs []string) error
}
