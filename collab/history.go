package collab

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/natsclient"
	"github.com/nats-io/nats.go/jetstream"
)

// HistoryBucket is the KV bucket name for archived sessions.
const HistoryBucket = "COLLAB_HISTORY"

// HistoryStore persists archived sessions to a JetStream KV bucket so
// history survives process restarts. The manager's in-memory history remains
// authoritative for ListHistory; this store is an operational archive the
// daemon writes on session completion.
type HistoryStore struct {
	nc     *natsclient.Client
	bucket jetstream.KeyValue
}

// NewHistoryStore creates a history store over the COLLAB_HISTORY bucket.
func NewHistoryStore(nc *natsclient.Client) (*HistoryStore, error) {
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("get jetstream: %w", err)
	}

	ctx := context.Background()

	// CreateOrUpdateKeyValue is idempotent and handles race conditions
	bucket, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      HistoryBucket,
		Description: "Archived collaboration sessions",
		TTL:         90 * 24 * time.Hour, // 90 days
	})
	if err != nil {
		return nil, fmt.Errorf("create/update kv bucket: %w", err)
	}

	return &HistoryStore{
		nc:     nc,
		bucket: bucket,
	}, nil
}

// Archive saves a completed or failed session to the KV bucket.
func (s *HistoryStore) Archive(ctx context.Context, session *CollaborationSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal session: %w", err)
	}

	_, err = s.bucket.Put(ctx, session.ID, data)
	if err != nil {
		return fmt.Errorf("put session: %w", err)
	}

	return nil
}

// Get retrieves an archived session by ID.
func (s *HistoryStore) Get(ctx context.Context, id string) (*CollaborationSession, error) {
	entry, err := s.bucket.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}

	var session CollaborationSession
	if err := json.Unmarshal(entry.Value(), &session); err != nil {
		return nil, fmt.Errorf("unmarshal session: %w", err)
	}

	return &session, nil
}

// List retrieves all archived sessions, optionally filtered by workflow id.
func (s *HistoryStore) List(ctx context.Context, workflowID string) ([]*CollaborationSession, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		// Empty bucket returns ErrNoKeysFound - this is not an error
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []*CollaborationSession{}, nil
		}
		return nil, fmt.Errorf("list keys: %w", err)
	}

	var sessions []*CollaborationSession
	for _, key := range keys {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entry, err := s.bucket.Get(ctx, key)
		if err != nil {
			continue // Skip errors for individual keys
		}

		var session CollaborationSession
		if err := json.Unmarshal(entry.Value(), &session); err != nil {
			continue
		}

		if workflowID != "" && session.WorkflowID != workflowID {
			continue
		}

		sessions = append(sessions, &session)
	}

	return sessions, nil
}

// Delete removes an archived session from the store.
func (s *HistoryStore) Delete(ctx context.Context, id string) error {
	return s.bucket.Delete(ctx, id)
}
