package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Skryldev/audioedit/domain/model"
	"github.com/Skryldev/audioedit/domain/ports"
)

// CommitKeyPrefix namespaces committed edits in the store
const CommitKeyPrefix = "audioeditor_commit:"

// CommitRecord is the stored form of a committed edit
type CommitRecord struct {
	AssetID     string   `json:"assetId"`
	AudioURL    string   `json:"audioUrl"`
	Transcript  string   `json:"transcript"`
	Duration    *float64 `json:"duration,omitempty"`
	CommittedAt int64    `json:"committedAt"`
}

// StoreCommitter records committed edits in a KVStore. It stands in for the
// asset owner when the editor runs without a backend.
type StoreCommitter struct {
	store ports.KVStore
	now   func() time.Time
}

// NewStoreCommitter wraps store
func NewStoreCommitter(store ports.KVStore) *StoreCommitter {
	return &StoreCommitter{store: store, now: time.Now}
}

// Commit writes the edit under the asset's key, replacing any earlier commit
func (c *StoreCommitter) Commit(ctx context.Context, assetID string, edit model.CommittedEdit) error {
	rec := CommitRecord{
		AssetID:     assetID,
		AudioURL:    edit.AudioURL,
		Transcript:  edit.Transcript,
		Duration:    edit.Duration,
		CommittedAt: c.now().UnixMilli(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding commit: %w", err)
	}
	return c.store.Put(ctx, CommitKeyPrefix+assetID, data)
}

// Last returns the most recent commit for assetID
func (c *StoreCommitter) Last(ctx context.Context, assetID string) (CommitRecord, error) {
	var rec CommitRecord
	data, err := c.store.Get(ctx, CommitKeyPrefix+assetID)
	if err != nil {
		return rec, err
	}
	if err := json.Unmarshal(data, &rec); err != nil {
		return rec, fmt.Errorf("decoding commit: %w", err)
	}
	return rec, nil
}
